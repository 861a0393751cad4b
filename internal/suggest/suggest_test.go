package suggest

import (
	"slices"
	"testing"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"class", "class", 0},
		{"clas", "class", 1},
		{"perod", "period", 1},
		{"kitten", "sitting", 3},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestClosestFlags(t *testing.T) {
	flags := []string{"--class", "--date", "--period", "--subject", "--method", "--absent"}

	got := Closest("--clas", flags)
	if len(got) == 0 || got[0] != "--class" {
		t.Errorf("Closest(--clas) = %v, want --class first", got)
	}
	if got := Closest("--perod", flags); len(got) == 0 || got[0] != "--period" {
		t.Errorf("Closest(--perod) = %v, want --period first", got)
	}
	if got := Closest("--zzzzzzzzzz", flags); len(got) != 0 {
		t.Errorf("Closest(far) = %v, want none", got)
	}
	if got := Closest("", flags); got != nil {
		t.Errorf("Closest(empty) = %v, want nil", got)
	}
}

func TestClosestDottedKeys(t *testing.T) {
	keys := []string{"server_url", "sync.interval", "sync.batch_size", "connectivity.probe_interval"}

	got := Closest("interval", keys)
	if !slices.Contains(got, "sync.interval") {
		t.Errorf("Closest(interval) = %v, want sync.interval", got)
	}
	if got := Closest("sync.intervl", keys); len(got) == 0 || got[0] != "sync.interval" {
		t.Errorf("Closest(sync.intervl) = %v, want sync.interval first", got)
	}
	if len(Closest("interval", keys)) > 3 {
		t.Error("Closest should return at most three")
	}
}

func TestFlagHint(t *testing.T) {
	if got := FlagHint("--tag"); got != "--rfid" {
		t.Errorf("FlagHint(--tag) = %q", got)
	}
	if got := FlagHint("-Y"); got != "--force" {
		t.Errorf("FlagHint(-Y) = %q", got)
	}
	if got := FlagHint("--nonsense"); got != "" {
		t.Errorf("FlagHint(--nonsense) = %q, want empty", got)
	}
}
