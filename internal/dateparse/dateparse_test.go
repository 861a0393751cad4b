package dateparse

import (
	"testing"
	"time"
)

// Fixed reference time: Wednesday, 2026-02-18 12:00:00 UTC
var testNow = time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)

func check(t *testing.T, tests []struct{ input, want string }) {
	t.Helper()
	for _, tt := range tests {
		got, err := ParseDateFrom(tt.input, testNow)
		if err != nil {
			t.Errorf("ParseDateFrom(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDateFrom(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseDate_ExactDate(t *testing.T) {
	check(t, []struct{ input, want string }{
		{"2026-03-01", "2026-03-01"},
		{"2025-12-31", "2025-12-31"},
	})
}

func TestParseDate_Keywords(t *testing.T) {
	check(t, []struct{ input, want string }{
		{"today", "2026-02-18"},
		{"yesterday", "2026-02-17"},
		{"  Today ", "2026-02-18"},
	})
}

func TestParseDate_Relative(t *testing.T) {
	check(t, []struct{ input, want string }{
		{"-0d", "2026-02-18"},
		{"-1d", "2026-02-17"},
		{"-18d", "2026-01-31"},
		{"-1w", "2026-02-11"},
		{"-3w", "2026-01-28"},
	})
}

func TestParseDate_DayNames(t *testing.T) {
	check(t, []struct{ input, want string }{
		{"wednesday", "2026-02-18"}, // today
		{"tuesday", "2026-02-17"},
		{"monday", "2026-02-16"},
		{"Thursday", "2026-02-12"},
		{"sunday", "2026-02-15"},
	})
}

func TestParseDate_Errors(t *testing.T) {
	for _, input := range []string{"", "   ", "tomorrow-ish", "-5y", "+1d", "2026-02-30", "next-week"} {
		if _, err := ParseDateFrom(input, testNow); err == nil {
			t.Errorf("ParseDateFrom(%q): expected error", input)
		}
	}
}

func TestParseDate_UsesCurrentTime(t *testing.T) {
	got, err := ParseDate("today")
	if err != nil {
		t.Fatalf("ParseDate(today): %v", err)
	}
	if want := time.Now().Format("2006-01-02"); got != want {
		t.Errorf("ParseDate(today) = %q, want %q", got, want)
	}
}
