package output

import (
	"strings"
	"testing"
	"time"

	"github.com/marcus/rollcall/internal/models"
)

// TestFormatTimeAgoJustNow tests times less than a minute ago
func TestFormatTimeAgoJustNow(t *testing.T) {
	now := time.Now()
	tests := []time.Time{
		now,
		now.Add(-30 * time.Second),
		now.Add(-59 * time.Second),
	}

	for _, tm := range tests {
		result := FormatTimeAgo(tm)
		if result != "just now" {
			t.Errorf("FormatTimeAgo(%v) = %q, want 'just now'", tm, result)
		}
	}
}

func TestFormatTimeAgo(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{1 * time.Minute, "1m ago"},
		{30 * time.Minute, "30m ago"},
		{1 * time.Hour, "1h ago"},
		{23 * time.Hour, "23h ago"},
		{24 * time.Hour, "1d ago"},
		{6 * 24 * time.Hour, "6d ago"},
	}

	for _, tc := range tests {
		tm := time.Now().Add(-tc.duration)
		result := FormatTimeAgo(tm)
		if result != tc.expected {
			t.Errorf("FormatTimeAgo(-%v) = %q, want %q", tc.duration, result, tc.expected)
		}
	}
}

// TestFormatTimeAgoDate tests times 7+ days ago (returns date)
func TestFormatTimeAgoDate(t *testing.T) {
	tm := time.Now().Add(-8 * 24 * time.Hour)
	result := FormatTimeAgo(tm)
	expected := tm.Format("2006-01-02")
	if result != expected {
		t.Errorf("FormatTimeAgo(-8d) = %q, want %q", result, expected)
	}
}

func TestFormatLastSync(t *testing.T) {
	if got := FormatLastSync(nil); got != "never" {
		t.Errorf("FormatLastSync(nil) = %q, want never", got)
	}
	ts := time.Now().Add(-2 * time.Hour)
	if got := FormatLastSync(&ts); !strings.Contains(got, "2h ago") {
		t.Errorf("FormatLastSync = %q, want it to contain '2h ago'", got)
	}
}

func TestFormatState(t *testing.T) {
	for _, s := range []models.SyncState{models.SyncPending, models.SyncInFlight, models.SyncFailed, models.SyncSynced} {
		result := FormatState(s)
		if !strings.Contains(result, string(s)) {
			t.Errorf("FormatState(%q) = %q, should contain state", s, result)
		}
	}
	if got := FormatState(models.SyncState("weird")); got != "weird" {
		t.Errorf("FormatState(unknown) = %q, want 'weird'", got)
	}
}

func TestStateBadge(t *testing.T) {
	tests := []struct {
		state    models.SyncState
		contains string
	}{
		{models.SyncPending, "○"},
		{models.SyncInFlight, "▶"},
		{models.SyncFailed, "✗"},
		{models.SyncSynced, "✓"},
		{models.SyncState("weird"), "?"},
	}

	for _, tc := range tests {
		result := StateBadge(tc.state)
		if !strings.Contains(result, tc.contains) {
			t.Errorf("StateBadge(%q) = %q, should contain %q", tc.state, result, tc.contains)
		}
		if !strings.Contains(result, string(tc.state)) {
			t.Errorf("StateBadge(%q) should contain state name", tc.state)
		}
	}
}

func testMark() models.AttendanceEvent {
	return models.AttendanceEvent{
		LocalID:    "0b5e2d1c-7f7a-4c8e-9d55-0a1b2c3d4e5f",
		StudentID:  "s-1",
		TeacherID:  "t-9",
		ClassID:    "c-7a",
		Subject:    "math",
		Period:     "3",
		Date:       "2026-03-02",
		Status:     models.StatusPresent,
		Method:     models.MethodRFID,
		CapturedAt: time.Now().Add(-5 * time.Minute),
		SyncState:  models.SyncFailed,
		Attempts:   10,
		ErrorKind:  "server_rejection",
		LastError:  "unknown student",
	}
}

func TestFormatMarkShort(t *testing.T) {
	result := FormatMarkShort(testMark())
	for _, want := range []string{"0b5e2d1c", "s-1", "2026-03-02/3", "present", "rfid", "failed", "10 attempts"} {
		if !strings.Contains(result, want) {
			t.Errorf("FormatMarkShort missing %q: %q", want, result)
		}
	}
	if strings.Contains(result, "0b5e2d1c-7f7a") {
		t.Errorf("FormatMarkShort should shorten the local id: %q", result)
	}
}

func TestFormatMarkShortNoAttempts(t *testing.T) {
	ev := testMark()
	ev.Attempts = 0
	ev.SyncState = models.SyncPending
	if result := FormatMarkShort(ev); strings.Contains(result, "attempts") {
		t.Errorf("FormatMarkShort should omit zero attempts: %q", result)
	}
}

func TestFormatMarkLong(t *testing.T) {
	result := FormatMarkLong(testMark())
	for _, want := range []string{
		"0b5e2d1c-7f7a-4c8e-9d55-0a1b2c3d4e5f",
		"Attempts: 10",
		"Class: c-7a",
		"Subject: math",
		"Teacher: t-9",
		"5m ago",
		"Last error:",
		"[server_rejection] unknown student",
	} {
		if !strings.Contains(result, want) {
			t.Errorf("FormatMarkLong missing %q:\n%s", want, result)
		}
	}
}

func TestFormatMarkLongNoError(t *testing.T) {
	ev := testMark()
	ev.LastError = ""
	ev.ErrorKind = ""
	ev.Subject = ""
	result := FormatMarkLong(ev)
	for _, unwanted := range []string{"Last error:", "Subject:"} {
		if strings.Contains(result, unwanted) {
			t.Errorf("FormatMarkLong should not contain %q:\n%s", unwanted, result)
		}
	}
}

func TestMarkTable(t *testing.T) {
	second := testMark()
	second.LocalID = "ffffffff-0000"
	second.StudentID = "s-2"
	second.Period = ""

	result := MarkTable([]models.AttendanceEvent{testMark(), second}, 0)
	for _, want := range []string{"STUDENT", "STATE", "0b5e2d1c", "ffffffff", "s-1", "s-2", "2026-03-02/3", "unknown student"} {
		if !strings.Contains(result, want) {
			t.Errorf("MarkTable missing %q:\n%s", want, result)
		}
	}
}

func TestFormatOutcome(t *testing.T) {
	for _, o := range []models.SyncOutcome{models.OutcomeSynced, models.OutcomeRejected, models.OutcomeRetried, models.OutcomeFailed} {
		if !strings.Contains(FormatOutcome(o), string(o)) {
			t.Errorf("FormatOutcome(%q) should contain the outcome", o)
		}
	}
}

func TestShortIDAndSlotLabel(t *testing.T) {
	if got := ShortID("abc"); got != "abc" {
		t.Errorf("ShortID(abc) = %q", got)
	}
	if got := ShortID("0123456789"); got != "01234567" {
		t.Errorf("ShortID = %q, want 01234567", got)
	}
	if got := SlotLabel("2026-03-02", ""); got != "2026-03-02" {
		t.Errorf("SlotLabel without period = %q", got)
	}
	if got := SlotLabel("2026-03-02", "P1"); got != "2026-03-02/P1" {
		t.Errorf("SlotLabel = %q", got)
	}
}

// TestSectionHeader tests section header formatting
func TestSectionHeader(t *testing.T) {
	tests := []struct {
		title    string
		expected string
	}{
		{"failed", "\nFAILED:\n"},
		{"Last Error", "\nLAST ERROR:\n"},
	}

	for _, tc := range tests {
		result := SectionHeader(tc.title)
		if result != tc.expected {
			t.Errorf("SectionHeader(%q) = %q, want %q", tc.title, result, tc.expected)
		}
	}
}

// TestIndentString tests string indentation
func TestIndentString(t *testing.T) {
	input := "line1\nline2\nline3"
	result := IndentString(input, 2)
	expected := "  line1\n  line2\n  line3"

	if result != expected {
		t.Errorf("IndentString() = %q, want %q", result, expected)
	}
	if IndentString("", 4) != "" {
		t.Error("Empty string should return empty string")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"too long here", 5, "too …"},
		{"ünïcödé", 4, "ünï…"},
		{"abc", 1, "…"},
		{"abc", 0, "abc"},
	}
	for _, tc := range tests {
		if got := Truncate(tc.in, tc.max); got != tc.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestTerminalWidthFallback(t *testing.T) {
	if IsTerminal() {
		t.Skip("stdout is a terminal")
	}
	t.Setenv("COLUMNS", "")
	if got := TerminalWidth(0); got != defaultWidth {
		t.Errorf("TerminalWidth(0) = %d, want %d", got, defaultWidth)
	}
	t.Setenv("COLUMNS", "132")
	if got := TerminalWidth(0); got != 132 {
		t.Errorf("TerminalWidth with COLUMNS = %d, want 132", got)
	}
}
