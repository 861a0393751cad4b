// Package output provides styled terminal output helpers (success, error,
// warning, attendance mark formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/marcus/rollcall/internal/models"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255"))
	stateStyles  = map[models.SyncState]lipgloss.Style{
		models.SyncPending:  lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.SyncInFlight: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.SyncFailed:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		models.SyncSynced:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	}
	statusStyles = map[models.Status]lipgloss.Style{
		models.StatusPresent: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.StatusAbsent:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
)

// Success prints a success message
func Success(format string, args ...any) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...any) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...any) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

// JSON outputs data as JSON
func JSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	data, _ := json.Marshal(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
	fmt.Println(string(data))
}

// FormatState formats a sync state with color
func FormatState(s models.SyncState) string {
	style, ok := stateStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// FormatStatus formats an attendance status with color
func FormatStatus(s models.Status) string {
	style, ok := statusStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(string(s))
}

// StateBadge returns a sync state with a symbol, e.g. "○ pending", "✓ synced"
func StateBadge(s models.SyncState) string {
	symbols := map[models.SyncState]string{
		models.SyncPending:  "○",
		models.SyncInFlight: "▶",
		models.SyncFailed:   "✗",
		models.SyncSynced:   "✓",
	}
	symbol, ok := symbols[s]
	if !ok {
		symbol = "?"
	}
	if style, ok := stateStyles[s]; ok {
		return style.Render(fmt.Sprintf("%s %s", symbol, s))
	}
	return fmt.Sprintf("%s %s", symbol, s)
}

// ShortID shortens a local id for display.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// SlotLabel renders "date" or "date/period".
func SlotLabel(date, period string) string {
	if period == "" {
		return date
	}
	return date + "/" + period
}

// FormatMarkShort formats a mark on one line
func FormatMarkShort(ev models.AttendanceEvent) string {
	parts := []string{
		titleStyle.Render(ShortID(ev.LocalID)),
		ev.StudentID,
		SlotLabel(ev.Date, ev.Period),
		FormatStatus(ev.Status),
		subtleStyle.Render(string(ev.Method)),
		FormatState(ev.SyncState),
	}
	if ev.Attempts > 0 {
		parts = append(parts, subtleStyle.Render(fmt.Sprintf("%d attempts", ev.Attempts)))
	}
	return strings.Join(parts, "  ")
}

// FormatMarkLong formats every field of a mark, including the last error.
func FormatMarkLong(ev models.AttendanceEvent) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s: %s %s", ev.LocalID, ev.StudentID, SlotLabel(ev.Date, ev.Period))))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "State: %s", FormatState(ev.SyncState))
	if ev.Attempts > 0 {
		fmt.Fprintf(&sb, " | Attempts: %d", ev.Attempts)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Status: %s | Method: %s\n", FormatStatus(ev.Status), ev.Method)
	fmt.Fprintf(&sb, "Class: %s", ev.ClassID)
	if ev.Subject != "" {
		fmt.Fprintf(&sb, " | Subject: %s", ev.Subject)
	}
	if ev.TeacherID != "" {
		fmt.Fprintf(&sb, " | Teacher: %s", ev.TeacherID)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Captured: %s (%s)\n", ev.CapturedAt.Local().Format("2006-01-02 15:04:05"), FormatTimeAgo(ev.CapturedAt))

	if ev.LastError != "" {
		sb.WriteString("\n")
		sb.WriteString(subtleStyle.Render("Last error:"))
		sb.WriteString("\n")
		kind := ev.ErrorKind
		if kind == "" {
			kind = "error"
		}
		sb.WriteString(IndentString(fmt.Sprintf("[%s] %s", kind, ev.LastError), 2))
		sb.WriteString("\n")
	}
	return sb.String()
}

// MarkTable renders marks as a bordered table sized for width.
func MarkTable(events []models.AttendanceEvent, width int) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(subtleStyle).
		Headers("ID", "STUDENT", "DATE", "STATUS", "METHOD", "STATE", "TRIES", "ERROR").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	if width > 0 {
		t = t.Width(width)
	}
	for _, ev := range events {
		t.Row(
			ShortID(ev.LocalID),
			ev.StudentID,
			SlotLabel(ev.Date, ev.Period),
			string(ev.Status),
			string(ev.Method),
			string(ev.SyncState),
			fmt.Sprintf("%d", ev.Attempts),
			Truncate(ev.LastError, 40),
		)
	}
	return t.String()
}

// FormatOutcome formats a sync history outcome with color
func FormatOutcome(o models.SyncOutcome) string {
	switch o {
	case models.OutcomeSynced:
		return successStyle.Render(string(o))
	case models.OutcomeRejected, models.OutcomeFailed:
		return errorStyle.Render(string(o))
	case models.OutcomeRetried:
		return warningStyle.Render(string(o))
	default:
		return string(o)
	}
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		return t.Format("2006-01-02")
	}
}

// FormatLastSync renders an optional timestamp, "never" when unset.
func FormatLastSync(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return fmt.Sprintf("%s (%s)", t.Local().Format("2006-01-02 15:04"), FormatTimeAgo(*t))
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nFAILED:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentString indents each line in a string by the specified number of spaces
func IndentString(s string, spaces int) string {
	if s == "" {
		return ""
	}
	indent := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}

// Truncate shortens s to max runes, marking the cut with "…".
func Truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}
