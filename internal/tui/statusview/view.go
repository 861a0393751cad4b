package statusview

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/marcus/rollcall/internal/output"
)

// renderView renders the complete view
func (m Model) renderView() string {
	if m.Width == 0 || m.Height == 0 {
		return "Loading..."
	}

	if m.Width < MinWidth || m.Height < MinHeight {
		return m.renderCompact()
	}

	if m.ShowHelp {
		return m.renderHelp()
	}

	// Summary panel is fixed; problems take the rest minus the footer
	summary := m.renderSummaryPanel()
	problemsHeight := m.Height - lipgloss.Height(summary) - 1
	problems := m.renderProblemsPanel(problemsHeight)

	return lipgloss.JoinVertical(lipgloss.Left, summary, problems, m.renderFooter())
}

// renderCompact renders a minimal view for small terminals
func (m Model) renderCompact() string {
	var s strings.Builder

	s.WriteString("rollcall status (resize for full view)\n\n")
	s.WriteString(formatOnline(m.Snap.Online))
	s.WriteString("\n")
	fmt.Fprintf(&s, "Pending: %d | Failed: %d\n", m.Snap.PendingCount, m.Snap.FailedCount)
	fmt.Fprintf(&s, "Last sync: %s\n", output.FormatLastSync(m.Snap.LastSyncAt))
	s.WriteString("\nq:quit r:refresh s:sync")

	return s.String()
}

func (m Model) renderSummaryPanel() string {
	var c strings.Builder

	c.WriteString(formatOnline(m.Snap.Online))
	if m.Syncing {
		c.WriteString("  " + m.spinner.View() + " syncing…")
	}
	c.WriteString("\n\n")

	fmt.Fprintf(&c, "%s %s   %s %s   %s %s   %s %s\n",
		titleStyle.Render("Pending:"), formatCount(m.Snap.PendingCount, titleStyle),
		titleStyle.Render("In flight:"), formatCount(m.Snap.InFlightCount, offlineStyle),
		titleStyle.Render("Failed:"), formatCount(m.Snap.FailedCount, errorStyle),
		titleStyle.Render("Synced:"), formatCount(m.Snap.SyncedCount, okStyle),
	)
	fmt.Fprintf(&c, "%s %s\n", titleStyle.Render("Last sync:"), output.FormatLastSync(m.Snap.LastSyncAt))
	fmt.Fprintf(&c, "%s %s\n", titleStyle.Render("Last pass:"), output.FormatLastSync(m.Snap.LastPassAt))

	if m.Snap.LastError != "" {
		fmt.Fprintf(&c, "%s %s\n", errorStyle.Render("Last error:"),
			output.Truncate(fmt.Sprintf("[%s] %s", m.Snap.LastErrorKind, m.Snap.LastError), m.Width-16))
	}
	if m.Err != nil {
		fmt.Fprintf(&c, "%s %s\n", errorStyle.Render("Refresh failed:"), output.Truncate(m.Err.Error(), m.Width-20))
	}
	if line := m.syncResultLine(); line != "" {
		c.WriteString(line)
		c.WriteString("\n")
	}

	return m.wrapPanel("SYNC", strings.TrimRight(c.String(), "\n"), 0)
}

func (m Model) syncResultLine() string {
	if m.Syncing {
		return ""
	}
	if m.SyncErr != nil {
		return errorStyle.Render("Sync failed: " + m.SyncErr.Error())
	}
	if m.SyncResult == nil {
		return ""
	}
	r := m.SyncResult
	if r.Skipped {
		return offlineStyle.Render("Sync skipped: offline")
	}
	return okStyle.Render(fmt.Sprintf("Sync done: %d synced, %d rejected, %d retrying", r.Synced, r.Rejected, r.Retried))
}

func (m Model) renderProblemsPanel(height int) string {
	var c strings.Builder

	if len(m.Snap.Problems) == 0 {
		c.WriteString(subtleStyle.Render("No failed marks"))
		return m.wrapPanel("FAILED MARKS", c.String(), height)
	}

	for _, p := range m.Snap.Problems {
		fmt.Fprintf(&c, "%s  %s  %s  %s\n",
			titleStyle.Render(output.ShortID(p.LocalID)),
			p.StudentID,
			output.SlotLabel(p.Date, p.Period),
			errorStyle.Render(fmt.Sprintf("[%s] %s", p.Kind, p.Message)),
		)
	}
	return m.wrapPanel(fmt.Sprintf("FAILED MARKS (%d)", len(m.Snap.Problems)), strings.TrimRight(c.String(), "\n"), height)
}

// renderFooter renders the key hints and refresh time
func (m Model) renderFooter() string {
	hints := "q:quit  r:refresh  ?:help"
	if m.syncFn != nil {
		hints = "q:quit  s:sync now  r:refresh  ?:help"
	}
	keys := helpStyle.Render(hints)
	refresh := subtleStyle.Render(fmt.Sprintf("Last: %s", m.LastRefresh.Format("15:04:05")))

	padding := m.Width - lipgloss.Width(keys) - lipgloss.Width(refresh) - 2
	if padding < 0 {
		padding = 0
	}
	return fmt.Sprintf(" %s%s%s", keys, strings.Repeat(" ", padding), refresh)
}

// renderHelp renders the help overlay
func (m Model) renderHelp() string {
	help := `
STATUS VIEW - Key Bindings

  s                 Sync now (one pass)
  r                 Force refresh
  q / Esc / Ctrl+C  Quit

Press ? to close help
`
	return helpStyle.Render(help)
}

// wrapPanel wraps content in a panel with title and border. A height of
// zero sizes the panel to its content.
func (m Model) wrapPanel(title, content string, height int) string {
	contentWidth := m.Width - 4 // border and padding

	lines := strings.Split(content, "\n")
	if height > 0 {
		contentHeight := height - 3 // title and border
		if contentHeight < 1 {
			contentHeight = 1
		}
		for len(lines) < contentHeight {
			lines = append(lines, "")
		}
		if len(lines) > contentHeight {
			more := len(lines) - contentHeight + 1
			lines = append(lines[:contentHeight-1], subtleStyle.Render(fmt.Sprintf("… %d more", more)))
		}
	}

	clip := lipgloss.NewStyle().MaxWidth(contentWidth)
	for i, line := range lines {
		if lipgloss.Width(line) > contentWidth {
			lines[i] = clip.Render(line)
		}
	}

	body := panelTitleStyle.Render(title) + "\n" + strings.Join(lines, "\n")
	return panelStyle.Width(m.Width - 2).Render(body)
}
