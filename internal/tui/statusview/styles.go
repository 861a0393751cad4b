package statusview

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
)

var (
	primaryColor = lipgloss.Color("212")
	mutedColor   = lipgloss.Color("241")
	successColor = lipgloss.Color("42")
	warningColor = lipgloss.Color("214")
	errorColor   = lipgloss.Color("196")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	helpStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	spinnerStyle = lipgloss.NewStyle().Foreground(primaryColor)

	onlineStyle  = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	offlineStyle = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	okStyle      = lipgloss.NewStyle().Foreground(successColor)
)

func formatOnline(online bool) string {
	if online {
		return onlineStyle.Render("● online")
	}
	return offlineStyle.Render("○ offline")
}

// formatCount highlights non-zero counts in the given style.
func formatCount(n int, style lipgloss.Style) string {
	if n == 0 {
		return subtleStyle.Render("0")
	}
	return style.Render(strconv.Itoa(n))
}
