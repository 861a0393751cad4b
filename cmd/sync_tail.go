package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/marcus/rollcall/internal/db"
	"github.com/marcus/rollcall/internal/output"
)

var dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

var syncTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show recent sync activity",
	Long: `Show per-mark outcomes of recent reconciliation passes. Use -f to follow in real-time.

Examples:
  rollcall sync tail          # Show last 20 outcomes
  rollcall sync tail -f       # Follow new outcomes in real-time
  rollcall sync tail -n 50    # Show last 50 outcomes
  rollcall sync tail -f -n 0  # Follow only new outcomes, skip history`,
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")
		lines, _ := cmd.Flags().GetInt("lines")

		database, err := db.Open(cfg.DataDir)
		if err != nil {
			return err
		}
		defer database.Close()

		var entries []db.SyncHistoryEntry
		if lines > 0 {
			entries, err = database.GetSyncHistoryTail(lines)
			if err != nil {
				return err
			}
		}

		var maxID int64
		for _, e := range entries {
			printSyncEntry(e)
			if e.ID > maxID {
				maxID = e.ID
			}
		}

		if !follow {
			if len(entries) == 0 {
				fmt.Println("No sync activity recorded.")
			}
			return nil
		}

		// Following without history: start after the newest entry
		if maxID == 0 && lines == 0 {
			tail, _ := database.GetSyncHistoryTail(1)
			if len(tail) > 0 {
				maxID = tail[0].ID
			}
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-sigCh:
				fmt.Println() // clean line after ^C
				return nil
			case <-ticker.C:
				newEntries, err := database.GetSyncHistory(maxID, 100)
				if err != nil {
					slog.Debug("sync tail: poll", "err", err)
					continue
				}
				for _, e := range newEntries {
					printSyncEntry(e)
					if e.ID > maxID {
						maxID = e.ID
					}
				}
			}
		}
	},
}

func printSyncEntry(e db.SyncHistoryEntry) {
	ts := dimStyle.Render(e.Timestamp.Local().Format("15:04:05"))
	line := fmt.Sprintf("%s %-8s %s", ts, output.FormatOutcome(e.Outcome), output.ShortID(e.LocalID))
	if e.StudentID != "" {
		line += " " + e.StudentID
	}
	if e.Reason != "" {
		line += " " + dimStyle.Render(e.Reason)
	}
	fmt.Println(line)
}

func init() {
	syncTailCmd.Flags().BoolP("follow", "f", false, "Follow new outcomes in real-time")
	syncTailCmd.Flags().IntP("lines", "n", 20, "Number of initial lines to show")
	syncCmd.AddCommand(syncTailCmd)
}
