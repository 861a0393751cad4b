package cmd

import (
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/marcus/rollcall/internal/output"
	"github.com/marcus/rollcall/internal/status"
	"github.com/marcus/rollcall/internal/tui/statusview"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity, queue and last sync",
	Long: `Show what the device knows about sync: whether the server is reachable,
how many marks are waiting, when the last successful sync happened and which
marks need attention. --watch opens a live dashboard.`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		watch, _ := cmd.Flags().GetBool("watch")
		interval, _ := cmd.Flags().GetDuration("interval")

		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		if !offline {
			e.Observer.ProbeOnce(cmd.Context())
		}

		if watch {
			if !output.IsTerminal() {
				return errors.New("--watch needs a terminal")
			}
			src := &probingSource{reporter: e.Status, probe: func() {
				if !offline {
					e.Observer.ProbeOnce(cmd.Context())
				}
			}}
			m := statusview.NewModel(src, e.SyncOnce, interval)
			_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
			return err
		}

		snap, err := e.Status.Snapshot()
		if err != nil {
			return err
		}
		if jsonOut {
			return output.JSON(snap)
		}
		printStatus(snap)
		return nil
	},
}

// probingSource refreshes connectivity before each snapshot, since no
// observer loop runs inside a one-shot command.
type probingSource struct {
	reporter *status.Reporter
	probe    func()
}

func (p *probingSource) Snapshot() (status.Snapshot, error) {
	p.probe()
	return p.reporter.Snapshot()
}

func printStatus(s status.Snapshot) {
	if s.Online {
		output.Success("Online")
	} else {
		output.Warning("offline")
	}
	fmt.Printf("Pending:    %d", s.PendingCount)
	if s.InFlightCount > 0 || s.FailedCount > 0 {
		fmt.Printf(" (%d in flight, %d failed)", s.InFlightCount, s.FailedCount)
	}
	fmt.Println()
	fmt.Printf("Last sync:  %s\n", output.FormatLastSync(s.LastSyncAt))
	fmt.Printf("Last pass:  %s\n", output.FormatLastSync(s.LastPassAt))
	if s.LastError != "" {
		fmt.Printf("Last error: [%s] %s\n", s.LastErrorKind, s.LastError)
	}

	if len(s.Problems) > 0 {
		fmt.Print(output.SectionHeader("failed marks"))
		for _, p := range s.Problems {
			fmt.Printf("  %s  %s  %s  [%s] %s\n",
				output.ShortID(p.LocalID), p.StudentID, output.SlotLabel(p.Date, p.Period), p.Kind, p.Message)
		}
		fmt.Println("\nRun 'rollcall retry' to requeue, or 'rollcall queue drop <id>' to discard.")
	}
}

func init() {
	statusCmd.Flags().Bool("json", false, "Output as JSON")
	statusCmd.Flags().BoolP("watch", "w", false, "Open the live dashboard")
	statusCmd.Flags().Duration("interval", 2*time.Second, "Dashboard refresh interval")
	rootCmd.AddCommand(statusCmd)
}
