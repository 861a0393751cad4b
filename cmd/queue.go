package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/rollcall/internal/db"
	"github.com/marcus/rollcall/internal/models"
	"github.com/marcus/rollcall/internal/output"
)

var queueCmd = &cobra.Command{
	Use:     "queue",
	Aliases: []string{"q"},
	Short:   "List marks not yet accepted by the server",
	Long: `List the pending queue: every mark that is pending, in flight or failed,
oldest capture first.`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		stateFilter, _ := cmd.Flags().GetString("state")
		jsonOut, _ := cmd.Flags().GetBool("json")
		long, _ := cmd.Flags().GetBool("long")

		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		var events []models.AttendanceEvent
		if stateFilter != "" {
			state := models.SyncState(stateFilter)
			switch state {
			case models.SyncPending, models.SyncInFlight, models.SyncFailed, models.SyncSynced:
			default:
				return fmt.Errorf("unknown state %q (pending, in-flight, failed, synced)", stateFilter)
			}
			events, err = e.DB.GetByState(state)
		} else {
			events, err = e.Queue.Active()
		}
		if err != nil {
			return err
		}

		if jsonOut {
			if events == nil {
				events = []models.AttendanceEvent{}
			}
			return output.JSON(events)
		}
		if len(events) == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}
		if long {
			for _, ev := range events {
				fmt.Println(output.FormatMarkShort(ev))
			}
		} else {
			fmt.Println(output.MarkTable(events, output.TerminalWidth(0)))
		}
		fmt.Printf("%d mark(s)\n", len(events))
		return nil
	},
}

var queueShowCmd = &cobra.Command{
	Use:   "show <local-id>",
	Short: "Show one mark in full, including its last error",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")

		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		ev, err := findMark(e.DB, args[0])
		if err != nil {
			return err
		}
		if jsonOut {
			return output.JSON(ev)
		}
		fmt.Print(output.FormatMarkLong(*ev))
		return nil
	},
}

var queueDropCmd = &cobra.Command{
	Use:   "drop <local-id>",
	Short: "Discard a mark that will never be accepted",
	Long: `Discard a mark from this device, typically a failed mark the server
rejected (for example an unknown student). Synced and in-flight marks cannot
be dropped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		ev, err := findMark(e.DB, args[0])
		if err != nil {
			return err
		}
		if ev.SyncState == models.SyncInFlight || ev.SyncState == models.SyncSynced {
			return fmt.Errorf("mark %s is %s and cannot be dropped", output.ShortID(ev.LocalID), ev.SyncState)
		}
		if err := e.DB.Delete(ev.LocalID); err != nil {
			return err
		}
		output.Success("Dropped %s (%s %s)", output.ShortID(ev.LocalID), ev.StudentID, output.SlotLabel(ev.Date, ev.Period))
		return nil
	},
}

// findMark resolves a full local id, or a unique prefix of a queued one.
func findMark(database *db.DB, id string) (*models.AttendanceEvent, error) {
	ev, err := database.Get(id)
	if err != nil {
		return nil, err
	}
	if ev != nil {
		return ev, nil
	}

	active, err := database.ActiveEvents()
	if err != nil {
		return nil, err
	}
	var matches []models.AttendanceEvent
	for _, a := range active {
		if strings.HasPrefix(a.LocalID, id) {
			matches = append(matches, a)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no mark with id %q", id)
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("id prefix %q matches %d marks", id, len(matches))
	}
}

func init() {
	queueCmd.Flags().String("state", "", "Only marks in this state (pending, in-flight, failed, synced)")
	queueCmd.Flags().BoolP("long", "l", false, "One line per mark instead of a table")
	queueCmd.Flags().Bool("json", false, "Output as JSON")
	queueShowCmd.Flags().Bool("json", false, "Output as JSON")
	queueCmd.AddCommand(queueShowCmd)
	queueCmd.AddCommand(queueDropCmd)
	rootCmd.AddCommand(queueCmd)
}
