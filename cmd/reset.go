package cmd

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/marcus/rollcall/internal/output"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Wipe the local store",
	Long: `Delete every mark, the cached roster, sync metadata and history from this
device. Marks that were never synced are lost. Asks for confirmation unless
--force is given.`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		unsynced, err := e.Status.PendingCount()
		if err != nil {
			return err
		}

		if !force {
			if !output.IsTerminal() {
				return errors.New("refusing to reset without a terminal; use --force")
			}
			confirmed := false
			title := "Wipe the local store?"
			if unsynced > 0 {
				title = fmt.Sprintf("Wipe the local store? %d mark(s) have not reached the server.", unsynced)
			}
			err := huh.NewConfirm().
				Title(title).
				Affirmative("Wipe").
				Negative("Cancel").
				Value(&confirmed).
				Run()
			if err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				return err
			}
			if !confirmed {
				fmt.Println("Cancelled.")
				return nil
			}
		}

		if err := e.DB.ClearAll(); err != nil {
			return err
		}
		output.Success("Local store wiped (%d unsynced mark(s) discarded)", unsynced)
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolP("force", "f", false, "Skip confirmation")
	rootCmd.AddCommand(resetCmd)
}
