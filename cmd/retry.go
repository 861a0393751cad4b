package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/rollcall/internal/output"
)

var retryCmd = &cobra.Command{
	Use:   "retry [local-id...]",
	Short: "Return failed marks to the queue",
	Long: `Return failed marks to pending with a fresh attempt budget. With no ids,
every failed mark is retried. Use --now to run a sync pass straight away.`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		now, _ := cmd.Flags().GetBool("now")

		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		var n int
		if len(args) == 0 {
			n, err = e.Queue.RetryAll()
		} else {
			ids := make([]string, 0, len(args))
			for _, a := range args {
				ev, err := findMark(e.DB, a)
				if err != nil {
					return err
				}
				ids = append(ids, ev.LocalID)
			}
			n, err = e.Queue.Retry(ids...)
		}
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Println("No failed marks to retry.")
			return nil
		}
		output.Success("Requeued %d mark(s)", n)

		if !now {
			return nil
		}
		res, err := e.SyncOnce(cmd.Context())
		printPass(res)
		return err
	},
}

func init() {
	retryCmd.Flags().Bool("now", false, "Sync immediately after requeueing")
	rootCmd.AddCommand(retryCmd)
}
