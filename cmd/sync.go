package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marcus/rollcall/internal/output"
	syncpkg "github.com/marcus/rollcall/internal/sync"
	"github.com/marcus/rollcall/internal/syncerr"
)

// passReport is the JSON form of a pass result.
type passReport struct {
	Result    string          `json:"result"`
	Skipped   bool            `json:"skipped"`
	Batches   int             `json:"batches"`
	Synced    int             `json:"synced"`
	Rejected  int             `json:"rejected"`
	Retried   int             `json:"retried"`
	Exhausted int             `json:"exhausted"`
	Requeued  int             `json:"requeued"`
	Problems  []problemReport `json:"problems,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
}

type problemReport struct {
	LocalID string `json:"local_id"`
	Kind    string `json:"kind"`
	Reason  string `json:"reason"`
}

func newPassReport(res syncpkg.PassResult) passReport {
	r := passReport{
		Result:    res.Result(),
		Skipped:   res.Skipped,
		Batches:   res.Batches,
		Synced:    res.Synced,
		Rejected:  res.Rejected,
		Retried:   res.Retried,
		Exhausted: res.Exhausted,
		Requeued:  res.Requeued,
	}
	for _, p := range res.Problems {
		r.Problems = append(r.Problems, problemReport{LocalID: p.LocalID, Kind: string(p.Kind), Reason: p.Reason})
	}
	if res.Err != nil {
		r.Error = res.Err.Error()
		r.ErrorKind = string(syncerr.KindOf(res.Err))
	}
	return r
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Send pending marks to the server now",
	Long: `Run one reconciliation pass: probe the server, then submit pending marks in
batches until the queue is drained or the server becomes unreachable.`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")

		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, passErr := e.SyncOnce(ctx)
		if jsonOut {
			if err := output.JSON(newPassReport(res)); err != nil {
				return err
			}
			return passErr
		}

		printPass(res)
		if passErr != nil {
			return passErr
		}
		pending, err := e.Status.PendingCount()
		if err == nil && pending > 0 {
			output.Info("%d mark(s) still queued", pending)
		}
		return nil
	},
}

func printPass(res syncpkg.PassResult) {
	if res.Skipped {
		output.Warning("offline; nothing sent")
		return
	}
	if res.Batches == 0 && res.Err == nil {
		output.Success("Nothing to sync")
		return
	}

	line := fmt.Sprintf("Synced %d", res.Synced)
	if res.Rejected > 0 {
		line += fmt.Sprintf(", rejected %d", res.Rejected)
	}
	if res.Retried > 0 {
		line += fmt.Sprintf(", will retry %d", res.Retried)
	}
	if res.Exhausted > 0 {
		line += fmt.Sprintf(", gave up on %d", res.Exhausted)
	}
	if res.Requeued > 0 {
		line += fmt.Sprintf(", requeued %d", res.Requeued)
	}
	if res.Clean() {
		output.Success("%s", line)
	} else {
		output.Warning("%s", line)
	}

	if res.Err != nil && syncerr.Transient(res.Err) {
		output.Info("  stopped early: %v", res.Err)
	}
	if len(res.Problems) > 0 {
		fmt.Print(output.SectionHeader("needs attention"))
		for _, p := range res.Problems {
			if errors.Is(p.Err, syncerr.ErrServerRejection) {
				fmt.Printf("  %s  %s\n", output.ShortID(p.LocalID), syncerr.Describe(p.Err))
				continue
			}
			fmt.Printf("  %s  [%s] %s\n", output.ShortID(p.LocalID), p.Kind, p.Reason)
		}
	}
}

func init() {
	syncCmd.Flags().Bool("json", false, "Output the pass result as JSON")
	rootCmd.AddCommand(syncCmd)
}
