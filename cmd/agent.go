package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the background sync agent",
	Long: `Run until interrupted: watch connectivity, sync on reconnect, on the
periodic interval and at startup, and serve Prometheus metrics when
metrics_addr is set. Marks left in flight by an earlier crash are returned to
the queue first.`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(true)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		slog.Info("agent: started", "server", cfg.ServerURL, "data_dir", cfg.DataDir, "offline", offline,
			"interval", cfg.Sync.Interval, "metrics_addr", cfg.MetricsAddr)
		err = e.Run(ctx)
		slog.Info("agent: stopped")
		return err
	},
}

func init() {
	rootCmd.AddCommand(agentCmd)
}
