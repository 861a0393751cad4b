// Command rollcall-server is the reference attendance server: a batch
// submission endpoint idempotent per local id, a roster endpoint and a
// health probe, over SQLite or Postgres.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/marcus/rollcall/internal/api"
	"github.com/marcus/rollcall/internal/serverdb"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
		case "token", "import-roster", "attendance":
			os.Exit(runAdmin(os.Args[1], os.Args[2:]))
		case "-h", "--help", "help":
			printUsage()
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
			printUsage()
			os.Exit(2)
		}
	}

	cfg := api.LoadConfig()
	slog.SetDefault(slog.New(newHandler(cfg.LogFormat, cfg.LogLevel)))

	store, err := serverdb.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		slog.Error("open server db", "driver", cfg.DBDriver, "err", err)
		os.Exit(1)
	}
	defer store.Close()

	srv, err := api.NewServer(cfg, store)
	if err != nil {
		slog.Error("create server", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(); err != nil {
		slog.Error("start server", "err", err)
		os.Exit(1)
	}
	slog.Info("server started", "addr", cfg.ListenAddr, "driver", cfg.DBDriver)

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
}

func newHandler(format, level string) slog.Handler {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "text" {
		return slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.NewJSONHandler(os.Stderr, opts)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: rollcall-server [command] [flags]

Commands:
  serve          Run the HTTP server (default)
  token          Issue a bearer token for a teacher or reader
  import-roster  Load classes and students from a YAML file
  attendance     List recorded attendance for a class and date

Configuration comes from ROLLCALL_SERVER_* environment variables:
  LISTEN_ADDR, DB_DRIVER (sqlite|pgx), DB_DSN, JWT_KEY, JWT_ISSUER,
  SHUTDOWN_TIMEOUT, MAX_BATCH, LOG_FORMAT (json|text), LOG_LEVEL`)
}
