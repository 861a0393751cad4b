package cmd

import (
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/marcus/rollcall/internal/syncerr"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelWarn},
		{"chatty", slog.LevelWarn},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDescribeError(t *testing.T) {
	plain := errors.New("no mark with id \"x\"")
	if got := describeError(plain); got != plain.Error() {
		t.Errorf("describeError(plain) = %q", got)
	}

	auth := syncerr.Auth(errors.New("401"))
	if got := describeError(auth); got != "session expired; log in again to resume syncing" {
		t.Errorf("describeError(auth) = %q", got)
	}
}

func TestNameWithAliases(t *testing.T) {
	if got := nameWithAliases(&cobra.Command{Use: "queue", Aliases: []string{"q"}}); got != "queue, q" {
		t.Errorf("nameWithAliases = %q", got)
	}
	if got := nameWithAliases(&cobra.Command{Use: "sync"}); got != "sync" {
		t.Errorf("nameWithAliases = %q", got)
	}
}

func TestFlagErrorSuggests(t *testing.T) {
	cmd := &cobra.Command{Use: "mark"}
	cmd.Flags().String("period", "", "")
	cmd.Flags().String("class", "", "")

	err := flagError(cmd, errors.New("unknown flag: --perod"))
	if err == nil || !strings.Contains(err.Error(), "did you mean --period?") {
		t.Errorf("flagError(--perod) = %v", err)
	}

	err = flagError(cmd, errors.New("unknown flag: --tag"))
	if err == nil || !strings.Contains(err.Error(), "try --rfid") {
		t.Errorf("flagError(--tag) = %v", err)
	}

	other := errors.New("invalid argument \"x\" for \"--lines\"")
	if got := flagError(cmd, other); got != other {
		t.Errorf("flagError should pass other errors through, got %v", got)
	}
}

func TestKeyError(t *testing.T) {
	base := errors.New(`unknown config key "sync.intervl"`)
	err := keyError("sync.intervl", base)
	if !errors.Is(err, base) || !strings.Contains(err.Error(), "did you mean sync.interval") {
		t.Errorf("keyError = %v", err)
	}

	known := errors.New("bad value")
	if got := keyError("sync.interval", known); got != known {
		t.Errorf("keyError for a known key should pass through, got %v", got)
	}
}
