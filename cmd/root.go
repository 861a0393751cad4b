package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/marcus/rollcall/internal/output"
	"github.com/marcus/rollcall/internal/suggest"
	"github.com/marcus/rollcall/internal/syncconfig"
	"github.com/marcus/rollcall/internal/syncerr"
)

var (
	version    string
	configPath string
	debugFlag  bool
	offline    bool

	// cfg is loaded once per invocation by the root pre-run hook.
	cfg *syncconfig.Config
)

// SetVersion sets the version string
func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "rollcall",
	Short: "Offline-first attendance capture and sync",
	Long: `rollcall - record attendance on a device that is often offline.

Marks are written to a local store first and delivered to the attendance server
when it is reachable. Nothing recorded on the device is lost to a bad connection.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		output.Error("%s", describeError(err))
		os.Exit(1)
	}
}

// nameWithAliases returns "name, alias1, alias2" if aliases exist, else just "name"
func nameWithAliases(cmd *cobra.Command) string {
	if len(cmd.Aliases) > 0 {
		return cmd.Name() + ", " + strings.Join(cmd.Aliases, ", ")
	}
	return cmd.Name()
}

func init() {
	cobra.AddTemplateFunc("nameWithAliases", nameWithAliases)
	cobra.AddTemplateFunc("add", func(a, b int) int { return a + b })

	// Custom usage template that shows aliases inline
	usageTemplate := `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{if eq (len .Groups) 0}}

Available Commands:{{range $cmds}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{else}}{{range $group := .Groups}}

{{.Title}}{{range $cmds}}{{if (and (eq .GroupID $group.ID) (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{end}}{{if not .AllChildCommandsHaveGroup}}

Additional Commands:{{range $cmds}}{{if (and (eq .GroupID "") (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .CommandPath .CommandPathPadding}} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`
	rootCmd.SetUsageTemplate(usageTemplate)

	rootCmd.AddGroup(
		&cobra.Group{ID: "core", Title: "Attendance Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "system", Title: "System Commands:"},
	)
	rootCmd.SetFlagErrorFunc(flagError)
	rootCmd.SetHelpCommandGroupID("system")
	rootCmd.SetCompletionCommandGroupID("system")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/rollcall/config.json)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Never touch the network")
}

// loadConfig reads .env, the config file and the environment, then
// installs the stderr logger.
func loadConfig(cmd *cobra.Command, args []string) error {
	wd, err := os.Getwd()
	if err == nil {
		if err := syncconfig.LoadDotEnv(wd); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err = syncconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := parseLevel(cfg.LogLevel)
	if debugFlag {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(newLogHandler(cfg.LogFormat, level)))
	return nil
}

// describeError prefers the user-facing sync engine wording when the error
// carries a kind.
func describeError(err error) string {
	if syncerr.KindOf(err) != "" {
		return syncerr.Describe(err)
	}
	return err.Error()
}

// flagError adds a "did you mean" to unknown long flags.
func flagError(cmd *cobra.Command, err error) error {
	name, ok := strings.CutPrefix(err.Error(), "unknown flag: ")
	if !ok {
		return err
	}
	if hint := suggest.FlagHint(name); hint != "" {
		return fmt.Errorf("%w (try %s)", err, hint)
	}
	var valid []string
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		valid = append(valid, "--"+f.Name)
	})
	if near := suggest.Closest(name, valid); len(near) > 0 {
		return fmt.Errorf("%w (did you mean %s?)", err, strings.Join(near, ", "))
	}
	return err
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelWarn
	}
	return level
}

func newLogHandler(format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.NewTextHandler(os.Stderr, opts)
}
