package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/rollcall/internal/output"
	"github.com/marcus/rollcall/internal/suggest"
	"github.com/marcus/rollcall/internal/syncconfig"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Manage rollcall configuration",
	GroupID: "system",
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if err := syncconfig.Set(configPath, key, val); err != nil {
			return keyError(key, err)
		}
		output.Success("Set %s = %s", key, val)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Show the effective value of a config key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := syncconfig.Get(configPath, args[0])
		if err != nil {
			return keyError(args[0], err)
		}
		fmt.Println(v)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show every config key with its effective value",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		values, err := syncconfig.List(configPath)
		if err != nil {
			return err
		}
		if jsonOut {
			return output.JSON(values)
		}
		for _, key := range syncconfig.Keys() {
			fmt.Printf("%-28s %v\n", key, values[key])
		}
		return nil
	},
}

// keyError suggests near keys when key is not a config key at all.
func keyError(key string, err error) error {
	if slices.Contains(syncconfig.Keys(), key) {
		return err
	}
	if near := suggest.Closest(key, syncconfig.Keys()); len(near) > 0 {
		return fmt.Errorf("%w (did you mean %s?)", err, strings.Join(near, ", "))
	}
	return fmt.Errorf("%w (see 'rollcall config list')", err)
}

func init() {
	configListCmd.Flags().Bool("json", false, "Output as JSON")
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)
}
