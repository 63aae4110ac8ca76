package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	Long: `Display the resolved configuration and exit.

Values come from the config file, environment overrides and defaults. The
token is never printed in full. Required values that are still missing are
listed at the end.

Examples:
  gh cc-members config
  gh cc-members config --config path/to/config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		summary := cfgManager.Summary()

		// Print in sorted key order for deterministic output.
		keys := make([]string, 0, len(summary))
		for k := range summary {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Current configuration:")
		fmt.Fprintln(out, strings.Repeat("-", 50))
		for _, k := range keys {
			fmt.Fprintf(out, "  %-25s %v\n", k+":", summary[k])
		}
		fmt.Fprintln(out, strings.Repeat("-", 50))
		fmt.Fprintf(out, "  config file: %s\n", cfgManager.Path())

		if missing := cfgManager.MissingSummary(); len(missing) > 0 {
			fmt.Fprintf(out, "  missing:     %s\n", strings.Join(missing, ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
