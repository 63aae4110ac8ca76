package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "Display the version of gh-cc-members.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "gh-cc-members version %s\n", resolveVersion())
	},
}

// resolveVersion falls back to a VERSION file next to the working
// directory for dev builds.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	if data, err := os.ReadFile("VERSION"); err == nil {
		if trimmed := strings.TrimSpace(string(data)); trimmed != "" {
			return trimmed
		}
	}
	return version
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
