package cmd

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/canarys/gh-cc-members/internal/config"
	"github.com/canarys/gh-cc-members/internal/github"
)

var (
	exportTeam   string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export enterprise team memberships to CSV",
	Long: `Write the members of an enterprise team to a CSV file with the columns
login, id, html_url, role and state.

The file can be fed back to "add --column login".

Examples:
  gh cc-members export --team eng
  gh cc-members export --team eng --output eng.csv`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportTeam, "team", "", "enterprise team slug (overrides config)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "team_memberships.csv", "output CSV path")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	if exportTeam != "" {
		cfgManager.TeamSlug = exportTeam
	}
	if err := cfgManager.RequireFields(config.FieldToken, config.FieldEnterprise, config.FieldTeamSlug); err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	memberships, err := client.ListEnterpriseTeamMemberships(cmd.Context(), cfgManager.TeamSlug)
	if err != nil {
		return fmt.Errorf("fetching team memberships: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(memberships) == 0 {
		fmt.Fprintln(out, "No memberships found. Check the enterprise and team slugs, the token's permissions, and whether the team has members.")
		return nil
	}
	if err := writeMemberships(exportOutput, memberships); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %d rows to %s\n", len(memberships), exportOutput)
	return nil
}

func writeMemberships(path string, memberships []github.Membership) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	_ = w.Write([]string{"login", "id", "html_url", "role", "state"})
	for _, m := range memberships {
		id := ""
		if m.ID != 0 {
			id = strconv.FormatInt(m.ID, 10)
		}
		_ = w.Write([]string{m.Login, id, m.HTMLURL, m.Role, m.State})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
