package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/canarys/gh-cc-members/internal/config"
)

var listMembersCostCenter string

var listMembersCmd = &cobra.Command{
	Use:   "list-members",
	Short: "List the users assigned to the cost center",
	Long: `List the users currently assigned to the cost center.

Organization and repository resources are not shown.

Examples:
  gh cc-members list-members
  gh cc-members list-members --cost-center 1a2b3c -v`,
	RunE: runListMembers,
}

func init() {
	listMembersCmd.Flags().StringVar(&listMembersCostCenter, "cost-center", "", "cost center ID (overrides config)")

	rootCmd.AddCommand(listMembersCmd)
}

func runListMembers(cmd *cobra.Command, _ []string) error {
	if listMembersCostCenter != "" {
		cfgManager.CostCenterID = listMembersCostCenter
	}
	if err := cfgManager.RequireFields(config.FieldToken, config.FieldEnterprise, config.FieldCostCenterID); err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return fmt.Errorf("creating GitHub client: %w", err)
	}

	users, err := client.GetCostCenterUsers(cmd.Context(), cfgManager.CostCenterID)
	if err != nil {
		return fmt.Errorf("fetching cost center users: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n=== Cost Center %s ===\n", cfgManager.CostCenterID)
	if u := cfgManager.CostCenterURL(); u != "" {
		fmt.Fprintf(out, "%s\n", u)
	}
	fmt.Fprintf(out, "Total users: %d\n", len(users))
	for _, u := range users {
		fmt.Fprintf(out, "- %s\n", u)
	}
	return nil
}
