package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/canarys/gh-cc-members/internal/config"
	"github.com/canarys/gh-cc-members/internal/submit"
	"github.com/canarys/gh-cc-members/internal/userlist"
)

var (
	teamAddInput      string
	teamAddTeam       string
	teamAddColumn     string
	teamAddTeamColumn string
	teamAddMode       string
	teamAddYes        bool
	teamAddWorkers    int
	teamAddBatchSize  int
	teamAddRPS        float64
)

var teamAddCmd = &cobra.Command{
	Use:   "team-add",
	Short: "Add users from a file to enterprise teams",
	Long: `Add the users listed in the input file to an enterprise team.

A "team" column, when present, selects the team per row; rows without one
use --team (or cost_center.team_slug from the config).

Examples:
  gh cc-members team-add --input members.csv --team eng
  gh cc-members team-add --input members.csv --mode apply --yes`,
	RunE: runTeamAdd,
}

func init() {
	teamAddCmd.Flags().StringVarP(&teamAddInput, "input", "i", "", "CSV or XLSX file listing the users")
	teamAddCmd.Flags().StringVar(&teamAddTeam, "team", "", "default enterprise team slug (overrides config)")
	teamAddCmd.Flags().StringVar(&teamAddColumn, "column", "", "header of the username column")
	teamAddCmd.Flags().StringVar(&teamAddTeamColumn, "team-column", "", "header of the per-row team column")
	teamAddCmd.Flags().StringVar(&teamAddMode, "mode", "plan", "execution mode: plan (preview) or apply (push changes)")
	teamAddCmd.Flags().BoolVarP(&teamAddYes, "yes", "y", false, "skip confirmation prompt in apply mode")
	addTuningFlags(teamAddCmd, &teamAddWorkers, &teamAddBatchSize, &teamAddRPS)
	_ = teamAddCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(teamAddCmd)
}

func runTeamAdd(cmd *cobra.Command, _ []string) error {
	apply, err := checkMode(teamAddMode)
	if err != nil {
		return err
	}
	if teamAddTeam != "" {
		cfgManager.TeamSlug = teamAddTeam
	}
	if teamAddColumn != "" {
		cfgManager.InputColumn = teamAddColumn
	}
	if teamAddTeamColumn != "" {
		cfgManager.TeamColumn = teamAddTeamColumn
	}
	if err := setTuning(cmd, teamAddWorkers, teamAddBatchSize, teamAddRPS); err != nil {
		return err
	}

	records, err := userlist.Load(teamAddInput, userlist.Options{
		Column:     cfgManager.InputColumn,
		TeamColumn: cfgManager.TeamColumn,
	}, logger)
	if err != nil {
		return err
	}

	teams, members, unassigned := userlist.GroupByTeam(records, cfgManager.TeamSlug)
	if len(unassigned) > 0 {
		return &config.ConfigurationError{
			Reason: fmt.Sprintf("%d row(s) have no team (first on line %d); set --team or cost_center.team_slug",
				len(unassigned), unassigned[0].Row),
		}
	}

	out := cmd.OutOrStdout()
	if !apply {
		for _, team := range teams {
			target := submit.Target{ID: team, Action: "add to enterprise team " + team}
			submit.PrintPlan(out, target, toRecords(members[team]), cfgManager.BatchSize)
		}
		return nil
	}

	if err := cfgManager.RequireFields(config.FieldToken, config.FieldEnterprise); err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}
	if ok, err := confirmApply(cmd, teamAddYes, fmt.Sprintf("add %d user(s) to %d team(s)", len(records), len(teams))); err != nil || !ok {
		return err
	}

	var errs []error
	for _, team := range teams {
		if err := runSubmission(cmd, submit.AddToTeam(client, team), toRecords(members[team]), ""); err != nil {
			var partial *submit.PartialFailureError
			if !errors.As(err, &partial) {
				return err
			}
			errs = append(errs, fmt.Errorf("team %s: %w", team, err))
		}
	}
	return errors.Join(errs...)
}
