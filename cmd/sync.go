package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/canarys/gh-cc-members/internal/config"
	"github.com/canarys/gh-cc-members/internal/reconcile"
	"github.com/canarys/gh-cc-members/internal/submit"
	"github.com/canarys/gh-cc-members/internal/userlist"
)

var (
	// sync flags
	syncTeam       string
	syncCostCenter string
	syncMode       string
	syncYes        bool
	syncRemove     bool
	syncReport     string
	syncWorkers    int
	syncBatchSize  int
	syncRPS        float64
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync an enterprise team's members into the cost center",
	Long: `Compare the members of an enterprise team with the users in the cost
center and add the missing ones. With --remove, users in the cost center
that are not in the team are removed as well.

Examples:
  # Preview the differences
  gh cc-members sync --team eng

  # Add missing members and remove extras
  gh cc-members sync --team eng --mode apply --yes --remove --report sync_report.csv`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncTeam, "team", "", "enterprise team slug (overrides config)")
	syncCmd.Flags().StringVar(&syncCostCenter, "cost-center", "", "cost center ID (overrides config)")
	syncCmd.Flags().StringVar(&syncMode, "mode", "plan", "execution mode: plan (preview) or apply (push changes)")
	syncCmd.Flags().BoolVarP(&syncYes, "yes", "y", false, "skip confirmation prompt in apply mode")
	syncCmd.Flags().BoolVar(&syncRemove, "remove", false, "remove cost center users that are not team members")
	syncCmd.Flags().StringVar(&syncReport, "report", "", "write a login,action,status,message CSV report to this path")
	addTuningFlags(syncCmd, &syncWorkers, &syncBatchSize, &syncRPS)

	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	apply, err := checkMode(syncMode)
	if err != nil {
		return err
	}
	if syncTeam != "" {
		cfgManager.TeamSlug = syncTeam
	}
	if syncCostCenter != "" {
		cfgManager.CostCenterID = syncCostCenter
	}
	if err := setTuning(cmd, syncWorkers, syncBatchSize, syncRPS); err != nil {
		return err
	}
	if err := cfgManager.RequireFields(config.FieldToken, config.FieldEnterprise,
		config.FieldCostCenterID, config.FieldTeamSlug); err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	team, err := client.GetEnterpriseTeamMembers(ctx, cfgManager.TeamSlug)
	if err != nil {
		return fmt.Errorf("fetching team members: %w", err)
	}
	current, err := client.GetCostCenterUsers(ctx, cfgManager.CostCenterID)
	if err != nil {
		return fmt.Errorf("fetching cost center users: %w", err)
	}

	plan := reconcile.Compute(team, current)
	out := cmd.OutOrStdout()
	plan.Print(out, syncRemove)

	if !apply {
		fmt.Fprintln(out, "Run with --mode apply to make these changes.")
		return nil
	}
	if len(plan.Add) == 0 && (!syncRemove || len(plan.Remove) == 0) {
		fmt.Fprintln(out, "Cost center already in sync, nothing to do.")
		return writeSyncReport(plan, nil, nil)
	}
	if ok, err := confirmApply(cmd, syncYes, "sync team "+cfgManager.TeamSlug+" into cost center "+cfgManager.CostCenterID); err != nil || !ok {
		return err
	}

	opts := submit.OptionsFromConfig(cfgManager)
	var added, removed *submit.Report
	var errs []error

	if len(plan.Add) > 0 {
		rep, err := submit.New(submit.AddToCostCenter(client, cfgManager.CostCenterID), opts, logger).
			Run(ctx, toRecords(plan.Add))
		if rep != nil {
			rep.Print(out)
			added = rep
			errs = append(errs, rep.Err())
		}
		if err != nil {
			_ = writeSyncReport(plan, added, nil)
			return err
		}
	}

	if syncRemove && len(plan.Remove) > 0 {
		rep, err := submit.New(submit.RemoveFromCostCenter(client, cfgManager.CostCenterID), opts, logger).
			Run(ctx, toRecords(plan.Remove))
		if rep != nil {
			rep.Print(out)
			removed = rep
			errs = append(errs, rep.Err())
		}
		if err != nil {
			_ = writeSyncReport(plan, added, removed)
			return err
		}
	}

	if err := writeSyncReport(plan, added, removed); err != nil {
		logger.Error("Failed to write sync report", "path", syncReport, "error", err)
	}
	return errors.Join(errs...)
}

func writeSyncReport(plan reconcile.Plan, added, removed *submit.Report) error {
	if syncReport == "" {
		return nil
	}
	if err := reconcile.WriteCSV(syncReport, reconcile.Rows(plan, added, removed)); err != nil {
		return err
	}
	logger.Info("Sync report written", "path", syncReport)
	return nil
}

// toRecords wraps logins fetched from GitHub as input records.
func toRecords(logins []string) []userlist.Record {
	records := make([]userlist.Record, len(logins))
	for i, l := range logins {
		records[i] = userlist.Record{Username: l}
	}
	return records
}
