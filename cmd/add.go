package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/canarys/gh-cc-members/internal/config"
	"github.com/canarys/gh-cc-members/internal/submit"
	"github.com/canarys/gh-cc-members/internal/userlist"
)

var (
	// add flags
	addInput      string
	addCostCenter string
	addColumn     string
	addMode       string
	addYes        bool
	addReport     string
	addWorkers    int
	addBatchSize  int
	addRPS        float64
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add users from a CSV or XLSX file to the cost center",
	Long: `Add every user listed in the input file to the configured cost center.

The input is a CSV (or the first sheet of an XLSX workbook) whose header
row names the username column. Blank lines are ignored.

The --mode flag controls execution:
  plan  - Show what would be submitted (default)
  apply - Submit the users to GitHub Enterprise

Users already in the cost center count as added. Users GitHub rejects are
reported and the run continues; an authorization failure stops the run.

Examples:
  # Preview
  gh cc-members add --input users.csv

  # Apply without prompting, writing a CSV report
  gh cc-members add --input users.csv --mode apply --yes --report report.csv

  # Override the cost center and send 50 users per request
  gh cc-members add -i users.xlsx --cost-center 1a2b3c --batch-size 50 --mode apply`,
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVarP(&addInput, "input", "i", "", "CSV or XLSX file listing the users")
	addCmd.Flags().StringVar(&addCostCenter, "cost-center", "", "cost center ID (overrides config)")
	addCmd.Flags().StringVar(&addColumn, "column", "", "header of the username column (default from config, else \"username\")")
	addCmd.Flags().StringVar(&addMode, "mode", "plan", "execution mode: plan (preview) or apply (push changes)")
	addCmd.Flags().BoolVarP(&addYes, "yes", "y", false, "skip confirmation prompt in apply mode")
	addCmd.Flags().StringVar(&addReport, "report", "", "write a username,status,detail CSV report to this path")
	addTuningFlags(addCmd, &addWorkers, &addBatchSize, &addRPS)
	_ = addCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, _ []string) error {
	apply, err := checkMode(addMode)
	if err != nil {
		return err
	}
	if addCostCenter != "" {
		cfgManager.CostCenterID = addCostCenter
	}
	if addColumn != "" {
		cfgManager.InputColumn = addColumn
	}
	if addReport != "" {
		cfgManager.ReportFile = addReport
	}
	if err := setTuning(cmd, addWorkers, addBatchSize, addRPS); err != nil {
		return err
	}

	required := []string{config.FieldCostCenterID}
	if apply {
		required = append(required, config.FieldToken, config.FieldEnterprise)
	}
	if err := cfgManager.RequireFields(required...); err != nil {
		return err
	}

	records, err := userlist.Load(addInput, userlist.Options{Column: cfgManager.InputColumn}, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !apply {
		target := submit.Target{ID: cfgManager.CostCenterID, Action: "add to cost center " + cfgManager.CostCenterID}
		submit.PrintPlan(out, target, records, cfgManager.BatchSize)
		return nil
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	target := submit.AddToCostCenter(client, cfgManager.CostCenterID)
	if ok, err := confirmApply(cmd, addYes, target.Action); err != nil || !ok {
		return err
	}

	return runSubmission(cmd, target, records, cfgManager.ReportFile)
}

// runSubmission runs the submitter, prints the summary and writes the
// optional CSV report. It returns the fatal error, or the partial failure.
func runSubmission(cmd *cobra.Command, target submit.Target, records []userlist.Record, reportPath string) error {
	s := submit.New(target, submit.OptionsFromConfig(cfgManager), logger)
	rep, err := s.Run(cmd.Context(), records)
	if rep == nil {
		return err
	}
	rep.Print(cmd.OutOrStdout())
	if u := cfgManager.CostCenterURL(); u != "" && target.ID == cfgManager.CostCenterID {
		fmt.Fprintf(cmd.OutOrStdout(), "Cost center: %s\n", u)
	}
	if reportPath != "" {
		if werr := rep.WriteCSV(reportPath); werr != nil {
			logger.Error("Failed to write report", "path", reportPath, "error", werr)
		} else {
			logger.Info("Report written", "path", reportPath)
		}
	}
	if err != nil {
		return err
	}
	return rep.Err()
}
