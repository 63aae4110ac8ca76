// Package cmd implements the CLI command tree for gh-cc-members.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/canarys/gh-cc-members/internal/config"
	"github.com/canarys/gh-cc-members/internal/github"
	"github.com/canarys/gh-cc-members/internal/logging"
	"github.com/canarys/gh-cc-members/internal/userlist"
)

// Exit codes.
const (
	exitOK      = 0
	exitPartial = 1
	exitFatal   = 2
)

var (
	// Global flags
	cfgFile   string
	verbose   bool
	logFormat string

	cfgManager *config.Manager
	logger     = slog.Default()

	// clientOptions are appended to every client built by newClient.
	clientOptions []github.Option
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gh-cc-members",
	Short: "Add users to a GitHub Enterprise billing cost center",
	Long: `gh cc-members adds users listed in a CSV or XLSX file to a GitHub
Enterprise billing cost center, and keeps a cost center in sync with an
enterprise team.

Configuration comes from config/config.yaml (--config) with environment
overrides: GITHUB_TOKEN (or GH_TOKEN), GITHUB_ENTERPRISE,
GITHUB_COST_CENTER_ID, GITHUB_TEAM_SLUG and GITHUB_API_BASE_URL.

Exit status is 0 when every user was processed, 1 when some users failed
and 2 on configuration, input or authorization errors.

Examples:
  # Preview, then add users from a CSV
  gh cc-members add --input users.csv
  gh cc-members add --input users.csv --mode apply --yes

  # Mirror an enterprise team into the cost center
  gh cc-members sync --mode apply --yes --remove

  # Export team members, add users to teams
  gh cc-members export --output team_memberships.csv
  gh cc-members team-add --input members.csv --mode apply --yes

  # Inspect
  gh cc-members list-members
  gh cc-members config`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

// exitCode maps an error onto the documented exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var (
		cfgErr   *config.ConfigurationError
		inErr    *userlist.InputError
		authErr  *github.AuthorizationError
		usageErr *usageError
	)
	if errors.As(err, &cfgErr) || errors.As(err, &inErr) || errors.As(err, &authErr) || errors.As(err, &usageErr) {
		return exitFatal
	}
	return exitPartial
}

// usageError is an invalid flag combination.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usageErrorf(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config/config.yaml", "configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "console log format: auto, text, json or console")
}

// setup loads the configuration and builds the logger for every command.
func setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == versionCmd.Name() {
		return nil
	}

	boot, err := logging.New(logging.Options{Level: levelFor(""), Format: logging.ParseFormat(logFormat)})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}

	cfg, err := config.Load(cfgFile, boot)
	if err != nil {
		return err
	}

	format := cfg.LogFormat
	if logFormat != "" {
		format = logFormat
	}
	l, err := logging.New(logging.Options{
		Level:    levelFor(cfg.LogLevel),
		Format:   logging.ParseFormat(format),
		FilePath: cfg.LogFile,
	})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}

	cfgManager = cfg
	logger = l
	slog.SetDefault(l)
	return nil
}

func levelFor(configured string) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	if configured == "" {
		return slog.LevelInfo
	}
	return logging.ParseLevel(configured)
}

// newClient builds the GitHub client from the loaded configuration.
func newClient() (*github.Client, error) {
	return github.NewClient(cfgManager, logger, clientOptions...)
}

// checkMode validates the --mode flag and returns whether changes are applied.
func checkMode(mode string) (bool, error) {
	switch strings.ToLower(mode) {
	case "plan":
		return false, nil
	case "apply":
		return true, nil
	default:
		return false, usageErrorf("invalid --mode %q: expected plan or apply", mode)
	}
}

// setTuning copies submitter flags that were set explicitly onto the
// configuration and re-validates it.
func setTuning(cmd *cobra.Command, workers, batchSize int, rps float64) error {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfgManager.Workers = workers
	}
	if flags.Changed("batch-size") {
		cfgManager.BatchSize = batchSize
	}
	if flags.Changed("rps") {
		cfgManager.RequestsPerSecond = rps
	}
	return cfgManager.ValidateTuning()
}

func addTuningFlags(cmd *cobra.Command, workers, batchSize *int, rps *float64) {
	cmd.Flags().IntVar(workers, "workers", config.DefaultWorkers, "number of concurrent requests")
	cmd.Flags().IntVar(batchSize, "batch-size", config.DefaultBatchSize, "users per request")
	cmd.Flags().Float64Var(rps, "rps", 0, "maximum requests per second (0 = unlimited)")
}
