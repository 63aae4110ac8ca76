// Package submit is the cost-center membership submitter: it sends each
// user (or batch of users) from the input list to GitHub and records one
// result per user.
//
// Per-user rejections are recorded and the run continues; an authorization
// failure stops all remaining work because it would recur for every user.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/canarys/gh-cc-members/internal/config"
	"github.com/canarys/gh-cc-members/internal/github"
	"github.com/canarys/gh-cc-members/internal/userlist"
)

const otelName = "github.com/canarys/gh-cc-members/internal/submit"

// Status is the outcome for one user.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Result is the outcome of submitting one user.
type Result struct {
	Username string
	Row      int
	Status   Status
	Detail   string
	// Unchanged is set when GitHub reported the membership was already in
	// the requested state (already present on add). It counts as success.
	Unchanged bool
	// Attempts is the number of write requests that carried this user.
	Attempts int
}

// Options tunes a run.
type Options struct {
	Workers           int
	BatchSize         int
	RequestsPerSecond float64
}

// OptionsFromConfig reads the submitter tuning from the resolved config.
func OptionsFromConfig(cfg *config.Manager) Options {
	return Options{
		Workers:           cfg.Workers,
		BatchSize:         cfg.BatchSize,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}
}

// Submitter drives one membership write per unit of users.
type Submitter struct {
	target  Target
	opts    Options
	limiter *rate.Limiter
	log     *slog.Logger
}

// New creates a submitter for target.
func New(target Target, opts Options, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers < 1 {
		opts.Workers = config.DefaultWorkers
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = config.DefaultBatchSize
	}
	s := &Submitter{target: target, opts: opts, log: logger}
	if opts.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return s
}

// Run submits every record and returns the report. The error is non-nil
// only when the run could not start or was aborted; per-user failures are
// in the report (see Report.Err).
func (s *Submitter) Run(ctx context.Context, records []userlist.Record) (*Report, error) {
	if s.target.ID == "" {
		return nil, &config.ConfigurationError{Missing: []string{s.target.Field}}
	}
	if len(records) == 0 {
		return nil, errors.New("no users to submit")
	}

	rep := &Report{
		RunID:   uuid.New(),
		Action:  s.target.Action,
		Target:  s.target.ID,
		Started: time.Now(),
		Results: make([]Result, len(records)),
	}
	for i, r := range records {
		rep.Results[i] = Result{Username: r.Username, Row: r.Row, Status: StatusFailure, Detail: "not submitted"}
	}

	log := s.log.With("run_id", rep.RunID.String())
	ctx, span := otel.Tracer(otelName).Start(ctx, "submit.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", rep.RunID.String()),
		attribute.String("target.id", s.target.ID),
		attribute.Int("users.count", len(records)),
	)

	units := chunk(len(records), s.opts.BatchSize)
	log.Info("Submitting users",
		"action", s.target.Action,
		"target", s.target.ID,
		"users", len(records),
		"requests", len(units),
		"workers", s.opts.Workers,
		"batch_size", s.opts.BatchSize,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for _, unit := range units {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return s.submitUnit(gctx, log, unit, rep.Results)
		})
	}
	runErr := g.Wait()
	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}

	rep.Finished = time.Now()
	rep.tally()

	if runErr != nil {
		rep.Aborted = true
		for i := range rep.Results {
			if rep.Results[i].Attempts == 0 {
				rep.Results[i].Detail = "not submitted: run aborted"
			}
		}
		endSpan(span, rep, runErr)
		log.Error("Run aborted", "error", runErr, "succeeded", rep.Succeeded, "failed", rep.Failed)
		return rep, runErr
	}

	endSpan(span, rep, nil)
	log.Info("Run finished",
		"succeeded", rep.Succeeded,
		"failed", rep.Failed,
		"duration", rep.Finished.Sub(rep.Started).Round(time.Millisecond),
	)
	return rep, nil
}

// submitUnit writes the users at idx and fills their result slots. Only a
// fatal or context error is returned; it cancels the rest of the run.
func (s *Submitter) submitUnit(ctx context.Context, log *slog.Logger, idx []int, results []Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	users := make([]string, len(idx))
	for i, j := range idx {
		users[i] = results[j].Username
		results[j].Attempts++
	}

	res, err := s.target.Write(ctx, users)
	switch {
	case err == nil:
		for _, j := range idx {
			results[j].Status = StatusSuccess
			results[j].Unchanged = res.Unchanged
			results[j].Detail = res.Message
		}
		log.Debug("Submitted users", "users", users, "status", res.StatusCode, "unchanged", res.Unchanged)
		return nil

	case github.IsFatal(err):
		markFailed(results, idx, err)
		log.Error("Authorization failure, aborting remaining work", "users", users, "error", err)
		return err

	case ctx.Err() != nil:
		markFailed(results, idx, ctx.Err())
		return ctx.Err()
	}

	var valErr *github.RemoteValidationError
	if len(idx) > 1 && errors.As(err, &valErr) {
		log.Warn("Batch rejected, retrying users one at a time", "users", len(idx), "status", valErr.Err.StatusCode)
		for _, j := range idx {
			if err := s.submitUnit(ctx, log, []int{j}, results); err != nil {
				return err
			}
		}
		return nil
	}

	markFailed(results, idx, err)
	log.Warn("Failed to submit users", "users", users, "status", github.StatusCode(err), "error", err)
	return nil
}

func markFailed(results []Result, idx []int, err error) {
	for _, j := range idx {
		results[j].Status = StatusFailure
		results[j].Detail = err.Error()
	}
}

// chunk splits n indices into consecutive groups of at most size.
func chunk(n, size int) [][]int {
	var units [][]int
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		unit := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			unit = append(unit, i)
		}
		units = append(units, unit)
	}
	return units
}

// PartialFailureError is returned by Report.Err when some users failed.
type PartialFailureError struct {
	Failed    int
	Total     int
	Usernames []string
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%d of %d user(s) failed: %v", e.Failed, e.Total, e.Usernames)
}
