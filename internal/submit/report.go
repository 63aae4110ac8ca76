package submit

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/canarys/gh-cc-members/internal/userlist"
)

// Report aggregates the results of one run.
type Report struct {
	RunID    uuid.UUID
	Action   string
	Target   string
	Started  time.Time
	Finished time.Time
	// Results holds one entry per input row, in input order.
	Results   []Result
	Succeeded int
	Failed    int
	// Aborted is set when a fatal error stopped the run early.
	Aborted bool
}

func (r *Report) tally() {
	r.Succeeded, r.Failed = 0, 0
	for _, res := range r.Results {
		if res.Status == StatusSuccess {
			r.Succeeded++
		} else {
			r.Failed++
		}
	}
}

// FailedUsernames lists the users that were not added, in input order.
func (r *Report) FailedUsernames() []string {
	var out []string
	for _, res := range r.Results {
		if res.Status != StatusSuccess {
			out = append(out, res.Username)
		}
	}
	return out
}

// Err returns a *PartialFailureError when any user failed, else nil.
func (r *Report) Err() error {
	if r.Failed == 0 {
		return nil
	}
	return &PartialFailureError{Failed: r.Failed, Total: len(r.Results), Usernames: r.FailedUsernames()}
}

// Print writes the human-readable summary.
func (r *Report) Print(w io.Writer) {
	unchanged := 0
	for _, res := range r.Results {
		if res.Status == StatusSuccess && res.Unchanged {
			unchanged++
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, "SUBMISSION SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "Run ID:    %s\n", r.RunID)
	fmt.Fprintf(w, "Action:    %s\n", r.Action)
	fmt.Fprintf(w, "Duration:  %s\n", r.Finished.Sub(r.Started).Round(time.Millisecond))
	fmt.Fprintf(w, "Total:     %d\n", len(r.Results))
	fmt.Fprintf(w, "Succeeded: %d", r.Succeeded)
	if unchanged > 0 {
		fmt.Fprintf(w, " (%d already in place)", unchanged)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Failed:    %d\n", r.Failed)

	if r.Failed > 0 {
		fmt.Fprintln(w, "\nFAILED USERS:")
		for _, res := range r.Results {
			if res.Status != StatusSuccess {
				fmt.Fprintf(w, "  - %s (row %d): %s\n", res.Username, res.Row, res.Detail)
			}
		}
	}
	if r.Aborted {
		fmt.Fprintln(w, "\nRun aborted before all users were submitted.")
	}
	fmt.Fprintln(w, strings.Repeat("=", 60))
}

// WriteCSV writes one "username,status,detail" line per result to path.
func (r *Report) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	defer func() { _ = f.Close() }()

	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"username", "status", "detail"}); err != nil {
		return fmt.Errorf("writing report header: %w", err)
	}
	for _, res := range r.Results {
		if err := cw.Write([]string{res.Username, string(res.Status), res.Detail}); err != nil {
			return fmt.Errorf("writing report row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing report: %w", err)
	}
	return f.Close()
}

func endSpan(span trace.Span, r *Report, err error) {
	span.SetAttributes(
		attribute.Int("users.succeeded", r.Succeeded),
		attribute.Int("users.failed", r.Failed),
		attribute.Bool("run.aborted", r.Aborted),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// PrintPlan writes what a run would submit without contacting GitHub.
func PrintPlan(w io.Writer, target Target, records []userlist.Record, batchSize int) {
	if batchSize < 1 {
		batchSize = 1
	}
	requests := (len(records) + batchSize - 1) / batchSize

	fmt.Fprintln(w)
	fmt.Fprintln(w, "===== Plan =====")
	fmt.Fprintf(w, "Action:   %s\n", target.Action)
	fmt.Fprintf(w, "Users:    %d\n", len(records))
	fmt.Fprintf(w, "Requests: %d (batch size %d)\n", requests, batchSize)
	for _, r := range records {
		fmt.Fprintf(w, "  + %s\n", r.Username)
	}
	fmt.Fprintln(w, "===== End of Plan =====")
	fmt.Fprintln(w, "Run with --mode apply to submit.")
}
