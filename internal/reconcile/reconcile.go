// Package reconcile diffs the members of an enterprise team against the
// users of a cost center.
package reconcile

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/canarys/gh-cc-members/internal/submit"
)

// Plan is the difference between the desired (team) and current (cost
// center) user sets. The three lists are disjoint and sorted.
type Plan struct {
	Add    []string
	Remove []string
	InSync []string
}

// Compute builds the plan. Logins are compared case-insensitively; the
// spelling from desired wins for users on both sides.
func Compute(desired, current []string) Plan {
	cur := make(map[string]string, len(current))
	for _, u := range current {
		if u = strings.TrimSpace(u); u != "" {
			cur[strings.ToLower(u)] = u
		}
	}

	var p Plan
	want := make(map[string]bool, len(desired))
	for _, u := range desired {
		u = strings.TrimSpace(u)
		key := strings.ToLower(u)
		if u == "" || want[key] {
			continue
		}
		want[key] = true
		if _, ok := cur[key]; ok {
			p.InSync = append(p.InSync, u)
		} else {
			p.Add = append(p.Add, u)
		}
	}
	for key, u := range cur {
		if !want[key] {
			p.Remove = append(p.Remove, u)
		}
	}

	for _, l := range [][]string{p.Add, p.Remove, p.InSync} {
		slices.SortFunc(l, func(a, b string) int {
			return strings.Compare(strings.ToLower(a), strings.ToLower(b))
		})
	}
	return p
}

// Empty reports whether nothing needs to change.
func (p Plan) Empty() bool {
	return len(p.Add) == 0 && len(p.Remove) == 0
}

// Print writes the plan. Removals are shown as skipped unless remove is set.
func (p Plan) Print(w io.Writer, remove bool) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "===== Sync Plan =====")
	fmt.Fprintf(w, "Users to ADD (%d):\n", len(p.Add))
	for _, u := range p.Add {
		fmt.Fprintf(w, "  + %s\n", u)
	}
	if remove {
		fmt.Fprintf(w, "Users to REMOVE (%d):\n", len(p.Remove))
	} else {
		fmt.Fprintf(w, "Users not in team (%d, kept; use --remove to remove):\n", len(p.Remove))
	}
	for _, u := range p.Remove {
		fmt.Fprintf(w, "  - %s\n", u)
	}
	fmt.Fprintf(w, "Users already in sync: %d\n", len(p.InSync))
	fmt.Fprintln(w, "===== End of Sync Plan =====")
}

// Row is one line of the sync report.
type Row struct {
	Login   string
	Action  string
	Status  string
	Message string
}

// Rows flattens the plan and the add/remove run reports (either may be
// nil) into report lines.
func Rows(p Plan, added, removed *submit.Report) []Row {
	var rows []Row
	rows = appendResults(rows, "add", added)
	rows = appendResults(rows, "remove", removed)
	for _, u := range p.InSync {
		rows = append(rows, Row{Login: u, Action: "none", Status: "already_synced", Message: "already in sync"})
	}
	return rows
}

func appendResults(rows []Row, action string, rep *submit.Report) []Row {
	if rep == nil {
		return rows
	}
	for _, res := range rep.Results {
		status := "error"
		switch {
		case res.Status == submit.StatusSuccess && res.Unchanged:
			status = "skipped"
		case res.Status == submit.StatusSuccess:
			status = "success"
		}
		rows = append(rows, Row{Login: res.Username, Action: action, Status: status, Message: res.Detail})
	}
	return rows
}

// WriteCSV writes rows with a "login,action,status,message" header.
func WriteCSV(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating sync report: %w", err)
	}
	defer func() { _ = f.Close() }()

	cw := csv.NewWriter(f)
	_ = cw.Write([]string{"login", "action", "status", "message"})
	for _, r := range rows {
		_ = cw.Write([]string{r.Login, r.Action, r.Status, r.Message})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("writing sync report: %w", err)
	}
	return f.Close()
}
