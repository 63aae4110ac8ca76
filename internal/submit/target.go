package submit

import (
	"context"
	"fmt"

	"github.com/canarys/gh-cc-members/internal/config"
	"github.com/canarys/gh-cc-members/internal/github"
)

// CostCenterWriter is the part of the GitHub client that changes cost
// center membership.
type CostCenterWriter interface {
	AddUsersToCostCenter(ctx context.Context, costCenterID string, users []string) (github.ChangeResult, error)
	RemoveUsersFromCostCenter(ctx context.Context, costCenterID string, users []string) (github.ChangeResult, error)
}

// TeamWriter is the part of the GitHub client that adds enterprise team
// members.
type TeamWriter interface {
	AddEnterpriseTeamMembers(ctx context.Context, teamSlug string, usernames []string) (github.ChangeResult, error)
}

// WriteFunc performs one membership write for users.
type WriteFunc func(ctx context.Context, users []string) (github.ChangeResult, error)

// Target is what a run writes to.
type Target struct {
	// ID identifies the cost center or team.
	ID string
	// Field is the configuration key that supplies ID.
	Field string
	// Action describes the write for logs and reports.
	Action string
	Write  WriteFunc
}

// AddToCostCenter targets the cost center's resource endpoint with POST.
func AddToCostCenter(w CostCenterWriter, costCenterID string) Target {
	return Target{
		ID:     costCenterID,
		Field:  config.FieldCostCenterID,
		Action: fmt.Sprintf("add to cost center %s", costCenterID),
		Write: func(ctx context.Context, users []string) (github.ChangeResult, error) {
			return w.AddUsersToCostCenter(ctx, costCenterID, users)
		},
	}
}

// RemoveFromCostCenter targets the cost center's resource endpoint with
// DELETE.
func RemoveFromCostCenter(w CostCenterWriter, costCenterID string) Target {
	return Target{
		ID:     costCenterID,
		Field:  config.FieldCostCenterID,
		Action: fmt.Sprintf("remove from cost center %s", costCenterID),
		Write: func(ctx context.Context, users []string) (github.ChangeResult, error) {
			return w.RemoveUsersFromCostCenter(ctx, costCenterID, users)
		},
	}
}

// AddToTeam targets the enterprise team's membership endpoint.
func AddToTeam(w TeamWriter, teamSlug string) Target {
	return Target{
		ID:     teamSlug,
		Field:  config.FieldTeamSlug,
		Action: fmt.Sprintf("add to enterprise team %s", teamSlug),
		Write: func(ctx context.Context, users []string) (github.ChangeResult, error) {
			return w.AddEnterpriseTeamMembers(ctx, teamSlug, users)
		},
	}
}
