package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CostCenter is a billing cost center and the resources assigned to it.
type CostCenter struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	State     string     `json:"state"`
	Resources []Resource `json:"resources"`
}

// Resource is one member of a cost center: a user, organization or
// repository.
type Resource struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// errNoUsers is returned when a membership write is attempted with an
// empty user list.
var errNoUsers = errors.New("no users given")

// resourceUserType is the resource type GitHub uses for user members.
const resourceUserType = "User"

// usersPayload is the body accepted by the cost center resource endpoint.
type usersPayload struct {
	Users []string `json:"users"`
}

// ChangeResult describes a membership write that did not fail.
type ChangeResult struct {
	StatusCode int
	// Unchanged is set when GitHub reported the requested state already
	// held (user already assigned, or not assigned when removing).
	Unchanged bool
	Message   string
}

func (c *Client) costCenterURL(costCenterID, suffix string) string {
	return c.enterpriseURL(fmt.Sprintf("/settings/billing/cost-centers/%s%s", costCenterID, suffix))
}

// AddUsersToCostCenter assigns users to the cost center in one request. A
// 409/422 stating the users are already assigned is reported as Unchanged
// rather than as an error.
func (c *Client) AddUsersToCostCenter(ctx context.Context, costCenterID string, users []string) (ChangeResult, error) {
	if len(users) == 0 {
		return ChangeResult{}, errNoUsers
	}
	ctx, span := otel.Tracer(otelName).Start(ctx, "AddUsersToCostCenter")
	defer span.End()
	span.SetAttributes(attribute.String("cost_center.id", costCenterID), attribute.Int("users.count", len(users)))

	url := c.costCenterURL(costCenterID, "/resource")
	status, err := c.doJSON(ctx, http.MethodPost, url, usersPayload{Users: users}, nil)
	if err != nil {
		if isAlreadyPresent(err) {
			c.log.Info("Users already assigned to cost center", "cost_center", costCenterID, "users", users)
			return ChangeResult{StatusCode: status, Unchanged: true, Message: "already in cost center"}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ChangeResult{StatusCode: status}, fmt.Errorf("adding %d user(s) to cost center %s: %w", len(users), costCenterID, err)
	}

	c.log.Debug("Added users to cost center", "cost_center", costCenterID, "count", len(users), "status", status)
	return ChangeResult{StatusCode: status, Message: fmt.Sprintf("added (HTTP %d)", status)}, nil
}

// RemoveUsersFromCostCenter unassigns users from the cost center. A 400
// "no resources to remove" or a 404 is reported as Unchanged.
func (c *Client) RemoveUsersFromCostCenter(ctx context.Context, costCenterID string, users []string) (ChangeResult, error) {
	if len(users) == 0 {
		return ChangeResult{}, errNoUsers
	}
	ctx, span := otel.Tracer(otelName).Start(ctx, "RemoveUsersFromCostCenter")
	defer span.End()
	span.SetAttributes(attribute.String("cost_center.id", costCenterID), attribute.Int("users.count", len(users)))

	url := c.costCenterURL(costCenterID, "/resource")
	status, err := c.doJSON(ctx, http.MethodDelete, url, usersPayload{Users: users}, nil)
	if err != nil {
		if isNotPresent(err) {
			c.log.Info("Users not in cost center, nothing to remove", "cost_center", costCenterID, "users", users)
			return ChangeResult{StatusCode: status, Unchanged: true, Message: "not in cost center"}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ChangeResult{StatusCode: status}, fmt.Errorf("removing %d user(s) from cost center %s: %w", len(users), costCenterID, err)
	}

	c.log.Debug("Removed users from cost center", "cost_center", costCenterID, "count", len(users), "status", status)
	return ChangeResult{StatusCode: status, Message: fmt.Sprintf("removed (HTTP %d)", status)}, nil
}

// GetCostCenter returns the cost center with its resources.
func (c *Client) GetCostCenter(ctx context.Context, costCenterID string) (*CostCenter, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "GetCostCenter")
	defer span.End()

	var cc CostCenter
	if _, err := c.doJSON(ctx, http.MethodGet, c.costCenterURL(costCenterID, ""), nil, &cc); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fetching cost center %s: %w", costCenterID, err)
	}
	return &cc, nil
}

// GetCostCenterUsers returns the logins of user resources in the cost
// center, de-duplicated. A cost center that does not exist yields an empty
// list.
func (c *Client) GetCostCenterUsers(ctx context.Context, costCenterID string) ([]string, error) {
	cc, err := c.GetCostCenter(ctx, costCenterID)
	if err != nil {
		if StatusCode(err) == http.StatusNotFound && !IsFatal(err) {
			c.log.Warn("Cost center not found, treating as empty", "cost_center", costCenterID)
			return []string{}, nil
		}
		return nil, err
	}

	var logins []string
	for _, r := range cc.Resources {
		c.log.Debug("Cost center resource", "type", r.Type, "name", r.Name)
		if r.Type == resourceUserType && r.Name != "" {
			logins = append(logins, r.Name)
		}
	}
	users := dedupeLogins(logins, c.log)
	c.log.Info("Fetched cost center users", "cost_center", costCenterID, "name", cc.Name,
		"resources", len(cc.Resources), "users", len(users))
	return users, nil
}
