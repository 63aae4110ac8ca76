package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// maxPages guards against pagination loops.
const maxPages = 200

// TeamMember is one entry of an enterprise team membership listing. The
// endpoint returns either the user object itself or a membership wrapping
// it under "user".
type TeamMember struct {
	Login   string      `json:"login"`
	ID      int64       `json:"id"`
	Type    string      `json:"type"`
	HTMLURL string      `json:"html_url"`
	URL     string      `json:"url"`
	Role    string      `json:"role"`
	State   string      `json:"state"`
	User    *TeamMember `json:"user,omitempty"`
}

// Membership is a team member flattened from either response shape.
type Membership struct {
	Login   string
	ID      int64
	HTMLURL string
	Role    string
	State   string
}

func (m TeamMember) flatten() Membership {
	out := Membership{Login: m.Login, ID: m.ID, HTMLURL: m.HTMLURL, Role: m.Role, State: m.State}
	if u := m.User; u != nil {
		out.Login = firstNonEmpty(u.Login, m.Login)
		if u.ID != 0 {
			out.ID = u.ID
		}
		out.HTMLURL = firstNonEmpty(u.HTMLURL, u.URL, m.HTMLURL)
	}
	if out.HTMLURL == "" {
		out.HTMLURL = m.URL
	}
	return out
}

// membershipEnvelopeKeys are the wrapper keys seen around membership lists.
var membershipEnvelopeKeys = []string{"memberships", "items", "value", "data"}

// ListEnterpriseTeamMemberships returns every membership of the enterprise
// team, following Link pagination. Entries without a login are dropped.
func (c *Client) ListEnterpriseTeamMemberships(ctx context.Context, teamSlug string) ([]Membership, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "ListEnterpriseTeamMemberships")
	defer span.End()
	span.SetAttributes(attribute.String("team.slug", teamSlug))

	c.log.Info("Fetching enterprise team members", "enterprise", c.enterprise, "team", teamSlug)
	next := c.enterpriseURL(fmt.Sprintf("/teams/%s/memberships?per_page=100", teamSlug))

	var out []Membership
	for page := 1; next != ""; page++ {
		if page > maxPages {
			err := fmt.Errorf("aborting after %d pages of team %s members: possible pagination loop", maxPages, teamSlug)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		resp, err := c.do(ctx, http.MethodGet, next, nil)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("fetching enterprise team %s members page %d: %w", teamSlug, page, err)
		}

		members, err := extractMemberships(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("decoding enterprise team %s members page %d: %w", teamSlug, page, err)
		}
		for _, m := range members {
			if fm := m.flatten(); fm.Login != "" {
				out = append(out, fm)
			}
		}
		c.log.Debug("Fetched enterprise team members page", "team", teamSlug, "page", page, "count", len(members))

		next = nextLink(resp.Header.Get("Link"))
	}
	return out, nil
}

// GetEnterpriseTeamMembers returns the de-duplicated logins of the
// enterprise team, in listing order.
func (c *Client) GetEnterpriseTeamMembers(ctx context.Context, teamSlug string) ([]string, error) {
	memberships, err := c.ListEnterpriseTeamMemberships(ctx, teamSlug)
	if err != nil {
		return nil, err
	}
	logins := make([]string, len(memberships))
	for i, m := range memberships {
		logins[i] = m.Login
	}
	unique := dedupeLogins(logins, c.log)
	c.log.Info("Total members found for enterprise team", "team", teamSlug, "count", len(unique))
	return unique, nil
}

// AddEnterpriseTeamMembers adds usernames to the enterprise team.
func (c *Client) AddEnterpriseTeamMembers(ctx context.Context, teamSlug string, usernames []string) (ChangeResult, error) {
	if len(usernames) == 0 {
		return ChangeResult{}, errNoUsers
	}
	ctx, span := otel.Tracer(otelName).Start(ctx, "AddEnterpriseTeamMembers")
	defer span.End()
	span.SetAttributes(attribute.String("team.slug", teamSlug), attribute.Int("users.count", len(usernames)))

	url := c.enterpriseURL(fmt.Sprintf("/teams/%s/memberships/add", teamSlug))
	body := map[string][]string{"usernames": usernames}
	status, err := c.doJSON(ctx, http.MethodPost, url, body, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ChangeResult{StatusCode: status}, fmt.Errorf("adding %d user(s) to enterprise team %s: %w", len(usernames), teamSlug, err)
	}
	c.log.Debug("Added users to enterprise team", "team", teamSlug, "count", len(usernames), "status", status)
	return ChangeResult{StatusCode: status, Message: fmt.Sprintf("added (HTTP %d)", status)}, nil
}

// extractMemberships decodes a membership page that is either a bare list
// or an object wrapping the list under a known (or the first list-valued)
// key.
func extractMemberships(body []byte) ([]TeamMember, error) {
	var list []TeamMember
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("unexpected membership payload: %w", err)
	}
	for _, k := range membershipEnvelopeKeys {
		if raw, ok := obj[k]; ok {
			if err := json.Unmarshal(raw, &list); err == nil {
				return list, nil
			}
		}
	}
	for _, raw := range obj {
		if err := json.Unmarshal(raw, &list); err == nil {
			return list, nil
		}
	}
	return nil, nil
}

// nextLink extracts the rel="next" URL from a Link header.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start >= 0 && end > start+1 {
			return part[start+1 : end]
		}
	}
	return ""
}
