package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values.
const (
	DefaultAPIBaseURL        = "https://api.github.com"
	DefaultInputColumn       = "username"
	DefaultTeamColumn        = "team"
	DefaultLogLevel          = "INFO"
	DefaultLogFormat         = "auto"
	DefaultWorkers           = 1
	DefaultBatchSize         = 1
	DefaultRequestTimeout    = 30 * time.Second
	DefaultRetries           = 1
	DefaultRateLimitRetries  = 3
	MaxBatchSize             = 100
	MaxWorkers               = 16
	costCenterConsoleURLTmpl = "https://github.com/enterprises/%s/billing/cost_centers/%s"
)

// Names of the values that commands can demand through RequireFields.
const (
	FieldToken        = "token"
	FieldEnterprise   = "enterprise"
	FieldCostCenterID = "cost_center_id"
	FieldTeamSlug     = "team_slug"
)

// fieldSources tells the user where each required value can be provided.
var fieldSources = map[string]string{
	FieldToken:        "env GITHUB_TOKEN / GH_TOKEN or github.token",
	FieldEnterprise:   "env GITHUB_ENTERPRISE or github.enterprise",
	FieldCostCenterID: "env GITHUB_COST_CENTER_ID or cost_center.id",
	FieldTeamSlug:     "env GITHUB_TEAM_SLUG or cost_center.team_slug",
}

// Placeholder values that indicate the config has not been customised.
var placeholderValues = map[string]bool{
	"REPLACE_WITH_ENTERPRISE_SLUG":      true,
	"REPLACE_WITH_ENTERPRISE_TEAM_SLUG": true,
	"REPLACE_WITH_COST_CENTER_ID":       true,
	"REPLACE_WITH_TOKEN":                true,
	"your_enterprise_name":              true,
	"CLASSIC_TOKEN":                     true,
	"Slug name":                         true,
	"Cost center ID":                    true,
}

// ConfigurationError reports required values that are missing or still set
// to a placeholder. It is raised before any request is issued.
type ConfigurationError struct {
	Missing []string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if len(e.Missing) == 0 {
		return "invalid configuration: " + e.Reason
	}
	parts := make([]string, 0, len(e.Missing))
	for _, f := range e.Missing {
		if src, ok := fieldSources[f]; ok {
			parts = append(parts, fmt.Sprintf("%s (%s)", f, src))
		} else {
			parts = append(parts, f)
		}
	}
	return "missing required configuration: " + strings.Join(parts, ", ")
}

// Manager loads, validates, and exposes configuration.
type Manager struct {
	cfg  Config
	path string
	log  *slog.Logger

	// Resolved values after applying fallback chains and env overrides.
	// Commands may overwrite them from flags before calling RequireFields.
	Enterprise        string
	APIBaseURL        string
	Token             string
	CostCenterID      string
	TeamSlug          string
	InputColumn       string
	TeamColumn        string
	Workers           int
	BatchSize         int
	RequestsPerSecond float64
	RequestTimeout    time.Duration
	Retries           int
	RateLimitRetries  int
	ReportFile        string
	LogLevel          string
	LogFormat         string
	LogFile           string

	tokenSource string
}

// Load reads the YAML config at path and applies env-var overrides,
// fallback chains and defaults. Missing credentials are not an error here;
// commands check what they need with RequireFields.
func Load(path string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		path: path,
		log:  logger,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("Config file not found, using environment and defaults", "path", path)
		} else {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &m.cfg); err != nil {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("parsing config YAML %s: %v", path, err)}
		}
		if strings.TrimSpace(m.cfg.GitHub.Token) != "" {
			logger.Warn("Token read from config file; prefer the GITHUB_TOKEN environment variable", "path", path)
		}
	}

	if err := m.resolve(); err != nil {
		return nil, err
	}

	return m, nil
}

// Raw returns the underlying parsed Config struct.
func (m *Manager) Raw() *Config {
	return &m.cfg
}

// Path returns the config file path the manager was loaded from.
func (m *Manager) Path() string {
	return m.path
}

// resolve applies env-var overrides, fallbacks, defaults, and validation.
func (m *Manager) resolve() error {
	gh := m.cfg.GitHub

	m.Enterprise = clean(envOrFallback("GITHUB_ENTERPRISE", gh.Enterprise))
	m.CostCenterID = clean(envOrFallback("GITHUB_COST_CENTER_ID",
		firstNonEmpty(m.cfg.CostCenter.ID, gh.CostCenterIDOld)))
	m.TeamSlug = clean(envOrFallback("GITHUB_TEAM_SLUG", m.cfg.CostCenter.TeamSlug))

	switch {
	case os.Getenv("GITHUB_TOKEN") != "":
		m.Token, m.tokenSource = os.Getenv("GITHUB_TOKEN"), "env GITHUB_TOKEN"
	case os.Getenv("GH_TOKEN") != "":
		m.Token, m.tokenSource = os.Getenv("GH_TOKEN"), "env GH_TOKEN"
	default:
		m.Token, m.tokenSource = gh.Token, "config file"
	}
	m.Token = clean(m.Token)

	// --- API base URL ---
	rawURL := envOrFallback("GITHUB_API_BASE_URL", gh.APIBaseURL)
	if rawURL == "" {
		rawURL = DefaultAPIBaseURL
	}
	apiURL, err := validateAPIURL(rawURL, m.log)
	if err != nil {
		return &ConfigurationError{Reason: err.Error()}
	}
	m.APIBaseURL = apiURL

	// --- Input ---
	m.InputColumn = defaultString(m.cfg.Input.Column, DefaultInputColumn)
	m.TeamColumn = defaultString(m.cfg.Input.TeamColumn, DefaultTeamColumn)

	// --- Submitter ---
	s := m.cfg.Submit
	m.Workers = defaultInt(s.Workers, DefaultWorkers)
	m.BatchSize = defaultInt(s.BatchSize, DefaultBatchSize)
	m.RequestsPerSecond = s.RequestsPerSecond
	m.Retries = intPtrDefault(s.Retries, DefaultRetries)
	m.RateLimitRetries = intPtrDefault(s.RateLimitRetries, DefaultRateLimitRetries)
	m.RequestTimeout = DefaultRequestTimeout
	if s.RequestTimeout != "" {
		d, err := time.ParseDuration(s.RequestTimeout)
		if err != nil {
			return &ConfigurationError{Reason: fmt.Sprintf("submit.request_timeout %q: %v", s.RequestTimeout, err)}
		}
		m.RequestTimeout = d
	}
	if err := m.ValidateTuning(); err != nil {
		return err
	}

	// --- Logging ---
	m.LogLevel = defaultString(m.cfg.Logging.Level, DefaultLogLevel)
	m.LogFormat = defaultString(m.cfg.Logging.Format, DefaultLogFormat)
	m.LogFile = m.cfg.Logging.File

	// --- Report ---
	m.ReportFile = envOrFallback("COST_CENTER_REPORT_FILE", m.cfg.ReportFile)

	return nil
}

// ValidateTuning checks the submitter knobs. It is called by Load and again
// by commands after flag overrides.
func (m *Manager) ValidateTuning() error {
	switch {
	case m.Workers < 1 || m.Workers > MaxWorkers:
		return &ConfigurationError{Reason: fmt.Sprintf("workers must be between 1 and %d, got %d", MaxWorkers, m.Workers)}
	case m.BatchSize < 1 || m.BatchSize > MaxBatchSize:
		return &ConfigurationError{Reason: fmt.Sprintf("batch size must be between 1 and %d, got %d", MaxBatchSize, m.BatchSize)}
	case m.RequestsPerSecond < 0:
		return &ConfigurationError{Reason: fmt.Sprintf("requests per second cannot be negative, got %g", m.RequestsPerSecond)}
	case m.RequestTimeout <= 0:
		return &ConfigurationError{Reason: fmt.Sprintf("request timeout must be positive, got %s", m.RequestTimeout)}
	case m.Retries < 0:
		return &ConfigurationError{Reason: fmt.Sprintf("retries cannot be negative, got %d", m.Retries)}
	case m.RateLimitRetries < 0:
		return &ConfigurationError{Reason: fmt.Sprintf("rate limit retries cannot be negative, got %d", m.RateLimitRetries)}
	}
	return nil
}

// RequireFields returns a *ConfigurationError naming every requested field
// that is empty or still a placeholder.
func (m *Manager) RequireFields(fields ...string) error {
	var missing []string
	for _, f := range fields {
		if isUnset(m.field(f)) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	return nil
}

func (m *Manager) field(name string) string {
	switch name {
	case FieldToken:
		return m.Token
	case FieldEnterprise:
		return m.Enterprise
	case FieldCostCenterID:
		return m.CostCenterID
	case FieldTeamSlug:
		return m.TeamSlug
	default:
		return ""
	}
}

// CostCenterURL returns the enterprise console link for the configured
// cost center, or "" when either part is unknown.
func (m *Manager) CostCenterURL() string {
	if isUnset(m.Enterprise) || isUnset(m.CostCenterID) {
		return ""
	}
	return fmt.Sprintf(costCenterConsoleURLTmpl, m.Enterprise, m.CostCenterID)
}

// Summary returns a human-readable map of current configuration for display.
// The token is never included verbatim.
func (m *Manager) Summary() map[string]any {
	s := map[string]any{
		"enterprise":          m.Enterprise,
		"api_base_url":        m.APIBaseURL,
		"token":               RedactToken(m.Token),
		"token_source":        m.tokenSource,
		"cost_center_id":      m.CostCenterID,
		"team_slug":           m.TeamSlug,
		"input_column":        m.InputColumn,
		"team_column":         m.TeamColumn,
		"workers":             m.Workers,
		"batch_size":          m.BatchSize,
		"requests_per_second": m.RequestsPerSecond,
		"request_timeout":     m.RequestTimeout.String(),
		"retries":             m.Retries,
		"rate_limit_retries":  m.RateLimitRetries,
		"report_file":         m.ReportFile,
		"log_level":           m.LogLevel,
		"log_format":          m.LogFormat,
	}
	if u := m.CostCenterURL(); u != "" {
		s["cost_center_url"] = u
	}
	return s
}

// MissingSummary lists the standard required fields that are still unset,
// sorted, for display by the config command.
func (m *Manager) MissingSummary() []string {
	var out []string
	for _, f := range []string{FieldToken, FieldEnterprise, FieldCostCenterID} {
		if isUnset(m.field(f)) {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// RedactToken hides all but the last four characters of a credential.
func RedactToken(token string) string {
	if token == "" {
		return "<not set>"
	}
	if len(token) <= 8 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// validateAPIURL validates and normalises a GitHub API base URL.
func validateAPIURL(raw string, log *slog.Logger) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("GitHub API base URL must be a non-empty string")
	}

	raw = strings.TrimRight(raw, "/")

	if !strings.HasPrefix(raw, "https://") {
		return "", fmt.Errorf("GitHub API base URL must use HTTPS: %s", raw)
	}

	switch {
	case raw == DefaultAPIBaseURL:
		log.Debug("Using standard GitHub API", "url", raw)

	case strings.Contains(raw, ".ghe.com"):
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("invalid API URL: %w", err)
		}
		host := u.Hostname()
		if !strings.HasPrefix(host, "api.") || !strings.HasSuffix(host, ".ghe.com") {
			return "", fmt.Errorf(
				"GitHub Enterprise Data Resident API URL should match 'https://api.{subdomain}.ghe.com', got: %s", raw)
		}
		subdomain := host[4 : len(host)-8] // strip "api." and ".ghe.com"
		if subdomain == "" {
			return "", fmt.Errorf("invalid GHE Data Resident URL, missing subdomain: %s", raw)
		}
		log.Debug("Using GitHub Enterprise Data Resident API", "subdomain", subdomain, "url", raw)

	case strings.Contains(raw, "/api/v3"):
		log.Debug("Using GitHub Enterprise Server API", "url", raw)

	default:
		log.Warn("Using custom GitHub API URL (non-standard pattern)",
			"url", raw,
			"expected", "https://api.github.com | https://api.{subdomain}.ghe.com | https://{hostname}/api/v3")
	}

	return raw, nil
}

// isUnset reports whether a value is empty or a known placeholder.
func isUnset(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || placeholderValues[v]
}

// clean trims surrounding whitespace.
func clean(v string) string {
	return strings.TrimSpace(v)
}

// envOrFallback returns the env var value if set, otherwise the YAML fallback.
func envOrFallback(envKey, yamlValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return yamlValue
}

// firstNonEmpty returns the first non-empty string from the arguments.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// defaultString returns val if non-empty, otherwise def.
func defaultString(val, def string) string {
	if val != "" {
		return val
	}
	return def
}

// defaultInt returns val if non-zero, otherwise def.
func defaultInt(val, def int) int {
	if val != 0 {
		return val
	}
	return def
}

// intPtrDefault dereferences an *int, returning def if the pointer is nil.
func intPtrDefault(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}
