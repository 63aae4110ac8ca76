// Package config provides typed configuration models and loading for gh-cc-members.
package config

// Config is the top-level configuration structure that mirrors the YAML file.
type Config struct {
	GitHub     GitHubConfig     `yaml:"github"`
	CostCenter CostCenterConfig `yaml:"cost_center"`
	Input      InputConfig      `yaml:"input"`
	Submit     SubmitConfig     `yaml:"submit"`
	Logging    LoggingConfig    `yaml:"logging"`
	ReportFile string           `yaml:"report_file"`
}

// GitHubConfig holds GitHub-related settings.
type GitHubConfig struct {
	Enterprise string `yaml:"enterprise"`
	APIBaseURL string `yaml:"api_base_url"`
	// Token is accepted for local use only; prefer GITHUB_TOKEN.
	Token string `yaml:"token"`

	// Backward-compatible key (old location of the cost center ID)
	CostCenterIDOld string `yaml:"cost_center_id"`
}

// CostCenterConfig identifies the target cost center and, for the team
// commands, the enterprise team that feeds it.
type CostCenterConfig struct {
	ID       string `yaml:"id"`
	TeamSlug string `yaml:"team_slug"`
}

// InputConfig controls how user lists are read.
type InputConfig struct {
	Column     string `yaml:"column"`
	TeamColumn string `yaml:"team_column"`
}

// SubmitConfig tunes how membership writes are issued.
type SubmitConfig struct {
	Workers           int     `yaml:"workers"`
	BatchSize         int     `yaml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	RequestTimeout    string  `yaml:"request_timeout"` // Go duration, e.g. "30s"
	Retries           *int    `yaml:"retries"`
	RateLimitRetries  *int    `yaml:"rate_limit_retries"`
}

// LoggingConfig controls log level, console format and output file.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "auto", "text", "json" or "console"
	File   string `yaml:"file"`
}
