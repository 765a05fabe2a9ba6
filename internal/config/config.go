// Package config is the engine's YAML configuration layer: load,
// normalize/validate, atomic save, and per-data-dir bootstrap, in the
// same nested-struct shape the teacher used for its own settings.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root settings document for the engine process.
type Config struct {
	App struct {
		Port    int    `yaml:"port"`
		DataDir string `yaml:"data_dir"`
	} `yaml:"app"`

	Portal struct {
		BaseURL        string  `yaml:"base_url"`
		RateLimitRPS   float64 `yaml:"rate_limit_rps"`
		RateLimitBurst int     `yaml:"rate_limit_burst"`
	} `yaml:"portal"`

	// Personalize points at the external cover-letter/evidence-map
	// generator; a separate host from Portal since the two are
	// independent external collaborators.
	Personalize struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"personalize"`

	Engine struct {
		MaxParallelJobsPerRun     int `yaml:"max_parallel_jobs_per_run"`
		RetryMaxAttempts          int `yaml:"retry_max_attempts"`
		RetryBaseMs               int `yaml:"retry_base_ms"`
		RetryCapMs                int `yaml:"retry_cap_ms"`
		EventReplayWindow         int `yaml:"event_replay_window"`
		KillPollIntervalMs        int `yaml:"kill_poll_interval_ms"`
		PerRunPostTerminalGraceMs int `yaml:"per_run_post_terminal_grace_ms"`
		EventPendingLimit         int `yaml:"event_pending_limit"`
	} `yaml:"engine"`

	// Policy holds default apply-policy values, loaded and validated with
	// the rest of the file. The HTTP surface does not read them:
	// /workflow/start uses the policy given in its request body.
	Policy PolicyDefaults `yaml:"policy"`
}

// PolicyDefaults mirrors domain.Policy for YAML configuration.
type PolicyDefaults struct {
	Enabled               bool     `yaml:"enabled"`
	MaxApplicationsPerDay int      `yaml:"max_applications_per_day"`
	MinMatchThreshold     int      `yaml:"min_match_threshold"`
	BlockedCompanies      []string `yaml:"blocked_companies"`
	BlockedRoleTypes      []string `yaml:"blocked_role_types"`
	RequiredLocation      string   `yaml:"required_location"`
	RequireRemote         bool     `yaml:"require_remote"`
	Notes                 string   `yaml:"notes"`
}

// Defaults returns a Config populated with the spec's §6 defaults.
func Defaults() Config {
	var c Config
	c.App.Port = 8080
	c.Portal.RateLimitRPS = 5
	c.Portal.RateLimitBurst = 5
	c.Engine.MaxParallelJobsPerRun = 1
	c.Engine.RetryMaxAttempts = 3
	c.Engine.RetryBaseMs = 1000
	c.Engine.RetryCapMs = 30000
	c.Engine.EventReplayWindow = 256
	c.Engine.KillPollIntervalMs = 2000
	c.Engine.PerRunPostTerminalGraceMs = 5000
	c.Engine.EventPendingLimit = 128
	c.Policy.Enabled = true
	c.Policy.MaxApplicationsPerDay = 50
	c.Policy.MinMatchThreshold = 30
	return c
}

// Load reads and unmarshals the config at path over the spec defaults,
// so a partial YAML file still yields valid tunables.
func Load(path string) (Config, error) {
	cfg := Defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(b, &cfg)
	return cfg, err
}
