package config

import (
	"fmt"
	"strings"
)

// Validation collects validation errors and non-fatal warnings, in the
// teacher's two-bucket style.
type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// NormalizeAndValidate trims/dedups list fields and checks the engine
// tunables and policy defaults for sane values.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	out := cfg
	var res Validation

	out.Policy.BlockedCompanies = trimList(out.Policy.BlockedCompanies)
	out.Policy.BlockedRoleTypes = trimList(out.Policy.BlockedRoleTypes)

	if out.App.Port <= 0 || out.App.Port > 65535 {
		res.addErr("app.port must be 1..65535")
	}

	if out.Portal.BaseURL == "" {
		res.addErr("portal.base_url is required")
	}
	if out.Portal.RateLimitRPS <= 0 {
		res.addWarn("portal.rate_limit_rps <= 0, defaulting behavior will block submissions")
	}

	if out.Personalize.BaseURL == "" {
		res.addWarn("personalize.base_url is empty; runs will fail at the personalize stage until it is set")
	}

	if out.Engine.MaxParallelJobsPerRun <= 0 {
		res.addErr("engine.max_parallel_jobs_per_run must be > 0")
	}
	if out.Engine.RetryMaxAttempts <= 0 {
		res.addErr("engine.retry_max_attempts must be > 0")
	}
	if out.Engine.RetryBaseMs <= 0 {
		res.addErr("engine.retry_base_ms must be > 0")
	}
	if out.Engine.RetryCapMs < out.Engine.RetryBaseMs {
		res.addErr("engine.retry_cap_ms must be >= retry_base_ms")
	}
	if out.Engine.EventReplayWindow < 256 {
		res.addWarn("engine.event_replay_window below the 256 minimum the spec guarantees")
	}
	if out.Engine.KillPollIntervalMs <= 0 || out.Engine.KillPollIntervalMs > 2000 {
		res.addErr("engine.kill_poll_interval_ms must be in (0, 2000]")
	}

	if out.Policy.MinMatchThreshold < 0 || out.Policy.MinMatchThreshold > 100 {
		res.addErr("policy.min_match_threshold must be 0..100")
	}
	if out.Policy.MaxApplicationsPerDay < 0 {
		res.addErr("policy.max_applications_per_day must be >= 0")
	}
	if out.Policy.RequireRemote && out.Policy.RequiredLocation != "" {
		res.addWarn("policy.require_remote and policy.required_location are both set; required_location is redundant for remote-only jobs")
	}

	return out, res
}

func trimList(xs []string) []string {
	seen := map[string]bool{}
	var ys []string
	for _, x := range xs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		key := strings.ToLower(x)
		if seen[key] {
			continue
		}
		seen[key] = true
		ys = append(ys, x)
	}
	return ys
}
