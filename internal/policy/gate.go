// Package policy implements the pre-personalize and post-ground gates
// that decide whether a job is allowed, skipped, or stops the Run.
// Mirrors the teacher's filter.go shape (ShouldKeepJob returning
// (keep bool, reason string)) generalized to the three-way
// allow/skip/stop contract the engine needs.
package policy

import (
	"strings"

	"jobagent-engine/internal/domain"
)

// Decision is the outcome of a gate call.
type Decision struct {
	Allow bool
	Skip  bool
	Stop  bool
	// Reason is a short machine code (e.g. "blocked_company",
	// "below_threshold", "ungrounded_claim") used as the Event/Tracker
	// error field and the policy_violation error kind.
	Reason string
}

func allow() Decision             { return Decision{Allow: true} }
func skip(reason string) Decision { return Decision{Skip: true, Reason: reason} }
func stop(reason string) Decision { return Decision{Stop: true, Reason: reason} }

// PrePersonalize runs the cheap pre-personalize checks from the policy
// gate contract. killRequested is passed in rather than read from the
// Run directly so the gate stays a pure function of its inputs.
// submittedPlusInFlight is submitted_count + in-flight attempts for the
// day, checked against the daily cap.
func PrePersonalize(job domain.Posting, match domain.Match, pol domain.Policy, killRequested bool, submittedPlusInFlight int) Decision {
	if killRequested {
		return stop("kill_requested")
	}
	if !pol.Enabled {
		return skip("policy_disabled")
	}
	if _, blocked := pol.BlockedCompanySet()[strings.ToLower(job.Company)]; blocked {
		return skip("blocked_company")
	}
	if containsBlockedRole(job.Title, pol.BlockedRoleTokens()) {
		return skip("blocked_role_type")
	}
	if pol.RequireRemote && !job.Remote {
		return skip("not_remote")
	}
	if pol.RequiredLocation != "" && !strings.Contains(strings.ToLower(job.Location), strings.ToLower(pol.RequiredLocation)) {
		return skip("location_mismatch")
	}
	if match.Score < pol.MinMatchThreshold {
		return skip("below_threshold")
	}
	if pol.MaxApplicationsPerDay > 0 && submittedPlusInFlight >= pol.MaxApplicationsPerDay {
		return stop("daily_cap_reached")
	}
	return allow()
}

// PostGround runs the post-ground safety gate: any ungrounded evidence
// map entry is a hard stop on submission for this job. This is the
// safety invariant that must never be bypassed.
func PostGround(p domain.Personalization) Decision {
	if !p.AllGrounded() {
		return skip("ungrounded_claim")
	}
	return allow()
}

// containsBlockedRole reports whether title contains any blocked token
// as a case-insensitive whole word.
func containsBlockedRole(title string, blockedTokens []string) bool {
	if len(blockedTokens) == 0 {
		return false
	}
	words := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	for _, tok := range blockedTokens {
		if _, ok := set[tok]; ok {
			return true
		}
	}
	return false
}
