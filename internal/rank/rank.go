// Package rank scores and orders candidate postings for a Run's apply
// queue. The scoring shape follows the teacher's YAMLScorer (rule/keyword
// substring matching against job text), generalized to the two-weight
// semantic + requirement-coverage formula and the hard company/remote
// filters the policy snapshot carries.
package rank

import (
	"sort"
	"strings"

	"jobagent-engine/internal/domain"
)

const (
	semanticWeight = 0.7
	coverageWeight = 0.3
	maxReasons     = 3
)

// Rank orders jobs passing the hard filters (blocked company, require
// remote) by descending score, tie-broken lexicographically by job id.
// min_match_threshold is deliberately not applied here — that is the
// Policy Gate's job, so the event stream can still show low-score skips.
//
// semanticScores supplies a precomputed cosine-similarity-derived score
// in [0,1] per job id, sourced from the external embedding collaborator;
// a missing entry is treated as 0.
func Rank(profile domain.Profile, jobs []domain.Posting, policy domain.Policy, semanticScores map[string]float64) []domain.Match {
	blocked := policy.BlockedCompanySet()
	skillText := strings.ToLower(strings.Join(profile.AllSkillText(), " "))

	matches := make([]domain.Match, 0, len(jobs))
	for _, job := range jobs {
		if _, isBlocked := blocked[strings.ToLower(job.Company)]; isBlocked {
			continue
		}
		if policy.RequireRemote && !job.Remote {
			continue
		}

		semantic := semanticScores[job.ID]
		coverage, matchedReqs := requirementCoverage(job.Requirements, skillText)
		score := semanticWeight*semantic*100 + coverageWeight*coverage*100

		matches = append(matches, domain.Match{
			JobID:   job.ID,
			Score:   int(score + 0.5),
			Reasons: reasonsFor(job, matchedReqs),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].JobID < matches[j].JobID
	})
	return matches
}

// requirementCoverage returns the fraction of requirements whose token
// set overlaps (>=1 significant token) with skillText, and the subset of
// requirement strings that matched.
func requirementCoverage(requirements []string, skillText string) (float64, []string) {
	if len(requirements) == 0 {
		return 0, nil
	}
	var matched []string
	for _, req := range requirements {
		if TokenOverlapScore(req, skillText) {
			matched = append(matched, req)
		}
	}
	return float64(len(matched)) / float64(len(requirements)), matched
}

// TokenOverlapScore reports whether any significant (len >= 2) token of
// req appears in skillText. Pure Go, no deps — grounded on the teacher's
// YAMLScorer substring matching over lower-cased text.
func TokenOverlapScore(req, skillText string) bool {
	for _, tok := range strings.Fields(strings.ToLower(req)) {
		tok = strings.Trim(tok, ",.()")
		if len(tok) < 2 {
			continue
		}
		if strings.Contains(skillText, tok) {
			return true
		}
	}
	return false
}

func reasonsFor(job domain.Posting, matchedReqs []string) []string {
	reasons := make([]string, 0, maxReasons)
	if len(matchedReqs) > 0 {
		n := matchedReqs
		if len(n) > 2 {
			n = n[:2]
		}
		reasons = append(reasons, "Skills match: "+strings.Join(n, ", "))
	}
	if job.Remote {
		reasons = append(reasons, "Remote position matches preference")
	}
	if len(reasons) < maxReasons && len(matchedReqs) > 0 && len(matchedReqs) == len(job.Requirements) {
		reasons = append(reasons, "All stated requirements covered")
	}
	if len(reasons) > maxReasons {
		reasons = reasons[:maxReasons]
	}
	return reasons
}
