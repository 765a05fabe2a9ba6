package domain

// EvidenceMapEntry is one requirement's claimed grounding, as returned by
// the Personalizer and then verified in place by the Evidence Grounder.
type EvidenceMapEntry struct {
	Requirement     string `json:"requirement"`
	EvidenceIDClaim string `json:"evidence_id_claim"`
	Rationale       string `json:"rationale,omitempty"`
	Grounded        bool   `json:"grounded"`
}

// Personalization is the Personalizer's output for one (profile, job) pair,
// enriched in place by the Evidence Grounder.
type Personalization struct {
	JobID       string             `json:"job_id"`
	CoverLetter string             `json:"cover_letter"`
	EvidenceMap []EvidenceMapEntry `json:"evidence_map"`
}

// GroundedCount returns (grounded, total) over EvidenceMap.
func (p Personalization) GroundedCount() (grounded, total int) {
	total = len(p.EvidenceMap)
	for _, e := range p.EvidenceMap {
		if e.Grounded {
			grounded++
		}
	}
	return grounded, total
}

// AllGrounded reports whether every evidence map entry is grounded. An
// empty evidence map counts as grounded (nothing left unverified).
func (p Personalization) AllGrounded() bool {
	for _, e := range p.EvidenceMap {
		if !e.Grounded {
			return false
		}
	}
	return true
}

// UngroundedRequirements lists the requirement strings that failed to
// ground, for the policy_violation/ungrounded_claim skip reason.
func (p Personalization) UngroundedRequirements() []string {
	var out []string
	for _, e := range p.EvidenceMap {
		if !e.Grounded {
			out = append(out, e.Requirement)
		}
	}
	return out
}
