// Package personalize defines the Personalizer external-collaborator
// interface and the in-engine Evidence Grounder that verifies its output
// against the candidate's real profile content before anything is
// allowed near a submission.
package personalize

import (
	"context"

	"jobagent-engine/internal/domain"
)

// Personalizer is the external text-generation collaborator: given a
// profile and a job, it returns a cover letter and a claimed evidence
// map. The engine never interprets Rationale; it only validates
// EvidenceIDClaim via Ground.
type Personalizer interface {
	Personalize(ctx context.Context, profile domain.Profile, job domain.Posting) (domain.Personalization, error)
}

// Ground verifies each evidence_map entry against the profile's bullet
// and proof set, mutating p.EvidenceMap in place and returning it.
//
// Lookup is strict id membership against the profile's bullet/proof set:
// an entry is grounded only if EvidenceIDClaim is present and names a real
// id. This is the hard safety invariant — no claim may be marked grounded
// without tracing to a real profile id, so an absent or unmatched claim
// always stays grounded=false regardless of any textual resemblance.
func Ground(profile domain.Profile, p domain.Personalization) domain.Personalization {
	for i := range p.EvidenceMap {
		entry := &p.EvidenceMap[i]
		entry.Grounded = groundEntry(profile, *entry)
	}
	return p
}

func groundEntry(profile domain.Profile, entry domain.EvidenceMapEntry) bool {
	if entry.EvidenceIDClaim == "" {
		return false
	}
	_, ok := profile.Evidence[entry.EvidenceIDClaim]
	return ok
}
