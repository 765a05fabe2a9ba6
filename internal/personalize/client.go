package personalize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"jobagent-engine/internal/domain"
)

// HTTPPersonalizer consumes the external personalization text-generator
// (LLM prompting + embedding, per spec.md §1) over HTTP: the engine
// never depends on langchain/LLM SDKs, only this narrow request/response
// contract, matching how the Portal Adapter consumes the job portal.
type HTTPPersonalizer struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewHTTPPersonalizer(baseURL string) *HTTPPersonalizer {
	return &HTTPPersonalizer{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type personalizeRequest struct {
	Profile domain.Profile `json:"profile"`
	Job     domain.Posting `json:"job"`
}

type personalizeResponse struct {
	CoverLetter string `json:"cover_letter"`
	EvidenceMap []struct {
		Requirement     string `json:"requirement"`
		EvidenceIDClaim string `json:"evidence_id_claim"`
		Rationale       string `json:"rationale"`
	} `json:"evidence_map"`
}

// Personalize satisfies Personalizer by POSTing to BaseURL + /personalize.
// The engine treats Rationale as opaque and only validates
// EvidenceIDClaim, via Ground.
func (c *HTTPPersonalizer) Personalize(ctx context.Context, profile domain.Profile, job domain.Posting) (domain.Personalization, error) {
	body, err := json.Marshal(personalizeRequest{Profile: profile, Job: job})
	if err != nil {
		return domain.Personalization{}, fmt.Errorf("encode personalize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/personalize", bytes.NewReader(body))
	if err != nil {
		return domain.Personalization{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return domain.Personalization{}, fmt.Errorf("personalize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Personalization{}, fmt.Errorf("personalize: unexpected status %d", resp.StatusCode)
	}

	var out personalizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Personalization{}, fmt.Errorf("decode personalize response: %w", err)
	}

	p := domain.Personalization{JobID: job.ID, CoverLetter: out.CoverLetter}
	for _, e := range out.EvidenceMap {
		p.EvidenceMap = append(p.EvidenceMap, domain.EvidenceMapEntry{
			Requirement:     e.Requirement,
			EvidenceIDClaim: e.EvidenceIDClaim,
			Rationale:       e.Rationale,
		})
	}
	return p, nil
}
