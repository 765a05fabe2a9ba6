// Package portal is the HTTP client for the upstream job portal: list
// postings, submit an application, read back a submission's status.
// Field names and status-code mapping are grounded on the sandbox
// reference portal's contract (ApplicationRequest/ApplicationResponse,
// 409 duplicate, 429 + Retry-After, 5xx under failure injection).
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"jobagent-engine/internal/domain"
	"jobagent-engine/internal/retry"
)

// SubmitRequest is the wire payload for a submit call, matching the
// sandbox's ApplicationRequest.
type SubmitRequest struct {
	JobID             string            `json:"job_id"`
	ApplicantName     string            `json:"applicant_name"`
	ApplicantEmail    string            `json:"applicant_email"`
	Resume            string            `json:"resume"`
	CoverLetter       string            `json:"cover_letter,omitempty"`
	Phone             string            `json:"phone,omitempty"`
	LinkedIn          string            `json:"linkedin,omitempty"`
	Portfolio         string            `json:"portfolio,omitempty"`
	GitHub            string            `json:"github,omitempty"`
	WorkAuthorization string            `json:"work_authorization,omitempty"`
	CustomAnswers     map[string]string `json:"custom_answers,omitempty"`
	// IdempotencyToken travels as a header, not a body field, so retries
	// of the same logical attempt are recognizable portal-side.
	IdempotencyToken string `json:"-"`
}

type submitResponse struct {
	Success        bool   `json:"success"`
	ConfirmationID string `json:"confirmation_id"`
	ApplicationID  string `json:"application_id"`
	Status         string `json:"status"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client talks to the portal over HTTP. Outbound pacing is independent
// of the Retry Executor's own backoff (grounded on the teacher's
// per-host HostLimiter, generalized to a single base-URL rate limiter
// since the portal is one host).
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
}

// NewClient constructs a Client with a default rate of 5 req/s, burst 5,
// matching the teacher's scrape limiter defaults.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Limiter:    rate.NewLimiter(rate.Limit(5), 5),
	}
}

// ListJobs fetches postings from the portal. filters is passed through
// as query parameters (e.g. "remote", "company").
func (c *Client) ListJobs(ctx context.Context, filters map[string]string) ([]domain.Posting, error) {
	if err := c.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	u, err := url.Parse(c.BaseURL + "/api/jobs")
	if err != nil {
		return nil, fmt.Errorf("parse portal url: %w", err)
	}
	q := u.Query()
	for k, v := range filters {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.authorize(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list jobs: unexpected status %d", resp.StatusCode)
	}
	var out struct {
		Jobs []domain.Posting `json:"jobs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	return out.Jobs, nil
}

// Submit performs one single-shot submit attempt, classified into the
// Retry Executor's Outcome taxonomy. It never retries itself — that is
// the Retry Executor's job.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (retry.Outcome, error) {
	if err := c.Limiter.Wait(ctx); err != nil {
		return retry.Outcome{}, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return retry.Outcome{}, fmt.Errorf("encode submit request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/applications", bytes.NewReader(body))
	if err != nil {
		return retry.Outcome{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyToken)
	c.authorize(httpReq)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return retry.Outcome{Kind: retry.Timeout, Message: err.Error()}, nil
		}
		return retry.Outcome{Kind: retry.TransientNetwork, Message: err.Error()}, nil
	}
	defer resp.Body.Close()

	rawBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return retry.Outcome{Kind: retry.Timeout, Message: readErr.Error()}, nil
	}

	return classify(resp.StatusCode, resp.Header, rawBody), nil
}

// GetApplication reconciles a submitted application's status by
// confirmation id. Used only for reconciliation, never the main path.
func (c *Client) GetApplication(ctx context.Context, confirmationID string) (domain.ApplicationRecord, error) {
	if err := c.Limiter.Wait(ctx); err != nil {
		return domain.ApplicationRecord{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/applications/"+url.PathEscape(confirmationID), nil)
	if err != nil {
		return domain.ApplicationRecord{}, fmt.Errorf("build request: %w", err)
	}
	c.authorize(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return domain.ApplicationRecord{}, fmt.Errorf("get application: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		JobID          string `json:"job_id"`
		JobTitle       string `json:"job_title"`
		Company        string `json:"company"`
		Status         string `json:"status"`
		ConfirmationID string `json:"confirmation_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.ApplicationRecord{}, fmt.Errorf("decode application: %w", err)
	}
	return domain.ApplicationRecord{
		JobID:          out.JobID,
		JobTitle:       out.JobTitle,
		Company:        out.Company,
		Status:         domain.ApplicationStatus(out.Status),
		ConfirmationID: out.ConfirmationID,
	}, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
}

// classify maps an HTTP response to an Outcome per §4.6's error table.
func classify(status int, header http.Header, body []byte) retry.Outcome {
	switch {
	case status >= 200 && status < 300:
		var ok submitResponse
		_ = json.Unmarshal(body, &ok)
		confID := ok.ConfirmationID
		if confID == "" {
			confID = ok.ApplicationID
		}
		return retry.Outcome{Kind: retry.Submitted, ConfirmationID: confID}
	case status == http.StatusConflict:
		var ok submitResponse
		_ = json.Unmarshal(body, &ok)
		confID := ok.ConfirmationID
		if confID == "" {
			confID = ok.ApplicationID
		}
		return retry.Outcome{Kind: retry.DuplicateAtPortal, ConfirmationID: confID}
	case status == http.StatusTooManyRequests:
		return retry.Outcome{Kind: retry.RateLimited, RetryAfterSecs: parseRetryAfter(header)}
	case status >= 500:
		return retry.Outcome{Kind: retry.Transient5xx, Message: errMessage(body)}
	case status >= 400:
		return retry.Outcome{Kind: retry.PermanentClient, Message: errMessage(body)}
	default:
		return retry.Outcome{Kind: retry.Transient5xx, Message: fmt.Sprintf("unexpected status %d", status)}
	}
}

func errMessage(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return string(body)
}

func parseRetryAfter(h http.Header) int {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return secs
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	if t, ok := err.(timeouter); ok {
		return t.Timeout()
	}
	return false
}
