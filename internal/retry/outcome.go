package retry

// OutcomeKind discriminates the Portal Adapter's single-shot submit
// result into the taxonomy the Retry Executor acts on.
type OutcomeKind int

const (
	Submitted OutcomeKind = iota
	DuplicateAtPortal
	TransientNetwork
	Transient5xx
	RateLimited
	PermanentClient
	Timeout
)

func (k OutcomeKind) retryable() bool {
	switch k {
	case TransientNetwork, Transient5xx, RateLimited:
		return true
	default:
		return false
	}
}

// Outcome is the result of one Portal Adapter submit attempt.
type Outcome struct {
	Kind           OutcomeKind
	ConfirmationID string // set on Submitted, and on DuplicateAtPortal when the portal returns one
	RetryAfterSecs int    // set on RateLimited when the portal sent Retry-After
	Message        string // set on PermanentClient (4xx body) and transient errors (for logging)
	Attempts       int    // set by Execute to the 1-based number of submit attempts made
}
