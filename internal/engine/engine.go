// Package engine is the Workflow Engine: the state machine that owns one
// Run per user, drives the ranked apply queue through the stage
// pipeline, and publishes Events. Parallel job fan-out follows the
// teacher's errgroup pattern in poll/poll_once.go, generalized to a
// bounded worker count with a serialized event/tracker writer so
// sequence numbers and per-(user,job) writes stay ordered.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"jobagent-engine/internal/domain"
	"jobagent-engine/internal/events"
	"jobagent-engine/internal/personalize"
	"jobagent-engine/internal/rank"
	"jobagent-engine/internal/retry"
	"jobagent-engine/internal/tracker"
)

// PortalAdapter is the subset of the portal client the engine drives
// directly (kept as an interface so engine tests can fake it).
type PortalAdapter interface {
	ListJobs(ctx context.Context, filters map[string]string) ([]domain.Posting, error)
	Submit(ctx context.Context, req SubmitRequest) (retry.Outcome, error)
}

// SubmitRequest is the engine's view of a submit call; cmd/engine's
// adapter converts it to the portal package's wire SubmitRequest.
type SubmitRequest struct {
	JobID            string
	ApplicantName    string
	ApplicantEmail   string
	Resume           string
	CoverLetter      string
	IdempotencyToken string
}

// Embedder computes a semantic similarity score in [0,1] between a
// profile summary and a job description. The external collaborator
// named in spec.md §1; the engine depends only on this narrow function
// shape.
type Embedder interface {
	Similarity(ctx context.Context, profileSummary, jobDescription string) (float64, error)
}

// runState guards one Run's snapshot; every read and write of run goes
// through mu.
type runState struct {
	mu  sync.Mutex
	run domain.Run
}

// Engine owns the per-user Run registry and drives each Run's stage
// pipeline.
type Engine struct {
	mu   sync.Mutex
	runs map[string]*managedRun

	portal        PortalAdapter
	personalizer  personalize.Personalizer
	tracker       *tracker.Tracker
	bus           *events.Bus
	embedder      Embedder
	retryCfg      retry.Config
	maxParallel   int
	killPollEvery time.Duration
}

type managedRun struct {
	state   *runState
	cancel  context.CancelFunc
	profile domain.Profile
	policy  domain.Policy
}

// Config bundles the engine's collaborators and tunables.
type Config struct {
	Portal        PortalAdapter
	Personalizer  personalize.Personalizer
	Tracker       *tracker.Tracker
	Bus           *events.Bus
	Embedder      Embedder
	RetryCfg      retry.Config
	MaxParallel   int
	KillPollEvery time.Duration
}

func New(cfg Config) *Engine {
	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 1
	}
	killPoll := cfg.KillPollEvery
	if killPoll <= 0 {
		killPoll = 2 * time.Second
	}
	return &Engine{
		runs:          make(map[string]*managedRun),
		portal:        cfg.Portal,
		personalizer:  cfg.Personalizer,
		tracker:       cfg.Tracker,
		bus:           cfg.Bus,
		embedder:      cfg.Embedder,
		retryCfg:      cfg.RetryCfg,
		maxParallel:   maxParallel,
		killPollEvery: killPoll,
	}
}

// StartResult is the outcome of a Start call.
type StartResult string

const (
	StartAccepted       StartResult = "accepted"
	StartAlreadyRunning StartResult = "already_running"
)

// Start begins a new Run for user if none is already running. Work
// proceeds on a background goroutine; Start itself returns immediately.
func (e *Engine) Start(userID string, profile domain.Profile, pol domain.Policy) StartResult {
	e.mu.Lock()
	if mr, ok := e.runs[userID]; ok && mr.state.snapshot().Status == domain.RunRunning {
		e.mu.Unlock()
		return StartAlreadyRunning
	}

	profile.Normalize()
	ctx, cancel := context.WithCancel(context.Background())
	mr := &managedRun{
		state: &runState{run: domain.Run{
			RunID:     uuid.NewString(),
			UserID:    userID,
			Status:    domain.RunRunning,
			StartedAt: time.Now().UTC(),
		}},
		cancel:  cancel,
		profile: profile,
		policy:  pol,
	}
	e.runs[userID] = mr
	e.mu.Unlock()

	e.publish(userID, domain.Event{Type: domain.EventWorkflowStarted, StageMessage: "workflow started"})

	go e.runWorkflow(ctx, userID, mr)

	return StartAccepted
}

// StopResult is the outcome of a Stop call.
type StopResult string

const (
	StopStopped  StopResult = "stopped"
	StopNotFound StopResult = "not_found"
)

// Stop sets kill_requested on user's Run. Level-triggered: returns
// immediately without waiting for the Run to observe the flag.
func (e *Engine) Stop(userID string) StopResult {
	e.mu.Lock()
	mr, ok := e.runs[userID]
	e.mu.Unlock()
	if !ok {
		return StopNotFound
	}
	mr.state.mu.Lock()
	if mr.state.run.Status != domain.RunRunning {
		mr.state.mu.Unlock()
		return StopNotFound
	}
	mr.state.run.KillRequested = true
	mr.state.mu.Unlock()
	return StopStopped
}

// Status returns a cheap, non-blocking snapshot of user's Run.
func (e *Engine) Status(userID string) (domain.Run, bool) {
	e.mu.Lock()
	mr, ok := e.runs[userID]
	e.mu.Unlock()
	if !ok {
		return domain.Run{}, false
	}
	return mr.state.snapshot(), true
}

// Subscribe delivers userID's event stream: a replay of recent history
// followed by live events, via the Event Bus.
func (e *Engine) Subscribe(userID string) (<-chan domain.Event, func()) {
	return e.bus.Subscribe(userID)
}

func (rs *runState) snapshot() domain.Run {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.run.Snapshot()
}

func (rs *runState) killRequested() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.run.KillRequested
}

func (rs *runState) mutate(f func(*domain.Run)) {
	rs.mu.Lock()
	f(&rs.run)
	rs.mu.Unlock()
}

func (e *Engine) publish(userID string, evt domain.Event) domain.Event {
	return e.bus.Publish(userID, evt)
}

// runWorkflow is the top-level loop for one Run: fetch, rank, then drive
// the stage pipeline job by job (or up to maxParallel in parallel),
// finalize, and clean up.
func (e *Engine) runWorkflow(ctx context.Context, userID string, mr *managedRun) {
	jobs, err := e.portal.ListJobs(ctx, nil)
	if err != nil {
		e.finalizeFailed(userID, mr, fmt.Sprintf("list jobs: %v", err))
		return
	}

	semanticScores := e.semanticScores(ctx, mr.profile, jobs)
	matches := rank.Rank(mr.profile, jobs, mr.policy, semanticScores)
	jobByID := make(map[string]domain.Posting, len(jobs))
	for _, j := range jobs {
		jobByID[j.ID] = j
	}

	mr.state.mutate(func(r *domain.Run) { r.Total = len(matches) })
	e.publish(userID, domain.Event{Type: domain.EventJobsFetched, TotalJobs: len(matches)})

	if err := e.processQueue(ctx, userID, mr, matches, jobByID); err != nil {
		e.finalizeFailed(userID, mr, err.Error())
		return
	}

	snap := mr.state.snapshot()
	switch {
	case snap.KillRequested:
		e.finalizeStopped(userID, mr)
	default:
		e.finalizeCompleted(userID, mr)
	}
}

// processQueue drives matches through the stage pipeline with up to
// maxParallel concurrent jobs. Jobs are dispatched strictly in Ranker
// order; the event publisher and Tracker writer are the Engine itself
// (bus.Publish is already serialized per user), so sequence numbers
// stay monotonic regardless of how many workers run concurrently.
func (e *Engine) processQueue(ctx context.Context, userID string, mr *managedRun, matches []domain.Match, jobByID map[string]domain.Posting) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxParallel)

	for i, m := range matches {
		i, m := i, m
		if mr.state.killRequested() {
			break
		}
		job, ok := jobByID[m.JobID]
		if !ok {
			continue
		}
		g.Go(func() error {
			e.processOne(gctx, userID, mr, job, m, i+1, len(matches))
			return nil
		})
	}
	return g.Wait()
}

// finalizeFailed, finalizeStopped, finalizeCompleted record terminal Run
// state and emit the matching terminal Event.
func (e *Engine) finalizeFailed(userID string, mr *managedRun, reason string) {
	mr.state.mutate(func(r *domain.Run) {
		r.Status = domain.RunFailed
		r.Errors = append(r.Errors, reason)
	})
	mr.cancel()
	e.publish(userID, domain.Event{Type: domain.EventWorkflowFailed, StageMessage: reason})
	log.Printf("level=error msg=\"run failed\" user_id=%s reason=%q", userID, reason)
}

func (e *Engine) finalizeStopped(userID string, mr *managedRun) {
	mr.state.mutate(func(r *domain.Run) { r.Status = domain.RunStopped })
	mr.cancel()
	snap := mr.state.snapshot()
	e.publish(userID, domain.Event{
		Type:         domain.EventWorkflowCompleted,
		StageMessage: fmt.Sprintf("stopped: submitted=%d failed=%d skipped=%d", snap.SubmittedCount, snap.FailedCount, snap.SkippedCount),
	})
	log.Printf("level=info msg=\"run stopped\" user_id=%s submitted=%d", userID, snap.SubmittedCount)
}

func (e *Engine) finalizeCompleted(userID string, mr *managedRun) {
	mr.state.mutate(func(r *domain.Run) { r.Status = domain.RunCompleted })
	mr.cancel()
	snap := mr.state.snapshot()
	e.publish(userID, domain.Event{
		Type:         domain.EventWorkflowCompleted,
		StageMessage: fmt.Sprintf("completed: submitted=%d failed=%d skipped=%d", snap.SubmittedCount, snap.FailedCount, snap.SkippedCount),
	})
	log.Printf("level=info msg=\"run completed\" user_id=%s submitted=%d failed=%d skipped=%d", userID, snap.SubmittedCount, snap.FailedCount, snap.SkippedCount)
}

// semanticScores calls the Embedder once per job; a failure degrades to
// 0 similarity for that job rather than failing the Run, since semantic
// score is only one of two ranking inputs.
func (e *Engine) semanticScores(ctx context.Context, profile domain.Profile, jobs []domain.Posting) map[string]float64 {
	out := make(map[string]float64, len(jobs))
	if e.embedder == nil {
		return out
	}
	for _, j := range jobs {
		score, err := e.embedder.Similarity(ctx, profile.Summary, j.Description)
		if err != nil {
			log.Printf("level=error msg=\"embedding failed\" job_id=%s err=%v", j.ID, err)
			continue
		}
		out[j.ID] = score
	}
	return out
}
