// Package events implements the per-user ordered broadcast bus described
// in the workflow engine's design: bounded replay for late subscribers,
// strictly monotonic sequence numbers, and a bounded pending queue per
// subscriber so one slow SSE client cannot stall a Run's publisher.
package events

import (
	"sync"
	"time"

	"jobagent-engine/internal/domain"
)

const (
	// DefaultReplayWindow is the minimum number of recent events a new
	// subscriber is guaranteed to see, per spec.
	DefaultReplayWindow = 256
	// DefaultPendingLimit is the bounded per-subscriber queue depth
	// before a slow subscriber is dropped rather than blocking Publish.
	DefaultPendingLimit = 128
	// DefaultTerminalGrace is how long a user's stream stays open after
	// a terminal event so trailing subscribers can drain it.
	DefaultTerminalGrace = 5 * time.Second
)

func isTerminal(t domain.EventType) bool {
	return t == domain.EventWorkflowCompleted || t == domain.EventWorkflowFailed
}

type subscriber struct {
	ch chan domain.Event
}

// userStream holds the per-user ring buffer, sequence counter, and live
// subscriber set. Generalizes the teacher's single global Hub (which had
// no replay buffer and no per-user keying) into a keyed, replay-aware bus.
type userStream struct {
	mu       sync.Mutex
	seq      uint64
	ring     []domain.Event // bounded to replayWindow, oldest first
	window   int
	subs     map[*subscriber]struct{}
	terminal bool
	closeAt  *time.Timer
}

// Bus is the process-wide Event Bus, keyed by user id.
type Bus struct {
	mu            sync.Mutex
	users         map[string]*userStream
	replayWindow  int
	pendingLimit  int
	terminalGrace time.Duration
}

// NewBus constructs a Bus with the given replay window, per-subscriber
// pending-queue limit, and post-terminal grace period. Zero values fall
// back to the spec defaults.
func NewBus(replayWindow, pendingLimit int, terminalGrace time.Duration) *Bus {
	if replayWindow <= 0 {
		replayWindow = DefaultReplayWindow
	}
	if pendingLimit <= 0 {
		pendingLimit = DefaultPendingLimit
	}
	if terminalGrace <= 0 {
		terminalGrace = DefaultTerminalGrace
	}
	return &Bus{
		users:         make(map[string]*userStream),
		replayWindow:  replayWindow,
		pendingLimit:  pendingLimit,
		terminalGrace: terminalGrace,
	}
}

func (b *Bus) streamFor(userID string) *userStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	us, ok := b.users[userID]
	if !ok {
		us = &userStream{window: b.replayWindow, subs: make(map[*subscriber]struct{})}
		b.users[userID] = us
	}
	return us
}

// Publish assigns the next sequence number for userID, appends the event
// to the replay ring, and fans it out to live subscribers non-blocking.
// A workflow_started event cancels any pending post-terminal close so a
// fresh Run can reuse the stream; a terminal event schedules subscribers
// to be closed after the grace period.
func (b *Bus) Publish(userID string, evt domain.Event) domain.Event {
	us := b.streamFor(userID)
	us.mu.Lock()
	us.seq++
	evt.Seq = us.seq
	if evt.Ts.IsZero() {
		evt.Ts = time.Now().UTC()
	}
	us.ring = append(us.ring, evt)
	if len(us.ring) > us.window {
		us.ring = us.ring[len(us.ring)-us.window:]
	}
	if evt.Type == domain.EventWorkflowStarted {
		us.terminal = false
		if us.closeAt != nil {
			us.closeAt.Stop()
			us.closeAt = nil
		}
	}
	subs := make([]*subscriber, 0, len(us.subs))
	for s := range us.subs {
		subs = append(subs, s)
	}
	var scheduleClose bool
	if isTerminal(evt.Type) {
		us.terminal = true
		scheduleClose = true
	}
	us.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- evt:
		default:
			b.drop(us, s)
		}
	}

	if scheduleClose {
		us.mu.Lock()
		if us.closeAt != nil {
			us.closeAt.Stop()
		}
		us.closeAt = time.AfterFunc(b.terminalGrace, func() { b.closeAll(us) })
		us.mu.Unlock()
	}
	return evt
}

func (b *Bus) drop(us *userStream, s *subscriber) {
	us.mu.Lock()
	if _, ok := us.subs[s]; ok {
		delete(us.subs, s)
		close(s.ch)
	}
	us.mu.Unlock()
}

func (b *Bus) closeAll(us *userStream) {
	us.mu.Lock()
	defer us.mu.Unlock()
	for s := range us.subs {
		delete(us.subs, s)
		close(s.ch)
	}
}

// Subscribe returns a channel primed with the replay buffer (bounded by
// the configured window) followed by live events, and an unsubscribe
// function the caller must invoke when done reading. The channel is
// closed by the bus itself once the stream terminates and its grace
// period elapses, or if the subscriber falls behind the pending limit.
//
// The replay snapshot is drained into the channel, and the subscriber
// registered into us.subs for live delivery, in the same us.mu critical
// section Publish uses to append to the ring and snapshot live
// subscribers. That ordering is what keeps seq gap-free and increasing
// from a subscriber's point of view: Publish can never fan a newer event
// out to this channel until replay has been fully queued and the
// subscriber is visible in us.subs.
func (b *Bus) Subscribe(userID string) (<-chan domain.Event, func()) {
	us := b.streamFor(userID)

	us.mu.Lock()
	// The channel holds the whole replay snapshot plus pendingLimit live
	// events, so replay never counts against the live pending limit.
	s := &subscriber{ch: make(chan domain.Event, len(us.ring)+b.pendingLimit)}
	for _, e := range us.ring {
		s.ch <- e
	}
	alreadyTerminal := us.terminal
	stillOpen := us.closeAt != nil
	us.subs[s] = struct{}{}
	us.mu.Unlock()

	if alreadyTerminal && !stillOpen {
		b.drop(us, s)
	}

	unsubscribe := func() { b.drop(us, s) }
	return s.ch, unsubscribe
}
