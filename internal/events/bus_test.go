package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobagent-engine/internal/domain"
)

func TestBus_SequenceNumbersMonotonicPerUser(t *testing.T) {
	bus := NewBus(256, 128, 5*time.Second)

	e1 := bus.Publish("u1", domain.Event{Type: domain.EventWorkflowStarted})
	e2 := bus.Publish("u1", domain.Event{Type: domain.EventJobsFetched})
	e3 := bus.Publish("u2", domain.Event{Type: domain.EventWorkflowStarted})

	assert.Equal(t, uint64(1), e1.Seq)
	assert.Equal(t, uint64(2), e2.Seq)
	assert.Equal(t, uint64(1), e3.Seq, "a different user starts its own sequence")
}

func TestBus_SubscribeReplaysThenDeliversLive(t *testing.T) {
	bus := NewBus(256, 128, 5*time.Second)

	bus.Publish("u1", domain.Event{Type: domain.EventWorkflowStarted})
	bus.Publish("u1", domain.Event{Type: domain.EventJobsFetched, TotalJobs: 2})

	ch, unsubscribe := bus.Subscribe("u1")
	defer unsubscribe()

	first := recv(t, ch)
	second := recv(t, ch)
	assert.Equal(t, domain.EventWorkflowStarted, first.Type)
	assert.Equal(t, domain.EventJobsFetched, second.Type)

	bus.Publish("u1", domain.Event{Type: domain.EventWorkflowCompleted})
	third := recv(t, ch)
	assert.Equal(t, domain.EventWorkflowCompleted, third.Type)
}

func TestBus_ClosesSubscriberAfterTerminalGrace(t *testing.T) {
	bus := NewBus(256, 128, 20*time.Millisecond)

	ch, unsubscribe := bus.Subscribe("u1")
	defer unsubscribe()

	bus.Publish("u1", domain.Event{Type: domain.EventWorkflowCompleted})
	recv(t, ch) // the terminal event itself

	select {
	case _, open := <-ch:
		assert.False(t, open, "channel should be closed after the grace period")
	case <-time.After(500 * time.Millisecond):
		t.Fatal("channel was not closed within the grace period")
	}
}

func TestBus_DropsSubscriberPastPendingLimit(t *testing.T) {
	bus := NewBus(256, 2, 5*time.Second)

	ch, unsubscribe := bus.Subscribe("u1")
	defer unsubscribe()

	// Fill the pending queue past its limit without anyone draining it.
	for i := 0; i < 10; i++ {
		bus.Publish("u1", domain.Event{Type: domain.EventStageUpdate})
	}

	_, open := <-ch
	for open {
		_, open = <-ch
	}
	// Channel eventually closes once the publisher observes a full queue.
}

func recv(t *testing.T, ch <-chan domain.Event) domain.Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "channel closed unexpectedly")
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return domain.Event{}
	}
}
