package notifier

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/l10nsync/internal/engine"
	"github.com/leapstack-labs/l10nsync/pkg/core"
)

func TestNotifier_Subscribe_Unsubscribe(t *testing.T) {
	n := New()

	ch := n.Subscribe()
	require.NotNil(t, ch)

	n.mu.RLock()
	assert.Len(t, n.listeners, 1)
	n.mu.RUnlock()

	n.Unsubscribe(ch)

	n.mu.RLock()
	assert.Len(t, n.listeners, 0)
	n.mu.RUnlock()
}

func TestNotifier_Publish(t *testing.T) {
	n := New()

	ch1 := n.Subscribe()
	ch2 := n.Subscribe()
	defer n.Unsubscribe(ch1)
	defer n.Unsubscribe(ch2)

	n.Publish(engine.Event{Caller: "ana", Outcome: core.Succeeded(core.ProjectPath("demo"), core.OpPush, "ok")})

	for _, ch := range []chan struct{}{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(100 * time.Millisecond):
			t.Fatal("listener did not receive ping")
		}

		events, dropped := n.Drain(ch)
		require.Len(t, events, 1)
		assert.Zero(t, dropped)
		assert.Equal(t, "ana", events[0].Caller)
		assert.Equal(t, "demo", events[0].Outcome.Node.String())
	}
}

func TestNotifier_KeepsEveryEventBetweenDrains(t *testing.T) {
	n := New()
	ch := n.Subscribe()
	defer n.Unsubscribe(ch)

	n.Publish(engine.Event{RunID: "1"})
	n.Publish(engine.Event{RunID: "2"})
	n.Publish(engine.Event{RunID: "3"})

	// Pings coalesce, events do not.
	<-ch
	select {
	case <-ch:
		t.Fatal("expected a single pending ping")
	default:
	}

	events, dropped := n.Drain(ch)
	assert.Zero(t, dropped)
	require.Len(t, events, 3)
	for i, want := range []string{"1", "2", "3"} {
		assert.Equal(t, want, events[i].RunID)
	}

	events, _ = n.Drain(ch)
	assert.Empty(t, events)
}

func TestNotifier_DropsOldestPastBound(t *testing.T) {
	n := New()
	ch := n.Subscribe()
	defer n.Unsubscribe(ch)

	for i := 0; i < MaxQueued+2; i++ {
		n.Publish(engine.Event{RunID: strconv.Itoa(i)})
	}

	events, dropped := n.Drain(ch)
	assert.Equal(t, 2, dropped)
	require.Len(t, events, MaxQueued)
	assert.Equal(t, "2", events[0].RunID)
	assert.Equal(t, strconv.Itoa(MaxQueued+1), events[MaxQueued-1].RunID)
}

func TestNotifier_DrainUnknownListener(t *testing.T) {
	n := New()
	events, dropped := n.Drain(make(chan struct{}))
	assert.Nil(t, events)
	assert.Zero(t, dropped)
}

func TestNotifier_Broadcast_NonBlocking(t *testing.T) {
	n := New()

	ch := n.Subscribe()
	defer n.Unsubscribe(ch)

	// Fill the channel buffer
	ch <- struct{}{}

	done := make(chan bool)
	go func() {
		n.Broadcast()
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Error("Broadcast blocked on full channel")
	}
}

func TestNotifier_Concurrent(t *testing.T) {
	n := New()

	var wg sync.WaitGroup
	const numGoroutines = 10

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch := n.Subscribe()
			n.Publish(engine.Event{Caller: "ana"})
			n.Unsubscribe(ch)
		}()
	}

	wg.Wait()

	n.mu.RLock()
	assert.Len(t, n.listeners, 0)
	n.mu.RUnlock()
}
