// Package notifier provides a simple broadcast mechanism for SSE updates.
package notifier

import (
	"sync"

	"github.com/leapstack-labs/l10nsync/internal/engine"
)

// MaxQueued bounds the events held for one listener between drains. Past it
// the oldest events are dropped and counted.
const MaxQueued = 256

type listener struct {
	events  []engine.Event
	dropped int
}

// Notifier broadcasts published events to all subscribed listeners.
// Every listener has its own queue: a ping means Drain has events waiting,
// and several publishes between two drains are all delivered in order.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[chan struct{}]*listener
}

// New creates a new Notifier instance.
func New() *Notifier {
	return &Notifier{
		listeners: make(map[chan struct{}]*listener),
	}
}

// Subscribe returns a channel that receives pings when updates are available.
// The caller must call Unsubscribe when done to prevent goroutine leaks.
func (n *Notifier) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.listeners[ch] = &listener{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (n *Notifier) Unsubscribe(ch chan struct{}) {
	n.mu.Lock()
	delete(n.listeners, ch)
	n.mu.Unlock()
	close(ch)
}

// Publish implements engine.Publisher: it queues e for every listener and
// pings them.
func (n *Notifier) Publish(e engine.Event) {
	n.mu.Lock()
	for _, l := range n.listeners {
		if len(l.events) == MaxQueued {
			l.events = l.events[1:]
			l.dropped++
		}
		l.events = append(l.events, e)
	}
	n.mu.Unlock()
	n.Broadcast()
}

// Drain returns the events queued for ch in publish order and empties the
// queue. dropped counts events lost to the MaxQueued bound since the last
// drain.
func (n *Notifier) Drain(ch chan struct{}) (events []engine.Event, dropped int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	l, ok := n.listeners[ch]
	if !ok {
		return nil, 0
	}
	events, dropped = l.events, l.dropped
	l.events, l.dropped = nil, 0
	return events, dropped
}

// Broadcast sends a ping to all listeners.
// Non-blocking: if a listener's channel is full, the ping is skipped.
func (n *Notifier) Broadcast() {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.listeners {
		select {
		case ch <- struct{}{}:
		default:
			// Listener already has a pending ping.
		}
	}
}
