// Package fsmbus implements the synchronous Event Bus Adapter (§4.2 system
// overview, §6.4): four stable event payloads, published in-process and
// fanned out to subscribers before Perform returns. Grounded on the
// teacher's internal/websocket.Hub register/unregister/broadcast shape,
// generalized here to a plain synchronous pub/sub with no network hop —
// the network fan-out for dashboard clients lives in live.go.
package fsmbus

import "sync"

// EventName identifies one of the four stable event kinds of §6.4.
type EventName string

const (
	TransitionAttempted EventName = "TransitionAttempted"
	TransitionSucceeded EventName = "TransitionSucceeded"
	TransitionFailed    EventName = "TransitionFailed"
	StateTransitioned   EventName = "StateTransitioned"
)

// Event is the common envelope for all four event kinds; Exception and
// TransitionName/Timestamp/Metadata are populated only where the payload
// shape in §6.4 calls for them.
type Event struct {
	Name           EventName
	Model          any
	ColumnName     string
	FromState      *string
	ToState        string
	Context        map[string]any
	Exception      error
	TransitionName string
	TimestampUnixNano int64
	Metadata       map[string]any
}

// Handler receives published events. Handlers run synchronously on the
// publishing goroutine, in subscription order, matching Perform's
// requirement that event publication happens within the transition's own
// synchronous flow (§5).
type Handler func(Event)

// Bus is a process-scoped, concurrency-safe synchronous publisher.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventName][]Handler
}

func New() *Bus {
	return &Bus{handlers: make(map[EventName][]Handler)}
}

// Subscribe registers a handler for one event kind. Returns an unsubscribe
// function.
func (b *Bus) Subscribe(name EventName, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
	idx := len(b.handlers[name]) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		hs := b.handlers[name]
		if idx < len(hs) {
			hs[idx] = nil
		}
	}
}

// Publish synchronously invokes every subscriber for ev.Name, in
// subscription order.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[ev.Name]...)
	b.mu.RUnlock()

	for _, h := range hs {
		if h != nil {
			h(ev)
		}
	}
}
