// Package broadcast fans timer changes out to every view of the same timer,
// in this process or across instances. Delivery is at most once and
// unordered; subscribers keep the newest version they have seen.
package broadcast

import (
	"context"
	"sync"
	"time"

	"timeronline/backend/internal/model"
)

type EventType string

const (
	EventCreated  EventType = "created"
	EventUpdated  EventType = "updated"
	EventFinished EventType = "finished"
	EventDeleted  EventType = "deleted"
)

// AllTimers subscribes to every timer.
const AllTimers = "*"

type Event struct {
	ID      string            `json:"id"`
	Type    EventType         `json:"type"`
	TimerID string            `json:"timerId"`
	OwnerID string            `json:"ownerId"`
	Version int               `json:"version"`
	Token   string            `json:"token,omitempty"`
	State   *model.TimerState `json:"state,omitempty"`
	At      time.Time         `json:"at"`
}

type Handler func(Event)

type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(timerID string, handler Handler) (cancel func(), err error)
	Close() error
}

// Gate holds events until Open is called with the version a subscriber has
// already shown. Held and later events are then delivered only when newer.
// The handler runs under the gate's lock and must not block.
type Gate struct {
	mu      sync.Mutex
	handler Handler
	open    bool
	pending []Event
	seen    versions
}

func NewGate(handler Handler) *Gate {
	return &Gate{handler: handler, seen: make(versions)}
}

// Handle is the bus handler.
func (g *Gate) Handle(event Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		g.pending = append(g.pending, event)
		return
	}
	if g.seen.admit(event) {
		g.handler(event)
	}
}

// Open records version as seen for timerID and releases the held events.
func (g *Gate) Open(timerID string, version int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		return
	}
	g.open = true
	if last, ok := g.seen[timerID]; !ok || version > last {
		g.seen[timerID] = version
	}
	for _, event := range g.pending {
		if g.seen.admit(event) {
			g.handler(event)
		}
	}
	g.pending = nil
}

// versions tracks the newest version seen per timer.
type versions map[string]int

func (v versions) admit(event Event) bool {
	last, ok := v[event.TimerID]
	if ok && event.Type != EventDeleted && event.Version <= last {
		return false
	}
	v[event.TimerID] = event.Version
	return true
}
