package broadcast

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("bus closed")

var _ Bus = (*MemoryBus)(nil)

// MemoryBus delivers events to subscribers in the same process. Handlers
// run on the publishing goroutine and must not block.
type MemoryBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[int]Handler)}
}

func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	handlers := make([]Handler, 0, len(b.subs[event.TimerID])+len(b.subs[AllTimers]))
	for _, h := range b.subs[event.TimerID] {
		handlers = append(handlers, h)
	}
	for _, h := range b.subs[AllTimers] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

func (b *MemoryBus) Subscribe(timerID string, handler Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	id := b.nextID
	b.nextID++
	if b.subs[timerID] == nil {
		b.subs[timerID] = make(map[int]Handler)
	}
	b.subs[timerID][id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[timerID], id)
			if len(b.subs[timerID]) == 0 {
				delete(b.subs, timerID)
			}
		})
	}, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string]map[int]Handler)
	return nil
}
