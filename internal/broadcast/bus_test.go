package broadcast

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryBusDeliversToTimerAndWildcardSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	var timerEvents, allEvents []Event
	cancelTimer, err := bus.Subscribe("abc123", func(e Event) { timerEvents = append(timerEvents, e) })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := bus.Subscribe(AllTimers, func(e Event) { allEvents = append(allEvents, e) }); err != nil {
		t.Fatalf("subscribe all: %v", err)
	}

	ctx := context.Background()
	_ = bus.Publish(ctx, Event{Type: EventUpdated, TimerID: "abc123", Version: 2})
	_ = bus.Publish(ctx, Event{Type: EventUpdated, TimerID: "zzz999", Version: 1})

	if len(timerEvents) != 1 || timerEvents[0].Version != 2 {
		t.Fatalf("unexpected timer events %+v", timerEvents)
	}
	if len(allEvents) != 2 {
		t.Fatalf("expected wildcard to see both events, got %d", len(allEvents))
	}

	cancelTimer()
	cancelTimer()
	_ = bus.Publish(ctx, Event{Type: EventUpdated, TimerID: "abc123", Version: 3})
	if len(timerEvents) != 1 {
		t.Fatal("cancelled subscriber must not receive events")
	}
}

func TestMemoryBusClosed(t *testing.T) {
	bus := NewMemoryBus()
	_ = bus.Close()
	if err := bus.Publish(context.Background(), Event{TimerID: "x"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := bus.Subscribe("x", func(Event) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestGateHoldsEventsUntilOpen(t *testing.T) {
	var got []int
	gate := NewGate(func(e Event) { got = append(got, e.Version) })

	gate.Handle(Event{TimerID: "a", Type: EventUpdated, Version: 4})
	gate.Handle(Event{TimerID: "a", Type: EventUpdated, Version: 6})
	gate.Handle(Event{TimerID: "a", Type: EventUpdated, Version: 5})
	if len(got) != 0 {
		t.Fatalf("delivered before open: %v", got)
	}

	gate.Handle(Event{TimerID: "b", Type: EventUpdated, Version: 1})
	gate.Open("a", 5)
	gate.Handle(Event{TimerID: "a", Type: EventUpdated, Version: 3})
	gate.Handle(Event{TimerID: "a", Type: EventUpdated, Version: 7})
	gate.Open("a", 10)
	gate.Handle(Event{TimerID: "a", Type: EventUpdated, Version: 8})
	gate.Handle(Event{TimerID: "a", Type: EventDeleted, Version: 8})

	want := []int{6, 1, 7, 8, 8}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestGateOverMemoryBus(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()
	ctx := context.Background()

	var got []int
	gate := NewGate(func(e Event) { got = append(got, e.Version) })
	cancel, err := bus.Subscribe("t1", gate.Handle)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	for _, v := range []int{1, 3} {
		if err := bus.Publish(ctx, Event{TimerID: "t1", Type: EventUpdated, Version: v}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	gate.Open("t1", 2)
	if len(got) != 1 || got[0] != 3 {
		t.Fatalf("got %v, want [3]", got)
	}
}
