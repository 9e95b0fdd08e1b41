package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestExpiry(t *testing.T) (*Expiry, *clockwork.FakeClock, chan string) {
	t.Helper()
	fake := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	fired := make(chan string, 8)
	expiry := NewExpiry(fake, func(ctx context.Context, id string) { fired <- id })
	t.Cleanup(expiry.Stop)
	return expiry, fake, fired
}

func waitFired(t *testing.T, fired chan string) string {
	t.Helper()
	select {
	case id := <-fired:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for deadline")
		return ""
	}
}

func TestExpiryFiresAtDeadline(t *testing.T) {
	expiry, fake, fired := newTestExpiry(t)

	expiry.Schedule("abc123", fake.Now().Add(5*time.Second))

	fake.Advance(4 * time.Second)
	select {
	case id := <-fired:
		t.Fatalf("fired early for %s", id)
	case <-time.After(20 * time.Millisecond):
	}

	fake.Advance(time.Second)
	if id := waitFired(t, fired); id != "abc123" {
		t.Fatalf("fired for %q", id)
	}
	if expiry.Pending() != 0 {
		t.Fatalf("expected no pending deadlines, got %d", expiry.Pending())
	}
}

func TestExpiryRescheduleReplacesDeadline(t *testing.T) {
	expiry, fake, fired := newTestExpiry(t)

	expiry.Schedule("abc123", fake.Now().Add(5*time.Second))
	expiry.Schedule("abc123", fake.Now().Add(10*time.Second))
	if expiry.Pending() != 1 {
		t.Fatalf("expected one pending deadline, got %d", expiry.Pending())
	}

	fake.Advance(6 * time.Second)
	select {
	case <-fired:
		t.Fatal("replaced deadline must not fire")
	case <-time.After(20 * time.Millisecond):
	}

	fake.Advance(4 * time.Second)
	waitFired(t, fired)
}

func TestExpiryCancel(t *testing.T) {
	expiry, fake, fired := newTestExpiry(t)

	expiry.Schedule("abc123", fake.Now().Add(time.Second))
	expiry.Cancel("abc123")
	fake.Advance(2 * time.Second)

	select {
	case <-fired:
		t.Fatal("cancelled deadline fired")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestExpiryPastDeadlineFiresImmediately(t *testing.T) {
	expiry, fake, fired := newTestExpiry(t)

	expiry.Schedule("late01", fake.Now().Add(-time.Minute))
	if id := waitFired(t, fired); id != "late01" {
		t.Fatalf("fired for %q", id)
	}
}

func TestExpiryStopIgnoresNewSchedules(t *testing.T) {
	expiry, fake, _ := newTestExpiry(t)

	expiry.Stop()
	expiry.Schedule("abc123", fake.Now().Add(time.Second))
	if expiry.Pending() != 0 {
		t.Fatal("stopped scheduler must not arm deadlines")
	}
}
