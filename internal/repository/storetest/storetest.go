// Package storetest holds the behaviour every TimerStore and UserStore
// implementation must share.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"timeronline/backend/internal/model"
	"timeronline/backend/internal/repository"
)

type Stores interface {
	repository.TimerStore
	repository.UserStore
}

func newUser(t *testing.T, store Stores, id, email string) model.User {
	t.Helper()
	now := time.Now().UTC()
	user := model.User{ID: id, Email: email, PasswordHash: "hash-" + id, CreatedAt: now, UpdatedAt: now}
	if email == "" {
		user.Guest = true
	}
	if err := store.CreateUser(context.Background(), &user); err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
	return user
}

func newTimer(id, ownerID string, createdAt time.Time) *model.Timer {
	return &model.Timer{
		ID:      id,
		OwnerID: ownerID,
		State: model.TimerState{
			Kind:        model.KindCountdown,
			Mode:        model.ModeDuration,
			PauseTime:   90,
			Duration:    90,
			TimerName:   "tea",
			DisplayMode: model.DisplayNormal,
		},
		Version:   1,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// Run exercises store against the shared contract.
func Run(t *testing.T, store Stores) {
	ctx := context.Background()

	t.Run("users", func(t *testing.T) {
		user := newUser(t, store, "user-1", "one@example.com")
		newUser(t, store, "guest-1", "")
		newUser(t, store, "guest-2", "")

		byEmail, err := store.GetUserByEmail(ctx, "one@example.com")
		if err != nil {
			t.Fatalf("get by email: %v", err)
		}
		if byEmail.ID != user.ID || byEmail.PasswordHash != user.PasswordHash {
			t.Fatalf("unexpected user %+v", byEmail)
		}

		guest, err := store.GetUserByID(ctx, "guest-1")
		if err != nil || !guest.Guest {
			t.Fatalf("expected guest user, got %+v, %v", guest, err)
		}

		duplicate := model.User{ID: "user-2", Email: "one@example.com", CreatedAt: user.CreatedAt, UpdatedAt: user.UpdatedAt}
		if err := store.CreateUser(ctx, &duplicate); !errors.Is(err, repository.ErrExists) {
			t.Fatalf("expected ErrExists for duplicate email, got %v", err)
		}

		if _, err := store.GetUserByID(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("timers", func(t *testing.T) {
		newUser(t, store, "owner-a", "a@example.com")
		newUser(t, store, "owner-b", "b@example.com")

		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		first := newTimer("aaaaaa", "owner-a", base)
		second := newTimer("bbbbbb", "owner-a", base.Add(time.Minute))
		second.State.Kind = model.KindStopwatch
		second.State.Mode = model.ModeImmediate
		second.State.StartTime = model.Millis(base.UnixMilli())
		second.State.ActualStartTime = model.Millis(base.UnixMilli())
		second.State.IsActive = true
		other := newTimer("cccccc", "owner-b", base)

		for _, timer := range []*model.Timer{first, second, other} {
			if err := store.CreateTimer(ctx, timer); err != nil {
				t.Fatalf("create timer %s: %v", timer.ID, err)
			}
		}
		if err := store.CreateTimer(ctx, newTimer("aaaaaa", "owner-a", base)); !errors.Is(err, repository.ErrExists) {
			t.Fatalf("expected ErrExists for duplicate id, got %v", err)
		}

		list, err := store.ListTimers(ctx, "owner-a")
		if err != nil {
			t.Fatalf("list timers: %v", err)
		}
		if len(list) != 2 || list[0].ID != "bbbbbb" || list[1].ID != "aaaaaa" {
			t.Fatalf("expected newest first for owner-a, got %+v", list)
		}
		if list[0].State.Kind != model.KindStopwatch || list[0].State.StartTime == nil || *list[0].State.StartTime != base.UnixMilli() {
			t.Fatalf("stopwatch state not preserved: %+v", list[0].State)
		}

		updated, err := store.UpdateTimer(ctx, "aaaaaa", func(timer *model.Timer) error {
			timer.State.PauseTime = 30
			timer.Version++
			timer.UpdatedAt = base.Add(time.Hour)
			return nil
		})
		if err != nil {
			t.Fatalf("update timer: %v", err)
		}
		if updated.Version != 2 {
			t.Fatalf("expected version 2, got %d", updated.Version)
		}

		stored, err := store.GetTimer(ctx, "aaaaaa")
		if err != nil {
			t.Fatalf("get timer: %v", err)
		}
		if stored.State.PauseTime != 30 || stored.Version != 2 || stored.State.TimerName != "tea" {
			t.Fatalf("update not persisted: %+v", stored)
		}

		rejected := errors.New("rejected")
		_, err = store.UpdateTimer(ctx, "aaaaaa", func(timer *model.Timer) error {
			timer.State.PauseTime = 1
			return rejected
		})
		if !errors.Is(err, rejected) {
			t.Fatalf("expected callback error, got %v", err)
		}
		stored, _ = store.GetTimer(ctx, "aaaaaa")
		if stored.State.PauseTime != 30 {
			t.Fatal("failed update must not be persisted")
		}

		if _, err := store.UpdateTimer(ctx, "missing", func(*model.Timer) error { return nil }); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		if err := store.DeleteTimer(ctx, "aaaaaa"); err != nil {
			t.Fatalf("delete timer: %v", err)
		}
		if err := store.DeleteTimer(ctx, "aaaaaa"); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete, got %v", err)
		}
		list, _ = store.ListTimers(ctx, "owner-a")
		if len(list) != 1 {
			t.Fatalf("expected one timer left, got %d", len(list))
		}
	})

	t.Run("concurrent updates are serialized", func(t *testing.T) {
		newUser(t, store, "owner-c", "c@example.com")
		if err := store.CreateTimer(ctx, newTimer("dddddd", "owner-c", time.Now().UTC())); err != nil {
			t.Fatalf("create timer: %v", err)
		}

		const workers = 8
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.UpdateTimer(ctx, "dddddd", func(timer *model.Timer) error {
					timer.Version++
					return nil
				})
				if err != nil {
					t.Errorf("concurrent update: %v", err)
				}
			}()
		}
		wg.Wait()

		stored, err := store.GetTimer(ctx, "dddddd")
		if err != nil {
			t.Fatalf("get timer: %v", err)
		}
		if stored.Version != 1+workers {
			t.Fatalf("expected version %d, got %d", 1+workers, stored.Version)
		}
	})
}
