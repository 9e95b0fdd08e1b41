// Package bolt is a bbolt-backed implementation of the timer and user
// stores, for single-binary deployments without SQLite.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"timeronline/backend/internal/model"
	"timeronline/backend/internal/repository"
)

var (
	_ repository.TimerStore = (*Store)(nil)
	_ repository.UserStore  = (*Store)(nil)
)

var (
	bucketTimers      = []byte("timers")
	bucketOwnerTimers = []byte("owner_timers")
	bucketUsers       = []byte("users")
	bucketUserEmails  = []byte("user_emails")
)

// Store keeps timers as JSON values keyed by timer id. owner_timers holds
// one nested bucket per owner indexing that owner's timer ids.
type Store struct {
	db *bolt.DB
}

// New opens (or creates) the database file and its buckets.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create bolt dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketTimers, bucketOwnerTimers, bucketUsers, bucketUserEmails} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bolt buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateTimer(ctx context.Context, timer *model.Timer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(timer)
	if err != nil {
		return fmt.Errorf("marshal timer: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		timers := tx.Bucket(bucketTimers)
		if timers.Get([]byte(timer.ID)) != nil {
			return repository.ErrExists
		}
		if err := timers.Put([]byte(timer.ID), payload); err != nil {
			return err
		}
		owner, err := tx.Bucket(bucketOwnerTimers).CreateBucketIfNotExists([]byte(timer.OwnerID))
		if err != nil {
			return err
		}
		return owner.Put([]byte(timer.ID), []byte{})
	})
}

func (s *Store) GetTimer(ctx context.Context, id string) (*model.Timer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var timer *model.Timer
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		timer, err = readTimer(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return timer, nil
}

func (s *Store) ListTimers(ctx context.Context, ownerID string) ([]model.Timer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timers := make([]model.Timer, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		owner := tx.Bucket(bucketOwnerTimers).Bucket([]byte(ownerID))
		if owner == nil {
			return nil
		}
		return owner.ForEach(func(k, _ []byte) error {
			timer, err := readTimer(tx, string(k))
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			timers = append(timers, *timer)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(timers, func(i, j int) bool {
		return timers[i].CreatedAt.After(timers[j].CreatedAt)
	})
	return timers, nil
}

func (s *Store) UpdateTimer(ctx context.Context, id string, fn func(timer *model.Timer) error) (*model.Timer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var updated *model.Timer
	err := s.db.Update(func(tx *bolt.Tx) error {
		timer, err := readTimer(tx, id)
		if err != nil {
			return err
		}
		if err := fn(timer); err != nil {
			return err
		}
		payload, err := json.Marshal(timer)
		if err != nil {
			return fmt.Errorf("marshal timer: %w", err)
		}
		updated = timer
		return tx.Bucket(bucketTimers).Put([]byte(id), payload)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) DeleteTimer(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		timer, err := readTimer(tx, id)
		if err != nil {
			return err
		}
		if owner := tx.Bucket(bucketOwnerTimers).Bucket([]byte(timer.OwnerID)); owner != nil {
			if err := owner.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketTimers).Delete([]byte(id))
	})
}

func readTimer(tx *bolt.Tx, id string) (*model.Timer, error) {
	raw := tx.Bucket(bucketTimers).Get([]byte(id))
	if raw == nil {
		return nil, repository.ErrNotFound
	}
	var timer model.Timer
	if err := json.Unmarshal(raw, &timer); err != nil {
		return nil, fmt.Errorf("decode timer %s: %w", id, err)
	}
	return &timer, nil
}

// boltUser carries the password hash, which model.User keeps out of JSON.
type boltUser struct {
	model.User
	PasswordHash string `json:"passwordHash"`
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(boltUser{User: *user, PasswordHash: user.PasswordHash})
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		users := tx.Bucket(bucketUsers)
		if users.Get([]byte(user.ID)) != nil {
			return repository.ErrExists
		}
		if user.Email != "" {
			emails := tx.Bucket(bucketUserEmails)
			if emails.Get([]byte(user.Email)) != nil {
				return repository.ErrExists
			}
			if err := emails.Put([]byte(user.Email), []byte(user.ID)); err != nil {
				return err
			}
		}
		return users.Put([]byte(user.ID), payload)
	})
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var user *model.User
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketUserEmails).Get([]byte(email))
		if id == nil {
			return repository.ErrNotFound
		}
		var err error
		user, err = readUser(tx, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var user *model.User
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		user, err = readUser(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func readUser(tx *bolt.Tx, id string) (*model.User, error) {
	raw := tx.Bucket(bucketUsers).Get([]byte(id))
	if raw == nil {
		return nil, repository.ErrNotFound
	}
	var stored boltUser
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}
	user := stored.User
	user.PasswordHash = stored.PasswordHash
	return &user, nil
}
