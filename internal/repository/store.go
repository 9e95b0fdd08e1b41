package repository

import (
	"context"

	"timeronline/backend/internal/model"
)

// TimerStore persists timers keyed by id. Update is the only way to change
// a stored timer: it reads, applies fn and writes back as one transaction,
// so concurrent actions on the same timer never interleave.
type TimerStore interface {
	CreateTimer(ctx context.Context, timer *model.Timer) error
	GetTimer(ctx context.Context, id string) (*model.Timer, error)
	ListTimers(ctx context.Context, ownerID string) ([]model.Timer, error)
	UpdateTimer(ctx context.Context, id string, fn func(timer *model.Timer) error) (*model.Timer, error)
	DeleteTimer(ctx context.Context, id string) error
}

type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}
