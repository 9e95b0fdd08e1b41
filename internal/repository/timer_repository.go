package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"timeronline/backend/internal/model"
)

var _ TimerStore = (*TimerRepository)(nil)

type TimerRepository struct {
	db *sql.DB
}

func NewTimerRepository(db *sql.DB) *TimerRepository {
	return &TimerRepository{db: db}
}

func (r *TimerRepository) CreateTimer(ctx context.Context, timer *model.Timer) error {
	stateJSON, err := json.Marshal(timer.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	_, err = r.db.ExecContext(
		ctx,
		`INSERT INTO timers (id, owner_id, state_json, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		timer.ID,
		timer.OwnerID,
		string(stateJSON),
		timer.Version,
		formatTime(timer.CreatedAt),
		formatTime(timer.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrExists
		}
		return fmt.Errorf("create timer: %w", err)
	}
	return nil
}

func (r *TimerRepository) GetTimer(ctx context.Context, id string) (*model.Timer, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT id, owner_id, state_json, version, created_at, updated_at
		 FROM timers WHERE id = ?`,
		id,
	)
	return scanTimer(row)
}

func (r *TimerRepository) ListTimers(ctx context.Context, ownerID string) ([]model.Timer, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, owner_id, state_json, version, created_at, updated_at
		 FROM timers
		 WHERE owner_id = ?
		 ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list timers: %w", err)
	}
	defer rows.Close()

	timers := make([]model.Timer, 0)
	for rows.Next() {
		timer, scanErr := scanTimer(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		timers = append(timers, *timer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timers: %w", err)
	}
	return timers, nil
}

func (r *TimerRepository) UpdateTimer(ctx context.Context, id string, fn func(timer *model.Timer) error) (*model.Timer, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(
		ctx,
		`SELECT id, owner_id, state_json, version, created_at, updated_at
		 FROM timers WHERE id = ?`,
		id,
	)
	timer, err := scanTimer(row)
	if err != nil {
		return nil, err
	}

	if err := fn(timer); err != nil {
		return nil, err
	}

	stateJSON, err := json.Marshal(timer.State)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}

	_, err = tx.ExecContext(
		ctx,
		`UPDATE timers
		 SET state_json = ?,
		     version = ?,
		     updated_at = ?
		 WHERE id = ?`,
		string(stateJSON),
		timer.Version,
		formatTime(timer.UpdatedAt),
		timer.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update timer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit timer update: %w", err)
	}
	return timer, nil
}

func (r *TimerRepository) DeleteTimer(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM timers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete timer: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete timer: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTimer(s scanner) (*model.Timer, error) {
	timer := model.Timer{}
	var stateJSON string
	var createdAt string
	var updatedAt string
	err := s.Scan(
		&timer.ID,
		&timer.OwnerID,
		&stateJSON,
		&timer.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan timer: %w", err)
	}

	if err := json.Unmarshal([]byte(stateJSON), &timer.State); err != nil {
		return nil, fmt.Errorf("decode timer state: %w", err)
	}

	parsedCreatedAt, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse timer created_at: %w", err)
	}
	timer.CreatedAt = parsedCreatedAt

	parsedUpdatedAt, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse timer updated_at: %w", err)
	}
	timer.UpdatedAt = parsedUpdatedAt

	return &timer, nil
}
