package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Shift struct {
	ID        int
	ActorID   int
	StartedAt time.Time
	EndedAt   *time.Time
}

// ShiftService tracks employee working shifts. An actor has at most one open shift.
type ShiftService interface {
	StartShift(ctx context.Context, actorID int) (*Shift, error)
	EndShift(ctx context.Context, actorID int) (*Shift, error)
	ActiveShift(ctx context.Context, actorID int) (*Shift, error)
	// CloseOverdueShifts ends every shift still open after the end of the day it
	// started on. The end time is set to 23:59:59 of that day. Safe to rerun.
	CloseOverdueShifts(ctx context.Context, now time.Time) (int, error)
}

type shiftService struct {
	pool *pgxpool.Pool
}

func NewShiftService(pool *pgxpool.Pool) ShiftService {
	return &shiftService{pool: pool}
}

const shiftSelect = "SELECT id, actor_id, started_at, ended_at FROM employee_shifts"

func scanShift(row pgx.Row) (*Shift, error) {
	var sh Shift
	if err := row.Scan(&sh.ID, &sh.ActorID, &sh.StartedAt, &sh.EndedAt); err != nil {
		return nil, err
	}
	return &sh, nil
}

func (s *shiftService) StartShift(ctx context.Context, actorID int) (*Shift, error) {
	sh, err := scanShift(s.pool.QueryRow(ctx, `
		INSERT INTO employee_shifts (actor_id) VALUES ($1)
		RETURNING id, actor_id, started_at, ended_at
	`, actorID))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, invalidStatef("actor %d already has an open shift", actorID)
		}
		return nil, fmt.Errorf("failed to start shift: %w", err)
	}
	return sh, nil
}

func (s *shiftService) EndShift(ctx context.Context, actorID int) (*Shift, error) {
	sh, err := scanShift(s.pool.QueryRow(ctx, `
		UPDATE employee_shifts SET ended_at = NOW()
		WHERE actor_id = $1 AND ended_at IS NULL
		RETURNING id, actor_id, started_at, ended_at
	`, actorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, invalidStatef("actor %d has no open shift", actorID)
		}
		return nil, fmt.Errorf("failed to end shift: %w", err)
	}
	return sh, nil
}

func (s *shiftService) ActiveShift(ctx context.Context, actorID int) (*Shift, error) {
	sh, err := scanShift(s.pool.QueryRow(ctx, shiftSelect+" WHERE actor_id = $1 AND ended_at IS NULL", actorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("actor %d has no open shift", actorID)
		}
		return nil, fmt.Errorf("failed to fetch active shift: %w", err)
	}
	return sh, nil
}

func (s *shiftService) CloseOverdueShifts(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE employee_shifts
		SET ended_at = date_trunc('day', started_at) + INTERVAL '23 hours 59 minutes 59 seconds'
		WHERE ended_at IS NULL
		  AND date_trunc('day', started_at) + INTERVAL '23 hours 59 minutes 59 seconds' < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to close overdue shifts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
