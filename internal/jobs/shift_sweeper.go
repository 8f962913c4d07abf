package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"

	"phone-resale/internal/logging"
)

const sweepLockKey = "lock:shift-sweep"

// ShiftCloser is the part of the shift service the sweeper needs.
type ShiftCloser interface {
	CloseOverdueShifts(ctx context.Context, now time.Time) (int, error)
}

// ShiftSweeper periodically ends shifts left open past their day. When a
// redislock client is set, only one instance sweeps per tick.
type ShiftSweeper struct {
	shifts   ShiftCloser
	locker   *redislock.Client
	logger   logrus.FieldLogger
	interval time.Duration
	now      func() time.Time
}

func NewShiftSweeper(shifts ShiftCloser, locker *redislock.Client, logger logrus.FieldLogger, interval time.Duration) *ShiftSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ShiftSweeper{shifts: shifts, locker: locker, logger: logger, interval: interval, now: time.Now}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (s *ShiftSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			logging.LogError(s.logger, "jobs", "ShiftSweeper.Run", "sweep failed", nil, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single sweep. It returns 0 without error when another
// instance holds the lock.
func (s *ShiftSweeper) RunOnce(ctx context.Context) (int, error) {
	if s.locker != nil {
		lock, err := s.locker.Obtain(ctx, sweepLockKey, 30*time.Second, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			s.logger.Info("shift sweep already running elsewhere; skipping")
			return 0, nil
		}
		if err != nil {
			s.logger.WithError(err).Warn("error obtaining sweep lock; sweeping without it")
		} else {
			defer func() {
				if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
					s.logger.WithError(err).Warn("failed to release sweep lock")
				}
			}()
		}
	}

	closed, err := s.shifts.CloseOverdueShifts(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if closed > 0 {
		s.logger.WithField("closed", closed).Info("closed overdue shifts")
	}
	return closed, nil
}
