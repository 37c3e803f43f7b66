package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"arena/internal/common/cache"
	"arena/internal/contest/model"
	"arena/internal/contest/repository"
	"arena/internal/leaderboard"
	appErr "arena/pkg/errors"
	"arena/pkg/utils/logger"
)

const (
	defaultTick  = 2 * time.Second
	sweepLockKey = "contest:scheduler:sweep"
	sweepLockTTL = time.Minute
)

// Scheduler drives time-based contest transitions from a single ticker:
// scheduled contests go live at their start time, live boards freeze when
// the freeze window opens, and live contests end when the clock runs out.
// Manual transitions win races through the lifecycle service's per-contest
// locks and status guards. With a locker configured, concurrent instances
// contend on a redis lock so only one of them sweeps per tick.
type Scheduler struct {
	contestRepo repository.ContestRepository
	lifecycle   *LifecycleService
	board       *leaderboard.Store
	locker      cache.Cache
	tick        time.Duration
}

// NewScheduler creates a contest scheduler. The locker may be nil for
// single-instance deployments.
func NewScheduler(contestRepo repository.ContestRepository, lifecycle *LifecycleService, board *leaderboard.Store, locker cache.Cache, tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = defaultTick
	}
	return &Scheduler{
		contestRepo: contestRepo,
		lifecycle:   lifecycle,
		board:       board,
		locker:      locker,
		tick:        tick,
	}
}

// Run ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one pass over pending contests. Exported so tests and
// recovery paths can drive it directly.
func (s *Scheduler) Sweep(ctx context.Context) {
	if s.locker != nil {
		acquired, err := s.locker.TryLock(ctx, sweepLockKey, sweepLockTTL)
		if err != nil {
			logger.Warn(ctx, "acquire sweep lock failed", zap.Error(err))
		} else if !acquired {
			return
		} else {
			defer func() {
				if err := s.locker.Unlock(ctx, sweepLockKey); err != nil {
					logger.Warn(ctx, "release sweep lock failed", zap.Error(err))
				}
			}()
		}
	}

	contests, err := s.contestRepo.ListByStatus(ctx, model.StatusScheduled, model.StatusLive)
	if err != nil {
		logger.Warn(ctx, "scheduler list contests failed", zap.Error(err))
		return
	}
	now := time.Now()
	for _, contest := range contests {
		switch contest.Status {
		case model.StatusScheduled:
			if !now.Before(contest.StartAt) {
				s.autoStart(ctx, contest)
			}
		case model.StatusLive:
			if !now.Before(contest.EffectiveEndAt()) {
				s.autoEnd(ctx, contest)
				continue
			}
			if freezeAt, ok := contest.FreezeAt(); ok && !now.Before(freezeAt) {
				s.autoFreeze(ctx, contest)
			}
		}
	}
}

func (s *Scheduler) autoStart(ctx context.Context, contest *model.Contest) {
	if _, err := s.lifecycle.Start(ctx, contest.ContestID, "scheduler"); err != nil {
		if isBenignRace(err) {
			return
		}
		logger.Warn(ctx, "auto start failed",
			zap.Int64("contest_id", contest.ContestID), zap.Error(err))
	}
}

func (s *Scheduler) autoEnd(ctx context.Context, contest *model.Contest) {
	if _, err := s.lifecycle.End(ctx, contest.ContestID, "scheduler"); err != nil {
		if isBenignRace(err) {
			return
		}
		logger.Warn(ctx, "auto end failed",
			zap.Int64("contest_id", contest.ContestID), zap.Error(err))
	}
}

func (s *Scheduler) autoFreeze(ctx context.Context, contest *model.Contest) {
	frozen, err := s.board.Frozen(contest.ContestID)
	if err != nil {
		if errors.Is(err, leaderboard.ErrBoardNotFound) {
			return
		}
		logger.Warn(ctx, "freeze check failed",
			zap.Int64("contest_id", contest.ContestID), zap.Error(err))
		return
	}
	if frozen {
		return
	}
	if err := s.board.Freeze(contest.ContestID); err != nil {
		logger.Warn(ctx, "auto freeze failed",
			zap.Int64("contest_id", contest.ContestID), zap.Error(err))
	}
}

// isBenignRace reports whether a transition failed only because someone
// else already moved the contest.
func isBenignRace(err error) bool {
	if errors.Is(err, repository.ErrContestNotFound) {
		return true
	}
	code := appErr.GetCode(err)
	return code == appErr.InvalidTransition || code == appErr.ContestNotFound
}
