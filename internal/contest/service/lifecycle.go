package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"arena/internal/common/db"
	"arena/internal/common/mq"
	"arena/internal/contest/model"
	"arena/internal/contest/repository"
	"arena/internal/gateway"
	"arena/internal/leaderboard"
	appErr "arena/pkg/errors"
	"arena/pkg/utils/logger"
)

// Notifier pushes real-time messages into contest rooms.
type Notifier interface {
	NotifyParticipant(contestID, participantID int64, msgType string, payload interface{})
	Broadcast(contestID int64, msgType string, payload interface{})
}

// LifecycleConfig holds lifecycle service dependencies.
type LifecycleConfig struct {
	ContestRepo      repository.ContestRepository
	RegistrationRepo repository.RegistrationRepository
	Board            *leaderboard.Store
	Snapshots        *leaderboard.SnapshotRepository
	Notifier         Notifier
	DB               db.Database
	MQ               mq.Producer
	EventTopic       string
}

// LifecycleService owns every contest state transition. Transitions for a
// given contest are serialized under a per-contest mutex so that manual
// operations and the scheduler cannot race each other.
type LifecycleService struct {
	contestRepo      repository.ContestRepository
	registrationRepo repository.RegistrationRepository
	board            *leaderboard.Store
	snapshots        *leaderboard.SnapshotRepository
	notifier         Notifier
	db               db.Database
	mq               mq.Producer
	eventTopic       string

	locks sync.Map
}

// NewLifecycleService creates a lifecycle service.
func NewLifecycleService(cfg LifecycleConfig) (*LifecycleService, error) {
	if cfg.ContestRepo == nil {
		return nil, fmt.Errorf("contest repository is required")
	}
	if cfg.RegistrationRepo == nil {
		return nil, fmt.Errorf("registration repository is required")
	}
	if cfg.Board == nil {
		return nil, fmt.Errorf("leaderboard store is required")
	}
	if cfg.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &LifecycleService{
		contestRepo:      cfg.ContestRepo,
		registrationRepo: cfg.RegistrationRepo,
		board:            cfg.Board,
		snapshots:        cfg.Snapshots,
		notifier:         cfg.Notifier,
		db:               cfg.DB,
		mq:               cfg.MQ,
		eventTopic:       cfg.EventTopic,
	}, nil
}

func (s *LifecycleService) lock(contestID int64) func() {
	muIface, _ := s.locks.LoadOrStore(contestID, &sync.Mutex{})
	mu := muIface.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// CreateInput describes a new draft contest.
type CreateInput struct {
	Name            string
	Description     string
	Problems        []model.ContestProblem
	Languages       []string
	StartAt         time.Time
	DurationSec     int64
	FreezeMinutes   int
	AllowLateJoin   bool
	LateJoinMinutes int
	PenaltyPerWrong int
	Actor           string
}

// Create inserts a contest in draft state.
func (s *LifecycleService) Create(ctx context.Context, input CreateInput) (*model.Contest, error) {
	if input.Name == "" {
		return nil, appErr.ValidationError("name", "required")
	}
	if input.DurationSec <= 0 {
		return nil, appErr.ValidationError("duration_sec", "must be positive")
	}
	labels := make(map[string]struct{}, len(input.Problems))
	for _, p := range input.Problems {
		if p.Label == "" || p.ProblemID <= 0 {
			return nil, appErr.ValidationError("problems", "label and problem_id are required")
		}
		if _, dup := labels[p.Label]; dup {
			return nil, appErr.ValidationError("problems", "duplicate label "+p.Label)
		}
		labels[p.Label] = struct{}{}
	}

	contest := &model.Contest{
		Name:            input.Name,
		Description:     input.Description,
		Status:          model.StatusDraft,
		Problems:        input.Problems,
		Languages:       input.Languages,
		StartAt:         input.StartAt,
		DurationSec:     input.DurationSec,
		FreezeMinutes:   input.FreezeMinutes,
		AllowLateJoin:   input.AllowLateJoin,
		LateJoinMinutes: input.LateJoinMinutes,
		PenaltyPerWrong: input.PenaltyPerWrong,
		CreatedBy:       input.Actor,
	}
	id, err := s.contestRepo.Create(ctx, nil, contest)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ContestCreateFailed, "create contest failed")
	}
	contest.ContestID = id
	return contest, nil
}

// Publish makes a draft contest visible. A draft whose start time is still
// ahead becomes scheduled; one whose start time already passed goes straight
// to live, so clock skew around the start never blocks publishing. Only a
// contest whose whole window already elapsed is rejected.
func (s *LifecycleService) Publish(ctx context.Context, contestID int64, actor string) (*model.Contest, error) {
	unlock := s.lock(contestID)
	defer unlock()

	contest, err := s.loadForTransition(ctx, contestID, model.StatusScheduled, "publish")
	if err != nil {
		return nil, err
	}
	if len(contest.Problems) == 0 {
		return nil, appErr.New(appErr.ContestHasNoProblems).WithMessage("cannot publish a contest with no problems")
	}
	now := time.Now()
	if !now.Before(contest.EffectiveEndAt()) {
		return nil, appErr.ValidationError("start_at", "contest window already passed")
	}
	if !now.Before(contest.StartAt) {
		return s.goLive(ctx, contest, actor)
	}

	from := contest.Status
	contest.Status = model.StatusScheduled
	if err := s.contestRepo.Update(ctx, nil, contest); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "persist transition failed")
	}
	s.publishEvent(ctx, contest, from, actor, "")
	return contest, nil
}

// Start moves a contest to live. The clock starts now regardless of the
// scheduled time, and the end time becomes fixed.
func (s *LifecycleService) Start(ctx context.Context, contestID int64, actor string) (*model.Contest, error) {
	unlock := s.lock(contestID)
	defer unlock()

	contest, err := s.loadForTransition(ctx, contestID, model.StatusLive, "start")
	if err != nil {
		return nil, err
	}
	if len(contest.Problems) == 0 {
		return nil, appErr.New(appErr.ContestHasNoProblems).WithMessage("cannot start a contest with no problems")
	}
	return s.goLive(ctx, contest, actor)
}

// goLive fixes the clock, initializes the board and broadcasts the start.
// Callers hold the contest lock and have already validated the transition.
func (s *LifecycleService) goLive(ctx context.Context, contest *model.Contest, actor string) (*model.Contest, error) {
	from := contest.Status
	now := time.Now()
	endAt := now.Add(time.Duration(contest.DurationSec) * time.Second)
	contest.Status = model.StatusLive
	contest.StartAt = now
	contest.EndAt = &endAt

	s.board.Init(contest.ContestID)
	if err := s.contestRepo.Update(ctx, nil, contest); err != nil {
		s.board.Drop(contest.ContestID)
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "persist transition failed")
	}

	if s.notifier != nil {
		s.notifier.Broadcast(contest.ContestID, gateway.MsgContestStarted, gateway.ContestStatusPayload{
			ContestID: contest.ContestID,
			Status:    string(model.StatusLive),
			EndAt:     endAt.Unix(),
		})
	}
	s.publishEvent(ctx, contest, from, actor, "")
	return contest, nil
}

// End moves a live contest to ended. Final standings are computed over
// everything accumulated (including writes hidden behind a freeze) and
// persisted with the status in one transaction; the board flips to its
// final visible form only after the transaction commits, so a failed End
// leaves a frozen board frozen.
func (s *LifecycleService) End(ctx context.Context, contestID int64, actor string) (*model.Contest, error) {
	unlock := s.lock(contestID)
	defer unlock()

	contest, err := s.loadForTransition(ctx, contestID, model.StatusEnded, "end")
	if err != nil {
		return nil, err
	}

	rows, err := s.board.FinalRows(contestID)
	if err != nil && !errors.Is(err, leaderboard.ErrBoardNotFound) {
		return nil, appErr.Wrapf(err, appErr.TransitionSideEffect, "compute final standings failed")
	}

	from := contest.Status
	now := time.Now()
	if contest.EndAt == nil {
		contest.EndAt = &now
	}
	contest.Status = model.StatusEnded

	err = s.db.Transaction(ctx, func(tx db.Transaction) error {
		for _, row := range rows {
			registration, err := s.registrationRepo.GetByContestAndParticipant(ctx, tx, contestID, row.ParticipantID)
			if err != nil {
				if errors.Is(err, repository.ErrRegistrationNotFound) {
					continue
				}
				return err
			}
			registration.FinalRank = row.Rank
			if err := s.registrationRepo.Update(ctx, tx, registration); err != nil {
				return err
			}
		}
		if err := s.registrationRepo.CompleteAll(ctx, tx, contestID); err != nil {
			return err
		}
		return s.contestRepo.Update(ctx, tx, contest)
	})
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.TransitionSideEffect, "persist final standings failed")
	}

	if s.snapshots != nil {
		if err := s.snapshots.Save(ctx, contestID, rows); err != nil {
			logger.Warn(ctx, "save leaderboard snapshot failed",
				zap.Int64("contest_id", contestID), zap.Error(err))
		}
	}

	if _, err := s.board.FinalizeRanks(contestID); err != nil && !errors.Is(err, leaderboard.ErrBoardNotFound) {
		logger.Warn(ctx, "finalize ranks failed",
			zap.Int64("contest_id", contestID), zap.Error(err))
	}

	if s.notifier != nil {
		s.notifier.Broadcast(contestID, gateway.MsgContestEnded, gateway.ContestStatusPayload{
			ContestID: contestID,
			Status:    string(model.StatusEnded),
		})
	}
	s.publishEvent(ctx, contest, from, actor, "")
	return contest, nil
}

// Cancel aborts a contest from any non-terminal state. No standings are
// finalized and submissions stop being accepted immediately.
func (s *LifecycleService) Cancel(ctx context.Context, contestID int64, actor, reason string) (*model.Contest, error) {
	unlock := s.lock(contestID)
	defer unlock()

	contest, err := s.loadForTransition(ctx, contestID, model.StatusCancelled, "cancel")
	if err != nil {
		return nil, err
	}

	from := contest.Status
	contest.Status = model.StatusCancelled
	contest.CancelReason = reason
	if err := s.contestRepo.Update(ctx, nil, contest); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "persist transition failed")
	}
	s.board.Drop(contestID)

	if s.notifier != nil {
		s.notifier.Broadcast(contestID, gateway.MsgContestStatus, gateway.ContestStatusPayload{
			ContestID: contestID,
			Status:    string(model.StatusCancelled),
			Reason:    reason,
		})
	}
	s.publishEvent(ctx, contest, from, actor, reason)
	return contest, nil
}

// Disqualify removes a participant from a contest. Their registration is
// marked, their row disappears from every visible board, and the room is
// informed.
func (s *LifecycleService) Disqualify(ctx context.Context, contestID, participantID int64, actor, reason string) error {
	unlock := s.lock(contestID)
	defer unlock()

	registration, err := s.registrationRepo.GetByContestAndParticipant(ctx, nil, contestID, participantID)
	if err != nil {
		if errors.Is(err, repository.ErrRegistrationNotFound) {
			return appErr.NotFoundError("registration")
		}
		return appErr.Wrapf(err, appErr.DatabaseError, "load registration failed")
	}
	if registration.Status == model.RegistrationDisqualified {
		return nil
	}
	registration.Status = model.RegistrationDisqualified
	registration.DisqualReason = reason
	registration.FinalRank = 0
	if err := s.registrationRepo.Update(ctx, nil, registration); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "persist disqualification failed")
	}

	if err := s.board.Remove(contestID, participantID); err != nil && !errors.Is(err, leaderboard.ErrBoardNotFound) {
		logger.Warn(ctx, "remove from leaderboard failed",
			zap.Int64("contest_id", contestID), zap.Error(err))
	}
	if s.snapshots != nil {
		_ = s.snapshots.RemoveParticipant(ctx, contestID, participantID)
	}

	if s.notifier != nil {
		s.notifier.NotifyParticipant(contestID, participantID, gateway.MsgDisqualified, map[string]string{"reason": reason})
	}
	s.publishDisqualify(ctx, contestID, participantID, actor, reason)
	return nil
}

// Announce broadcasts an organizer message into the contest room.
func (s *LifecycleService) Announce(ctx context.Context, contestID int64, message, priority, actor string) error {
	if message == "" {
		return appErr.ValidationError("message", "required")
	}
	contest, err := s.getContest(ctx, contestID)
	if err != nil {
		return err
	}
	if contest.Status.Terminal() {
		return appErr.StateError("announce in", string(contest.Status))
	}
	if s.notifier != nil {
		s.notifier.Broadcast(contestID, gateway.MsgAnnouncement, gateway.AnnouncementPayload{
			Message:  message,
			Priority: priority,
		})
	}
	s.publishAnnouncement(ctx, contestID, message, actor)
	return nil
}

func (s *LifecycleService) loadForTransition(ctx context.Context, contestID int64, to model.ContestStatus, action string) (*model.Contest, error) {
	contest, err := s.getContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if !contest.Status.CanTransitionTo(to) {
		return nil, appErr.StateError(action, string(contest.Status))
	}
	return contest, nil
}

func (s *LifecycleService) getContest(ctx context.Context, contestID int64) (*model.Contest, error) {
	if contestID <= 0 {
		return nil, appErr.ValidationError("contest_id", "required")
	}
	contest, err := s.contestRepo.GetByID(ctx, nil, contestID)
	if err != nil {
		if errors.Is(err, repository.ErrContestNotFound) {
			return nil, appErr.NotFoundError("contest")
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load contest failed")
	}
	return contest, nil
}

func (s *LifecycleService) publishEvent(ctx context.Context, contest *model.Contest, from model.ContestStatus, actor, detail string) {
	s.emit(ctx, model.ContestEvent{
		EventID:   uuid.NewString(),
		ContestID: contest.ContestID,
		Kind:      model.EventKindTransition,
		From:      string(from),
		To:        string(contest.Status),
		Actor:     actor,
		Detail:    detail,
		Timestamp: time.Now().Unix(),
	})
}

func (s *LifecycleService) publishAnnouncement(ctx context.Context, contestID int64, message, actor string) {
	s.emit(ctx, model.ContestEvent{
		EventID:   uuid.NewString(),
		ContestID: contestID,
		Kind:      model.EventKindAnnouncement,
		Actor:     actor,
		Detail:    message,
		Timestamp: time.Now().Unix(),
	})
}

func (s *LifecycleService) publishDisqualify(ctx context.Context, contestID, participantID int64, actor, reason string) {
	s.emit(ctx, model.ContestEvent{
		EventID:   uuid.NewString(),
		ContestID: contestID,
		Kind:      model.EventKindDisqualify,
		Actor:     actor,
		Detail:    fmt.Sprintf("participant %d: %s", participantID, reason),
		Timestamp: time.Now().Unix(),
	})
}

func (s *LifecycleService) emit(ctx context.Context, event model.ContestEvent) {
	if s.mq == nil || s.eventTopic == "" {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	msg := mq.NewMessage(payload)
	msg.SetHeader("event_type", event.Kind)
	if err := s.mq.Publish(ctx, s.eventTopic, msg); err != nil {
		logger.Warn(ctx, "publish contest event failed",
			zap.Int64("contest_id", event.ContestID), zap.Error(err))
	}
}
