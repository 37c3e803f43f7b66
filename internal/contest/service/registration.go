package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"arena/internal/contest/model"
	"arena/internal/contest/repository"
	appErr "arena/pkg/errors"
)

// RegistrationService handles participant sign-up.
type RegistrationService struct {
	contestRepo      repository.ContestRepository
	registrationRepo repository.RegistrationRepository
}

// NewRegistrationService creates a registration service.
func NewRegistrationService(contestRepo repository.ContestRepository, registrationRepo repository.RegistrationRepository) (*RegistrationService, error) {
	if contestRepo == nil {
		return nil, fmt.Errorf("contest repository is required")
	}
	if registrationRepo == nil {
		return nil, fmt.Errorf("registration repository is required")
	}
	return &RegistrationService{
		contestRepo:      contestRepo,
		registrationRepo: registrationRepo,
	}, nil
}

// Register signs a participant up for a contest. Registration is open
// while the contest is scheduled and, when late joining is allowed, until
// the late join deadline after it goes live.
func (s *RegistrationService) Register(ctx context.Context, contestID, participantID int64, alias string) (*model.Registration, error) {
	if contestID <= 0 {
		return nil, appErr.ValidationError("contest_id", "required")
	}
	if participantID <= 0 {
		return nil, appErr.ValidationError("participant_id", "required")
	}

	contest, err := s.contestRepo.GetByID(ctx, nil, contestID)
	if err != nil {
		if errors.Is(err, repository.ErrContestNotFound) {
			return nil, appErr.NotFoundError("contest")
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load contest failed")
	}

	switch contest.Status {
	case model.StatusScheduled:
	case model.StatusLive:
		if !contest.AllowLateJoin || time.Now().After(contest.LateJoinDeadline()) {
			return nil, appErr.New(appErr.LateJoinClosed).WithMessage("late join window has closed")
		}
	default:
		return nil, appErr.StateError("register for", string(contest.Status))
	}

	registration := &model.Registration{
		ContestID:     contestID,
		ParticipantID: participantID,
		Alias:         alias,
		Status:        model.RegistrationRegistered,
		RegisteredAt:  time.Now(),
	}
	if contest.Status == model.StatusLive {
		registration.Status = model.RegistrationParticipating
	}
	id, err := s.registrationRepo.Create(ctx, nil, registration)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyRegistered) {
			return nil, appErr.New(appErr.AlreadyRegistered).WithMessage("participant is already registered")
		}
		return nil, appErr.Wrapf(err, appErr.RegistrationFailed, "create registration failed")
	}
	registration.RegistrationID = id
	return s.registrationRepo.GetByContestAndParticipant(ctx, nil, contestID, participantID)
}
