package service

import (
	"context"
	"errors"
	"fmt"

	"arena/internal/contest/model"
	"arena/internal/contest/repository"
	"arena/internal/leaderboard"
	appErr "arena/pkg/errors"
)

// QueryService serves read-side projections of contests, standings and
// submissions.
type QueryService struct {
	contestRepo      repository.ContestRepository
	registrationRepo repository.RegistrationRepository
	submissionRepo   repository.SubmissionRepository
	board            *leaderboard.Store
	snapshots        *leaderboard.SnapshotRepository
}

// NewQueryService creates a query service.
func NewQueryService(
	contestRepo repository.ContestRepository,
	registrationRepo repository.RegistrationRepository,
	submissionRepo repository.SubmissionRepository,
	board *leaderboard.Store,
	snapshots *leaderboard.SnapshotRepository,
) (*QueryService, error) {
	if contestRepo == nil {
		return nil, fmt.Errorf("contest repository is required")
	}
	if registrationRepo == nil {
		return nil, fmt.Errorf("registration repository is required")
	}
	if submissionRepo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if board == nil {
		return nil, fmt.Errorf("leaderboard store is required")
	}
	return &QueryService{
		contestRepo:      contestRepo,
		registrationRepo: registrationRepo,
		submissionRepo:   submissionRepo,
		board:            board,
		snapshots:        snapshots,
	}, nil
}

// GetContest returns one contest. Draft contests are only visible to
// admins.
func (s *QueryService) GetContest(ctx context.Context, contestID int64, admin bool) (*model.Contest, error) {
	contest, err := s.contestRepo.GetByID(ctx, nil, contestID)
	if err != nil {
		if errors.Is(err, repository.ErrContestNotFound) {
			return nil, appErr.NotFoundError("contest")
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load contest failed")
	}
	if contest.Status == model.StatusDraft && !admin {
		return nil, appErr.NotFoundError("contest")
	}
	return contest, nil
}

// ListRegistrations returns one page of a contest's registrations in
// standing order.
func (s *QueryService) ListRegistrations(ctx context.Context, contestID int64, page, size int) ([]*model.Registration, int64, error) {
	registrations, total, err := s.registrationRepo.ListByContest(ctx, contestID, page, size)
	if err != nil {
		return nil, 0, appErr.Wrapf(err, appErr.DatabaseError, "list registrations failed")
	}
	return registrations, total, nil
}

// ListSubmissions returns one page of submissions. Non-admin callers only
// see their own source code; everyone else's listing is stripped.
func (s *QueryService) ListSubmissions(ctx context.Context, filter repository.SubmissionFilter, page, size int, viewerID int64, admin bool) ([]*model.Submission, int64, error) {
	submissions, total, err := s.submissionRepo.List(ctx, filter, page, size)
	if err != nil {
		return nil, 0, appErr.Wrapf(err, appErr.DatabaseError, "list submissions failed")
	}
	if admin {
		return submissions, total, nil
	}
	out := make([]*model.Submission, len(submissions))
	for i, sub := range submissions {
		if sub.ParticipantID == viewerID {
			out[i] = sub
			continue
		}
		out[i] = sub.Public()
	}
	return out, total, nil
}

// GetSubmission returns one submission. Source code is only visible to its
// owner and admins.
func (s *QueryService) GetSubmission(ctx context.Context, submissionID string, viewerID int64, admin bool) (*model.Submission, error) {
	submission, err := s.submissionRepo.GetByID(ctx, nil, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErr.NotFoundError("submission")
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load submission failed")
	}
	if !admin && submission.ParticipantID != viewerID {
		return submission.Public(), nil
	}
	return submission, nil
}

// Leaderboard returns one page of the visible standings. Live contests are
// served from the in-memory board; ended contests fall back to the
// persisted snapshot when the board is gone.
func (s *QueryService) Leaderboard(ctx context.Context, contestID int64, page, size int) ([]leaderboard.Row, int, error) {
	rows, total, err := s.board.Page(contestID, page, size)
	if err == nil {
		return rows, total, nil
	}
	if !errors.Is(err, leaderboard.ErrBoardNotFound) || s.snapshots == nil {
		return nil, 0, appErr.Wrap(err, appErr.BoardNotInitialized)
	}

	all, err := s.snapshots.Load(ctx, contestID)
	if err != nil {
		if errors.Is(err, leaderboard.ErrSnapshotNotFound) {
			return nil, 0, appErr.New(appErr.RankingNotAvailable).WithMessage("standings are not available")
		}
		return nil, 0, appErr.Wrap(err, appErr.CacheError)
	}
	total = len(all)
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	start := (page - 1) * size
	if start >= total {
		return []leaderboard.Row{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}
