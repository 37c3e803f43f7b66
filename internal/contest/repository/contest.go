package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"arena/internal/common/cache"
	"arena/internal/common/db"
	"arena/internal/contest/model"
)

const (
	defaultContestCacheTTL      = 10 * time.Minute
	defaultContestCacheEmptyTTL = 1 * time.Minute
	contestCacheKeyPrefix       = "contest:"
)

var (
	ErrContestNotFound = errors.New("contest not found")
)

// ContestRepository defines contest persistence interfaces.
type ContestRepository interface {
	Create(ctx context.Context, tx db.Transaction, contest *model.Contest) (int64, error)
	GetByID(ctx context.Context, tx db.Transaction, contestID int64) (*model.Contest, error)
	Update(ctx context.Context, tx db.Transaction, contest *model.Contest) error
	UpdateStatus(ctx context.Context, tx db.Transaction, contestID int64, from, to model.ContestStatus) error
	ListByStatus(ctx context.Context, statuses ...model.ContestStatus) ([]*model.Contest, error)
}

// MySQLContestRepository implements ContestRepository with MySQL.
type MySQLContestRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewContestRepository creates a contest repository with default cache TTLs.
func NewContestRepository(database db.Database, cacheClient cache.Cache) ContestRepository {
	return &MySQLContestRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      defaultContestCacheTTL,
		emptyTTL: defaultContestCacheEmptyTTL,
	}
}

const contestColumns = "contest_id, name, description, status, problems, languages, start_at, duration_sec, end_at, freeze_minutes, allow_late_join, late_join_minutes, penalty_per_wrong, cancel_reason, created_by, created_at, updated_at"

// Create inserts a contest and returns its generated id.
func (r *MySQLContestRepository) Create(ctx context.Context, tx db.Transaction, contest *model.Contest) (int64, error) {
	if contest == nil {
		return 0, errors.New("contest is nil")
	}
	if contest.Name == "" {
		return 0, errors.New("name is required")
	}
	if !contest.Status.Valid() {
		return 0, errors.New("status is invalid")
	}

	problems, err := json.Marshal(contest.Problems)
	if err != nil {
		return 0, err
	}
	languages, err := json.Marshal(contest.Languages)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO contests
		(name, description, status, problems, languages, start_at, duration_sec, freeze_minutes, allow_late_join, late_join_minutes, penalty_per_wrong, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := db.GetQuerier(r.db, tx).Exec(
		ctx,
		query,
		contest.Name,
		contest.Description,
		string(contest.Status),
		string(problems),
		string(languages),
		contest.StartAt,
		contest.DurationSec,
		contest.FreezeMinutes,
		contest.AllowLateJoin,
		contest.LateJoinMinutes,
		contest.PenaltyPerWrong,
		contest.CreatedBy,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetByID retrieves a contest by id, cache-aside when outside a transaction.
func (r *MySQLContestRepository) GetByID(ctx context.Context, tx db.Transaction, contestID int64) (*model.Contest, error) {
	if contestID <= 0 {
		return nil, errors.New("contestID is required")
	}
	if r.cache != nil && tx == nil {
		contest, err := cache.GetWithCached[*model.Contest](
			ctx,
			r.cache,
			contestCacheKey(contestID),
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(c *model.Contest) bool { return c == nil },
			marshalContest,
			unmarshalContest,
			func(ctx context.Context) (*model.Contest, error) {
				c, err := r.getByIDFromDB(ctx, nil, contestID)
				if err != nil {
					if errors.Is(err, ErrContestNotFound) {
						return nil, nil
					}
					return nil, err
				}
				return c, nil
			},
		)
		if err != nil {
			return nil, err
		}
		if contest == nil {
			return nil, ErrContestNotFound
		}
		return contest, nil
	}
	return r.getByIDFromDB(ctx, tx, contestID)
}

// Update rewrites the mutable contest fields and invalidates the cache.
func (r *MySQLContestRepository) Update(ctx context.Context, tx db.Transaction, contest *model.Contest) error {
	if contest == nil || contest.ContestID <= 0 {
		return errors.New("contestID is required")
	}
	problems, err := json.Marshal(contest.Problems)
	if err != nil {
		return err
	}
	languages, err := json.Marshal(contest.Languages)
	if err != nil {
		return err
	}

	query := `
		UPDATE contests
		SET name = ?, description = ?, status = ?, problems = ?, languages = ?,
		    start_at = ?, duration_sec = ?, end_at = ?, freeze_minutes = ?,
		    allow_late_join = ?, late_join_minutes = ?, penalty_per_wrong = ?, cancel_reason = ?
		WHERE contest_id = ?
	`
	result, err := db.GetQuerier(r.db, tx).Exec(
		ctx,
		query,
		contest.Name,
		contest.Description,
		string(contest.Status),
		string(problems),
		string(languages),
		contest.StartAt,
		contest.DurationSec,
		contest.EndAt,
		contest.FreezeMinutes,
		contest.AllowLateJoin,
		contest.LateJoinMinutes,
		contest.PenaltyPerWrong,
		contest.CancelReason,
		contest.ContestID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrContestNotFound
	}
	r.invalidate(ctx, contest.ContestID)
	return nil
}

// UpdateStatus moves a contest between lifecycle states with an optimistic
// guard on the previous status. A zero row count means the contest moved
// concurrently or does not exist.
func (r *MySQLContestRepository) UpdateStatus(ctx context.Context, tx db.Transaction, contestID int64, from, to model.ContestStatus) error {
	if contestID <= 0 {
		return errors.New("contestID is required")
	}
	query := "UPDATE contests SET status = ? WHERE contest_id = ? AND status = ?"
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query, string(to), contestID, string(from))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrContestNotFound
	}
	r.invalidate(ctx, contestID)
	return nil
}

// ListByStatus returns contests in any of the given states, soonest start
// first. The scheduler uses this to find contests due for a time-driven
// transition.
func (r *MySQLContestRepository) ListByStatus(ctx context.Context, statuses ...model.ContestStatus) ([]*model.Contest, error) {
	if len(statuses) == 0 {
		return nil, errors.New("at least one status is required")
	}
	query := "SELECT " + contestColumns + " FROM contests WHERE status IN ("
	args := make([]interface{}, 0, len(statuses))
	for i, s := range statuses {
		if i > 0 {
			query += ", "
		}
		query += "?"
		args = append(args, string(s))
	}
	query += ") ORDER BY start_at ASC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contests []*model.Contest
	for rows.Next() {
		contest, err := scanContest(rows)
		if err != nil {
			return nil, err
		}
		contests = append(contests, contest)
	}
	return contests, rows.Err()
}

func (r *MySQLContestRepository) getByIDFromDB(ctx context.Context, tx db.Transaction, contestID int64) (*model.Contest, error) {
	query := "SELECT " + contestColumns + " FROM contests WHERE contest_id = ? LIMIT 1"
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, query, contestID)
	contest, err := scanContestRow(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrContestNotFound
		}
		return nil, err
	}
	return contest, nil
}

func (r *MySQLContestRepository) invalidate(ctx context.Context, contestID int64) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Del(ctx, contestCacheKey(contestID))
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanContest(s scanner) (*model.Contest, error) {
	contest := &model.Contest{}
	var (
		status       string
		problems     string
		languages    string
		endAt        *time.Time
		cancelReason *string
	)
	if err := s.Scan(
		&contest.ContestID,
		&contest.Name,
		&contest.Description,
		&status,
		&problems,
		&languages,
		&contest.StartAt,
		&contest.DurationSec,
		&endAt,
		&contest.FreezeMinutes,
		&contest.AllowLateJoin,
		&contest.LateJoinMinutes,
		&contest.PenaltyPerWrong,
		&cancelReason,
		&contest.CreatedBy,
		&contest.CreatedAt,
		&contest.UpdatedAt,
	); err != nil {
		return nil, err
	}
	contest.Status = model.ContestStatus(status)
	contest.EndAt = endAt
	if cancelReason != nil {
		contest.CancelReason = *cancelReason
	}
	if problems != "" {
		if err := json.Unmarshal([]byte(problems), &contest.Problems); err != nil {
			return nil, err
		}
	}
	if languages != "" {
		if err := json.Unmarshal([]byte(languages), &contest.Languages); err != nil {
			return nil, err
		}
	}
	return contest, nil
}

func scanContestRow(row db.Row) (*model.Contest, error) {
	return scanContest(row)
}

func contestCacheKey(contestID int64) string {
	return contestCacheKeyPrefix + formatID(contestID)
}

func marshalContest(contest *model.Contest) string {
	if contest == nil {
		return ""
	}
	data, err := json.Marshal(contest)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalContest(data string) (*model.Contest, error) {
	if data == "" || data == cache.NullCacheValue {
		return nil, nil
	}
	var contest model.Contest
	if err := json.Unmarshal([]byte(data), &contest); err != nil {
		return nil, err
	}
	return &contest, nil
}
