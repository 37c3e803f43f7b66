package repository

import (
	"context"
	"encoding/json"
	"errors"

	"arena/internal/common/db"
	"arena/internal/contest/model"
)

var (
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrAlreadyRegistered    = errors.New("participant already registered")
)

// RegistrationRepository defines registration persistence interfaces.
type RegistrationRepository interface {
	Create(ctx context.Context, tx db.Transaction, registration *model.Registration) (int64, error)
	GetByContestAndParticipant(ctx context.Context, tx db.Transaction, contestID, participantID int64) (*model.Registration, error)
	Update(ctx context.Context, tx db.Transaction, registration *model.Registration) error
	ListByContest(ctx context.Context, contestID int64, page, size int) ([]*model.Registration, int64, error)
	CompleteAll(ctx context.Context, tx db.Transaction, contestID int64) error
	CountByContest(ctx context.Context, contestID int64) (int64, error)
}

// MySQLRegistrationRepository implements RegistrationRepository with MySQL.
type MySQLRegistrationRepository struct {
	db db.Database
}

// NewRegistrationRepository creates a registration repository.
func NewRegistrationRepository(database db.Database) RegistrationRepository {
	return &MySQLRegistrationRepository{db: database}
}

const registrationColumns = "registration_id, contest_id, participant_id, alias, status, score, solved_count, penalty_sec, total_time_sec, final_rank, seq, problems, disqual_reason, registered_at, updated_at"

// Create inserts a registration. The seq column is the contest-scoped
// registration order used as the last leaderboard tie-break.
func (r *MySQLRegistrationRepository) Create(ctx context.Context, tx db.Transaction, registration *model.Registration) (int64, error) {
	if registration == nil {
		return 0, errors.New("registration is nil")
	}
	if registration.ContestID <= 0 {
		return 0, errors.New("contestID is required")
	}
	if registration.ParticipantID <= 0 {
		return 0, errors.New("participantID is required")
	}

	problems, err := marshalProgress(registration.Problems)
	if err != nil {
		return 0, err
	}
	query := `
		INSERT INTO registrations
		(contest_id, participant_id, alias, status, score, solved_count, penalty_sec, total_time_sec, final_rank, seq, problems)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(r2.seq), 0) + 1 FROM registrations r2 WHERE r2.contest_id = ?), ?)
	`
	result, err := db.GetQuerier(r.db, tx).Exec(
		ctx,
		query,
		registration.ContestID,
		registration.ParticipantID,
		registration.Alias,
		string(registration.Status),
		registration.Score,
		registration.SolvedCount,
		registration.PenaltySec,
		registration.TotalTimeSec,
		registration.FinalRank,
		registration.ContestID,
		problems,
	)
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return 0, ErrAlreadyRegistered
		}
		return 0, err
	}
	return result.LastInsertId()
}

// GetByContestAndParticipant retrieves a participant's registration.
func (r *MySQLRegistrationRepository) GetByContestAndParticipant(ctx context.Context, tx db.Transaction, contestID, participantID int64) (*model.Registration, error) {
	if contestID <= 0 || participantID <= 0 {
		return nil, errors.New("contestID and participantID are required")
	}
	query := "SELECT " + registrationColumns + " FROM registrations WHERE contest_id = ? AND participant_id = ? LIMIT 1"
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, query, contestID, participantID)
	registration, err := scanRegistration(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrRegistrationNotFound
		}
		return nil, err
	}
	return registration, nil
}

// Update rewrites the mutable registration fields.
func (r *MySQLRegistrationRepository) Update(ctx context.Context, tx db.Transaction, registration *model.Registration) error {
	if registration == nil || registration.RegistrationID <= 0 {
		return errors.New("registrationID is required")
	}
	problems, err := marshalProgress(registration.Problems)
	if err != nil {
		return err
	}
	query := `
		UPDATE registrations
		SET status = ?, score = ?, solved_count = ?, penalty_sec = ?, total_time_sec = ?,
		    final_rank = ?, problems = ?, disqual_reason = ?
		WHERE registration_id = ?
	`
	result, err := db.GetQuerier(r.db, tx).Exec(
		ctx,
		query,
		string(registration.Status),
		registration.Score,
		registration.SolvedCount,
		registration.PenaltySec,
		registration.TotalTimeSec,
		registration.FinalRank,
		problems,
		registration.DisqualReason,
		registration.RegistrationID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRegistrationNotFound
	}
	return nil
}

// ListByContest returns registrations in standing order. Ended contests
// order by final rank, otherwise by the live scoring keys.
func (r *MySQLRegistrationRepository) ListByContest(ctx context.Context, contestID int64, page, size int) ([]*model.Registration, int64, error) {
	if contestID <= 0 {
		return nil, 0, errors.New("contestID is required")
	}
	page, size = normalizePage(page, size)

	total, err := r.CountByContest(ctx, contestID)
	if err != nil {
		return nil, 0, err
	}

	query := "SELECT " + registrationColumns + ` FROM registrations
		WHERE contest_id = ?
		ORDER BY CASE WHEN final_rank > 0 THEN final_rank ELSE 2147483647 END ASC,
		         score DESC, solved_count DESC, total_time_sec ASC, penalty_sec ASC, seq ASC
		LIMIT ? OFFSET ?`
	rows, err := r.db.Query(ctx, query, contestID, size, (page-1)*size)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var registrations []*model.Registration
	for rows.Next() {
		registration, err := scanRegistration(rows)
		if err != nil {
			return nil, 0, err
		}
		registrations = append(registrations, registration)
	}
	return registrations, total, rows.Err()
}

// CompleteAll marks every still-active registration of a contest completed.
func (r *MySQLRegistrationRepository) CompleteAll(ctx context.Context, tx db.Transaction, contestID int64) error {
	if contestID <= 0 {
		return errors.New("contestID is required")
	}
	query := "UPDATE registrations SET status = ? WHERE contest_id = ? AND status IN (?, ?)"
	_, err := db.GetQuerier(r.db, tx).Exec(
		ctx,
		query,
		string(model.RegistrationCompleted),
		contestID,
		string(model.RegistrationRegistered),
		string(model.RegistrationParticipating),
	)
	return err
}

// CountByContest returns the number of registrations in a contest.
func (r *MySQLRegistrationRepository) CountByContest(ctx context.Context, contestID int64) (int64, error) {
	if contestID <= 0 {
		return 0, errors.New("contestID is required")
	}
	row := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM registrations WHERE contest_id = ?", contestID)
	var total int64
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func scanRegistration(s scanner) (*model.Registration, error) {
	registration := &model.Registration{}
	var (
		status        string
		problems      string
		disqualReason *string
	)
	if err := s.Scan(
		&registration.RegistrationID,
		&registration.ContestID,
		&registration.ParticipantID,
		&registration.Alias,
		&status,
		&registration.Score,
		&registration.SolvedCount,
		&registration.PenaltySec,
		&registration.TotalTimeSec,
		&registration.FinalRank,
		&registration.Seq,
		&problems,
		&disqualReason,
		&registration.RegisteredAt,
		&registration.UpdatedAt,
	); err != nil {
		return nil, err
	}
	registration.Status = model.RegistrationStatus(status)
	if disqualReason != nil {
		registration.DisqualReason = *disqualReason
	}
	if problems != "" {
		if err := json.Unmarshal([]byte(problems), &registration.Problems); err != nil {
			return nil, err
		}
	}
	return registration, nil
}

func marshalProgress(problems map[string]*model.ProblemProgress) (string, error) {
	if problems == nil {
		problems = map[string]*model.ProblemProgress{}
	}
	data, err := json.Marshal(problems)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
