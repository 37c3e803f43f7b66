package repository

import (
	"context"
	"errors"
	"time"

	"arena/internal/common/db"
	"arena/internal/contest/model"
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
)

// SubmissionFilter narrows submission listings.
type SubmissionFilter struct {
	ContestID     int64
	ParticipantID int64
	ProblemLabel  string
	Verdict       model.Verdict
}

// SubmissionRepository defines submission persistence interfaces.
type SubmissionRepository interface {
	Create(ctx context.Context, tx db.Transaction, submission *model.Submission) error
	GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*model.Submission, error)
	UpdateResult(ctx context.Context, tx db.Transaction, submission *model.Submission) error
	List(ctx context.Context, filter SubmissionFilter, page, size int) ([]*model.Submission, int64, error)
	CountSince(ctx context.Context, contestID, participantID int64, since time.Time) (int64, error)
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	db db.Database
}

// NewSubmissionRepository creates a submission repository.
func NewSubmissionRepository(database db.Database) SubmissionRepository {
	return &MySQLSubmissionRepository{db: database}
}

const submissionColumns = "submission_id, contest_id, participant_id, problem_id, problem_label, language, source_code, source_bytes, verdict, passed_cases, attempted_cases, total_cases, time_ms, memory_kb, compile_output, elapsed_sec, flagged, flag_reason, created_at, judged_at"

// Create inserts a submission in its pending state.
func (r *MySQLSubmissionRepository) Create(ctx context.Context, tx db.Transaction, submission *model.Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.SubmissionID == "" {
		return errors.New("submissionID is required")
	}
	if submission.ContestID <= 0 {
		return errors.New("contestID is required")
	}
	if submission.ParticipantID <= 0 {
		return errors.New("participantID is required")
	}
	if submission.Language == "" {
		return errors.New("language is required")
	}

	query := `
		INSERT INTO submissions
		(submission_id, contest_id, participant_id, problem_id, problem_label, language, source_code, source_bytes, verdict, elapsed_sec, flagged, flag_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.GetQuerier(r.db, tx).Exec(
		ctx,
		query,
		submission.SubmissionID,
		submission.ContestID,
		submission.ParticipantID,
		submission.ProblemID,
		submission.ProblemLabel,
		submission.Language,
		submission.SourceCode,
		submission.SourceBytes,
		string(submission.Verdict),
		submission.ElapsedSec,
		submission.Flagged,
		submission.FlagReason,
	)
	return err
}

// GetByID retrieves a submission by id.
func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*model.Submission, error) {
	if submissionID == "" {
		return nil, errors.New("submissionID is required")
	}
	query := "SELECT " + submissionColumns + " FROM submissions WHERE submission_id = ? LIMIT 1"
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, query, submissionID)
	submission, err := scanSubmission(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return submission, nil
}

// UpdateResult records the judged outcome of a submission.
func (r *MySQLSubmissionRepository) UpdateResult(ctx context.Context, tx db.Transaction, submission *model.Submission) error {
	if submission == nil || submission.SubmissionID == "" {
		return errors.New("submissionID is required")
	}
	query := `
		UPDATE submissions
		SET verdict = ?, passed_cases = ?, attempted_cases = ?, total_cases = ?,
		    time_ms = ?, memory_kb = ?, compile_output = ?, judged_at = ?
		WHERE submission_id = ?
	`
	result, err := db.GetQuerier(r.db, tx).Exec(
		ctx,
		query,
		string(submission.Verdict),
		submission.PassedCases,
		submission.AttemptedCases,
		submission.TotalCases,
		submission.TimeMS,
		submission.MemoryKB,
		submission.CompileOutput,
		submission.JudgedAt,
		submission.SubmissionID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}

// List returns submissions matching the filter, newest first.
func (r *MySQLSubmissionRepository) List(ctx context.Context, filter SubmissionFilter, page, size int) ([]*model.Submission, int64, error) {
	if filter.ContestID <= 0 {
		return nil, 0, errors.New("contestID is required")
	}
	page, size = normalizePage(page, size)

	where := "WHERE contest_id = ?"
	args := []interface{}{filter.ContestID}
	if filter.ParticipantID > 0 {
		where += " AND participant_id = ?"
		args = append(args, filter.ParticipantID)
	}
	if filter.ProblemLabel != "" {
		where += " AND problem_label = ?"
		args = append(args, filter.ProblemLabel)
	}
	if filter.Verdict != "" {
		where += " AND verdict = ?"
		args = append(args, string(filter.Verdict))
	}

	var total int64
	row := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM submissions "+where, args...)
	if err := row.Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + submissionColumns + " FROM submissions " + where +
		" ORDER BY created_at DESC, submission_id DESC LIMIT ? OFFSET ?"
	args = append(args, size, (page-1)*size)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var submissions []*model.Submission
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		submissions = append(submissions, submission)
	}
	return submissions, total, rows.Err()
}

// CountSince counts a participant's submissions in a contest created at or
// after the given instant. The submit rate limit falls back to this when
// the cache is unavailable.
func (r *MySQLSubmissionRepository) CountSince(ctx context.Context, contestID, participantID int64, since time.Time) (int64, error) {
	if contestID <= 0 || participantID <= 0 {
		return 0, errors.New("contestID and participantID are required")
	}
	query := "SELECT COUNT(*) FROM submissions WHERE contest_id = ? AND participant_id = ? AND created_at >= ?"
	row := r.db.QueryRow(ctx, query, contestID, participantID, since)
	var total int64
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func scanSubmission(s scanner) (*model.Submission, error) {
	submission := &model.Submission{}
	var (
		verdict       string
		compileOutput *string
		flagReason    *string
		judgedAt      *time.Time
	)
	if err := s.Scan(
		&submission.SubmissionID,
		&submission.ContestID,
		&submission.ParticipantID,
		&submission.ProblemID,
		&submission.ProblemLabel,
		&submission.Language,
		&submission.SourceCode,
		&submission.SourceBytes,
		&verdict,
		&submission.PassedCases,
		&submission.AttemptedCases,
		&submission.TotalCases,
		&submission.TimeMS,
		&submission.MemoryKB,
		&compileOutput,
		&submission.ElapsedSec,
		&submission.Flagged,
		&flagReason,
		&submission.CreatedAt,
		&judgedAt,
	); err != nil {
		return nil, err
	}
	submission.Verdict = model.Verdict(verdict)
	if compileOutput != nil {
		submission.CompileOutput = *compileOutput
	}
	if flagReason != nil {
		submission.FlagReason = *flagReason
	}
	submission.JudgedAt = judgedAt
	return submission, nil
}
