package controller

import (
	"time"

	"arena/internal/contest/model"
)

// CreateContestRequest creates a draft contest.
type CreateContestRequest struct {
	Name            string                 `json:"name" binding:"required"`
	Description     string                 `json:"description"`
	Problems        []model.ContestProblem `json:"problems"`
	Languages       []string               `json:"languages"`
	StartAt         time.Time              `json:"start_at"`
	DurationSec     int64                  `json:"duration_sec" binding:"required"`
	FreezeMinutes   int                    `json:"freeze_minutes"`
	AllowLateJoin   bool                   `json:"allow_late_join"`
	LateJoinMinutes int                    `json:"late_join_minutes"`
	PenaltyPerWrong int                    `json:"penalty_per_wrong"`
}

// CancelRequest carries the cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// DisqualifyRequest names the participant to remove.
type DisqualifyRequest struct {
	ParticipantID int64  `json:"participant_id" binding:"required"`
	Reason        string `json:"reason"`
}

// AnnounceRequest carries an organizer broadcast.
type AnnounceRequest struct {
	Message  string `json:"message" binding:"required"`
	Priority string `json:"priority"`
}

// RegisterRequest signs a participant up.
type RegisterRequest struct {
	ParticipantID int64  `json:"participant_id" binding:"required"`
	Alias         string `json:"alias"`
}

// SubmitRequest submits code for judging.
type SubmitRequest struct {
	ParticipantID int64  `json:"participant_id" binding:"required"`
	ProblemLabel  string `json:"problem_label" binding:"required"`
	Language      string `json:"language" binding:"required"`
	SourceCode    string `json:"source_code" binding:"required"`
	Alias         string `json:"alias"`
}

// SubmitResponse acknowledges a queued submission.
type SubmitResponse struct {
	SubmissionID string `json:"submission_id"`
	Verdict      string `json:"verdict"`
}

// PageResponse wraps a paged listing.
type PageResponse struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Size  int         `json:"size"`
}
