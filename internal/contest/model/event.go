package model

// ContestEvent is the Kafka payload published for lifecycle transitions
// and announcements.
type ContestEvent struct {
	EventID   string `json:"event_id"`
	ContestID int64  `json:"contest_id"`
	Kind      string `json:"kind"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Actor     string `json:"actor,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Event kinds carried on the contest event topic.
const (
	EventKindTransition   = "transition"
	EventKindAnnouncement = "announcement"
	EventKindDisqualify   = "disqualify"
)

// SubmissionEvent is the Kafka payload published after a submission has
// been judged.
type SubmissionEvent struct {
	EventID       string `json:"event_id"`
	SubmissionID  string `json:"submission_id"`
	ContestID     int64  `json:"contest_id"`
	ParticipantID int64  `json:"participant_id"`
	ProblemLabel  string `json:"problem_label"`
	Verdict       string `json:"verdict"`
	PassedCases   int    `json:"passed_cases"`
	TotalCases    int    `json:"total_cases"`
	FirstSolve    bool   `json:"first_solve"`
	Timestamp     int64  `json:"timestamp"`
}
