package gateway

import "encoding/json"

// Client-to-server message types.
const (
	MsgAuthenticate   = "authenticate"
	MsgJoinContest    = "join_contest"
	MsgLeaveContest   = "leave_contest"
	MsgGetLeaderboard = "get_leaderboard"
	MsgGetServerTime  = "get_server_time"
)

// Server-to-client message types.
const (
	MsgConnected         = "connected"
	MsgServerTime        = "server_time"
	MsgAuthenticated     = "authenticated"
	MsgJoined            = "joined_contest"
	MsgLeft              = "left_contest"
	MsgError             = "error"
	MsgContestStarted    = "contest_started"
	MsgContestEnded      = "contest_ended"
	MsgContestStatus     = "contest_status"
	MsgAnnouncement      = "announcement"
	MsgLeaderboard       = "leaderboard"
	MsgLeaderboardUpdate = "leaderboard_update"
	MsgSubmissionResult  = "submission_result"
	MsgSolveNotification = "solve_notification"
	MsgParticipantCount  = "participant_count"
	MsgDisqualified      = "disqualified"
)

// Message is the wire envelope for every websocket frame.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is the server-side envelope; the payload marshals inline.
type Outbound struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// ConnectedPayload greets a new connection. Clients sync countdown clocks
// from ServerTime rather than their local clock.
type ConnectedPayload struct {
	ConnID     string `json:"conn_id"`
	ServerTime int64  `json:"server_time"`
}

// ServerTimePayload answers a get_server_time request.
type ServerTimePayload struct {
	ServerTime int64 `json:"server_time"`
}

// AuthenticatePayload carries the bearer token of a connecting client.
type AuthenticatePayload struct {
	Token string `json:"token"`
}

// JoinContestPayload selects the contest room to join.
type JoinContestPayload struct {
	ContestID int64 `json:"contest_id"`
}

// GetLeaderboardPayload requests one page of the visible standings.
type GetLeaderboardPayload struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// ErrorPayload reports a structured error without closing the connection.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SubmissionResultPayload delivers a judged verdict to its submitter.
type SubmissionResultPayload struct {
	SubmissionID  string `json:"submission_id"`
	ProblemLabel  string `json:"problem_label"`
	Verdict       string `json:"verdict"`
	PassedCases   int    `json:"passed_cases"`
	TotalCases    int    `json:"total_cases"`
	TimeMS        int64  `json:"time_ms"`
	MemoryKB      int64  `json:"memory_kb"`
	CompileOutput string `json:"compile_output,omitempty"`
}

// SolveNotificationPayload announces that a problem was just solved for
// the first time. The broadcast is anonymous and never names the solver.
type SolveNotificationPayload struct {
	ProblemLabel string `json:"problem_label"`
	SolvedAtSec  int64  `json:"solved_at_sec"`
}

// AnnouncementPayload carries an organizer broadcast.
type AnnouncementPayload struct {
	Message  string `json:"message"`
	Priority string `json:"priority,omitempty"`
}

// ParticipantCountPayload reports the live connection count of a room.
type ParticipantCountPayload struct {
	ContestID int64 `json:"contest_id"`
	Count     int   `json:"count"`
}

// ContestStatusPayload accompanies lifecycle broadcasts.
type ContestStatusPayload struct {
	ContestID int64  `json:"contest_id"`
	Status    string `json:"status"`
	EndAt     int64  `json:"end_at,omitempty"`
	Reason    string `json:"reason,omitempty"`
}
