package model

import "time"

// Verdict is the judged outcome of a submission.
type Verdict string

const (
	VerdictPending            Verdict = "pending"
	VerdictAccepted           Verdict = "accepted"
	VerdictWrongAnswer        Verdict = "wrong_answer"
	VerdictRuntimeError       Verdict = "runtime_error"
	VerdictTimeLimitExceeded  Verdict = "time_limit_exceeded"
	VerdictCompileError       Verdict = "compile_error"
	VerdictServiceUnavailable Verdict = "service_unavailable"
)

// verdictRank orders verdicts by severity. A submission's overall verdict
// is the highest ranked outcome among its attempted test cases.
var verdictRank = map[Verdict]int{
	VerdictAccepted:           0,
	VerdictWrongAnswer:        1,
	VerdictRuntimeError:       2,
	VerdictTimeLimitExceeded:  3,
	VerdictServiceUnavailable: 4,
	VerdictCompileError:       5,
}

// Rank returns the severity rank used when aggregating per-case outcomes.
func (v Verdict) Rank() int {
	return verdictRank[v]
}

// Scored reports whether the verdict counts toward the participant's
// standing. Compile errors and judge outages never cost a wrong try.
func (v Verdict) Scored() bool {
	switch v {
	case VerdictAccepted, VerdictWrongAnswer, VerdictRuntimeError, VerdictTimeLimitExceeded:
		return true
	}
	return false
}

// Final reports whether judging has concluded for the submission.
func (v Verdict) Final() bool {
	return v != VerdictPending && v != ""
}

// Submission is one judged attempt at a contest problem.
type Submission struct {
	SubmissionID   string
	ContestID      int64
	ParticipantID  int64
	ProblemID      int64
	ProblemLabel   string
	Language       string
	SourceCode     string
	SourceBytes    int
	Verdict        Verdict
	PassedCases    int
	AttemptedCases int
	TotalCases     int
	TimeMS         int64
	MemoryKB       int64
	CompileOutput  string
	ElapsedSec     int64
	Flagged        bool
	FlagReason     string
	CreatedAt      time.Time
	JudgedAt       *time.Time
}

// Public returns a copy stripped of fields that never appear in
// participant-facing listings.
func (s *Submission) Public() *Submission {
	out := *s
	out.SourceCode = ""
	out.FlagReason = ""
	return &out
}
