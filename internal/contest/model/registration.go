package model

import "time"

// RegistrationStatus is the participation state of a contestant within a
// single contest.
type RegistrationStatus string

const (
	RegistrationRegistered    RegistrationStatus = "registered"
	RegistrationParticipating RegistrationStatus = "participating"
	RegistrationCompleted     RegistrationStatus = "completed"
	RegistrationDisqualified  RegistrationStatus = "disqualified"
)

// Active reports whether the registration may still submit.
func (s RegistrationStatus) Active() bool {
	return s == RegistrationRegistered || s == RegistrationParticipating
}

// ProblemProgress tracks one participant's standing on one problem.
type ProblemProgress struct {
	Solved      bool  `json:"solved"`
	WrongTries  int   `json:"wrong_tries"`
	SolvedAtSec int64 `json:"solved_at_sec,omitempty"`
}

// Registration binds a participant to a contest and accumulates their
// score, penalty and per-problem progress.
type Registration struct {
	RegistrationID int64
	ContestID      int64
	ParticipantID  int64
	Alias          string
	Status         RegistrationStatus
	Score          int
	SolvedCount    int
	PenaltySec     int64
	TotalTimeSec   int64
	FinalRank      int
	Seq            int64
	Problems       map[string]*ProblemProgress
	DisqualReason  string
	RegisteredAt   time.Time
	UpdatedAt      time.Time
}

// Progress returns the progress record for a problem label, creating an
// empty one when the participant has not touched the problem yet.
func (r *Registration) Progress(label string) *ProblemProgress {
	if r.Problems == nil {
		r.Problems = make(map[string]*ProblemProgress)
	}
	p, ok := r.Problems[label]
	if !ok {
		p = &ProblemProgress{}
		r.Problems[label] = p
	}
	return p
}

// ApplyVerdict folds a scored submission outcome into the registration.
// Wrong tries only accrue penalty once the problem is eventually solved,
// and every outcome after the first accepted answer changes nothing.
// Returns true when this submission was the first accepted answer for the
// problem.
func (r *Registration) ApplyVerdict(problem ContestProblem, verdict Verdict, elapsedSec int64, penaltyPerWrong int) bool {
	p := r.Progress(problem.Label)
	if p.Solved {
		return false
	}
	if verdict != VerdictAccepted {
		p.WrongTries++
		return false
	}
	p.Solved = true
	p.SolvedAtSec = elapsedSec
	penalty := int64(p.WrongTries) * int64(penaltyPerWrong)
	r.Score += problem.Points
	r.SolvedCount++
	r.PenaltySec += penalty
	r.TotalTimeSec += elapsedSec + penalty
	return true
}
