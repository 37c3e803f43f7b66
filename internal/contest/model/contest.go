package model

import "time"

// ContestStatus is the lifecycle state of a contest.
type ContestStatus string

const (
	StatusDraft     ContestStatus = "draft"
	StatusScheduled ContestStatus = "scheduled"
	StatusLive      ContestStatus = "live"
	StatusEnded     ContestStatus = "ended"
	StatusCancelled ContestStatus = "cancelled"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s ContestStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusLive, StatusEnded, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle edge from s to next exists.
// Forward progress is monotonic; cancellation is reachable from any state
// that has not already finished.
func (s ContestStatus) CanTransitionTo(next ContestStatus) bool {
	switch next {
	case StatusScheduled:
		return s == StatusDraft
	case StatusLive:
		return s == StatusDraft || s == StatusScheduled
	case StatusEnded:
		return s == StatusLive
	case StatusCancelled:
		return s == StatusDraft || s == StatusScheduled || s == StatusLive
	}
	return false
}

// Terminal reports whether no further transitions leave this status.
func (s ContestStatus) Terminal() bool {
	return s == StatusEnded || s == StatusCancelled
}

// ContestProblem binds a problem to a contest under a display label.
type ContestProblem struct {
	ProblemID int64  `json:"problem_id"`
	Label     string `json:"label"`
	Points    int    `json:"points"`
}

// Contest is a timed competition over a fixed problem set.
type Contest struct {
	ContestID        int64
	Name             string
	Description      string
	Status           ContestStatus
	Problems         []ContestProblem
	Languages        []string
	StartAt          time.Time
	DurationSec      int64
	EndAt            *time.Time
	FreezeMinutes    int
	AllowLateJoin    bool
	LateJoinMinutes  int
	PenaltyPerWrong  int
	CancelReason     string
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EffectiveEndAt returns the fixed end time once the contest has started,
// otherwise the scheduled start plus duration.
func (c *Contest) EffectiveEndAt() time.Time {
	if c.EndAt != nil {
		return *c.EndAt
	}
	return c.StartAt.Add(time.Duration(c.DurationSec) * time.Second)
}

// FreezeAt returns the instant the visible leaderboard freezes. A zero
// freeze window means the board never freezes.
func (c *Contest) FreezeAt() (time.Time, bool) {
	if c.FreezeMinutes <= 0 {
		return time.Time{}, false
	}
	return c.EffectiveEndAt().Add(-time.Duration(c.FreezeMinutes) * time.Minute), true
}

// LateJoinDeadline returns the last instant a new registration is accepted
// after the contest went live.
func (c *Contest) LateJoinDeadline() time.Time {
	if !c.AllowLateJoin {
		return c.StartAt
	}
	return c.StartAt.Add(time.Duration(c.LateJoinMinutes) * time.Minute)
}

// ProblemByLabel finds the contest problem carrying the given label.
func (c *Contest) ProblemByLabel(label string) (ContestProblem, bool) {
	for _, p := range c.Problems {
		if p.Label == label {
			return p, true
		}
	}
	return ContestProblem{}, false
}

// LanguageAllowed reports whether the contest accepts submissions in the
// given language. An empty language list allows everything the judge
// backend supports.
func (c *Contest) LanguageAllowed(language string) bool {
	if len(c.Languages) == 0 {
		return true
	}
	for _, l := range c.Languages {
		if l == language {
			return true
		}
	}
	return false
}
