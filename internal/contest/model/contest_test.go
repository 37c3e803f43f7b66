package model

import (
	"testing"
	"time"
)

func TestContestStatusTransitions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		from ContestStatus
		to   ContestStatus
		want bool
	}{
		{name: "draft to scheduled", from: StatusDraft, to: StatusScheduled, want: true},
		{name: "draft to live", from: StatusDraft, to: StatusLive, want: true},
		{name: "draft to cancelled", from: StatusDraft, to: StatusCancelled, want: true},
		{name: "scheduled to live", from: StatusScheduled, to: StatusLive, want: true},
		{name: "scheduled to cancelled", from: StatusScheduled, to: StatusCancelled, want: true},
		{name: "live to ended", from: StatusLive, to: StatusEnded, want: true},
		{name: "live to cancelled", from: StatusLive, to: StatusCancelled, want: true},
		{name: "draft to ended", from: StatusDraft, to: StatusEnded, want: false},
		{name: "scheduled to ended", from: StatusScheduled, to: StatusEnded, want: false},
		{name: "scheduled to draft", from: StatusScheduled, to: StatusDraft, want: false},
		{name: "ended to live", from: StatusEnded, to: StatusLive, want: false},
		{name: "ended to cancelled", from: StatusEnded, to: StatusCancelled, want: false},
		{name: "cancelled to live", from: StatusCancelled, to: StatusLive, want: false},
		{name: "live to scheduled", from: StatusLive, to: StatusScheduled, want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestContestStatusTerminal(t *testing.T) {
	t.Parallel()
	for _, s := range []ContestStatus{StatusDraft, StatusScheduled, StatusLive} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []ContestStatus{StatusEnded, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestEffectiveEndAt(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	contest := &Contest{StartAt: start, DurationSec: 7200}

	if got := contest.EffectiveEndAt(); !got.Equal(start.Add(2 * time.Hour)) {
		t.Errorf("EffectiveEndAt() = %v, want start + duration", got)
	}

	fixed := start.Add(90 * time.Minute)
	contest.EndAt = &fixed
	if got := contest.EffectiveEndAt(); !got.Equal(fixed) {
		t.Errorf("EffectiveEndAt() = %v, want fixed end %v", got, fixed)
	}
}

func TestFreezeAt(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	contest := &Contest{StartAt: start, DurationSec: 7200}

	if _, ok := contest.FreezeAt(); ok {
		t.Error("zero freeze window should never freeze")
	}

	contest.FreezeMinutes = 30
	freezeAt, ok := contest.FreezeAt()
	if !ok {
		t.Fatal("expected a freeze time")
	}
	want := contest.EffectiveEndAt().Add(-30 * time.Minute)
	if !freezeAt.Equal(want) {
		t.Errorf("FreezeAt() = %v, want %v", freezeAt, want)
	}
}

func TestLateJoinDeadline(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	contest := &Contest{StartAt: start, DurationSec: 7200, LateJoinMinutes: 15}

	if got := contest.LateJoinDeadline(); !got.Equal(start) {
		t.Errorf("late join disabled: deadline = %v, want start", got)
	}

	contest.AllowLateJoin = true
	if got := contest.LateJoinDeadline(); !got.Equal(start.Add(15 * time.Minute)) {
		t.Errorf("LateJoinDeadline() = %v, want start + 15m", got)
	}
}

func TestProblemByLabel(t *testing.T) {
	t.Parallel()
	contest := &Contest{Problems: []ContestProblem{
		{ProblemID: 10, Label: "A", Points: 100},
		{ProblemID: 11, Label: "B", Points: 200},
	}}

	p, ok := contest.ProblemByLabel("B")
	if !ok || p.ProblemID != 11 {
		t.Errorf("ProblemByLabel(B) = %+v, %v", p, ok)
	}
	if _, ok := contest.ProblemByLabel("C"); ok {
		t.Error("ProblemByLabel(C) should not match")
	}
}

func TestLanguageAllowed(t *testing.T) {
	t.Parallel()
	open := &Contest{}
	if !open.LanguageAllowed("cpp") {
		t.Error("empty language list should allow everything")
	}

	restricted := &Contest{Languages: []string{"go", "python"}}
	if !restricted.LanguageAllowed("go") {
		t.Error("go should be allowed")
	}
	if restricted.LanguageAllowed("cpp") {
		t.Error("cpp should be rejected")
	}
}
