package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"arena/internal/common/cache"
	"arena/internal/common/db"
	"arena/internal/common/mq"
	"arena/internal/contest/model"
	"arena/internal/contest/repository"
	"arena/internal/leaderboard"
	appErr "arena/pkg/errors"
)

type fakeContestRepo struct {
	mu       sync.Mutex
	contests map[int64]*model.Contest
	nextID   int64
}

func newFakeContestRepo(contests ...*model.Contest) *fakeContestRepo {
	r := &fakeContestRepo{contests: make(map[int64]*model.Contest), nextID: 100}
	for _, c := range contests {
		r.contests[c.ContestID] = c
	}
	return r
}

func (r *fakeContestRepo) Create(_ context.Context, _ db.Transaction, contest *model.Contest) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	contest.ContestID = r.nextID
	copied := *contest
	r.contests[contest.ContestID] = &copied
	return contest.ContestID, nil
}

func (r *fakeContestRepo) GetByID(_ context.Context, _ db.Transaction, contestID int64) (*model.Contest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contests[contestID]
	if !ok {
		return nil, repository.ErrContestNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *fakeContestRepo) Update(_ context.Context, _ db.Transaction, contest *model.Contest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contests[contest.ContestID]; !ok {
		return repository.ErrContestNotFound
	}
	copied := *contest
	r.contests[contest.ContestID] = &copied
	return nil
}

func (r *fakeContestRepo) UpdateStatus(_ context.Context, _ db.Transaction, contestID int64, from, to model.ContestStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contests[contestID]
	if !ok || c.Status != from {
		return repository.ErrContestNotFound
	}
	c.Status = to
	return nil
}

func (r *fakeContestRepo) ListByStatus(_ context.Context, statuses ...model.ContestStatus) ([]*model.Contest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Contest
	for _, c := range r.contests {
		for _, s := range statuses {
			if c.Status == s {
				copied := *c
				out = append(out, &copied)
				break
			}
		}
	}
	return out, nil
}

type fakeRegistrationRepo struct {
	mu     sync.Mutex
	regs   map[string]*model.Registration
	nextID int64
}

func newFakeRegistrationRepo(regs ...*model.Registration) *fakeRegistrationRepo {
	r := &fakeRegistrationRepo{regs: make(map[string]*model.Registration)}
	for _, reg := range regs {
		r.regs[regKey(reg.ContestID, reg.ParticipantID)] = reg
	}
	return r
}

func regKey(contestID, participantID int64) string {
	return fmt.Sprintf("%d:%d", contestID, participantID)
}

func (r *fakeRegistrationRepo) Create(_ context.Context, _ db.Transaction, reg *model.Registration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := regKey(reg.ContestID, reg.ParticipantID)
	if _, ok := r.regs[key]; ok {
		return 0, repository.ErrAlreadyRegistered
	}
	r.nextID++
	reg.RegistrationID = r.nextID
	reg.Seq = r.nextID
	r.regs[key] = reg
	return reg.RegistrationID, nil
}

func (r *fakeRegistrationRepo) GetByContestAndParticipant(_ context.Context, _ db.Transaction, contestID, participantID int64) (*model.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[regKey(contestID, participantID)]
	if !ok {
		return nil, repository.ErrRegistrationNotFound
	}
	return reg, nil
}

func (r *fakeRegistrationRepo) Update(_ context.Context, _ db.Transaction, reg *model.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regs[regKey(reg.ContestID, reg.ParticipantID)] = reg
	return nil
}

func (r *fakeRegistrationRepo) ListByContest(_ context.Context, contestID int64, _, _ int) ([]*model.Registration, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Registration
	for _, reg := range r.regs {
		if reg.ContestID == contestID {
			out = append(out, reg)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeRegistrationRepo) CompleteAll(_ context.Context, _ db.Transaction, contestID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.regs {
		if reg.ContestID == contestID && reg.Status.Active() {
			reg.Status = model.RegistrationCompleted
		}
	}
	return nil
}

func (r *fakeRegistrationRepo) CountByContest(_ context.Context, contestID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, reg := range r.regs {
		if reg.ContestID == contestID {
			n++
		}
	}
	return n, nil
}

type fakeSubmissionRepo struct {
	mu   sync.Mutex
	subs map[string]*model.Submission
}

func newFakeSubmissionRepo(subs ...*model.Submission) *fakeSubmissionRepo {
	r := &fakeSubmissionRepo{subs: make(map[string]*model.Submission)}
	for _, sub := range subs {
		r.subs[sub.SubmissionID] = sub
	}
	return r
}

func (r *fakeSubmissionRepo) Create(_ context.Context, _ db.Transaction, sub *model.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.SubmissionID] = sub
	return nil
}

func (r *fakeSubmissionRepo) GetByID(_ context.Context, _ db.Transaction, submissionID string) (*model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[submissionID]
	if !ok {
		return nil, repository.ErrSubmissionNotFound
	}
	return sub, nil
}

func (r *fakeSubmissionRepo) UpdateResult(_ context.Context, _ db.Transaction, sub *model.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.SubmissionID] = sub
	return nil
}

func (r *fakeSubmissionRepo) List(_ context.Context, filter repository.SubmissionFilter, _, _ int) ([]*model.Submission, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Submission
	for _, sub := range r.subs {
		if filter.ContestID > 0 && sub.ContestID != filter.ContestID {
			continue
		}
		if filter.ParticipantID > 0 && sub.ParticipantID != filter.ParticipantID {
			continue
		}
		out = append(out, sub)
	}
	return out, int64(len(out)), nil
}

func (r *fakeSubmissionRepo) CountSince(_ context.Context, _, _ int64, _ time.Time) (int64, error) {
	return 0, nil
}

type notification struct {
	contestID     int64
	participantID int64
	msgType       string
	payload       interface{}
}

type recordNotifier struct {
	mu         sync.Mutex
	direct     []notification
	broadcasts []notification
}

func (n *recordNotifier) NotifyParticipant(contestID, participantID int64, msgType string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.direct = append(n.direct, notification{contestID, participantID, msgType, payload})
}

func (n *recordNotifier) Broadcast(contestID int64, msgType string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broadcasts = append(n.broadcasts, notification{contestID: contestID, msgType: msgType, payload: payload})
}

func (n *recordNotifier) broadcastTypes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.broadcasts))
	for i, b := range n.broadcasts {
		out[i] = b.msgType
	}
	return out
}

type recordProducer struct {
	mu     sync.Mutex
	topics []string
	msgs   []*mq.Message
}

func (p *recordProducer) Publish(_ context.Context, topic string, msg *mq.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.msgs = append(p.msgs, msg)
	return nil
}

type fakeDB struct{}

func (fakeDB) Query(context.Context, string, ...interface{}) (db.Rows, error) {
	return nil, errors.New("not implemented")
}
func (fakeDB) QueryRow(context.Context, string, ...interface{}) db.Row { return nil }
func (fakeDB) Exec(context.Context, string, ...interface{}) (db.Result, error) {
	return nil, errors.New("not implemented")
}
func (fakeDB) Transaction(_ context.Context, fn func(tx db.Transaction) error) error {
	return fn(fakeTx{})
}
func (fakeDB) Ping(context.Context) error { return nil }
func (fakeDB) Close() error               { return nil }

type fakeTx struct{}

func (fakeTx) Query(context.Context, string, ...interface{}) (db.Rows, error) {
	return nil, errors.New("not implemented")
}
func (fakeTx) QueryRow(context.Context, string, ...interface{}) db.Row { return nil }
func (fakeTx) Exec(context.Context, string, ...interface{}) (db.Result, error) {
	return nil, errors.New("not implemented")
}
func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

func newTestSnapshots(t *testing.T) *leaderboard.SnapshotRepository {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("NewRedisCacheWithClient: %v", err)
	}
	return leaderboard.NewSnapshotRepository(c)
}

type lifecycleEnv struct {
	svc      *LifecycleService
	contests *fakeContestRepo
	regs     *fakeRegistrationRepo
	board    *leaderboard.Store
	snaps    *leaderboard.SnapshotRepository
	notifier *recordNotifier
	producer *recordProducer
}

func newLifecycleEnv(t *testing.T, contests ...*model.Contest) *lifecycleEnv {
	t.Helper()
	env := &lifecycleEnv{
		contests: newFakeContestRepo(contests...),
		regs:     newFakeRegistrationRepo(),
		board:    leaderboard.NewStore(),
		snaps:    newTestSnapshots(t),
		notifier: &recordNotifier{},
		producer: &recordProducer{},
	}
	svc, err := NewLifecycleService(LifecycleConfig{
		ContestRepo:      env.contests,
		RegistrationRepo: env.regs,
		Board:            env.board,
		Snapshots:        env.snaps,
		Notifier:         env.notifier,
		DB:               fakeDB{},
		MQ:               env.producer,
		EventTopic:       "contest-events",
	})
	if err != nil {
		t.Fatalf("NewLifecycleService: %v", err)
	}
	env.svc = svc
	return env
}

func draftContest() *model.Contest {
	return &model.Contest{
		ContestID:       1,
		Name:            "weekly round",
		Status:          model.StatusDraft,
		StartAt:         time.Now().Add(time.Hour),
		DurationSec:     7200,
		PenaltyPerWrong: 1200,
		Problems: []model.ContestProblem{
			{ProblemID: 10, Label: "A", Points: 100},
		},
	}
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	env := newLifecycleEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(in *CreateInput)
	}{
		{"missing name", func(in *CreateInput) { in.Name = "" }},
		{"zero duration", func(in *CreateInput) { in.DurationSec = 0 }},
		{"problem without label", func(in *CreateInput) { in.Problems[0].Label = "" }},
		{"duplicate label", func(in *CreateInput) {
			in.Problems = append(in.Problems, model.ContestProblem{ProblemID: 11, Label: "A", Points: 200})
		}},
	}
	for _, tt := range tests {
		in := CreateInput{
			Name:        "round",
			DurationSec: 3600,
			StartAt:     time.Now().Add(time.Hour),
			Problems:    []model.ContestProblem{{ProblemID: 10, Label: "A", Points: 100}},
		}
		tt.mutate(&in)
		if _, err := env.svc.Create(ctx, in); !appErr.Is(err, appErr.ValidationFailed) {
			t.Errorf("%s: err = %v, want ValidationFailed", tt.name, err)
		}
	}
}

func TestCreateDraft(t *testing.T) {
	t.Parallel()
	env := newLifecycleEnv(t)
	contest, err := env.svc.Create(context.Background(), CreateInput{
		Name:        "round",
		DurationSec: 3600,
		StartAt:     time.Now().Add(time.Hour),
		Problems:    []model.ContestProblem{{ProblemID: 10, Label: "A", Points: 100}},
		Actor:       "admin",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if contest.Status != model.StatusDraft || contest.ContestID == 0 {
		t.Errorf("contest = %+v", contest)
	}
	if contest.CreatedBy != "admin" {
		t.Errorf("CreatedBy = %q", contest.CreatedBy)
	}
}

func TestPublishGuards(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	noProblems := draftContest()
	noProblems.Problems = nil
	env := newLifecycleEnv(t, noProblems)
	if _, err := env.svc.Publish(ctx, 1, "admin"); !appErr.Is(err, appErr.ContestHasNoProblems) {
		t.Errorf("publish without problems: err = %v", err)
	}

	windowPassed := draftContest()
	windowPassed.StartAt = time.Now().Add(-3 * time.Hour)
	env = newLifecycleEnv(t, windowPassed)
	if _, err := env.svc.Publish(ctx, 1, "admin"); !appErr.Is(err, appErr.ValidationFailed) {
		t.Errorf("publish after window passed: err = %v", err)
	}

	live := draftContest()
	live.Status = model.StatusLive
	env = newLifecycleEnv(t, live)
	if _, err := env.svc.Publish(ctx, 1, "admin"); !appErr.Is(err, appErr.InvalidTransition) {
		t.Errorf("publish a live contest: err = %v", err)
	}

	env = newLifecycleEnv(t)
	if _, err := env.svc.Publish(ctx, 99, "admin"); !appErr.Is(err, appErr.NotFound) {
		t.Errorf("publish unknown contest: err = %v", err)
	}
}

func TestPublishSchedules(t *testing.T) {
	t.Parallel()
	env := newLifecycleEnv(t, draftContest())
	contest, err := env.svc.Publish(context.Background(), 1, "admin")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if contest.Status != model.StatusScheduled {
		t.Errorf("status = %s", contest.Status)
	}
	stored, _ := env.contests.GetByID(context.Background(), nil, 1)
	if stored.Status != model.StatusScheduled {
		t.Errorf("persisted status = %s", stored.Status)
	}
	env.producer.mu.Lock()
	defer env.producer.mu.Unlock()
	if len(env.producer.topics) != 1 {
		t.Errorf("published events = %v", env.producer.topics)
	}
}

func TestPublishStartsImmediately(t *testing.T) {
	t.Parallel()
	contest := draftContest()
	contest.StartAt = time.Now().Add(-time.Minute)
	env := newLifecycleEnv(t, contest)

	before := time.Now()
	published, err := env.svc.Publish(context.Background(), 1, "admin")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if published.Status != model.StatusLive {
		t.Fatalf("status = %s, want live", published.Status)
	}
	if published.StartAt.Before(before) {
		t.Errorf("StartAt = %v, want fixed to publish time", published.StartAt)
	}
	if published.EndAt == nil || !published.EndAt.Equal(published.StartAt.Add(2*time.Hour)) {
		t.Errorf("EndAt = %v, want start + duration", published.EndAt)
	}

	rows, err := env.board.TopN(1, 10)
	if err != nil {
		t.Fatalf("board should be initialized: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("board rows = %d, want empty", len(rows))
	}

	stored, _ := env.contests.GetByID(context.Background(), nil, 1)
	if stored.Status != model.StatusLive {
		t.Errorf("persisted status = %s", stored.Status)
	}
	types := env.notifier.broadcastTypes()
	if len(types) != 1 || types[0] != "contest_started" {
		t.Errorf("broadcasts = %v, want contest_started", types)
	}
}

func TestStartFixesClockAndInitsBoard(t *testing.T) {
	t.Parallel()
	contest := draftContest()
	contest.Status = model.StatusScheduled
	env := newLifecycleEnv(t, contest)

	before := time.Now()
	started, err := env.svc.Start(context.Background(), 1, "admin")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if started.Status != model.StatusLive {
		t.Errorf("status = %s", started.Status)
	}
	if started.StartAt.Before(before) {
		t.Errorf("StartAt = %v, want the start instant", started.StartAt)
	}
	if started.EndAt == nil {
		t.Fatal("EndAt must be fixed on start")
	}
	wantEnd := started.StartAt.Add(2 * time.Hour)
	if !started.EndAt.Equal(wantEnd) {
		t.Errorf("EndAt = %v, want start + duration", started.EndAt)
	}

	if err := env.board.Upsert(1, leaderboard.Row{ParticipantID: 9}); err != nil {
		t.Errorf("board should be initialized on start: %v", err)
	}
	if got := env.notifier.broadcastTypes(); len(got) != 1 || got[0] != "contest_started" {
		t.Errorf("broadcasts = %v", got)
	}
}

func TestEndFinalizesStandings(t *testing.T) {
	t.Parallel()
	endAt := time.Now().Add(time.Hour)
	contest := draftContest()
	contest.Status = model.StatusLive
	contest.EndAt = &endAt
	env := newLifecycleEnv(t, contest)
	ctx := context.Background()

	env.regs.Create(ctx, nil, &model.Registration{
		ContestID: 1, ParticipantID: 41, Alias: "alice", Status: model.RegistrationParticipating,
		Score: 100, SolvedCount: 1, TotalTimeSec: 900,
	})
	env.regs.Create(ctx, nil, &model.Registration{
		ContestID: 1, ParticipantID: 42, Alias: "bob", Status: model.RegistrationParticipating,
		Score: 200, SolvedCount: 2, TotalTimeSec: 2500,
	})
	env.board.Init(1)
	env.board.Upsert(1, leaderboard.Row{ParticipantID: 41, Alias: "alice", Score: 100, Solved: 1, TotalTimeSec: 900, Seq: 1})
	env.board.Upsert(1, leaderboard.Row{ParticipantID: 42, Alias: "bob", Score: 200, Solved: 2, TotalTimeSec: 2500, Seq: 2})
	env.board.Freeze(1)

	ended, err := env.svc.End(ctx, 1, "admin")
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if ended.Status != model.StatusEnded {
		t.Errorf("status = %s", ended.Status)
	}

	bob, _ := env.regs.GetByContestAndParticipant(ctx, nil, 1, 42)
	if bob.FinalRank != 1 || bob.Status != model.RegistrationCompleted {
		t.Errorf("bob = %+v, want final rank 1 and completed", bob)
	}
	alice, _ := env.regs.GetByContestAndParticipant(ctx, nil, 1, 41)
	if alice.FinalRank != 2 {
		t.Errorf("alice final rank = %d, want 2", alice.FinalRank)
	}

	rows, err := env.snaps.Load(ctx, 1)
	if err != nil {
		t.Fatalf("snapshot Load: %v", err)
	}
	if len(rows) != 2 || rows[0].ParticipantID != 42 || rows[0].Rank != 1 {
		t.Errorf("snapshot = %+v", rows)
	}

	if got := env.notifier.broadcastTypes(); len(got) != 1 || got[0] != "contest_ended" {
		t.Errorf("broadcasts = %v", got)
	}
}

func TestEndRequiresLive(t *testing.T) {
	t.Parallel()
	env := newLifecycleEnv(t, draftContest())
	if _, err := env.svc.End(context.Background(), 1, "admin"); !appErr.Is(err, appErr.InvalidTransition) {
		t.Errorf("end a draft: err = %v", err)
	}
}

func TestEndWithoutBoard(t *testing.T) {
	t.Parallel()
	contest := draftContest()
	contest.Status = model.StatusLive
	env := newLifecycleEnv(t, contest)

	// Board missing after a restart: ending must still work.
	ended, err := env.svc.End(context.Background(), 1, "admin")
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if ended.Status != model.StatusEnded {
		t.Errorf("status = %s", ended.Status)
	}
}

type failingDB struct{ fakeDB }

func (failingDB) Transaction(context.Context, func(tx db.Transaction) error) error {
	return errors.New("connection lost")
}

func TestEndKeepsFreezeWhenPersistFails(t *testing.T) {
	t.Parallel()
	contest := draftContest()
	contest.Status = model.StatusLive
	env := newLifecycleEnv(t, contest)
	svc, err := NewLifecycleService(LifecycleConfig{
		ContestRepo:      env.contests,
		RegistrationRepo: env.regs,
		Board:            env.board,
		Snapshots:        env.snaps,
		Notifier:         env.notifier,
		DB:               failingDB{},
		MQ:               env.producer,
		EventTopic:       "contest-events",
	})
	if err != nil {
		t.Fatalf("NewLifecycleService: %v", err)
	}

	env.board.Init(1)
	env.board.Upsert(1, leaderboard.Row{ParticipantID: 41, Score: 100, Seq: 1})
	env.board.Freeze(1)
	env.board.Upsert(1, leaderboard.Row{ParticipantID: 42, Score: 200, Seq: 2})

	if _, err := svc.End(context.Background(), 1, "admin"); !appErr.Is(err, appErr.TransitionSideEffect) {
		t.Fatalf("End with failing persist: err = %v", err)
	}

	frozen, err := env.board.Frozen(1)
	if err != nil || !frozen {
		t.Errorf("board frozen = %v (%v), want still frozen", frozen, err)
	}
	rows, err := env.board.TopN(1, 10)
	if err != nil {
		t.Fatalf("TopN: %v", err)
	}
	if len(rows) != 1 || rows[0].ParticipantID != 41 {
		t.Errorf("visible rows = %+v, want only the pre-freeze row", rows)
	}

	stored, _ := env.contests.GetByID(context.Background(), nil, 1)
	if stored.Status != model.StatusLive {
		t.Errorf("persisted status = %s, want live", stored.Status)
	}
	if got := env.notifier.broadcastTypes(); len(got) != 0 {
		t.Errorf("broadcasts = %v, want none", got)
	}
}

func TestCancelDropsBoard(t *testing.T) {
	t.Parallel()
	contest := draftContest()
	contest.Status = model.StatusLive
	env := newLifecycleEnv(t, contest)
	env.board.Init(1)

	cancelled, err := env.svc.Cancel(context.Background(), 1, "admin", "infrastructure failure")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != model.StatusCancelled || cancelled.CancelReason != "infrastructure failure" {
		t.Errorf("contest = %+v", cancelled)
	}
	if _, err := env.board.TopN(1, 0); !errors.Is(err, leaderboard.ErrBoardNotFound) {
		t.Error("cancel must drop the board")
	}
	if got := env.notifier.broadcastTypes(); len(got) != 1 || got[0] != "contest_status" {
		t.Errorf("broadcasts = %v", got)
	}
}

func TestCancelTerminalContest(t *testing.T) {
	t.Parallel()
	contest := draftContest()
	contest.Status = model.StatusEnded
	env := newLifecycleEnv(t, contest)
	if _, err := env.svc.Cancel(context.Background(), 1, "admin", "nope"); !appErr.Is(err, appErr.InvalidTransition) {
		t.Errorf("cancel an ended contest: err = %v", err)
	}
}

func TestDisqualifyRemovesEverywhere(t *testing.T) {
	t.Parallel()
	contest := draftContest()
	contest.Status = model.StatusLive
	env := newLifecycleEnv(t, contest)
	ctx := context.Background()

	env.regs.Create(ctx, nil, &model.Registration{
		ContestID: 1, ParticipantID: 42, Alias: "bob", Status: model.RegistrationParticipating, Score: 100,
	})
	env.board.Init(1)
	env.board.Upsert(1, leaderboard.Row{ParticipantID: 42, Score: 100, Seq: 1})
	env.snaps.Save(ctx, 1, []leaderboard.Row{{ParticipantID: 42, Rank: 1, Score: 100}})

	if err := env.svc.Disqualify(ctx, 1, 42, "admin", "plagiarism"); err != nil {
		t.Fatalf("Disqualify: %v", err)
	}

	reg, _ := env.regs.GetByContestAndParticipant(ctx, nil, 1, 42)
	if reg.Status != model.RegistrationDisqualified || reg.DisqualReason != "plagiarism" {
		t.Errorf("registration = %+v", reg)
	}
	rows, _ := env.board.TopN(1, 0)
	if len(rows) != 0 {
		t.Errorf("board still shows disqualified participant: %+v", rows)
	}
	if _, err := env.snaps.Load(ctx, 1); !errors.Is(err, leaderboard.ErrSnapshotNotFound) {
		t.Error("snapshot should no longer list the participant")
	}
	env.notifier.mu.Lock()
	defer env.notifier.mu.Unlock()
	if len(env.notifier.direct) != 1 || env.notifier.direct[0].msgType != "disqualified" {
		t.Errorf("direct notifications = %+v", env.notifier.direct)
	}

	// Disqualifying twice is idempotent.
	if err := env.svc.Disqualify(ctx, 1, 42, "admin", "again"); err != nil {
		t.Errorf("second Disqualify: %v", err)
	}
	reg, _ = env.regs.GetByContestAndParticipant(ctx, nil, 1, 42)
	if reg.DisqualReason != "plagiarism" {
		t.Errorf("idempotent disqualify overwrote the reason: %q", reg.DisqualReason)
	}
}

func TestDisqualifyUnknownRegistration(t *testing.T) {
	t.Parallel()
	contest := draftContest()
	contest.Status = model.StatusLive
	env := newLifecycleEnv(t, contest)
	if err := env.svc.Disqualify(context.Background(), 1, 99, "admin", "x"); !appErr.Is(err, appErr.NotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestAnnounce(t *testing.T) {
	t.Parallel()
	contest := draftContest()
	contest.Status = model.StatusLive
	env := newLifecycleEnv(t, contest)
	ctx := context.Background()

	if err := env.svc.Announce(ctx, 1, "", "high", "admin"); !appErr.Is(err, appErr.ValidationFailed) {
		t.Errorf("empty message: err = %v", err)
	}
	if err := env.svc.Announce(ctx, 1, "clarification for A", "high", "admin"); err != nil {
		t.Fatalf("Announce: %v", err)
	}
	if got := env.notifier.broadcastTypes(); len(got) != 1 || got[0] != "announcement" {
		t.Errorf("broadcasts = %v", got)
	}

	contest.Status = model.StatusEnded
	env.contests.Update(ctx, nil, contest)
	if err := env.svc.Announce(ctx, 1, "too late", "low", "admin"); !appErr.Is(err, appErr.InvalidTransition) {
		t.Errorf("announce after end: err = %v", err)
	}
}
