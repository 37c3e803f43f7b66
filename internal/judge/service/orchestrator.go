package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"arena/internal/common/cache"
	"arena/internal/common/db"
	"arena/internal/common/mq"
	"arena/internal/contest/model"
	"arena/internal/contest/repository"
	"arena/internal/gateway"
	"arena/internal/judge/evaluator"
	"arena/internal/judge/execclient"
	"arena/internal/judge/problem"
	"arena/internal/leaderboard"
	appErr "arena/pkg/errors"
	"arena/pkg/utils/logger"
)

const (
	rateKeyPrefix       = "judge:rate:"
	defaultWorkers      = 8
	defaultJudgeTimeout = 5 * time.Minute
	maxCompileOutput    = 8 << 10
)

// Runner executes one program against one stdin in the sandbox.
type Runner interface {
	Run(ctx context.Context, req execclient.RunRequest) (*execclient.RunResult, error)
	MaxCodeBytes() int
}

// BoardWriter receives fully computed standings rows.
type BoardWriter interface {
	Upsert(contestID int64, row leaderboard.Row) error
}

// Notifier pushes real-time messages to connected participants.
type Notifier interface {
	NotifyParticipant(contestID, participantID int64, msgType string, payload interface{})
	Broadcast(contestID int64, msgType string, payload interface{})
}

// RateLimitConfig holds submit throttling configuration.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
}

// Config holds orchestrator dependencies and settings.
type Config struct {
	ContestRepo      repository.ContestRepository
	RegistrationRepo repository.RegistrationRepository
	SubmissionRepo   repository.SubmissionRepository
	Provider         problem.Provider
	Runner           Runner
	Board            BoardWriter
	Notifier         Notifier
	DB               db.Database
	Cache            cache.Cache
	MQ               mq.Producer

	EventTopic   string
	Workers      int
	JudgeTimeout time.Duration
	RateLimit    RateLimitConfig
}

// Orchestrator drives a submission from intake through execution, scoring
// and fanout. Validation is synchronous; the sandbox calls run on a bounded
// worker pool detached from the request context.
type Orchestrator struct {
	contestRepo      repository.ContestRepository
	registrationRepo repository.RegistrationRepository
	submissionRepo   repository.SubmissionRepository
	provider         problem.Provider
	runner           Runner
	board            BoardWriter
	notifier         Notifier
	db               db.Database
	cache            cache.Cache
	mq               mq.Producer

	eventTopic   string
	judgeTimeout time.Duration
	rateLimit    RateLimitConfig

	sem      chan struct{}
	scoring  sync.Map
	wg       sync.WaitGroup
}

// SubmitInput describes a submission request.
type SubmitInput struct {
	ContestID     int64
	ParticipantID int64
	ProblemLabel  string
	Language      string
	SourceCode    string
	Alias         string
}

// NewOrchestrator creates a judging orchestrator.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.ContestRepo == nil {
		return nil, fmt.Errorf("contest repository is required")
	}
	if cfg.RegistrationRepo == nil {
		return nil, fmt.Errorf("registration repository is required")
	}
	if cfg.SubmissionRepo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("problem provider is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.Board == nil {
		return nil, fmt.Errorf("board is required")
	}
	if cfg.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.JudgeTimeout <= 0 {
		cfg.JudgeTimeout = defaultJudgeTimeout
	}
	return &Orchestrator{
		contestRepo:      cfg.ContestRepo,
		registrationRepo: cfg.RegistrationRepo,
		submissionRepo:   cfg.SubmissionRepo,
		provider:         cfg.Provider,
		runner:           cfg.Runner,
		board:            cfg.Board,
		notifier:         cfg.Notifier,
		db:               cfg.DB,
		cache:            cfg.Cache,
		mq:               cfg.MQ,
		eventTopic:       cfg.EventTopic,
		judgeTimeout:     cfg.JudgeTimeout,
		rateLimit:        cfg.RateLimit,
		sem:              make(chan struct{}, cfg.Workers),
	}, nil
}

// Submit validates a submission synchronously and queues it for judging.
// The returned submission id is immediately queryable in pending state.
func (o *Orchestrator) Submit(ctx context.Context, input SubmitInput) (string, error) {
	if err := o.validateInput(input); err != nil {
		return "", err
	}

	contest, err := o.loadLiveContest(ctx, input.ContestID)
	if err != nil {
		return "", err
	}
	contestProblem, ok := contest.ProblemByLabel(input.ProblemLabel)
	if !ok {
		return "", appErr.Newf(appErr.ProblemNotFound, "contest has no problem %q", input.ProblemLabel)
	}
	if !contest.LanguageAllowed(input.Language) {
		return "", appErr.Newf(appErr.LanguageNotSupported, "language %q is not allowed in this contest", input.Language)
	}
	if len(input.SourceCode) > o.runner.MaxCodeBytes() {
		return "", appErr.Newf(appErr.CodeTooLarge, "code size %d exceeds limit %d", len(input.SourceCode), o.runner.MaxCodeBytes())
	}

	registration, err := o.resolveRegistration(ctx, contest, input)
	if err != nil {
		return "", err
	}

	data, err := o.provider.GetJudgeData(ctx, contestProblem.ProblemID)
	if err != nil {
		return "", err
	}
	if data.CodeLimitBytes > 0 && len(input.SourceCode) > data.CodeLimitBytes {
		return "", appErr.Newf(appErr.CodeTooLarge, "code size %d exceeds problem limit %d", len(input.SourceCode), data.CodeLimitBytes)
	}

	if err := o.checkRateLimit(ctx, input.ContestID, input.ParticipantID); err != nil {
		return "", err
	}

	select {
	case o.sem <- struct{}{}:
	default:
		return "", appErr.New(appErr.JudgeQueueFull).WithMessage("judge queue is full, retry later")
	}

	submission := &model.Submission{
		SubmissionID:  uuid.NewString(),
		ContestID:     contest.ContestID,
		ParticipantID: input.ParticipantID,
		ProblemID:     contestProblem.ProblemID,
		ProblemLabel:  contestProblem.Label,
		Language:      input.Language,
		SourceCode:    input.SourceCode,
		SourceBytes:   len(input.SourceCode),
		Verdict:       model.VerdictPending,
		ElapsedSec:    int64(time.Since(contest.StartAt) / time.Second),
		CreatedAt:     time.Now(),
	}
	if err := o.submissionRepo.Create(ctx, nil, submission); err != nil {
		<-o.sem
		return "", appErr.Wrapf(err, appErr.SubmissionCreateFailed, "create submission failed")
	}

	o.wg.Add(1)
	go o.judge(submission, contest, contestProblem, registration, data)

	return submission.SubmissionID, nil
}

// Wait blocks until all in-flight judging goroutines complete.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) validateInput(input SubmitInput) error {
	if input.ContestID <= 0 {
		return appErr.ValidationError("contest_id", "required")
	}
	if input.ParticipantID <= 0 {
		return appErr.ValidationError("participant_id", "required")
	}
	if strings.TrimSpace(input.ProblemLabel) == "" {
		return appErr.ValidationError("problem_label", "required")
	}
	if strings.TrimSpace(input.Language) == "" {
		return appErr.ValidationError("language", "required")
	}
	if strings.TrimSpace(input.SourceCode) == "" {
		return appErr.ValidationError("source_code", "required")
	}
	return nil
}

func (o *Orchestrator) loadLiveContest(ctx context.Context, contestID int64) (*model.Contest, error) {
	contest, err := o.contestRepo.GetByID(ctx, nil, contestID)
	if err != nil {
		if errors.Is(err, repository.ErrContestNotFound) {
			return nil, appErr.NotFoundError("contest")
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load contest failed")
	}
	if contest.Status != model.StatusLive {
		return nil, appErr.StateError("submit to", string(contest.Status))
	}
	if !time.Now().Before(contest.EffectiveEndAt()) {
		return nil, appErr.New(appErr.ContestEnded).WithMessage("contest window has passed")
	}
	return contest, nil
}

// resolveRegistration loads the participant's registration, creating one
// on first submission when the contest permits late joining.
func (o *Orchestrator) resolveRegistration(ctx context.Context, contest *model.Contest, input SubmitInput) (*model.Registration, error) {
	registration, err := o.registrationRepo.GetByContestAndParticipant(ctx, nil, contest.ContestID, input.ParticipantID)
	if err == nil {
		if registration.Status == model.RegistrationDisqualified {
			return nil, appErr.New(appErr.Disqualified).WithMessage("participant is disqualified")
		}
		if !registration.Status.Active() {
			return nil, appErr.StateError("submit with", string(registration.Status))
		}
		return registration, nil
	}
	if !errors.Is(err, repository.ErrRegistrationNotFound) {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load registration failed")
	}

	if !contest.AllowLateJoin || time.Now().After(contest.LateJoinDeadline()) {
		return nil, appErr.New(appErr.LateJoinClosed).WithMessage("registration window has closed")
	}
	registration = &model.Registration{
		ContestID:     contest.ContestID,
		ParticipantID: input.ParticipantID,
		Alias:         input.Alias,
		Status:        model.RegistrationParticipating,
		RegisteredAt:  time.Now(),
	}
	id, err := o.registrationRepo.Create(ctx, nil, registration)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyRegistered) {
			return o.registrationRepo.GetByContestAndParticipant(ctx, nil, contest.ContestID, input.ParticipantID)
		}
		return nil, appErr.Wrapf(err, appErr.RegistrationFailed, "create registration failed")
	}
	registration.RegistrationID = id
	return o.registrationRepo.GetByContestAndParticipant(ctx, nil, contest.ContestID, input.ParticipantID)
}

func (o *Orchestrator) checkRateLimit(ctx context.Context, contestID, participantID int64) error {
	if o.cache == nil || o.rateLimit.Max <= 0 || o.rateLimit.Window <= 0 {
		return nil
	}
	key := fmt.Sprintf("%s%d:%d", rateKeyPrefix, contestID, participantID)
	count, err := o.cache.Incr(ctx, key)
	if err != nil {
		logger.Warn(ctx, "rate limit check failed", zap.Error(err))
		return nil
	}
	if count == 1 {
		_ = o.cache.Expire(ctx, key, o.rateLimit.Window)
	}
	if int(count) > o.rateLimit.Max {
		return appErr.New(appErr.SubmitTooFrequently).WithMessage("submit too frequently")
	}
	return nil
}

// judge runs the full test case loop for one submission. It holds a worker
// slot for its duration and never inherits the request context, so a
// disconnecting client cannot abort judging.
func (o *Orchestrator) judge(submission *model.Submission, contest *model.Contest, contestProblem model.ContestProblem, registration *model.Registration, data *problem.JudgeData) {
	defer o.wg.Done()
	defer func() { <-o.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), o.judgeTimeout)
	defer cancel()

	outcomes, compileOutput := o.runCases(ctx, submission, data)

	submission.Verdict = evaluator.Aggregate(outcomes, len(data.Cases))
	submission.AttemptedCases = len(outcomes)
	submission.TotalCases = len(data.Cases)
	submission.CompileOutput = truncate(compileOutput, maxCompileOutput)
	submission.TimeMS, submission.MemoryKB = evaluator.Metrics(outcomes)
	for _, oc := range outcomes {
		if oc.Verdict == model.VerdictAccepted {
			submission.PassedCases++
		}
	}
	now := time.Now()
	submission.JudgedAt = &now

	if err := o.submissionRepo.UpdateResult(ctx, nil, submission); err != nil {
		logger.Error(ctx, "persist submission result failed",
			zap.String("submission_id", submission.SubmissionID), zap.Error(err))
	}

	firstSolve := false
	if submission.Verdict.Scored() {
		firstSolve = o.applyScore(ctx, submission, contest, contestProblem)
	}

	o.fanout(ctx, submission, firstSolve)
}

func (o *Orchestrator) runCases(ctx context.Context, submission *model.Submission, data *problem.JudgeData) ([]evaluator.CaseOutcome, string) {
	var outcomes []evaluator.CaseOutcome
	for _, tc := range data.Cases {
		result, err := o.runner.Run(ctx, execclient.RunRequest{
			RequestID:   fmt.Sprintf("%s-%d", submission.SubmissionID, tc.Index),
			Language:    submission.Language,
			Code:        submission.SourceCode,
			Stdin:       tc.Stdin,
			TimeLimitMS: tc.TimeLimitMS,
		})
		if err != nil {
			logger.Warn(ctx, "execution service call failed",
				zap.String("submission_id", submission.SubmissionID),
				zap.Int("case", tc.Index), zap.Error(err))
			outcomes = append(outcomes, evaluator.CaseOutcome{
				Index:   tc.Index,
				Verdict: model.VerdictServiceUnavailable,
			})
			return outcomes, ""
		}

		verdict := evaluator.Classify(result, tc.ExpectedStdout, data.CompareMode)
		outcomes = append(outcomes, evaluator.CaseOutcome{
			Index:    tc.Index,
			Verdict:  verdict,
			TimeMS:   result.TimeMS,
			MemoryKB: result.MemoryKB,
		})
		if verdict == model.VerdictCompileError {
			return outcomes, result.CompileOutput
		}
	}
	return outcomes, ""
}

// applyScore folds the verdict into the registration and pushes the new
// standing to the leaderboard. Scoring per registration is serialized so
// concurrent submissions from one participant cannot interleave updates.
func (o *Orchestrator) applyScore(ctx context.Context, submission *model.Submission, contest *model.Contest, contestProblem model.ContestProblem) bool {
	key := fmt.Sprintf("%d:%d", submission.ContestID, submission.ParticipantID)
	muIface, _ := o.scoring.LoadOrStore(key, &sync.Mutex{})
	mu := muIface.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	var (
		firstSolve   bool
		registration *model.Registration
	)
	err := o.db.Transaction(ctx, func(tx db.Transaction) error {
		var err error
		registration, err = o.registrationRepo.GetByContestAndParticipant(ctx, tx, submission.ContestID, submission.ParticipantID)
		if err != nil {
			return err
		}
		if registration.Status == model.RegistrationDisqualified {
			return nil
		}
		firstSolve = registration.ApplyVerdict(contestProblem, submission.Verdict, submission.ElapsedSec, contest.PenaltyPerWrong)
		if registration.Status == model.RegistrationRegistered {
			registration.Status = model.RegistrationParticipating
		}
		return o.registrationRepo.Update(ctx, tx, registration)
	})
	if err != nil {
		logger.Error(ctx, "apply score failed",
			zap.String("submission_id", submission.SubmissionID), zap.Error(err))
		return false
	}
	if registration == nil || registration.Status == model.RegistrationDisqualified {
		return false
	}

	if err := o.board.Upsert(submission.ContestID, leaderboard.Row{
		ParticipantID: registration.ParticipantID,
		Alias:         registration.Alias,
		Score:         registration.Score,
		Solved:        registration.SolvedCount,
		TotalTimeSec:  registration.TotalTimeSec,
		PenaltySec:    registration.PenaltySec,
		Seq:           registration.Seq,
	}); err != nil {
		logger.Warn(ctx, "leaderboard upsert failed",
			zap.Int64("contest_id", submission.ContestID), zap.Error(err))
	}
	return firstSolve
}

func (o *Orchestrator) fanout(ctx context.Context, submission *model.Submission, firstSolve bool) {
	if o.notifier != nil {
		o.notifier.NotifyParticipant(submission.ContestID, submission.ParticipantID, gateway.MsgSubmissionResult, gateway.SubmissionResultPayload{
			SubmissionID:  submission.SubmissionID,
			ProblemLabel:  submission.ProblemLabel,
			Verdict:       string(submission.Verdict),
			PassedCases:   submission.PassedCases,
			TotalCases:    submission.TotalCases,
			TimeMS:        submission.TimeMS,
			MemoryKB:      submission.MemoryKB,
			CompileOutput: submission.CompileOutput,
		})
		if firstSolve {
			o.notifier.Broadcast(submission.ContestID, gateway.MsgSolveNotification, gateway.SolveNotificationPayload{
				ProblemLabel: submission.ProblemLabel,
				SolvedAtSec:  submission.ElapsedSec,
			})
		}
	}
	o.publishEvent(ctx, submission, firstSolve)
}

func (o *Orchestrator) publishEvent(ctx context.Context, submission *model.Submission, firstSolve bool) {
	if o.mq == nil || o.eventTopic == "" {
		return
	}
	event := model.SubmissionEvent{
		EventID:       uuid.NewString(),
		SubmissionID:  submission.SubmissionID,
		ContestID:     submission.ContestID,
		ParticipantID: submission.ParticipantID,
		ProblemLabel:  submission.ProblemLabel,
		Verdict:       string(submission.Verdict),
		PassedCases:   submission.PassedCases,
		TotalCases:    submission.TotalCases,
		FirstSolve:    firstSolve,
		Timestamp:     time.Now().Unix(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	msg := mq.NewMessage(payload)
	msg.SetHeader("event_type", "submission_judged")
	if err := o.mq.Publish(ctx, o.eventTopic, msg); err != nil {
		logger.Warn(ctx, "publish submission event failed",
			zap.String("submission_id", submission.SubmissionID), zap.Error(err))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
