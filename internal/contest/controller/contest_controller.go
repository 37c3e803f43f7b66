package controller

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"arena/internal/contest/model"
	"arena/internal/contest/repository"
	"arena/internal/contest/service"
	judgeService "arena/internal/judge/service"
	"arena/pkg/utils/response"
)

// ContestController handles contest HTTP endpoints.
type ContestController struct {
	lifecycle     *service.LifecycleService
	registrations *service.RegistrationService
	queries       *service.QueryService
	orchestrator  *judgeService.Orchestrator
}

// NewContestController creates a new ContestController.
func NewContestController(
	lifecycle *service.LifecycleService,
	registrations *service.RegistrationService,
	queries *service.QueryService,
	orchestrator *judgeService.Orchestrator,
) *ContestController {
	return &ContestController{
		lifecycle:     lifecycle,
		registrations: registrations,
		queries:       queries,
		orchestrator:  orchestrator,
	}
}

// Create handles contest creation.
func (h *ContestController) Create(c *gin.Context) {
	var req CreateContestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	contest, err := h.lifecycle.Create(c.Request.Context(), service.CreateInput{
		Name:            req.Name,
		Description:     req.Description,
		Problems:        req.Problems,
		Languages:       req.Languages,
		StartAt:         req.StartAt,
		DurationSec:     req.DurationSec,
		FreezeMinutes:   req.FreezeMinutes,
		AllowLateJoin:   req.AllowLateJoin,
		LateJoinMinutes: req.LateJoinMinutes,
		PenaltyPerWrong: req.PenaltyPerWrong,
		Actor:           actor(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, contest)
}

// Get returns one contest.
func (h *ContestController) Get(c *gin.Context) {
	contestID, ok := pathID(c)
	if !ok {
		return
	}
	contest, err := h.queries.GetContest(c.Request.Context(), contestID, isAdmin(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, contest)
}

// Publish moves a draft contest to scheduled.
func (h *ContestController) Publish(c *gin.Context) {
	h.transition(c, h.lifecycle.Publish)
}

// Start moves a contest to live.
func (h *ContestController) Start(c *gin.Context) {
	h.transition(c, h.lifecycle.Start)
}

// End moves a live contest to ended.
func (h *ContestController) End(c *gin.Context) {
	h.transition(c, h.lifecycle.End)
}

// Cancel aborts a contest.
func (h *ContestController) Cancel(c *gin.Context) {
	contestID, ok := pathID(c)
	if !ok {
		return
	}
	var req CancelRequest
	_ = c.ShouldBindJSON(&req)
	contest, err := h.lifecycle.Cancel(c.Request.Context(), contestID, actor(c), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, contest)
}

// Disqualify removes a participant from a contest.
func (h *ContestController) Disqualify(c *gin.Context) {
	contestID, ok := pathID(c)
	if !ok {
		return
	}
	var req DisqualifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	if err := h.lifecycle.Disqualify(c.Request.Context(), contestID, req.ParticipantID, actor(c), req.Reason); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Announce broadcasts an organizer message.
func (h *ContestController) Announce(c *gin.Context) {
	contestID, ok := pathID(c)
	if !ok {
		return
	}
	var req AnnounceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	if err := h.lifecycle.Announce(c.Request.Context(), contestID, req.Message, req.Priority, actor(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Register signs a participant up for a contest.
func (h *ContestController) Register(c *gin.Context) {
	contestID, ok := pathID(c)
	if !ok {
		return
	}
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	registration, err := h.registrations.Register(c.Request.Context(), contestID, req.ParticipantID, req.Alias)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, registration)
}

// Submit accepts a submission for judging.
func (h *ContestController) Submit(c *gin.Context) {
	contestID, ok := pathID(c)
	if !ok {
		return
	}
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	submissionID, err := h.orchestrator.Submit(c.Request.Context(), judgeService.SubmitInput{
		ContestID:     contestID,
		ParticipantID: req.ParticipantID,
		ProblemLabel:  req.ProblemLabel,
		Language:      req.Language,
		SourceCode:    req.SourceCode,
		Alias:         req.Alias,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, SubmitResponse{
		SubmissionID: submissionID,
		Verdict:      string(model.VerdictPending),
	})
}

// GetSubmission returns one submission.
func (h *ContestController) GetSubmission(c *gin.Context) {
	submissionID := c.Param("sid")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	submission, err := h.queries.GetSubmission(c.Request.Context(), submissionID, viewerID(c), isAdmin(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, submission)
}

// ListSubmissions returns one page of a contest's submissions.
func (h *ContestController) ListSubmissions(c *gin.Context) {
	contestID, ok := pathID(c)
	if !ok {
		return
	}
	page, size := pagination(c)
	filter := repository.SubmissionFilter{
		ContestID:     contestID,
		ParticipantID: queryInt64(c, "participant_id"),
		ProblemLabel:  c.Query("problem_label"),
		Verdict:       model.Verdict(c.Query("verdict")),
	}
	submissions, total, err := h.queries.ListSubmissions(c.Request.Context(), filter, page, size, viewerID(c), isAdmin(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, PageResponse{Items: submissions, Total: total, Page: page, Size: size})
}

// ListRegistrations returns one page of a contest's registrations.
func (h *ContestController) ListRegistrations(c *gin.Context) {
	contestID, ok := pathID(c)
	if !ok {
		return
	}
	page, size := pagination(c)
	registrations, total, err := h.queries.ListRegistrations(c.Request.Context(), contestID, page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, PageResponse{Items: registrations, Total: total, Page: page, Size: size})
}

// Leaderboard returns one page of the visible standings.
func (h *ContestController) Leaderboard(c *gin.Context) {
	contestID, ok := pathID(c)
	if !ok {
		return
	}
	page, size := pagination(c)
	rows, total, err := h.queries.Leaderboard(c.Request.Context(), contestID, page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, PageResponse{Items: rows, Total: int64(total), Page: page, Size: size})
}

func (h *ContestController) transition(c *gin.Context, fn func(ctx context.Context, contestID int64, actor string) (*model.Contest, error)) {
	contestID, ok := pathID(c)
	if !ok {
		return
	}
	contest, err := fn(c.Request.Context(), contestID, actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, contest)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid contest id")
		return 0, false
	}
	return id, true
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	return page, size
}

func queryInt64(c *gin.Context, key string) int64 {
	v, _ := strconv.ParseInt(c.Query(key), 10, 64)
	return v
}

func actor(c *gin.Context) string {
	if v := c.GetHeader("X-Actor"); v != "" {
		return v
	}
	return "api"
}

func isAdmin(c *gin.Context) bool {
	return c.GetHeader("X-Admin") == "true"
}

func viewerID(c *gin.Context) int64 {
	return queryInt64(c, "viewer_id")
}
