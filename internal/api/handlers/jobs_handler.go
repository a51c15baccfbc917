package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/everbloom-ai/everbloom/internal/services"
	"github.com/everbloom-ai/everbloom/internal/utils"
)

// JobsHandler exposes the background pipeline jobs for operators: each
// endpoint runs one job synchronously for one user. The normal trigger path
// is the dispatch stream; these exist for replays and backfills.
type JobsHandler struct {
	overseer services.OverseerService
	chunks   services.ChunkSummarizer
	supers   services.SuperSummarizer
	profiles services.ProfileSynthesizer
	stages   services.StageService
}

func NewJobsHandler(
	overseer services.OverseerService,
	chunks services.ChunkSummarizer,
	supers services.SuperSummarizer,
	profiles services.ProfileSynthesizer,
	stages services.StageService,
) *JobsHandler {
	return &JobsHandler{
		overseer: overseer,
		chunks:   chunks,
		supers:   supers,
		profiles: profiles,
		stages:   stages,
	}
}

type JobRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *JobsHandler) run(c *gin.Context, op string, job func(ctx context.Context, userID string) error) {
	var req JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err))
		return
	}

	if err := job(c.Request.Context(), req.UserID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *JobsHandler) SafetyCheck(c *gin.Context) {
	h.run(c, "JobsHandler.SafetyCheck", h.overseer.Evaluate)
}

func (h *JobsHandler) ChunkSummary(c *gin.Context) {
	h.run(c, "JobsHandler.ChunkSummary", h.chunks.Run)
}

func (h *JobsHandler) SuperSummary(c *gin.Context) {
	h.run(c, "JobsHandler.SuperSummary", h.supers.Run)
}

func (h *JobsHandler) ProfileSynthesis(c *gin.Context) {
	h.run(c, "JobsHandler.ProfileSynthesis", h.profiles.Run)
}

func (h *JobsHandler) StageProgress(c *gin.Context) {
	h.run(c, "JobsHandler.StageProgress", h.stages.Run)
}

// SuperSummaryBatch runs the deterministic sweep over every eligible user.
func (h *JobsHandler) SuperSummaryBatch(c *gin.Context) {
	if err := h.supers.RunBatch(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
