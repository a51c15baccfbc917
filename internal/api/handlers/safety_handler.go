package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/everbloom-ai/everbloom/internal/services"
)

type SafetyHandler struct {
	overseer services.OverseerService
}

func NewSafetyHandler(overseer services.OverseerService) *SafetyHandler {
	return &SafetyHandler{overseer: overseer}
}

func (h *SafetyHandler) Status(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	state, err := h.overseer.Status(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"active_concern": state.Concern,
		"suspended":      state.Suspended,
	})
}
