package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/everbloom-ai/everbloom/internal/services"
)

type ProfileHandler struct {
	profiles services.ProfileSynthesizer
	stages   services.StageService
}

func NewProfileHandler(profiles services.ProfileSynthesizer, stages services.StageService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, stages: stages}
}

// Analysis returns the synthesized long-term profile for the caller.
func (h *ProfileHandler) Analysis(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	profile, err := h.profiles.Get(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// Persona returns the companion's current relationship stage and attributes.
func (h *ProfileHandler) Persona(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	persona, err := h.stages.Persona(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, persona)
}
