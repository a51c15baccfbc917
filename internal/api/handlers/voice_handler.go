package handlers

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/everbloom-ai/everbloom/internal/services"
	"github.com/everbloom-ai/everbloom/internal/utils"
)

type VoiceHandler struct {
	voice services.VoiceService
}

func NewVoiceHandler(voice services.VoiceService) *VoiceHandler {
	return &VoiceHandler{voice: voice}
}

type SynthesizeRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *VoiceHandler) Synthesize(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req SynthesizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "VoiceHandler.Synthesize", "invalid request body", err))
		return
	}

	url, err := h.voice.Synthesize(c.Request.Context(), userID, req.Text)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"voice_url": url})
}

type TranscribeRequest struct {
	AudioBase64 string `json:"audio_base64" binding:"required"`
	Language    string `json:"language"`
}

func (h *VoiceHandler) Transcribe(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	var req TranscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "VoiceHandler.Transcribe", "invalid request body", err))
		return
	}

	audio, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil || len(audio) == 0 {
		writeError(c, utils.E(utils.CodeInvalidArgument, "VoiceHandler.Transcribe", "audio_base64 is not valid base64", err))
		return
	}

	text, err := h.voice.Transcribe(c.Request.Context(), audio, req.Language)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"text": text})
}
