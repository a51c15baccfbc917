package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/everbloom-ai/everbloom/internal/api/handlers"
	"github.com/everbloom-ai/everbloom/internal/api/middleware"
)

type Deps struct {
	Chat    *handlers.ChatHandler
	Profile *handlers.ProfileHandler
	Safety  *handlers.SafetyHandler
	Voice   *handlers.VoiceHandler
	Session *handlers.SessionHandler
	Jobs    *handlers.JobsHandler
	WS      *handlers.WSHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth())

	auth.POST("/chat/send", d.Chat.Send)
	auth.GET("/chat/history", d.Chat.History)

	auth.GET("/profile/analysis", d.Profile.Analysis)
	auth.GET("/profile/persona", d.Profile.Persona)

	auth.GET("/safety/status", d.Safety.Status)

	auth.POST("/voice/synthesize", d.Voice.Synthesize)
	auth.POST("/voice/transcribe", d.Voice.Transcribe)

	auth.POST("/session/start", d.Session.Start)
	auth.GET("/session/:session_id", d.Session.Get)
	auth.POST("/session/:session_id/end", d.Session.End)

	// WebSocket
	auth.GET("/ws/chat", d.WS.ChatWS)

	// Internal job endpoints (service role)
	jobs := auth.Group("/jobs")
	jobs.Use(middleware.RequireService())

	jobs.POST("/safety-check", d.Jobs.SafetyCheck)
	jobs.POST("/chunk-summary", d.Jobs.ChunkSummary)
	jobs.POST("/super-summary", d.Jobs.SuperSummary)
	jobs.POST("/super-summary/batch", d.Jobs.SuperSummaryBatch)
	jobs.POST("/profile-synthesis", d.Jobs.ProfileSynthesis)
	jobs.POST("/stage-progress", d.Jobs.StageProgress)
}
