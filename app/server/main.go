package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/everbloom-ai/everbloom/config"
	"github.com/everbloom-ai/everbloom/internal/api/handlers"
	"github.com/everbloom-ai/everbloom/internal/api/middleware"
	"github.com/everbloom-ai/everbloom/internal/api/routes"
	"github.com/everbloom-ai/everbloom/internal/cache"
	"github.com/everbloom-ai/everbloom/internal/dispatch"
	"github.com/everbloom-ai/everbloom/internal/gate"
	applog "github.com/everbloom-ai/everbloom/internal/logger"
	"github.com/everbloom-ai/everbloom/internal/pipeline"
	"github.com/everbloom-ai/everbloom/internal/providers/llm"
	"github.com/everbloom-ai/everbloom/internal/providers/stt"
	"github.com/everbloom-ai/everbloom/internal/providers/tts"
	mongorepo "github.com/everbloom-ai/everbloom/internal/repositories/mongo"
	pgrepo "github.com/everbloom-ai/everbloom/internal/repositories/postgres"
	redisrepo "github.com/everbloom-ai/everbloom/internal/repositories/redis"
	"github.com/everbloom-ai/everbloom/internal/scheduler"
	"github.com/everbloom-ai/everbloom/internal/services"
	"github.com/everbloom-ai/everbloom/internal/storage"
	"github.com/everbloom-ai/everbloom/internal/workers"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	logger := applog.New()
	ctx := context.Background()

	// Stores
	if err := config.InitMongo(); err != nil {
		log.Fatalf("MongoDB init error: %v", err)
	}
	if err := config.EnsureMongoIndexes(); err != nil {
		log.Fatalf("MongoDB index error: %v", err)
	}
	if err := config.InitPostgres(); err != nil {
		log.Fatalf("PostgreSQL init error: %v", err)
	}
	if err := config.InitRedis(); err != nil {
		log.Fatalf("Redis init error: %v", err)
	}
	logger.Info("stores connected")

	// Providers
	projectID := os.Getenv("GOOGLE_PROJECT_ID")
	location := envOr("VERTEX_LOCATION", "us-central1")

	chatModel, err := llm.NewVertexGemini(ctx, projectID, location, envOr("CHAT_MODEL", "gemini-1.5-pro"))
	if err != nil {
		log.Fatalf("Vertex chat model init error: %v", err)
	}
	pipelineModel, err := llm.NewVertexGemini(ctx, projectID, location, envOr("PIPELINE_MODEL", "gemini-1.5-flash"))
	if err != nil {
		log.Fatalf("Vertex pipeline model init error: %v", err)
	}

	ttsProvider, err := tts.NewGoogleTTS(ctx, envOr("TTS_LANGUAGE", "en-US"), envOr("TTS_VOICE", "en-US-Neural2-F"))
	if err != nil {
		log.Fatalf("TTS init error: %v", err)
	}
	sttProvider, err := stt.NewGoogleSpeech(ctx)
	if err != nil {
		log.Fatalf("STT init error: %v", err)
	}
	uploader, err := storage.NewGCSUploader(ctx, os.Getenv("GCS_BUCKET"))
	if err != nil {
		log.Fatalf("GCS init error: %v", err)
	}

	// Repositories
	mongoDB := config.MongoClient.Database(config.MongoDBName())
	messageLog := redisrepo.NewMessageLog(config.RedisClient)
	counters := redisrepo.NewCounters(config.RedisClient)
	summaryRepo := pgrepo.NewSummaryRepo(config.PostgresDB)
	profileRepo := pgrepo.NewProfileRepo(config.PostgresDB)
	safetyRepo := pgrepo.NewSafetyRepo(config.PostgresDB)
	personaRepo := pgrepo.NewPersonaRepo(config.PostgresDB)
	subRepo := pgrepo.NewSubscriptionRepo(config.PostgresDB)
	sessionRepo := mongorepo.NewSessionRepo(mongoDB)
	auditRepo := mongorepo.NewAuditRepo(mongoDB)

	thresholds := pipeline.FromEnv()
	dispatcher := dispatch.NewRedisDispatcher(config.RedisClient, "")
	redisCache := cache.NewRedisCache(config.RedisClient)

	// Services
	messageSvc := services.NewMessageService(messageLog, counters, dispatcher, thresholds, logger)
	limiterSvc := services.NewLimiterService(counters, subRepo, logger)
	overseerSvc := services.NewOverseerService(messageLog, safetyRepo, auditRepo, pipelineModel, thresholds)
	chunkSvc := services.NewChunkSummarizer(messageLog, counters, summaryRepo, pipelineModel, dispatcher, thresholds, logger)
	superSvc := services.NewSuperSummarizer(
		summaryRepo, counters,
		services.NewLLMAggregation(pipelineModel),
		services.NewDeterministicAggregation(),
		dispatcher, thresholds, logger,
	)
	profileSvc := services.NewProfileSynthesizer(summaryRepo, profileRepo, pipelineModel, redisCache, thresholds, logger)
	stageSvc := services.NewStageService(messageLog, personaRepo, pipelineModel, thresholds, logger)
	sessionSvc := services.NewSessionService(sessionRepo)

	speechGate := gate.New(envIntOr("SPEECH_GATE_LIMIT", 3), envIntOr("SPEECH_GATE_QUEUE", 32))
	voiceSvc := services.NewVoiceService(ttsProvider, sttProvider, uploader, speechGate)
	chatSvc := services.NewChatService(
		messageSvc, limiterSvc, overseerSvc, stageSvc, profileSvc,
		messageLog, chatModel, voiceSvc, thresholds, logger,
	)

	// Background pipeline
	pool := &workers.PipelineWorkerPool{
		Redis:      config.RedisClient,
		NumWorkers: envIntOr("PIPELINE_WORKERS", 5),
		Overseer:   overseerSvc,
		Chunks:     chunkSvc,
		Supers:     superSvc,
		Profiles:   profileSvc,
		Stages:     stageSvc,
		Logger:     logger,
	}
	if err := pool.Start(ctx); err != nil {
		log.Fatalf("worker pool start error: %v", err)
	}

	sched := scheduler.New(superSvc, profileSvc, summaryRepo, logger)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("scheduler start error: %v", err)
	}

	// HTTP
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.RequestLogger(logger))

	routes.RegisterRoutes(r, routes.Deps{
		Chat:    handlers.NewChatHandler(chatSvc, messageSvc),
		Profile: handlers.NewProfileHandler(profileSvc, stageSvc),
		Safety:  handlers.NewSafetyHandler(overseerSvc),
		Voice:   handlers.NewVoiceHandler(voiceSvc),
		Session: handlers.NewSessionHandler(sessionSvc),
		Jobs:    handlers.NewJobsHandler(overseerSvc, chunkSvc, superSvc, profileSvc, stageSvc),
		WS:      handlers.NewWSHandler(chatSvc, sessionSvc),
	})

	port := envOr("PORT", "8080")
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
