package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/everbloom-ai/everbloom/internal/dispatch"
	"github.com/everbloom-ai/everbloom/internal/models"
	"github.com/everbloom-ai/everbloom/internal/pipeline"
	"github.com/everbloom-ai/everbloom/internal/providers/llm"
	pgrepo "github.com/everbloom-ai/everbloom/internal/repositories/postgres"
	redisrepo "github.com/everbloom-ai/everbloom/internal/repositories/redis"
	"github.com/everbloom-ai/everbloom/internal/stages"
	"github.com/everbloom-ai/everbloom/internal/utils"
)

const chunkSummarySystem = `You analyze a window of companion-chat messages.
Respond with a single JSON object and nothing else, matching exactly:
{
  "summary_text": string,
  "relationship_stage": string,
  "key_events": [{"event": string, "impact": string, "type": string}],
  "emotional_patterns": {"primary_emotions": [string], "triggers": [string], "response_patterns": [string], "growth_areas": [string], "coping_mechanisms": [string]},
  "personality_insights": {"communication_style": string, "values": [string], "interests": [string], "attachment_style": string, "decision_making": string, "social_preferences": string, "growth_mindset": string}
}
relationship_stage MUST be exactly one of: `

// ChunkSummarizer turns each fixed-size window of raw messages into one
// structured, immutable summary row. Not idempotent by construction: the
// since-chunk counter guards at-most-once invocation per threshold crossing
// and is reset only after a successful run.
type ChunkSummarizer interface {
	Run(ctx context.Context, userID string) error
}

type chunkSummarizer struct {
	log        redisrepo.MessageLog
	counters   redisrepo.PipelineCounters
	summaries  pgrepo.SummaryRepository
	gen        llm.Provider
	dispatcher dispatch.Dispatcher
	thresholds pipeline.Thresholds
	logger     *logrus.Logger
}

func NewChunkSummarizer(
	log redisrepo.MessageLog,
	counters redisrepo.PipelineCounters,
	summaries pgrepo.SummaryRepository,
	gen llm.Provider,
	dispatcher dispatch.Dispatcher,
	thresholds pipeline.Thresholds,
	logger *logrus.Logger,
) ChunkSummarizer {
	return &chunkSummarizer{
		log:        log,
		counters:   counters,
		summaries:  summaries,
		gen:        gen,
		dispatcher: dispatcher,
		thresholds: thresholds,
		logger:     logger,
	}
}

func (s *chunkSummarizer) Run(ctx context.Context, userID string) error {
	const op = "ChunkSummarizer.Run"

	if userID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}

	since, err := s.counters.SinceChunk(ctx, userID)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to read since-chunk counter", err)
	}
	if since < int64(s.thresholds.ChunkSize) {
		// duplicate or early delivery; the threshold has not crossed
		return nil
	}

	msgs, err := s.log.RecentN(ctx, userID, s.thresholds.ChunkSize)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to read message window", err)
	}
	if len(msgs) < s.thresholds.ChunkSize {
		return nil
	}

	system := chunkSummarySystem + strings.Join(stageNames(), ", ")
	out, err := s.gen.Generate(ctx, llm.Request{
		System:      system,
		Turns:       []llm.Turn{{Role: llm.RoleUser, Text: transcript(msgs)}},
		Temperature: 0.2,
		JSONOnly:    true,
	})
	if err != nil {
		return utils.E(utils.CodeUnavailable, op, "summary generation failed", err)
	}

	var payload models.SummaryPayload
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		return utils.E(utils.CodeInternal, op, "summary response is not valid JSON", err)
	}
	if !stages.IsAnalyticStage(payload.RelationshipStage) {
		return utils.E(utils.CodeInternal, op, "summary relationship_stage outside vocabulary", nil)
	}

	row, err := summaryRow(userID, payload, false, nil)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to encode summary", err)
	}
	if err := s.summaries.Insert(ctx, row); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to insert summary", err)
	}

	entry := s.logger.WithField("user_id", userID)
	if err := s.counters.ResetSinceChunk(ctx, userID); err != nil {
		entry.WithError(err).Warn("since-chunk counter reset failed")
	}

	n, err := s.counters.IncrChunks(ctx, userID)
	if err != nil {
		entry.WithError(err).Warn("chunk counter increment failed")
		return nil
	}
	if n >= int64(s.thresholds.SuperThreshold) {
		if err := s.dispatcher.Dispatch(ctx, dispatch.Task{Kind: dispatch.KindSuperSummary, UserID: userID}); err != nil {
			entry.WithError(err).Warn("super-summary dispatch failed")
		}
	}
	return nil
}

// summaryRow builds the persisted row from a validated payload. meta is nil
// for chunk summaries.
func summaryRow(userID string, p models.SummaryPayload, super bool, meta *models.MetaAnalysis) (*models.ConversationSummary, error) {
	events, err := json.Marshal(p.KeyEvents)
	if err != nil {
		return nil, err
	}
	emotions, err := json.Marshal(p.EmotionalPatterns)
	if err != nil {
		return nil, err
	}
	personality, err := json.Marshal(p.PersonalityInsights)
	if err != nil {
		return nil, err
	}

	row := &models.ConversationSummary{
		ID:                  uuid.NewString(),
		UserID:              userID,
		SummaryText:         p.SummaryText,
		RelationshipStage:   p.RelationshipStage,
		KeyEvents:           datatypes.JSON(events),
		EmotionalPatterns:   datatypes.JSON(emotions),
		PersonalityInsights: datatypes.JSON(personality),
		IsSuperSummary:      super,
		CreatedAt:           time.Now().UTC(),
	}
	if meta != nil {
		b, err := json.Marshal(meta)
		if err != nil {
			return nil, err
		}
		row.MetaAnalysis = datatypes.JSON(b)
	}
	return row, nil
}

func stageNames() []string {
	out := make([]string, len(stages.AnalyticStages))
	for i, s := range stages.AnalyticStages {
		out[i] = string(s)
	}
	return out
}
