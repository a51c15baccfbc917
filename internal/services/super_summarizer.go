package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/everbloom-ai/everbloom/internal/dispatch"
	"github.com/everbloom-ai/everbloom/internal/models"
	"github.com/everbloom-ai/everbloom/internal/pipeline"
	"github.com/everbloom-ai/everbloom/internal/providers/llm"
	pgrepo "github.com/everbloom-ai/everbloom/internal/repositories/postgres"
	redisrepo "github.com/everbloom-ai/everbloom/internal/repositories/redis"
	"github.com/everbloom-ai/everbloom/internal/stages"
	"github.com/everbloom-ai/everbloom/internal/utils"
)

// AggregationStrategy turns a user's pending chunk summaries, oldest-first,
// into one super summary payload. Two implementations exist: a model call for
// the on-demand path and a deterministic merge for the batch sweep. Both obey
// the same contract: a payload without a valid relationship_stage is an
// error and nothing is written.
type AggregationStrategy interface {
	Aggregate(ctx context.Context, userID string, chunks []models.ConversationSummary) (*models.SuperSummaryPayload, error)
}

// SuperSummarizer aggregates pending chunk summaries into one super summary
// and removes the consumed chunks. Chunk cleanup is best-effort: if it fails,
// the chunks are retried as candidates next run, which can rarely double-count
// them. Accepted as a known limitation.
type SuperSummarizer interface {
	Run(ctx context.Context, userID string) error
	// RunBatch sweeps every user holding at least the threshold of pending
	// chunks, using the deterministic strategy.
	RunBatch(ctx context.Context) error
}

type superSummarizer struct {
	summaries  pgrepo.SummaryRepository
	counters   redisrepo.PipelineCounters
	strategy   AggregationStrategy
	batch      AggregationStrategy
	dispatcher dispatch.Dispatcher
	thresholds pipeline.Thresholds
	logger     *logrus.Logger
}

func NewSuperSummarizer(
	summaries pgrepo.SummaryRepository,
	counters redisrepo.PipelineCounters,
	strategy AggregationStrategy,
	batch AggregationStrategy,
	dispatcher dispatch.Dispatcher,
	thresholds pipeline.Thresholds,
	logger *logrus.Logger,
) SuperSummarizer {
	return &superSummarizer{
		summaries:  summaries,
		counters:   counters,
		strategy:   strategy,
		batch:      batch,
		dispatcher: dispatcher,
		thresholds: thresholds,
		logger:     logger,
	}
}

func (s *superSummarizer) Run(ctx context.Context, userID string) error {
	return s.runWith(ctx, userID, s.strategy)
}

func (s *superSummarizer) RunBatch(ctx context.Context) error {
	const op = "SuperSummarizer.RunBatch"

	users, err := s.summaries.UsersWithPendingChunks(ctx, s.thresholds.SuperThreshold)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to list eligible users", err)
	}

	for _, u := range users {
		if err := s.runWith(ctx, u, s.batch); err != nil {
			// one user's failure must not starve the rest of the sweep
			s.logger.WithError(err).WithField("user_id", u).Warn("batch aggregation failed")
		}
	}
	return nil
}

func (s *superSummarizer) runWith(ctx context.Context, userID string, strategy AggregationStrategy) error {
	const op = "SuperSummarizer.Run"

	if userID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}

	chunks, err := s.summaries.ListPendingChunks(ctx, userID)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to list pending chunks", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	payload, err := strategy.Aggregate(ctx, userID, chunks)
	if err != nil {
		return utils.E(utils.CodeUnavailable, op, "aggregation failed", err)
	}
	if !stages.IsAnalyticStage(payload.RelationshipStage) {
		return utils.E(utils.CodeInternal, op, "aggregation missing valid relationship_stage", nil)
	}

	row, err := summaryRow(userID, payload.SummaryPayload, true, &payload.MetaAnalysis)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to encode super summary", err)
	}
	if err := s.summaries.Insert(ctx, row); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to insert super summary", err)
	}

	entry := s.logger.WithField("user_id", userID)

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	if err := s.summaries.DeleteChunks(ctx, userID, ids); err != nil {
		entry.WithError(err).Warn("consumed chunk cleanup failed; chunks remain candidates")
	}
	if err := s.counters.ResetChunks(ctx, userID); err != nil {
		entry.WithError(err).Warn("chunk counter reset failed")
	}

	if err := s.dispatcher.Dispatch(ctx, dispatch.Task{Kind: dispatch.KindProfileSynthesis, UserID: userID}); err != nil {
		entry.WithError(err).Warn("profile synthesis dispatch failed")
	}
	return nil
}

// --- LLM strategy ---

const superSummarySystem = `You aggregate multiple chat-window summaries for one user into a single meta-summary.
Respond with one JSON object and nothing else:
{
  "summary_text": string,
  "relationship_stage": string,
  "key_events": [{"event": string, "impact": string, "type": string}],
  "emotional_patterns": {"primary_emotions": [string], "triggers": [string], "response_patterns": [string], "growth_areas": [string], "coping_mechanisms": [string]},
  "personality_insights": {"communication_style": string, "values": [string], "interests": [string], "attachment_style": string, "decision_making": string, "social_preferences": string, "growth_mindset": string},
  "meta_analysis": {"narrative": string, "phase_history": [string], "emotional_evolution": string, "longitudinal_patterns": [string], "growth": string, "recommendations": [string]}
}
relationship_stage is mandatory and MUST be exactly one of: `

type LLMAggregation struct {
	gen llm.Provider
}

func NewLLMAggregation(gen llm.Provider) *LLMAggregation {
	return &LLMAggregation{gen: gen}
}

func (a *LLMAggregation) Aggregate(ctx context.Context, userID string, chunks []models.ConversationSummary) (*models.SuperSummaryPayload, error) {
	var sb strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&sb, "--- summary %d (stage: %s) ---\n%s\n", i+1, c.RelationshipStage, c.SummaryText)
	}

	out, err := a.gen.Generate(ctx, llm.Request{
		System:      superSummarySystem + strings.Join(stageNames(), ", "),
		Turns:       []llm.Turn{{Role: llm.RoleUser, Text: sb.String()}},
		Temperature: 0.2,
		JSONOnly:    true,
	})
	if err != nil {
		return nil, err
	}

	var payload models.SuperSummaryPayload
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		return nil, fmt.Errorf("super summary response is not valid JSON: %w", err)
	}
	if payload.RelationshipStage == "" {
		return nil, fmt.Errorf("super summary response missing relationship_stage")
	}
	return &payload, nil
}

// --- deterministic strategy ---

// DeterministicAggregation merges chunk fields without a model call, for the
// scheduled sweep where per-user generation cost would not scale.
type DeterministicAggregation struct{}

func NewDeterministicAggregation() *DeterministicAggregation {
	return &DeterministicAggregation{}
}

func (a *DeterministicAggregation) Aggregate(_ context.Context, _ string, chunks []models.ConversationSummary) (*models.SuperSummaryPayload, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to aggregate")
	}

	var (
		payload    models.SuperSummaryPayload
		stageCount = map[string]int{}
		phases     []string
		texts      []string
	)

	for _, c := range chunks {
		stageCount[c.RelationshipStage]++
		phases = append(phases, c.RelationshipStage)
		if c.SummaryText != "" {
			texts = append(texts, c.SummaryText)
		}

		var events []models.KeyEvent
		if err := json.Unmarshal(c.KeyEvents, &events); err == nil {
			payload.KeyEvents = unionEvents(payload.KeyEvents, events)
		}
		var ep models.EmotionalPatterns
		if err := json.Unmarshal(c.EmotionalPatterns, &ep); err == nil {
			mergeEmotionalPatterns(&payload.EmotionalPatterns, ep)
		}
		var pi models.PersonalityInsights
		if err := json.Unmarshal(c.PersonalityInsights, &pi); err == nil {
			mergePersonalityInsights(&payload.PersonalityInsights, pi)
		}
	}

	payload.RelationshipStage = mostFrequent(stageCount, phases)
	payload.SummaryText = strings.Join(texts, " ")
	payload.MetaAnalysis = models.MetaAnalysis{
		Narrative:          fmt.Sprintf("Aggregated %d chunk summaries; dominant stage %q.", len(chunks), payload.RelationshipStage),
		PhaseHistory:       phases,
		EmotionalEvolution: strings.Join(payload.EmotionalPatterns.PrimaryEmotions, ", "),
		LongitudinalTrends: payload.EmotionalPatterns.ResponsePatterns,
		Growth:             strings.Join(payload.EmotionalPatterns.GrowthAreas, ", "),
	}
	for _, area := range payload.EmotionalPatterns.GrowthAreas {
		payload.MetaAnalysis.Recommendations = append(payload.MetaAnalysis.Recommendations,
			"Support the user's growth around "+area)
	}
	return &payload, nil
}

// mostFrequent picks the stage with the highest count; ties resolve to the
// most recent occurrence so the aggregate tracks where the relationship is,
// not where it was.
func mostFrequent(counts map[string]int, ordered []string) string {
	best, bestN := "", 0
	for i := len(ordered) - 1; i >= 0; i-- {
		s := ordered[i]
		if counts[s] > bestN {
			best, bestN = s, counts[s]
		}
	}
	return best
}

func unionEvents(dst, src []models.KeyEvent) []models.KeyEvent {
	seen := map[string]struct{}{}
	for _, e := range dst {
		seen[e.Event] = struct{}{}
	}
	for _, e := range src {
		if _, ok := seen[e.Event]; ok {
			continue
		}
		seen[e.Event] = struct{}{}
		dst = append(dst, e)
	}
	return dst
}

func mergeEmotionalPatterns(dst *models.EmotionalPatterns, src models.EmotionalPatterns) {
	dst.PrimaryEmotions = unionStrings(dst.PrimaryEmotions, src.PrimaryEmotions)
	dst.Triggers = unionStrings(dst.Triggers, src.Triggers)
	dst.ResponsePatterns = unionStrings(dst.ResponsePatterns, src.ResponsePatterns)
	dst.GrowthAreas = unionStrings(dst.GrowthAreas, src.GrowthAreas)
	dst.CopingMechanisms = unionStrings(dst.CopingMechanisms, src.CopingMechanisms)
}

func mergePersonalityInsights(dst *models.PersonalityInsights, src models.PersonalityInsights) {
	if dst.CommunicationStyle == "" {
		dst.CommunicationStyle = src.CommunicationStyle
	}
	if dst.AttachmentStyle == "" {
		dst.AttachmentStyle = src.AttachmentStyle
	}
	if dst.DecisionMaking == "" {
		dst.DecisionMaking = src.DecisionMaking
	}
	if dst.SocialPreferences == "" {
		dst.SocialPreferences = src.SocialPreferences
	}
	if dst.GrowthMindset == "" {
		dst.GrowthMindset = src.GrowthMindset
	}
	dst.Values = unionStrings(dst.Values, src.Values)
	dst.Interests = unionStrings(dst.Interests, src.Interests)
}

func unionStrings(dst, src []string) []string {
	seen := map[string]struct{}{}
	for _, s := range dst {
		seen[s] = struct{}{}
	}
	for _, s := range src {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		dst = append(dst, s)
	}
	return dst
}
