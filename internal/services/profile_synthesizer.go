package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/everbloom-ai/everbloom/internal/cache"
	"github.com/everbloom-ai/everbloom/internal/models"
	"github.com/everbloom-ai/everbloom/internal/pipeline"
	"github.com/everbloom-ai/everbloom/internal/providers/llm"
	pgrepo "github.com/everbloom-ai/everbloom/internal/repositories/postgres"
	"github.com/everbloom-ai/everbloom/internal/utils"
)

const profileSystem = `You synthesize a user profile from a sequence of relationship meta-summaries.
Each summary is annotated with a recency weight; weigh recent summaries proportionally higher.
Respond with one JSON object and nothing else:
{
  "relationship_stage_score": integer 0-100,
  "trust_score": integer 0-100,
  "conflict_score": integer 0-100,
  "overall_emotional_health": integer 0-100,
  "communication_style": string,
  "coping_style": string,
  "decision_making_style": string,
  "attachment_style": string,
  "repeated_relationship_stages": [string],
  "repeated_themes": {string: integer},
  "extended_personality": {string: string}
}`

// profileCacheTTL bounds staleness of the chat-path profile lookup.
const profileCacheTTL = time.Hour

func profileCacheKey(userID string) string { return "profile:" + userID }

// recencyDecay is the per-step weight multiplier applied from newest to
// oldest super summary. Chosen so a 20-summary window spans roughly one order
// of magnitude between newest and oldest weight.
const recencyDecay = 0.85

// ProfileSynthesizer aggregates the most recent super summaries into the
// single structured profile the live generator grounds on. The validation
// layer after the model call is mandatory and runs regardless of how
// well-formed the response looks.
type ProfileSynthesizer interface {
	Run(ctx context.Context, userID string) error
	Get(ctx context.Context, userID string) (*models.UserProfileAnalysis, error)
}

type profileSynthesizer struct {
	summaries  pgrepo.SummaryRepository
	profiles   pgrepo.ProfileRepository
	gen        llm.Provider
	cache      cache.Cache
	thresholds pipeline.Thresholds
	logger     *logrus.Logger
}

func NewProfileSynthesizer(
	summaries pgrepo.SummaryRepository,
	profiles pgrepo.ProfileRepository,
	gen llm.Provider,
	c cache.Cache,
	thresholds pipeline.Thresholds,
	logger *logrus.Logger,
) ProfileSynthesizer {
	return &profileSynthesizer{
		summaries:  summaries,
		profiles:   profiles,
		gen:        gen,
		cache:      c,
		thresholds: thresholds,
		logger:     logger,
	}
}

func (s *profileSynthesizer) Get(ctx context.Context, userID string) (*models.UserProfileAnalysis, error) {
	const op = "ProfileSynthesizer.Get"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}

	var cached models.UserProfileAnalysis
	if hit, err := s.cache.GetJSON(ctx, profileCacheKey(userID), &cached); err == nil && hit {
		return &cached, nil
	}

	p, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		if err == utils.ErrNotFound {
			return nil, utils.E(utils.CodeNotFound, op, "profile not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to read profile", err)
	}
	return p, nil
}

func (s *profileSynthesizer) Run(ctx context.Context, userID string) error {
	const op = "ProfileSynthesizer.Run"

	if userID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}

	supers, err := s.summaries.RecentSupers(ctx, userID, s.thresholds.ProfileWindow)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to read super summaries", err)
	}
	if len(supers) == 0 {
		return nil
	}
	// repo returns newest-first; the prompt wants chronological order
	for i, j := 0, len(supers)-1; i < j; i, j = i+1, j-1 {
		supers[i], supers[j] = supers[j], supers[i]
	}

	out, err := s.gen.Generate(ctx, llm.Request{
		System:      profileSystem,
		Turns:       []llm.Turn{{Role: llm.RoleUser, Text: weightedSummaries(supers)}},
		Temperature: 0.2,
		JSONOnly:    true,
	})
	if err != nil {
		return utils.E(utils.CodeUnavailable, op, "profile generation failed", err)
	}

	profile, err := validateProfile(userID, out)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "profile response rejected", err)
	}

	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to upsert profile", err)
	}
	if err := s.cache.SetJSON(ctx, profileCacheKey(userID), profile, profileCacheTTL); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("profile cache write failed")
	}
	return nil
}

// weightedSummaries renders the chronological super summaries with explicit
// exponential recency weights.
func weightedSummaries(supers []models.ConversationSummary) string {
	var sb strings.Builder
	n := len(supers)
	for i, s := range supers {
		w := math.Pow(recencyDecay, float64(n-1-i))
		fmt.Fprintf(&sb, "--- summary %d of %d (recency weight %.2f, stage: %s) ---\n%s\n",
			i+1, n, w, s.RelationshipStage, s.SummaryText)
	}
	return sb.String()
}

// rawProfile tolerates the model returning wrong types anywhere; every field
// is coerced afterwards.
type rawProfile struct {
	RelationshipStageScore any `json:"relationship_stage_score"`
	TrustScore             any `json:"trust_score"`
	ConflictScore          any `json:"conflict_score"`
	OverallEmotionalHealth any `json:"overall_emotional_health"`

	CommunicationStyle  any `json:"communication_style"`
	CopingStyle         any `json:"coping_style"`
	DecisionMakingStyle any `json:"decision_making_style"`
	AttachmentStyle     any `json:"attachment_style"`

	RepeatedRelationshipStages any `json:"repeated_relationship_stages"`
	RepeatedThemes             any `json:"repeated_themes"`
	ExtendedPersonality        any `json:"extended_personality"`
}

// validateProfile parses and sanitizes one model response into a persistable
// profile. Only a top-level JSON parse failure is an error; every field-level
// deviation is coerced to a safe value.
func validateProfile(userID, out string) (*models.UserProfileAnalysis, error) {
	var raw rawProfile
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	return &models.UserProfileAnalysis{
		UserID: userID,

		RelationshipStageScore: coerceScore(raw.RelationshipStageScore),
		TrustScore:             coerceScore(raw.TrustScore),
		ConflictScore:          coerceScore(raw.ConflictScore),
		OverallEmotionalHealth: coerceScore(raw.OverallEmotionalHealth),

		CommunicationStyle:  coerceCategory(raw.CommunicationStyle, models.CommunicationStyles),
		CopingStyle:         coerceCategory(raw.CopingStyle, models.CopingStyles),
		DecisionMakingStyle: coerceCategory(raw.DecisionMakingStyle, models.DecisionMakingStyles),
		AttachmentStyle:     coerceCategory(raw.AttachmentStyle, models.AttachmentStyles),

		RepeatedRelationshipStages: coerceStringSlice(raw.RepeatedRelationshipStages),
		RepeatedThemes:             coerceObject(raw.RepeatedThemes),
		ExtendedPersonality:        coerceObject(raw.ExtendedPersonality),

		UpdatedAt: time.Now().UTC(),
	}, nil
}

func coerceScore(v any) int {
	switch n := v.(type) {
	case float64:
		return models.ClampScore(int(n))
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return models.ClampScore(i)
		}
	}
	return 0
}

func coerceCategory(v any, allowed []string) string {
	s, ok := v.(string)
	if !ok {
		return models.EnumUnknown
	}
	return models.CoerceEnum(strings.TrimSpace(strings.ToLower(s)), allowed)
}

func coerceStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func coerceObject(v any) datatypes.JSON {
	m, ok := v.(map[string]any)
	if !ok {
		return datatypes.JSON([]byte("{}"))
	}
	b, err := json.Marshal(m)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(b)
}
