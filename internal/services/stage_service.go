package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/everbloom-ai/everbloom/internal/models"
	"github.com/everbloom-ai/everbloom/internal/pipeline"
	"github.com/everbloom-ai/everbloom/internal/providers/llm"
	pgrepo "github.com/everbloom-ai/everbloom/internal/repositories/postgres"
	redisrepo "github.com/everbloom-ai/everbloom/internal/repositories/redis"
	"github.com/everbloom-ai/everbloom/internal/stages"
	"github.com/everbloom-ai/everbloom/internal/utils"
)

const stageSystem = `You review the recent conversation between a user and their companion persona.
Decide whether the persona should advance to the NEXT relationship stage, and propose small (about 5%) natural drifts to the persona's auxiliary attributes.
Respond with one JSON object and nothing else:
{"next_stage": string, "attribute_updates": {string: string}}
next_stage must be the current stage (no change) or the immediate next stage. Current stage and allowed next stage are given in the transcript header.`

// StageService advances the companion persona along the fixed script
// sequence, one step at a time, and drifts allow-listed persona attributes.
// Any proposed stage other than the current or immediate next one is rejected
// and the stage stays put; unauthorized attribute keys are dropped silently.
type StageService interface {
	Run(ctx context.Context, userID string) error
	// Persona returns the user's persona state, creating the introductory
	// default on first use.
	Persona(ctx context.Context, userID string) (*models.PersonaState, error)
}

type stageService struct {
	log        redisrepo.MessageLog
	personas   pgrepo.PersonaRepository
	gen        llm.Provider
	thresholds pipeline.Thresholds
	logger     *logrus.Logger
}

func NewStageService(
	log redisrepo.MessageLog,
	personas pgrepo.PersonaRepository,
	gen llm.Provider,
	thresholds pipeline.Thresholds,
	logger *logrus.Logger,
) StageService {
	return &stageService{
		log:        log,
		personas:   personas,
		gen:        gen,
		thresholds: thresholds,
		logger:     logger,
	}
}

// defaultAttributes seed a fresh persona; the progressor drifts them over
// time within the allow-list.
func defaultAttributes() datatypes.JSON {
	b, _ := json.Marshal(map[string]string{
		"occupation":      "illustrator at a small studio",
		"interests":       "indie music, night walks, cooking experiments",
		"daily_schedule":  "late riser, works afternoons, free most evenings",
		"favorite_topics": "films, childhood stories, what-if questions",
		"quirks":          "hums while thinking, collects postcards",
	})
	return datatypes.JSON(b)
}

func (s *stageService) Persona(ctx context.Context, userID string) (*models.PersonaState, error) {
	const op = "StageService.Persona"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}

	p, err := s.personas.GetByUserID(ctx, userID)
	if err == utils.ErrNotFound {
		p = &models.PersonaState{
			UserID:      userID,
			StageKey:    string(stages.PersonaIntroductory),
			StageScript: stages.Script(stages.PersonaIntroductory),
			Attributes:  defaultAttributes(),
			UpdatedAt:   time.Now().UTC(),
		}
		if err := s.personas.Save(ctx, p); err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to create persona", err)
		}
		return p, nil
	}
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to read persona", err)
	}
	return p, nil
}

type stageProposal struct {
	NextStage        string            `json:"next_stage"`
	AttributeUpdates map[string]string `json:"attribute_updates"`
}

func (s *stageService) Run(ctx context.Context, userID string) error {
	const op = "StageService.Run"

	persona, err := s.Persona(ctx, userID)
	if err != nil {
		return err
	}

	msgs, err := s.log.RecentN(ctx, userID, s.thresholds.StageEvery)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to read message window", err)
	}
	if len(msgs) == 0 {
		return nil
	}

	current := stages.PersonaStage(persona.StageKey)
	header := "current stage: " + string(current) + "\nallowed next stage: " + string(stages.Next(current)) + "\n\n"

	out, err := s.gen.Generate(ctx, llm.Request{
		System:      stageSystem,
		Turns:       []llm.Turn{{Role: llm.RoleUser, Text: header + transcript(msgs)}},
		Temperature: 0.4,
		JSONOnly:    true,
	})
	if err != nil {
		return utils.E(utils.CodeUnavailable, op, "stage proposal failed", err)
	}

	var proposal stageProposal
	if err := json.Unmarshal([]byte(out), &proposal); err != nil {
		return utils.E(utils.CodeInternal, op, "stage proposal is not valid JSON", err)
	}

	newStage := current
	proposed := stages.PersonaStage(proposal.NextStage)
	if stages.IsPersonaStage(proposal.NextStage) && stages.CanAdvance(current, proposed) {
		newStage = proposed
	} else if proposal.NextStage != "" && proposed != current {
		s.logger.WithFields(logrus.Fields{
			"user_id":  userID,
			"current":  current,
			"proposed": proposal.NextStage,
		}).Warn("stage proposal rejected")
	}

	attrs := map[string]string{}
	if len(persona.Attributes) > 0 {
		_ = json.Unmarshal(persona.Attributes, &attrs)
	}
	for k, v := range proposal.AttributeUpdates {
		if models.IsAllowedPersonaAttribute(k) && v != "" {
			attrs[k] = v
		}
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to encode attributes", err)
	}

	persona.StageKey = string(newStage)
	persona.StageScript = stages.Script(newStage)
	persona.Attributes = datatypes.JSON(encoded)
	persona.UpdatedAt = time.Now().UTC()

	if err := s.personas.Save(ctx, persona); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to save persona", err)
	}
	return nil
}
