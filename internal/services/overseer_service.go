package services

import (
	"context"
	"strings"
	"time"

	"github.com/everbloom-ai/everbloom/internal/models"
	"github.com/everbloom-ai/everbloom/internal/pipeline"
	"github.com/everbloom-ai/everbloom/internal/providers/llm"
	mongorepo "github.com/everbloom-ai/everbloom/internal/repositories/mongo"
	pgrepo "github.com/everbloom-ai/everbloom/internal/repositories/postgres"
	redisrepo "github.com/everbloom-ai/everbloom/internal/repositories/redis"
	"github.com/everbloom-ai/everbloom/internal/utils"
)

const overseerSystemPrompt = `You are a safety classifier for a chat transcript.
Read the messages and answer with exactly one of these three outputs and nothing else:
SUICIDE - the user expresses self-harm or suicidal intent
VIOLENCE - the user expresses intent to harm others
"" - neither (answer with an empty string)`

// OverseerService inspects the most recent messages for explicit self-harm or
// violence signals and maintains the escalating per-user concern state.
//
// Transitions: an empty classification clears the stored flag; a
// classification equal to the stored flag is a no-op; a new non-empty
// classification increments that concern's counter, suspending the account at
// the ceiling. Suspension is terminal here; support lifts it out of band.
type OverseerService interface {
	// Evaluate runs one classification pass. Classifier failures leave the
	// stored state untouched.
	Evaluate(ctx context.Context, userID string) error
	// Status returns the user's current safety state.
	Status(ctx context.Context, userID string) (*models.SafetyState, error)
}

type overseerService struct {
	log        redisrepo.MessageLog
	safety     pgrepo.SafetyRepository
	audit      mongorepo.AuditRepository
	gen        llm.Provider
	thresholds pipeline.Thresholds
}

func NewOverseerService(
	log redisrepo.MessageLog,
	safety pgrepo.SafetyRepository,
	audit mongorepo.AuditRepository,
	gen llm.Provider,
	thresholds pipeline.Thresholds,
) OverseerService {
	return &overseerService{
		log:        log,
		safety:     safety,
		audit:      audit,
		gen:        gen,
		thresholds: thresholds,
	}
}

func (s *overseerService) Status(ctx context.Context, userID string) (*models.SafetyState, error) {
	const op = "OverseerService.Status"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	st, err := s.safety.Get(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to read safety state", err)
	}
	return st, nil
}

func (s *overseerService) Evaluate(ctx context.Context, userID string) error {
	const op = "OverseerService.Evaluate"

	if userID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}

	msgs, err := s.log.RecentN(ctx, userID, s.thresholds.SafetyWindow)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to read recent messages", err)
	}
	if len(msgs) == 0 {
		return nil
	}

	out, err := s.gen.Generate(ctx, llm.Request{
		System:      overseerSystemPrompt,
		Turns:       []llm.Turn{{Role: llm.RoleUser, Text: transcript(msgs)}},
		Temperature: 0,
	})
	if err != nil {
		// fail-safe: never clear or escalate on a transient classifier error
		return utils.E(utils.CodeUnavailable, op, "classifier call failed", err)
	}

	cls := strings.Trim(strings.ToUpper(strings.TrimSpace(out)), `"`)
	switch cls {
	case "", "SUICIDE", "VIOLENCE":
	default:
		return utils.E(utils.CodeInternal, op, "classifier returned unexpected output", nil)
	}

	state, err := s.safety.Get(ctx, userID)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to read safety state", err)
	}

	prior := state.Concern
	action := s.transition(state, cls)
	if action != models.AuditActionUnchanged {
		state.UpdatedAt = time.Now().UTC()
		if err := s.safety.Save(ctx, state); err != nil {
			return utils.E(utils.CodeInternal, op, "failed to save safety state", err)
		}
	}

	// the audit trail is advisory; its failure must not fail the evaluation
	_ = s.audit.Insert(ctx, &models.SafetyAuditEntry{
		UserID:         userID,
		Classification: cls,
		PriorConcern:   prior,
		Action:         action,
		CounterValue:   counterFor(state, state.Concern),
	})

	return nil
}

// transition applies one classification to state in place and reports the
// action taken.
func (s *overseerService) transition(state *models.SafetyState, cls string) string {
	if state.Suspended {
		return models.AuditActionUnchanged
	}

	if cls == "" {
		if state.Concern == models.ConcernNone {
			return models.AuditActionUnchanged
		}
		state.Concern = models.ConcernNone
		return models.AuditActionCleared
	}

	concern := models.ConcernSuicide
	if cls == "VIOLENCE" {
		concern = models.ConcernViolence
	}

	// sustained concerning content already flagged: do not re-escalate
	if state.Concern == concern {
		return models.AuditActionUnchanged
	}

	state.Concern = concern
	level := counterFor(state, concern) + 1
	setCounter(state, concern, level)

	if level >= models.MaxConcernLevel {
		state.Suspended = true
		state.SuspendedFor = concern
		return models.AuditActionSuspended
	}
	return models.AuditActionIncremented
}

func counterFor(state *models.SafetyState, c models.Concern) int {
	switch c {
	case models.ConcernSuicide:
		return state.SuicideConcern
	case models.ConcernViolence:
		return state.ViolenceConcern
	default:
		return 0
	}
}

func setCounter(state *models.SafetyState, c models.Concern, v int) {
	switch c {
	case models.ConcernSuicide:
		state.SuicideConcern = v
	case models.ConcernViolence:
		state.ViolenceConcern = v
	}
}

// transcript renders messages oldest-first as "role: content" lines for the
// classifier and summarizer prompts.
func transcript(msgs []models.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(string(m.Type))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
