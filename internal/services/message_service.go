package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/everbloom-ai/everbloom/internal/dispatch"
	"github.com/everbloom-ai/everbloom/internal/models"
	"github.com/everbloom-ai/everbloom/internal/pipeline"
	redisrepo "github.com/everbloom-ai/everbloom/internal/repositories/redis"
	"github.com/everbloom-ai/everbloom/internal/utils"
)

// MessageService owns the per-user chat log. Appending is the pipeline's
// heartbeat: it bumps the trigger counters and dispatches whatever background
// jobs fall due, fire-and-forget. A failed dispatch is logged and never
// surfaces to the sender.
type MessageService interface {
	Append(ctx context.Context, userID string, m models.Message) (int64, error)
	Page(ctx context.Context, userID string, page, pageSize int) ([]models.Message, bool, error)
}

type messageService struct {
	log        redisrepo.MessageLog
	counters   redisrepo.PipelineCounters
	dispatcher dispatch.Dispatcher
	thresholds pipeline.Thresholds
	logger     *logrus.Logger
}

func NewMessageService(
	log redisrepo.MessageLog,
	counters redisrepo.PipelineCounters,
	dispatcher dispatch.Dispatcher,
	thresholds pipeline.Thresholds,
	logger *logrus.Logger,
) MessageService {
	return &messageService{
		log:        log,
		counters:   counters,
		dispatcher: dispatcher,
		thresholds: thresholds,
		logger:     logger,
	}
}

func (s *messageService) Append(ctx context.Context, userID string, m models.Message) (int64, error) {
	const op = "MessageService.Append"

	if userID == "" || m.Content == "" {
		return 0, utils.E(utils.CodeInvalidArgument, op, "user_id and content are required", nil)
	}
	if m.Type != models.MessageUser && m.Type != models.MessageCompanion {
		return 0, utils.E(utils.CodeInvalidArgument, op, "type must be user or companion", nil)
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}

	n, err := s.log.Append(ctx, userID, m)
	if err != nil {
		return 0, utils.E(utils.CodeInternal, op, "failed to append message", err)
	}

	s.fireTriggers(ctx, userID)
	return n, nil
}

// fireTriggers bumps the counters and enqueues due jobs. Everything here is
// best-effort: the message is already stored and delivery must not depend on
// any of it.
func (s *messageService) fireTriggers(ctx context.Context, userID string) {
	entry := s.logger.WithField("user_id", userID)

	total, err := s.counters.IncrTotal(ctx, userID)
	if err != nil {
		entry.WithError(err).Warn("message counter increment failed; skipping triggers")
		return
	}
	since, err := s.counters.IncrSinceChunk(ctx, userID)
	if err != nil {
		entry.WithError(err).Warn("since-chunk counter increment failed")
	}

	if total%int64(s.thresholds.SafetyEvery) == 0 {
		s.enqueue(ctx, entry, dispatch.Task{Kind: dispatch.KindSafetyCheck, UserID: userID})
	}
	if since >= int64(s.thresholds.ChunkSize) {
		s.enqueue(ctx, entry, dispatch.Task{Kind: dispatch.KindChunkSummary, UserID: userID})
	}
	if total%int64(s.thresholds.StageEvery) == 0 {
		s.enqueue(ctx, entry, dispatch.Task{Kind: dispatch.KindStageProgress, UserID: userID})
	}
}

func (s *messageService) enqueue(ctx context.Context, entry *logrus.Entry, t dispatch.Task) {
	if err := s.dispatcher.Dispatch(ctx, t); err != nil {
		entry.WithError(err).WithField("kind", t.Kind).Warn("task dispatch failed")
	}
}

func (s *messageService) Page(ctx context.Context, userID string, page, pageSize int) ([]models.Message, bool, error) {
	const op = "MessageService.Page"

	if userID == "" {
		return nil, false, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}

	msgs, hasMore, err := s.log.Page(ctx, userID, page, pageSize)
	if err != nil {
		return nil, false, utils.E(utils.CodeInternal, op, "failed to page messages", err)
	}
	return msgs, hasMore, nil
}
