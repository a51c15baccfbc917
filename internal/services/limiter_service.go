package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/everbloom-ai/everbloom/internal/models"
	pgrepo "github.com/everbloom-ai/everbloom/internal/repositories/postgres"
	redisrepo "github.com/everbloom-ai/everbloom/internal/repositories/redis"
	"github.com/everbloom-ai/everbloom/internal/utils"
)

// Default daily caps. These are a UX nudge, not a security boundary: the
// check-then-increment pair is not linearizable and the occasional extra
// message under racing requests is accepted.
const (
	DefaultFreeDailyCap = 50
	DefaultProDailyCap  = 500

	// TokenCostPerMessage is the fractional balance debit per message for
	// metered tiers.
	TokenCostPerMessage = 0.25
)

type SendDecision struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
}

type LimiterService interface {
	// CanSend checks the caller's tier limit and, when allowed, consumes
	// one send from today's budget.
	CanSend(ctx context.Context, userID string) (SendDecision, error)
	// ChargeTokens debits a metered user's balance for a batch of
	// messages. Soft-fail: errors are logged, never returned to the send
	// path.
	ChargeTokens(ctx context.Context, userID string, messageBatchSize int)
}

type limiterService struct {
	usage   redisrepo.UsageCounters
	subs    pgrepo.SubscriptionRepository
	freeCap int
	proCap  int
	logger  *logrus.Logger
	now     func() time.Time
}

func NewLimiterService(usage redisrepo.UsageCounters, subs pgrepo.SubscriptionRepository, logger *logrus.Logger) LimiterService {
	return &limiterService{
		usage:   usage,
		subs:    subs,
		freeCap: DefaultFreeDailyCap,
		proCap:  DefaultProDailyCap,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *limiterService) CanSend(ctx context.Context, userID string) (SendDecision, error) {
	const op = "LimiterService.CanSend"

	if userID == "" {
		return SendDecision{}, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}

	sub, err := s.subs.GetByUserID(ctx, userID)
	if err != nil {
		// limits degrade open: a broken billing lookup must not silence the chat
		s.logger.WithError(err).WithField("user_id", userID).Warn("subscription lookup failed; allowing send")
		return SendDecision{Allowed: true, Remaining: 1}, nil
	}

	if sub.Tier == models.TierMetered {
		balance, err := s.usage.TokenBalance(ctx, userID)
		if err != nil {
			s.logger.WithError(err).WithField("user_id", userID).Warn("token balance read failed; allowing send")
			return SendDecision{Allowed: true, Remaining: 1}, nil
		}
		if balance < TokenCostPerMessage {
			return SendDecision{Allowed: false, Remaining: 0}, nil
		}
		return SendDecision{Allowed: true, Remaining: int(balance / TokenCostPerMessage)}, nil
	}

	cap := s.freeCap
	if sub.Tier == models.TierPro {
		cap = s.proCap
	}

	day := s.now().UTC()
	count, err := s.usage.DailyCount(ctx, userID, day)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("daily count read failed; allowing send")
		return SendDecision{Allowed: true, Remaining: 1}, nil
	}
	if count >= int64(cap) {
		return SendDecision{Allowed: false, Remaining: 0}, nil
	}

	n, err := s.usage.IncrDaily(ctx, userID, day)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("daily count increment failed; allowing send")
		return SendDecision{Allowed: true, Remaining: cap - int(count) - 1}, nil
	}

	remaining := cap - int(n)
	if remaining < 0 {
		remaining = 0
	}
	return SendDecision{Allowed: true, Remaining: remaining}, nil
}

func (s *limiterService) ChargeTokens(ctx context.Context, userID string, messageBatchSize int) {
	if userID == "" || messageBatchSize <= 0 {
		return
	}

	sub, err := s.subs.GetByUserID(ctx, userID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("subscription lookup failed; token charge skipped")
		return
	}
	if sub.Tier != models.TierMetered {
		return
	}

	amount := float64(messageBatchSize) * TokenCostPerMessage
	if _, err := s.usage.DecrTokens(ctx, userID, amount); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("token balance decrement failed")
	}
	// mirror into the billing row; the webhook reconciles drift
	if err := s.subs.AddTokenBalance(ctx, userID, -amount); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("billing balance mirror failed")
	}
}
