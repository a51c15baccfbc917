package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/everbloom-ai/everbloom/internal/models"
)

type SubscriptionRepository interface {
	// GetByUserID returns the billing record; users without one are free
	// tier by definition.
	GetByUserID(ctx context.Context, userID string) (*models.Subscription, error)
	// AddTokenBalance applies a signed delta to the stored balance. The
	// payment webhook credits it; the limiter debits it best-effort.
	AddTokenBalance(ctx context.Context, userID string, delta float64) error
}

type subscriptionRepo struct {
	db *gorm.DB
}

func NewSubscriptionRepo(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepo{db: db}
}

func (r *subscriptionRepo) GetByUserID(ctx context.Context, userID string) (*models.Subscription, error) {
	var s models.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.Subscription{UserID: userID, Tier: models.TierFree}, nil
	}
	return &s, err
}

func (r *subscriptionRepo) AddTokenBalance(ctx context.Context, userID string, delta float64) error {
	return r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("user_id = ?", userID).
		UpdateColumn("token_balance", gorm.Expr("token_balance + ?", delta)).Error
}
