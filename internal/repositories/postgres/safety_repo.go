package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/everbloom-ai/everbloom/internal/models"
)

type SafetyRepository interface {
	// Get returns the user's safety state, or a zero-valued clear state
	// when none has been written yet.
	Get(ctx context.Context, userID string) (*models.SafetyState, error)
	Save(ctx context.Context, s *models.SafetyState) error
}

type safetyRepo struct {
	db *gorm.DB
}

func NewSafetyRepo(db *gorm.DB) SafetyRepository {
	return &safetyRepo{db: db}
}

func (r *safetyRepo) Get(ctx context.Context, userID string) (*models.SafetyState, error) {
	var s models.SafetyState
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.SafetyState{UserID: userID, Concern: models.ConcernNone}, nil
	}
	return &s, err
}

func (r *safetyRepo) Save(ctx context.Context, s *models.SafetyState) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"concern", "suicide_concern", "violence_concern",
				"suspended", "suspended_for", "updated_at",
			}),
		}).
		Create(s).Error
}
