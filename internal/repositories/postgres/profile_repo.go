package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/everbloom-ai/everbloom/internal/models"
	"github.com/everbloom-ai/everbloom/internal/utils"
)

type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.UserProfileAnalysis, error)
	// Upsert writes the whole validated profile; partial updates are not
	// supported on purpose.
	Upsert(ctx context.Context, p *models.UserProfileAnalysis) error
}

type profileRepo struct {
	db *gorm.DB
}

func NewProfileRepo(db *gorm.DB) ProfileRepository {
	return &profileRepo{db: db}
}

func (r *profileRepo) GetByUserID(ctx context.Context, userID string) (*models.UserProfileAnalysis, error) {
	var p models.UserProfileAnalysis
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &p, err
}

func (r *profileRepo) Upsert(ctx context.Context, p *models.UserProfileAnalysis) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"relationship_stage_score", "trust_score", "conflict_score",
				"overall_emotional_health", "communication_style", "coping_style",
				"decision_making_style", "attachment_style",
				"repeated_relationship_stages", "repeated_themes",
				"extended_personality", "updated_at",
			}),
		}).
		Create(p).Error
}
