package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/everbloom-ai/everbloom/internal/models"
	"github.com/everbloom-ai/everbloom/internal/utils"
)

type PersonaRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.PersonaState, error)
	Save(ctx context.Context, p *models.PersonaState) error
}

type personaRepo struct {
	db *gorm.DB
}

func NewPersonaRepo(db *gorm.DB) PersonaRepository {
	return &personaRepo{db: db}
}

func (r *personaRepo) GetByUserID(ctx context.Context, userID string) (*models.PersonaState, error) {
	var p models.PersonaState
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &p, err
}

func (r *personaRepo) Save(ctx context.Context, p *models.PersonaState) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"stage_key", "stage_script", "attributes", "updated_at",
			}),
		}).
		Create(p).Error
}
