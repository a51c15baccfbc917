package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/everbloom-ai/everbloom/internal/models"
)

type SummaryRepository interface {
	Insert(ctx context.Context, s *models.ConversationSummary) error
	// ListPendingChunks returns the user's un-aggregated chunk summaries,
	// oldest-first.
	ListPendingChunks(ctx context.Context, userID string) ([]models.ConversationSummary, error)
	// DeleteChunks removes consumed chunk summaries by id. Super rows are
	// never deleted here.
	DeleteChunks(ctx context.Context, userID string, ids []string) error
	// RecentSupers returns the user's n most recent super summaries,
	// newest-first.
	RecentSupers(ctx context.Context, userID string, n int) ([]models.ConversationSummary, error)
	// UsersWithPendingChunks lists users holding at least min un-aggregated
	// chunk summaries, for the batch aggregation sweep.
	UsersWithPendingChunks(ctx context.Context, min int) ([]string, error)
	// UsersWithFreshSupers lists users whose newest super summary postdates
	// their last profile synthesis, or who have supers but no profile yet.
	UsersWithFreshSupers(ctx context.Context) ([]string, error)
}

type summaryRepo struct {
	db *gorm.DB
}

func NewSummaryRepo(db *gorm.DB) SummaryRepository {
	return &summaryRepo{db: db}
}

func (r *summaryRepo) Insert(ctx context.Context, s *models.ConversationSummary) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *summaryRepo) ListPendingChunks(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	var rows []models.ConversationSummary
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_super_summary = false", userID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *summaryRepo) DeleteChunks(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("user_id = ? AND is_super_summary = false AND id IN ?", userID, ids).
		Delete(&models.ConversationSummary{}).Error
}

func (r *summaryRepo) RecentSupers(ctx context.Context, userID string, n int) ([]models.ConversationSummary, error) {
	if n <= 0 {
		n = 20
	}
	var rows []models.ConversationSummary
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_super_summary = true", userID).
		Order("created_at DESC").
		Limit(n).
		Find(&rows).Error
	return rows, err
}

func (r *summaryRepo) UsersWithPendingChunks(ctx context.Context, min int) ([]string, error) {
	if min <= 0 {
		min = 1
	}
	var users []string
	err := r.db.WithContext(ctx).
		Model(&models.ConversationSummary{}).
		Select("user_id").
		Where("is_super_summary = false").
		Group("user_id").
		Having("COUNT(*) >= ?", min).
		Pluck("user_id", &users).Error
	return users, err
}

func (r *summaryRepo) UsersWithFreshSupers(ctx context.Context) ([]string, error) {
	var users []string
	err := r.db.WithContext(ctx).
		Model(&models.ConversationSummary{}).
		Select("conversation_summaries.user_id").
		Joins("LEFT JOIN user_profile_analyses p ON p.user_id = conversation_summaries.user_id").
		Where("conversation_summaries.is_super_summary = true").
		Group("conversation_summaries.user_id, p.updated_at").
		Having("p.updated_at IS NULL OR MAX(conversation_summaries.created_at) > p.updated_at").
		Pluck("conversation_summaries.user_id", &users).Error
	return users, err
}
