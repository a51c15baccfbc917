package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/everbloom-ai/everbloom/internal/models"
)

type AuditRepository interface {
	Insert(ctx context.Context, e *models.SafetyAuditEntry) error
	// ListByUser returns the most recent entries, newest-first.
	ListByUser(ctx context.Context, userID string, limit int64) ([]models.SafetyAuditEntry, error)
}

// auditTTL keeps overseer decisions for one quarter; the entries exist for
// support review, not analytics.
const auditTTL = 90 * 24 * time.Hour

type auditRepo struct {
	col *mongo.Collection
}

func NewAuditRepo(db *mongo.Database) AuditRepository {
	return &auditRepo{col: db.Collection("safety_audit")}
}

func (r *auditRepo) Insert(ctx context.Context, e *models.SafetyAuditEntry) error {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.ExpiresAt.IsZero() {
		e.ExpiresAt = now.Add(auditTTL)
	}
	_, err := r.col.InsertOne(ctx, e)
	return err
}

func (r *auditRepo) ListByUser(ctx context.Context, userID string, limit int64) ([]models.SafetyAuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	cur, err := r.col.Find(ctx,
		bson.M{"user_id": userID},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.SafetyAuditEntry
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
