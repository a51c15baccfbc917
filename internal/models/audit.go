package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Overseer audit actions.
const (
	AuditActionCleared     = "cleared"
	AuditActionUnchanged   = "unchanged"
	AuditActionIncremented = "incremented"
	AuditActionSuspended   = "suspended"
)

// SafetyAuditEntry records one overseer decision. Entries expire via a TTL
// index on ExpiresAt.
type SafetyAuditEntry struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID string             `bson:"user_id" json:"user_id"`

	Classification string  `bson:"classification" json:"classification"` // SUICIDE|VIOLENCE|""
	PriorConcern   Concern `bson:"prior_concern" json:"prior_concern"`
	Action         string  `bson:"action" json:"action"`
	CounterValue   int     `bson:"counter_value" json:"counter_value"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"` // for TTL index
}
