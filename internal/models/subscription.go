package models

import "time"

// Tier is the billing tier of a user. Written by the external payment
// webhook, read by the usage limiter.
type Tier string

const (
	TierFree    Tier = "free"
	TierPro     Tier = "pro"
	TierMetered Tier = "metered" // pay-as-you-go token balance, no daily cap
)

// Subscription is the per-user billing record the limiter reads. Token
// balance mutation on send is mirrored in Redis for speed; this row is the
// billing system's source of truth.
type Subscription struct {
	UserID       string    `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`
	Tier         Tier      `gorm:"column:tier;type:text" json:"tier"`
	TokenBalance float64   `gorm:"column:token_balance" json:"token_balance"`
	UpdatedAt    time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }
