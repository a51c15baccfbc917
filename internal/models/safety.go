package models

import "time"

// Concern is the overseer's current classification of a user's chat stream.
type Concern string

const (
	ConcernNone     Concern = "none"
	ConcernSuicide  Concern = "suicide"
	ConcernViolence Concern = "violence"
)

// MaxConcernLevel is the severity counter ceiling. Reaching it suspends the
// account; lifting suspension is a manual support action.
const MaxConcernLevel = 5

// SafetyState is the per-user overseer state. Mutated only by the overseer's
// increment/clear transitions; read by the chat surface to gate input.
type SafetyState struct {
	UserID string `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`

	Concern         Concern `gorm:"column:concern;type:text" json:"concern"`
	SuicideConcern  int     `gorm:"column:suicide_concern" json:"suicide_concern"`
	ViolenceConcern int     `gorm:"column:violence_concern" json:"violence_concern"`

	Suspended    bool    `gorm:"column:suspended" json:"suspended"`
	SuspendedFor Concern `gorm:"column:suspended_for;type:text" json:"suspended_for,omitempty"`

	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (SafetyState) TableName() string { return "safety_states" }
