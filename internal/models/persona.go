package models

import (
	"time"

	"gorm.io/datatypes"
)

// PersonaState holds the companion persona presented to one user: the stage
// key (stored explicitly, never inferred from script text), the rendered
// stage script, and the drifting auxiliary attributes.
type PersonaState struct {
	UserID string `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`

	StageKey    string `gorm:"column:stage_key;type:text" json:"stage_key"`
	StageScript string `gorm:"column:stage_script;type:text" json:"stage_script"`

	// Attributes is a flat string map; only allow-listed keys are ever
	// written (occupation, interests, daily_schedule, favorite_topics,
	// quirks).
	Attributes datatypes.JSON `gorm:"column:attributes;type:jsonb" json:"attributes"`

	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (PersonaState) TableName() string { return "persona_states" }

// PersonaAttributeAllowList is the fixed set of auxiliary persona fields the
// stage progressor may drift. Proposals outside it are dropped silently.
var PersonaAttributeAllowList = []string{
	"occupation", "interests", "daily_schedule", "favorite_topics", "quirks",
}

// IsAllowedPersonaAttribute reports whether key may be drifted.
func IsAllowedPersonaAttribute(key string) bool {
	for _, k := range PersonaAttributeAllowList {
		if k == key {
			return true
		}
	}
	return false
}
