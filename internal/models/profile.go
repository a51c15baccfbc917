package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// EnumUnknown is the fallback for any categorical field the model returns
// outside its vocabulary.
const EnumUnknown = "unknown"

var (
	CommunicationStyles = []string{
		"direct", "assertive", "expressive", "reserved",
		"passive", "aggressive", "passive_aggressive", "avoidant",
	}
	CopingStyles = []string{
		"problem_focused", "emotion_focused", "support_seeking",
		"self_soothing", "avoidant",
	}
	DecisionMakingStyles = []string{
		"analytical", "intuitive", "deliberate", "spontaneous",
		"dependent", "avoidant",
	}
	AttachmentStyles = []string{
		"secure", "anxious", "avoidant", "fearful_avoidant", "disorganized",
	}
)

// CoerceEnum returns v when it is a member of allowed, EnumUnknown otherwise.
func CoerceEnum(v string, allowed []string) string {
	for _, a := range allowed {
		if a == v {
			return v
		}
	}
	return EnumUnknown
}

// ClampScore coerces v into an integer in [0,100].
func ClampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// UserProfileAnalysis is the synthesized per-user profile consumed by the
// live chat generator. One row per user, always upserted whole.
//
// Invariant: numeric scores are integers in [0,100]; categorical fields are
// members of their vocabulary or "unknown".
type UserProfileAnalysis struct {
	UserID string `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`

	RelationshipStageScore int `gorm:"column:relationship_stage_score" json:"relationship_stage_score"`
	TrustScore             int `gorm:"column:trust_score" json:"trust_score"`
	ConflictScore          int `gorm:"column:conflict_score" json:"conflict_score"`
	OverallEmotionalHealth int `gorm:"column:overall_emotional_health" json:"overall_emotional_health"`

	CommunicationStyle  string `gorm:"column:communication_style;type:text" json:"communication_style"`
	CopingStyle         string `gorm:"column:coping_style;type:text" json:"coping_style"`
	DecisionMakingStyle string `gorm:"column:decision_making_style;type:text" json:"decision_making_style"`
	AttachmentStyle     string `gorm:"column:attachment_style;type:text" json:"attachment_style"`

	RepeatedRelationshipStages pq.StringArray `gorm:"column:repeated_relationship_stages;type:text[]" json:"repeated_relationship_stages"`
	RepeatedThemes             datatypes.JSON `gorm:"column:repeated_themes;type:jsonb" json:"repeated_themes"`
	ExtendedPersonality        datatypes.JSON `gorm:"column:extended_personality;type:jsonb" json:"extended_personality"`

	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (UserProfileAnalysis) TableName() string { return "user_profile_analyses" }
