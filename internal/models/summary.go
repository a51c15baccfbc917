package models

import (
	"time"

	"gorm.io/datatypes"
)

// ConversationSummary is one summarization record. Chunk summaries cover a
// fixed window of raw messages; super summaries aggregate many chunk
// summaries and carry the additional meta-analysis payload. Rows are
// immutable once written. Chunk rows are deleted when consumed by a super.
type ConversationSummary struct {
	ID     string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID string `gorm:"column:user_id;type:uuid;index" json:"user_id"`

	SummaryText       string `gorm:"column:summary_text;type:text" json:"summary_text"`
	RelationshipStage string `gorm:"column:relationship_stage;type:text" json:"relationship_stage"`

	KeyEvents           datatypes.JSON `gorm:"column:key_events;type:jsonb" json:"key_events"`
	EmotionalPatterns   datatypes.JSON `gorm:"column:emotional_patterns;type:jsonb" json:"emotional_patterns"`
	PersonalityInsights datatypes.JSON `gorm:"column:personality_insights;type:jsonb" json:"personality_insights"`

	IsSuperSummary bool           `gorm:"column:is_super_summary;index" json:"is_super_summary"`
	MetaAnalysis   datatypes.JSON `gorm:"column:meta_analysis;type:jsonb" json:"meta_analysis,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;index" json:"created_at"`
}

func (ConversationSummary) TableName() string { return "conversation_summaries" }

// KeyEvent is one entry of a summary's key_events list.
type KeyEvent struct {
	Event  string `json:"event"`
	Impact string `json:"impact"`
	Type   string `json:"type"`
}

// EmotionalPatterns is the structured emotional-pattern block produced by the
// summarizer.
type EmotionalPatterns struct {
	PrimaryEmotions  []string `json:"primary_emotions"`
	Triggers         []string `json:"triggers"`
	ResponsePatterns []string `json:"response_patterns"`
	GrowthAreas      []string `json:"growth_areas"`
	CopingMechanisms []string `json:"coping_mechanisms"`
}

// PersonalityInsights is the structured personality block produced by the
// summarizer.
type PersonalityInsights struct {
	CommunicationStyle string   `json:"communication_style"`
	Values             []string `json:"values"`
	Interests          []string `json:"interests"`
	AttachmentStyle    string   `json:"attachment_style"`
	DecisionMaking     string   `json:"decision_making"`
	SocialPreferences  string   `json:"social_preferences"`
	GrowthMindset      string   `json:"growth_mindset"`
}

// SummaryPayload is the strict JSON shape the chunk summarizer asks the
// generation model for.
type SummaryPayload struct {
	SummaryText         string              `json:"summary_text"`
	RelationshipStage   string              `json:"relationship_stage"`
	KeyEvents           []KeyEvent          `json:"key_events"`
	EmotionalPatterns   EmotionalPatterns   `json:"emotional_patterns"`
	PersonalityInsights PersonalityInsights `json:"personality_insights"`
}

// MetaAnalysis is the extra analytic block carried only by super summaries.
type MetaAnalysis struct {
	Narrative          string   `json:"narrative"`
	PhaseHistory       []string `json:"phase_history"`
	EmotionalEvolution string   `json:"emotional_evolution"`
	LongitudinalTrends []string `json:"longitudinal_patterns"`
	Growth             string   `json:"growth"`
	Recommendations    []string `json:"recommendations"`
}

// SuperSummaryPayload is the strict JSON shape the super-summarizer asks the
// generation model for. RelationshipStage is mandatory; a response without it
// is rejected outright.
type SuperSummaryPayload struct {
	SummaryPayload
	MetaAnalysis MetaAnalysis `json:"meta_analysis"`
}
