package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyticVocabularyIsExactlyTwenty(t *testing.T) {
	assert.Len(t, AnalyticStages, 20)
	seen := map[AnalyticStage]bool{}
	for _, s := range AnalyticStages {
		assert.False(t, seen[s], "duplicate stage %q", s)
		seen[s] = true
	}
}

func TestIsAnalyticStage(t *testing.T) {
	assert.True(t, IsAnalyticStage("conflict"))
	assert.True(t, IsAnalyticStage("mature_love"))
	assert.False(t, IsAnalyticStage("mysterious"))
	assert.False(t, IsAnalyticStage(""))
}

func TestNext(t *testing.T) {
	assert.Equal(t, PersonaGrowingAttraction, Next(PersonaIntroductory))
	assert.Equal(t, PersonaNewlyDating, Next(PersonaGrowingAttraction))
	assert.Equal(t, PersonaStableRelationship, Next(PersonaNewlyDating))
	// final stage has no successor
	assert.Equal(t, PersonaStableRelationship, Next(PersonaStableRelationship))
}

func TestCanAdvance(t *testing.T) {
	tests := []struct {
		current, proposed PersonaStage
		want              bool
	}{
		{PersonaIntroductory, PersonaIntroductory, true},
		{PersonaIntroductory, PersonaGrowingAttraction, true},
		{PersonaIntroductory, PersonaNewlyDating, false},
		{PersonaIntroductory, PersonaStableRelationship, false},
		{PersonaNewlyDating, PersonaGrowingAttraction, false},
		{PersonaStableRelationship, PersonaStableRelationship, true},
	}
	for _, tc := range tests {
		got := CanAdvance(tc.current, tc.proposed)
		assert.Equal(t, tc.want, got, "CanAdvance(%s, %s)", tc.current, tc.proposed)
	}
}

func TestMapToPersonaCoversWholeVocabulary(t *testing.T) {
	for _, s := range AnalyticStages {
		p := MapToPersona(s)
		assert.True(t, IsPersonaStage(string(p)), "stage %q maps to unknown persona stage %q", s, p)
	}
}
