package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/everbloom-ai/everbloom/internal/dispatch"
	"github.com/everbloom-ai/everbloom/internal/models"
)

func chunkRow(userID, id, stage, text string) models.ConversationSummary {
	return models.ConversationSummary{
		ID:                  id,
		UserID:              userID,
		SummaryText:         text,
		RelationshipStage:   stage,
		KeyEvents:           datatypes.JSON([]byte(`[{"event":"` + id + `","impact":"minor","type":"daily"}]`)),
		EmotionalPatterns:   datatypes.JSON([]byte(`{"primary_emotions":["warmth"]}`)),
		PersonalityInsights: datatypes.JSON([]byte(`{"communication_style":"direct"}`)),
	}
}

type superFixture struct {
	svc        SuperSummarizer
	counters   *fakeCounters
	summaries  *fakeSummaryRepo
	dispatcher *fakeDispatcher
	gen        *stubLLM
}

func newSuperFixture(out string) *superFixture {
	f := &superFixture{
		counters:   newFakeCounters(),
		summaries:  &fakeSummaryRepo{},
		dispatcher: &fakeDispatcher{},
		gen:        &stubLLM{out: out},
	}
	f.svc = NewSuperSummarizer(
		f.summaries, f.counters,
		NewLLMAggregation(f.gen),
		NewDeterministicAggregation(),
		f.dispatcher, testThresholds(), testLogger(),
	)
	return f
}

const validSuperJSON = `{
	"summary_text": "Over these weeks the relationship deepened.",
	"relationship_stage": "growing_trust",
	"key_events": [],
	"meta_analysis": {"narrative": "steady growth", "phase_history": ["building_rapport", "growing_trust"]}
}`

func TestSuperRunAggregatesAndConsumesChunks(t *testing.T) {
	f := newSuperFixture(validSuperJSON)
	for i := 0; i < 3; i++ {
		f.summaries.rows = append(f.summaries.rows, chunkRow("u1", fmt.Sprintf("c%d", i), "building_rapport", "chunk text"))
	}
	f.counters.chunks["u1"] = 3

	require.NoError(t, f.svc.Run(context.Background(), "u1"))

	supers := f.summaries.supers()
	require.Len(t, supers, 1)
	assert.True(t, supers[0].IsSuperSummary)
	assert.Equal(t, "growing_trust", supers[0].RelationshipStage)
	assert.NotEmpty(t, supers[0].MetaAnalysis)

	pending, err := f.summaries.ListPendingChunks(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, pending, "consumed chunks are deleted")
	assert.Zero(t, f.counters.chunks["u1"])

	require.Len(t, f.dispatcher.tasks, 1)
	assert.Equal(t, dispatch.KindProfileSynthesis, f.dispatcher.tasks[0].Kind)
}

func TestSuperRunNoChunksIsNoop(t *testing.T) {
	f := newSuperFixture(validSuperJSON)

	require.NoError(t, f.svc.Run(context.Background(), "u1"))
	assert.Empty(t, f.summaries.rows)
	assert.Empty(t, f.gen.reqs)
}

func TestSuperRunMissingStageWritesNothing(t *testing.T) {
	f := newSuperFixture(`{"summary_text": "vague", "relationship_stage": ""}`)
	f.summaries.rows = append(f.summaries.rows, chunkRow("u1", "c1", "honeymoon", "text"))

	err := f.svc.Run(context.Background(), "u1")
	assert.Error(t, err)
	assert.Empty(t, f.summaries.supers())

	pending, _ := f.summaries.ListPendingChunks(context.Background(), "u1")
	assert.Len(t, pending, 1, "chunks stay candidates after a failed aggregation")
}

func TestSuperRunRejectsStageOutsideVocabulary(t *testing.T) {
	f := newSuperFixture(`{"summary_text": "x", "relationship_stage": "soulmates"}`)
	f.summaries.rows = append(f.summaries.rows, chunkRow("u1", "c1", "honeymoon", "text"))

	err := f.svc.Run(context.Background(), "u1")
	assert.Error(t, err)
	assert.Empty(t, f.summaries.supers())
}

func TestRunBatchAggregatesEligibleUsersDeterministically(t *testing.T) {
	f := newSuperFixture("never used")
	// u1 crosses the threshold, u2 does not
	for i := 0; i < testThresholds().SuperThreshold; i++ {
		stage := "building_rapport"
		if i == 0 {
			stage = "new_connection"
		}
		f.summaries.rows = append(f.summaries.rows, chunkRow("u1", fmt.Sprintf("a%d", i), stage, "text"))
	}
	f.summaries.rows = append(f.summaries.rows, chunkRow("u2", "b0", "honeymoon", "text"))

	require.NoError(t, f.svc.RunBatch(context.Background()))

	assert.Empty(t, f.gen.reqs, "batch sweep must not call the model")

	supers := f.summaries.supers()
	require.Len(t, supers, 1)
	assert.Equal(t, "u1", supers[0].UserID)
	assert.Equal(t, "building_rapport", supers[0].RelationshipStage, "majority stage wins")

	pendingU2, _ := f.summaries.ListPendingChunks(context.Background(), "u2")
	assert.Len(t, pendingU2, 1, "users below threshold are untouched")
}

func TestDeterministicAggregationTieBreaksToRecent(t *testing.T) {
	chunks := []models.ConversationSummary{
		chunkRow("u1", "c1", "honeymoon", "a"),
		chunkRow("u1", "c2", "conflict", "b"),
	}

	payload, err := NewDeterministicAggregation().Aggregate(context.Background(), "u1", chunks)
	require.NoError(t, err)
	assert.Equal(t, "conflict", payload.RelationshipStage)
	assert.Equal(t, []string{"honeymoon", "conflict"}, payload.MetaAnalysis.PhaseHistory)
}

func TestDeterministicAggregationMergesFields(t *testing.T) {
	chunks := []models.ConversationSummary{
		chunkRow("u1", "c1", "honeymoon", "first"),
		chunkRow("u1", "c2", "honeymoon", "second"),
	}

	payload, err := NewDeterministicAggregation().Aggregate(context.Background(), "u1", chunks)
	require.NoError(t, err)
	assert.Equal(t, "first second", payload.SummaryText)
	assert.Len(t, payload.KeyEvents, 2)
	assert.Equal(t, []string{"warmth"}, payload.EmotionalPatterns.PrimaryEmotions, "duplicates collapse")
	assert.Equal(t, "direct", payload.PersonalityInsights.CommunicationStyle)
}

func TestDeterministicAggregationDerivesRecommendations(t *testing.T) {
	chunks := []models.ConversationSummary{
		chunkRow("u1", "c1", "honeymoon", "first"),
	}
	chunks[0].EmotionalPatterns = datatypes.JSON([]byte(`{"primary_emotions":["warmth"],"growth_areas":["opening up","setting boundaries"]}`))

	payload, err := NewDeterministicAggregation().Aggregate(context.Background(), "u1", chunks)
	require.NoError(t, err)
	require.Len(t, payload.MetaAnalysis.Recommendations, 2)
	assert.Contains(t, payload.MetaAnalysis.Recommendations[0], "opening up")
	assert.Contains(t, payload.MetaAnalysis.Recommendations[1], "setting boundaries")
}
