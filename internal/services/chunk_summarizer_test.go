package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everbloom-ai/everbloom/internal/dispatch"
)

const validChunkJSON = `{
	"summary_text": "They talked about work stress and weekend plans.",
	"relationship_stage": "conflict",
	"key_events": [{"event": "argued about cancelled plans", "impact": "tension", "type": "conflict"}],
	"emotional_patterns": {"primary_emotions": ["frustration"], "triggers": ["cancelled plans"], "response_patterns": ["withdrawal"], "growth_areas": ["direct asks"], "coping_mechanisms": ["humor"]},
	"personality_insights": {"communication_style": "direct", "values": ["reliability"], "interests": ["hiking"], "attachment_style": "anxious", "decision_making": "deliberate", "social_preferences": "small groups", "growth_mindset": "open"}
}`

type chunkFixture struct {
	svc        ChunkSummarizer
	log        *fakeMessageLog
	counters   *fakeCounters
	summaries  *fakeSummaryRepo
	dispatcher *fakeDispatcher
	gen        *stubLLM
}

func newChunkFixture(t *testing.T, out string) *chunkFixture {
	t.Helper()

	f := &chunkFixture{
		log:        newFakeMessageLog(),
		counters:   newFakeCounters(),
		summaries:  &fakeSummaryRepo{},
		dispatcher: &fakeDispatcher{},
		gen:        &stubLLM{out: out},
	}
	f.svc = NewChunkSummarizer(f.log, f.counters, f.summaries, f.gen, f.dispatcher, testThresholds(), testLogger())

	th := testThresholds()
	for i := 0; i < th.ChunkSize; i++ {
		_, err := f.log.Append(context.Background(), "u1", userMsg(fmt.Sprintf("message %d", i)))
		require.NoError(t, err)
	}
	f.counters.sinceChunk["u1"] = int64(th.ChunkSize)
	return f
}

func TestChunkRunWritesSummaryRow(t *testing.T) {
	f := newChunkFixture(t, validChunkJSON)

	require.NoError(t, f.svc.Run(context.Background(), "u1"))

	require.Len(t, f.summaries.rows, 1)
	row := f.summaries.rows[0]
	assert.Equal(t, "u1", row.UserID)
	assert.False(t, row.IsSuperSummary)
	assert.Equal(t, "conflict", row.RelationshipStage)
	assert.NotEmpty(t, row.ID)
	assert.Zero(t, f.counters.sinceChunk["u1"], "since-chunk counter resets after a summary")
}

func TestChunkRunBelowThresholdIsNoop(t *testing.T) {
	f := newChunkFixture(t, validChunkJSON)
	f.counters.sinceChunk["u1"] = 1

	require.NoError(t, f.svc.Run(context.Background(), "u1"))
	assert.Empty(t, f.summaries.rows)
	assert.Empty(t, f.gen.reqs, "no model call below threshold")
}

func TestChunkRunRejectsMalformedJSON(t *testing.T) {
	f := newChunkFixture(t, "I had trouble producing JSON, sorry!")

	err := f.svc.Run(context.Background(), "u1")
	assert.Error(t, err)
	assert.Empty(t, f.summaries.rows)
}

func TestChunkRunRejectsUnknownStage(t *testing.T) {
	f := newChunkFixture(t, `{"summary_text": "x", "relationship_stage": "blissful_forever"}`)

	err := f.svc.Run(context.Background(), "u1")
	assert.Error(t, err)
	assert.Empty(t, f.summaries.rows)
}

func TestChunkRunDispatchesSuperSummaryAtThreshold(t *testing.T) {
	f := newChunkFixture(t, validChunkJSON)
	th := testThresholds()
	f.counters.chunks["u1"] = int64(th.SuperThreshold - 1) // this run crosses it

	require.NoError(t, f.svc.Run(context.Background(), "u1"))

	require.Len(t, f.dispatcher.tasks, 1)
	assert.Equal(t, dispatch.KindSuperSummary, f.dispatcher.tasks[0].Kind)
}

func TestChunkRunBelowSuperThresholdNoDispatch(t *testing.T) {
	f := newChunkFixture(t, validChunkJSON)

	require.NoError(t, f.svc.Run(context.Background(), "u1"))
	assert.Empty(t, f.dispatcher.tasks)
}
