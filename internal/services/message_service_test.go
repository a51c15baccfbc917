package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everbloom-ai/everbloom/internal/dispatch"
	"github.com/everbloom-ai/everbloom/internal/models"
	"github.com/everbloom-ai/everbloom/internal/pipeline"
)

func testThresholds() pipeline.Thresholds {
	return pipeline.Thresholds{
		SafetyEvery:    5,
		SafetyWindow:   5,
		ChunkSize:      4,
		SuperThreshold: 3,
		ProfileWindow:  20,
		StageEvery:     10,
		ContextWindow:  30,
	}
}

func userMsg(content string) models.Message {
	return models.Message{Type: models.MessageUser, Content: content}
}

func TestAppendValidation(t *testing.T) {
	svc := NewMessageService(newFakeMessageLog(), newFakeCounters(), &fakeDispatcher{}, testThresholds(), testLogger())

	_, err := svc.Append(context.Background(), "", userMsg("hi"))
	assert.Error(t, err)

	_, err = svc.Append(context.Background(), "u1", models.Message{Type: models.MessageUser})
	assert.Error(t, err)

	_, err = svc.Append(context.Background(), "u1", models.Message{Type: "robot", Content: "hi"})
	assert.Error(t, err)
}

func TestAppendFiresSafetyEveryFifth(t *testing.T) {
	d := &fakeDispatcher{}
	th := testThresholds()
	th.ChunkSize = 100 // keep chunk trigger quiet
	svc := NewMessageService(newFakeMessageLog(), newFakeCounters(), d, th, testLogger())

	for i := 0; i < 5; i++ {
		_, err := svc.Append(context.Background(), "u1", userMsg("hello"))
		require.NoError(t, err)
	}

	require.Len(t, d.tasks, 1)
	assert.Equal(t, dispatch.KindSafetyCheck, d.tasks[0].Kind)
	assert.Equal(t, "u1", d.tasks[0].UserID)
}

func TestAppendFiresChunkSummaryAtWindow(t *testing.T) {
	d := &fakeDispatcher{}
	th := testThresholds()
	th.SafetyEvery = 100
	svc := NewMessageService(newFakeMessageLog(), newFakeCounters(), d, th, testLogger())

	for i := 0; i < th.ChunkSize; i++ {
		_, err := svc.Append(context.Background(), "u1", userMsg("hello"))
		require.NoError(t, err)
	}

	require.Len(t, d.tasks, 1)
	assert.Equal(t, dispatch.KindChunkSummary, d.tasks[0].Kind)
}

func TestAppendSurvivesDispatchFailure(t *testing.T) {
	log := newFakeMessageLog()
	d := &fakeDispatcher{err: errBoom}
	th := testThresholds()
	th.SafetyEvery = 1 // every append is due
	svc := NewMessageService(log, newFakeCounters(), d, th, testLogger())

	n, err := svc.Append(context.Background(), "u1", userMsg("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, log.msgs["u1"], 1)
}

func TestAppendSkipsTriggersWhenCounterFails(t *testing.T) {
	d := &fakeDispatcher{}
	counters := newFakeCounters()
	counters.incrTotalErr = errBoom
	th := testThresholds()
	th.SafetyEvery = 1
	svc := NewMessageService(newFakeMessageLog(), counters, d, th, testLogger())

	_, err := svc.Append(context.Background(), "u1", userMsg("hello"))
	require.NoError(t, err)
	assert.Empty(t, d.tasks)
}

func TestPageOrderingOldestFirst(t *testing.T) {
	log := newFakeMessageLog()
	svc := NewMessageService(log, newFakeCounters(), &fakeDispatcher{}, testThresholds(), testLogger())

	for _, c := range []string{"one", "two", "three", "four", "five"} {
		_, err := svc.Append(context.Background(), "u1", userMsg(c))
		require.NoError(t, err)
	}

	msgs, hasMore, err := svc.Page(context.Background(), "u1", 0, 3)
	require.NoError(t, err)
	assert.True(t, hasMore)
	require.Len(t, msgs, 3)
	assert.Equal(t, "three", msgs[0].Content)
	assert.Equal(t, "five", msgs[2].Content)

	msgs, hasMore, err = svc.Page(context.Background(), "u1", 1, 3)
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "two", msgs[1].Content)
}
