package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everbloom-ai/everbloom/internal/models"
)

func newTestLimiter(counters *fakeCounters, subs *fakeSubscriptionRepo, freeCap int) *limiterService {
	return &limiterService{
		usage:   counters,
		subs:    subs,
		freeCap: freeCap,
		proCap:  DefaultProDailyCap,
		logger:  testLogger(),
		now:     time.Now,
	}
}

func TestFreeTierCapRejectsOverflow(t *testing.T) {
	lim := newTestLimiter(newFakeCounters(), newFakeSubscriptionRepo(), 3)

	for i := 0; i < 3; i++ {
		d, err := lim.CanSend(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "send %d should pass", i+1)
	}

	d, err := lim.CanSend(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Zero(t, d.Remaining)
}

func TestCapResetsAtDayBoundary(t *testing.T) {
	day := time.Date(2026, 3, 1, 23, 50, 0, 0, time.UTC)
	lim := newTestLimiter(newFakeCounters(), newFakeSubscriptionRepo(), 1)
	lim.now = func() time.Time { return day }

	d, err := lim.CanSend(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = lim.CanSend(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	lim.now = func() time.Time { return day.Add(time.Hour) } // past midnight
	d, err = lim.CanSend(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLimiterFailsOpenOnInfraErrors(t *testing.T) {
	subs := newFakeSubscriptionRepo()
	subs.getErr = errBoom
	lim := newTestLimiter(newFakeCounters(), subs, 1)

	d, err := lim.CanSend(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	counters := newFakeCounters()
	counters.dailyErr = errBoom
	lim = newTestLimiter(counters, newFakeSubscriptionRepo(), 1)

	d, err = lim.CanSend(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMeteredTierUsesTokenBalance(t *testing.T) {
	counters := newFakeCounters()
	subs := newFakeSubscriptionRepo()
	subs.subs["u1"] = &models.Subscription{UserID: "u1", Tier: models.TierMetered, TokenBalance: 1}
	counters.tokens["u1"] = 1.0
	lim := newTestLimiter(counters, subs, 1)

	d, err := lim.CanSend(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining) // 1.0 / 0.25

	counters.tokens["u1"] = 0.1
	d, err = lim.CanSend(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestChargeTokensDebitsBothStores(t *testing.T) {
	counters := newFakeCounters()
	subs := newFakeSubscriptionRepo()
	subs.subs["u1"] = &models.Subscription{UserID: "u1", Tier: models.TierMetered, TokenBalance: 10}
	counters.tokens["u1"] = 10

	lim := newTestLimiter(counters, subs, 1)
	lim.ChargeTokens(context.Background(), "u1", 2)

	assert.InDelta(t, 9.5, counters.tokens["u1"], 1e-9)
	assert.InDelta(t, -0.5, subs.deltas["u1"], 1e-9)
}

func TestChargeTokensIgnoresDailyTiers(t *testing.T) {
	counters := newFakeCounters()
	counters.tokens["u1"] = 10
	subs := newFakeSubscriptionRepo() // u1 defaults to free

	lim := newTestLimiter(counters, subs, 1)
	lim.ChargeTokens(context.Background(), "u1", 2)

	assert.InDelta(t, 10, counters.tokens["u1"], 1e-9)
	assert.Empty(t, subs.deltas)
}
