package baseline

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fraudwallet-api/internal/models"
	"fraudwallet-api/internal/repository"
)

func newTrackerFixture() (*Tracker, *repository.MemoryTransactionRepository) {
	txns := repository.NewMemoryTransactionRepository()
	return NewTracker(repository.NewMemoryBaselineRepository(), txns), txns
}

func seedDebit(t *testing.T, txns *repository.MemoryTransactionRepository, accountID int64, amount int64, at time.Time) {
	t.Helper()
	txn := models.NewTransaction(accountID, decimal.NewFromInt(amount), "merchant", "", "", at)
	require.NoError(t, txn.MarkCompleted(at))
	require.NoError(t, txns.Create(context.Background(), txn))
}

func TestGetReturnsDefaultsWithoutHistory(t *testing.T) {
	tracker, _ := newTrackerFixture()

	baseline, err := tracker.Get(context.Background(), 7)
	require.NoError(t, err)

	assert.True(t, baseline.AvgAmount.IsZero())
	assert.Equal(t, 0, baseline.SampleCount)
	assert.Equal(t, models.DefaultActiveHourStart, baseline.ActiveHourStart)
	assert.Equal(t, models.DefaultActiveHourEnd, baseline.ActiveHourEnd)
	assert.True(t, baseline.AvgVelocityPer10Min.Equal(decimal.NewFromFloat(1.0)))
}

func TestIncrementalMatchesRecompute(t *testing.T) {
	tracker, txns := newTrackerFixture()
	ctx := context.Background()
	start := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	amounts := []int64{100, 200, 300}
	wantAvgs := []string{"100", "150", "200"}

	for i, amount := range amounts {
		at := start.Add(time.Duration(i) * time.Hour)
		seedDebit(t, txns, 7, amount, at)
		require.NoError(t, tracker.UpdateAfterTransaction(ctx, 7, decimal.NewFromInt(amount), at))

		baseline, err := tracker.Get(ctx, 7)
		require.NoError(t, err)
		assert.True(t, baseline.AvgAmount.Equal(decimal.RequireFromString(wantAvgs[i])),
			"incremental avg after %d transactions: got %s", i+1, baseline.AvgAmount)
	}

	recomputed, err := tracker.Recompute(ctx, 7)
	require.NoError(t, err)

	assert.True(t, recomputed.AvgAmount.Equal(decimal.NewFromInt(200)),
		"recompute over the same history must agree: got %s", recomputed.AvgAmount)
	assert.True(t, recomputed.MaxAmount.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, 3, recomputed.SampleCount)
}

func TestUpdateAfterTransactionTracksMax(t *testing.T) {
	tracker, txns := newTrackerFixture()
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	seedDebit(t, txns, 7, 500, now)
	require.NoError(t, tracker.UpdateAfterTransaction(ctx, 7, decimal.NewFromInt(500), now))

	later := now.Add(time.Hour)
	seedDebit(t, txns, 7, 50, later)
	require.NoError(t, tracker.UpdateAfterTransaction(ctx, 7, decimal.NewFromInt(50), later))

	baseline, err := tracker.Get(ctx, 7)
	require.NoError(t, err)

	assert.True(t, baseline.MaxAmount.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, 2, baseline.SampleCount)
}

func TestRecomputeActiveHoursAndDailyCount(t *testing.T) {
	tracker, txns := newTrackerFixture()
	ctx := context.Background()

	day1 := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	seedDebit(t, txns, 7, 100, day1)
	seedDebit(t, txns, 7, 100, day1.Add(14*time.Hour)) // hour 22
	seedDebit(t, txns, 7, 100, day1.AddDate(0, 0, 3))  // 3 days later, hour 8

	baseline, err := tracker.Recompute(ctx, 7)
	require.NoError(t, err)

	assert.Equal(t, 8, baseline.ActiveHourStart)
	assert.Equal(t, 22, baseline.ActiveHourEnd)
	assert.Equal(t, 1, baseline.TypicalDailyCount, "3 transactions over 3 days")
}

func TestRecomputeVelocityCap(t *testing.T) {
	tracker, txns := newTrackerFixture()
	ctx := context.Background()

	// 25 transactions in a single 10-minute bucket would average 25; the
	// stored velocity must clamp at 10.
	start := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		seedDebit(t, txns, 7, 10, start.Add(time.Duration(i)*time.Second))
	}

	baseline, err := tracker.Recompute(ctx, 7)
	require.NoError(t, err)

	assert.True(t, baseline.AvgVelocityPer10Min.Equal(decimal.NewFromFloat(10.0)),
		"got %s", baseline.AvgVelocityPer10Min)
}
