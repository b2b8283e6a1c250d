package risk

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fraudwallet-api/internal/config"
	"fraudwallet-api/internal/models"
	"fraudwallet-api/internal/repository"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		PointsExceedsMax:       40,
		PointsHighAmount:       30,
		PointsUnusualTime:      20,
		PointsNewDevice:        25,
		PointsNewLocation:      25,
		PointsHighVelocity:     35,
		PointsImpossibleTravel: 50,
		LowThreshold:           30,
		MediumThreshold:        60,
		AutoFreezeScore:        80,
		HighAmountMultiplier:   3.0,
		VelocityWindow:         10 * time.Minute,
		MaxTravelSpeedKMH:      900,
	}
}

type evaluatorFixture struct {
	evaluator *Evaluator
	txns      *repository.MemoryTransactionRepository
	devices   *repository.MemoryDeviceRepository
	locations *repository.MemoryLocationRepository
}

func newEvaluatorFixture(t *testing.T) *evaluatorFixture {
	t.Helper()

	txns := repository.NewMemoryTransactionRepository()
	devices := repository.NewMemoryDeviceRepository()
	locations := repository.NewMemoryLocationRepository()

	return &evaluatorFixture{
		evaluator: NewEvaluator(testRiskConfig(), txns, devices, locations),
		txns:      txns,
		devices:   devices,
		locations: locations,
	}
}

func testAccount() *models.Account {
	return models.NewAccount(42, decimal.NewFromInt(10000), models.PolicyLimits{
		MaxTxnAmount:     decimal.NewFromInt(1000),
		MaxTxnsPerWindow: 10,
		AllowedHourStart: 9,
		AllowedHourEnd:   21,
	})
}

func testBaseline(avg float64) *models.BehaviorBaseline {
	baseline := models.NewDefaultBaseline(42)
	baseline.AvgAmount = decimal.NewFromFloat(avg)
	baseline.SampleCount = 20
	return baseline
}

func (f *evaluatorFixture) knowDevice(t *testing.T, accountID int64, fingerprint string) {
	t.Helper()
	require.NoError(t, f.devices.Upsert(context.Background(), &models.KnownDevice{
		AccountID:         accountID,
		DeviceFingerprint: fingerprint,
		FirstSeen:         time.Now(),
		LastUsed:          time.Now(),
	}))
}

func (f *evaluatorFixture) knowLocation(t *testing.T, accountID int64, name string) {
	t.Helper()
	require.NoError(t, f.locations.Upsert(context.Background(), &models.KnownLocation{
		AccountID:    accountID,
		LocationName: name,
		FirstSeen:    time.Now(),
		LastUsed:     time.Now(),
	}))
}

func (f *evaluatorFixture) seedCompleted(t *testing.T, accountID int64, at time.Time, location string) {
	t.Helper()
	txn := models.NewTransaction(accountID, decimal.NewFromInt(50), "merchant", "known-device", location, at)
	require.NoError(t, txn.MarkCompleted(at))
	require.NoError(t, f.txns.Create(context.Background(), txn))
}

func atHour(hour int) time.Time {
	return time.Date(2025, 6, 15, hour, 30, 0, 0, time.UTC)
}

func TestEvaluateHighAmountOnly(t *testing.T) {
	f := newEvaluatorFixture(t)
	account := testAccount()
	f.knowDevice(t, account.AccountID, "known-device")
	f.knowLocation(t, account.AccountID, "New York")

	txn := models.NewTransaction(account.AccountID, decimal.NewFromInt(500), "merchant", "known-device", "New York", atHour(14))

	assessment, err := f.evaluator.Evaluate(context.Background(), account, testBaseline(100), txn)
	require.NoError(t, err)

	assert.Equal(t, 30, assessment.Score)
	assert.Equal(t, models.RiskLevelLow, assessment.Level)
	assert.False(t, assessment.RequiresConfirmation)
	assert.False(t, assessment.ShouldAutoFreeze)
	require.Len(t, assessment.Findings, 1)
	assert.Equal(t, TagHighAmount, assessment.Findings[0].Tag)
}

func TestEvaluateAutoFreezeScore(t *testing.T) {
	f := newEvaluatorFixture(t)
	account := testAccount()
	f.knowLocation(t, account.AccountID, "New York")

	// Exceeds max, unusual hour and unknown device: 40+20+25 = 85.
	txn := models.NewTransaction(account.AccountID, decimal.NewFromInt(5000), "merchant", "fresh-device", "New York", atHour(3))

	assessment, err := f.evaluator.Evaluate(context.Background(), account, testBaseline(0), txn)
	require.NoError(t, err)

	assert.Equal(t, 85, assessment.Score)
	assert.Equal(t, models.RiskLevelHigh, assessment.Level)
	assert.True(t, assessment.RequiresConfirmation)
	assert.True(t, assessment.ShouldAutoFreeze)
}

func TestEvaluateScoreCappedAt100(t *testing.T) {
	f := newEvaluatorFixture(t)
	account := testAccount()

	// Everything fires: exceeds_max 40, high_amount 30, unusual_time 20,
	// new_device 25, new_location 25. Raw sum 140 must clamp to 100.
	txn := models.NewTransaction(account.AccountID, decimal.NewFromInt(5000), "merchant", "fresh-device", "Nowhere", atHour(3))

	assessment, err := f.evaluator.Evaluate(context.Background(), account, testBaseline(100), txn)
	require.NoError(t, err)

	assert.Equal(t, 100, assessment.Score)
	assert.Equal(t, models.RiskLevelHigh, assessment.Level)
	assert.True(t, assessment.ShouldAutoFreeze)
}

func TestEvaluateVelocityHardLimit(t *testing.T) {
	f := newEvaluatorFixture(t)
	account := testAccount()
	f.knowDevice(t, account.AccountID, "known-device")
	f.knowLocation(t, account.AccountID, "New York")

	now := atHour(14)
	for i := 0; i < account.Limits.MaxTxnsPerWindow; i++ {
		f.seedCompleted(t, account.AccountID, now.Add(-time.Duration(i+1)*30*time.Second), "")
	}

	txn := models.NewTransaction(account.AccountID, decimal.NewFromInt(10), "merchant", "known-device", "New York", now)

	assessment, err := f.evaluator.Evaluate(context.Background(), account, testBaseline(100), txn)
	require.NoError(t, err)

	assert.True(t, assessment.VelocityHardLimit)
	assert.Equal(t, account.Limits.MaxTxnsPerWindow, assessment.VelocityCount)
	assert.True(t, assessment.ShouldAutoFreeze, "hard limit freezes regardless of score")

	var velocityPoints int
	for _, finding := range assessment.Findings {
		if finding.Tag == TagHighVelocity {
			velocityPoints = finding.Points
		}
	}
	assert.Equal(t, 35, velocityPoints)
}

func TestEvaluateVelocityHalfCreditNearLimit(t *testing.T) {
	f := newEvaluatorFixture(t)
	account := testAccount()
	f.knowDevice(t, account.AccountID, "known-device")
	f.knowLocation(t, account.AccountID, "New York")

	now := atHour(14)
	for i := 0; i < account.Limits.MaxTxnsPerWindow-1; i++ {
		f.seedCompleted(t, account.AccountID, now.Add(-time.Duration(i+1)*30*time.Second), "")
	}

	txn := models.NewTransaction(account.AccountID, decimal.NewFromInt(10), "merchant", "known-device", "New York", now)

	assessment, err := f.evaluator.Evaluate(context.Background(), account, testBaseline(100), txn)
	require.NoError(t, err)

	assert.False(t, assessment.VelocityHardLimit)
	assert.False(t, assessment.ShouldAutoFreeze)

	var velocityPoints int
	for _, finding := range assessment.Findings {
		if finding.Tag == TagHighVelocity {
			velocityPoints = finding.Points
		}
	}
	assert.Equal(t, 17, velocityPoints)
}

func TestVelocityFreezeResetRule(t *testing.T) {
	f := newEvaluatorFixture(t)
	account := testAccount()

	now := atHour(14)

	// Freeze ended 3 minutes ago. Transactions from the burst that caused it
	// (7 to 5 minutes ago) must not count toward a new freeze.
	freezeEnd := now.Add(-3 * time.Minute)
	account.FreezeState = models.FreezeStateActive
	account.FrozenUntil = &freezeEnd

	for i := 0; i < 8; i++ {
		f.seedCompleted(t, account.AccountID, now.Add(-7*time.Minute).Add(time.Duration(i)*10*time.Second), "")
	}
	f.seedCompleted(t, account.AccountID, now.Add(-2*time.Minute), "")
	f.seedCompleted(t, account.AccountID, now.Add(-1*time.Minute), "")

	vel, err := f.evaluator.velocity(context.Background(), account, now)
	require.NoError(t, err)

	assert.Equal(t, 2, vel.Count, "only transactions after the freeze expiry count")
	assert.False(t, vel.HardLimit)
}

func TestVelocityCountsFullWindowAfterManualUnfreeze(t *testing.T) {
	f := newEvaluatorFixture(t)
	account := testAccount()

	now := atHour(14)

	// Frozen 5 minutes ago, manually unfrozen a minute later. The lifted
	// freeze must not anchor the window: everything in it counts.
	account.Freeze(now.Add(-5 * time.Minute))
	account.Unfreeze(now.Add(-4 * time.Minute))
	require.Nil(t, account.FrozenUntil)

	for i := 0; i < 10; i++ {
		f.seedCompleted(t, account.AccountID, now.Add(-time.Duration(i+1)*30*time.Second), "")
	}

	vel, err := f.evaluator.velocity(context.Background(), account, now)
	require.NoError(t, err)

	assert.Equal(t, 10, vel.Count)
	assert.True(t, vel.HardLimit)
}

func TestVelocityStillFrozenKeepsFullWindow(t *testing.T) {
	f := newEvaluatorFixture(t)
	account := testAccount()

	now := atHour(14)

	// FrozenUntil in the future must not shrink the window to nothing.
	until := now.Add(25 * time.Minute)
	account.FreezeState = models.FreezeStateFrozen
	account.FrozenUntil = &until

	for i := 0; i < 4; i++ {
		f.seedCompleted(t, account.AccountID, now.Add(-time.Duration(i+1)*time.Minute), "")
	}

	vel, err := f.evaluator.velocity(context.Background(), account, now)
	require.NoError(t, err)

	assert.Equal(t, 4, vel.Count)
}

func TestVelocityWarningAtLimitOfOne(t *testing.T) {
	f := newEvaluatorFixture(t)
	account := testAccount()
	account.Limits.MaxTxnsPerWindow = 1
	f.knowDevice(t, account.AccountID, "known-device")
	f.knowLocation(t, account.AccountID, "New York")

	// Zero prior transactions is one short of a limit of one, so the
	// approach warning fires at half credit.
	txn := models.NewTransaction(account.AccountID, decimal.NewFromInt(10), "merchant", "known-device", "New York", atHour(14))

	assessment, err := f.evaluator.Evaluate(context.Background(), account, testBaseline(100), txn)
	require.NoError(t, err)

	require.Len(t, assessment.Findings, 1)
	assert.Equal(t, TagHighVelocity, assessment.Findings[0].Tag)
	assert.Equal(t, 17, assessment.Findings[0].Points)
}

func TestEvaluateImpossibleTravel(t *testing.T) {
	f := newEvaluatorFixture(t)
	account := testAccount()
	f.knowDevice(t, account.AccountID, "known-device")
	f.knowLocation(t, account.AccountID, "New York")
	f.knowLocation(t, account.AccountID, "Los Angeles")

	now := atHour(14)
	f.seedCompleted(t, account.AccountID, now.Add(-time.Hour), "New York")

	txn := models.NewTransaction(account.AccountID, decimal.NewFromInt(10), "merchant", "known-device", "Los Angeles", now)

	assessment, err := f.evaluator.Evaluate(context.Background(), account, testBaseline(100), txn)
	require.NoError(t, err)

	var travel *models.RiskFinding
	for i := range assessment.Findings {
		if assessment.Findings[i].Tag == TagImpossibleTravel {
			travel = &assessment.Findings[i]
		}
	}
	require.NotNil(t, travel, "cross-country jump in one hour must fire")
	assert.Equal(t, 50, travel.Points)
	assert.Contains(t, travel.Explanation, "km/h")
}

func TestEvaluateUnresolvableTravelHalfCredit(t *testing.T) {
	f := newEvaluatorFixture(t)
	account := testAccount()
	f.knowDevice(t, account.AccountID, "known-device")
	f.knowLocation(t, account.AccountID, "Springfield")
	f.knowLocation(t, account.AccountID, "Shelbyville")

	now := atHour(14)
	f.seedCompleted(t, account.AccountID, now.Add(-30*time.Minute), "Springfield")

	txn := models.NewTransaction(account.AccountID, decimal.NewFromInt(10), "merchant", "known-device", "Shelbyville", now)

	assessment, err := f.evaluator.Evaluate(context.Background(), account, testBaseline(100), txn)
	require.NoError(t, err)

	var travel *models.RiskFinding
	for i := range assessment.Findings {
		if assessment.Findings[i].Tag == TagImpossibleTravel {
			travel = &assessment.Findings[i]
		}
	}
	require.NotNil(t, travel)
	assert.Equal(t, 25, travel.Points)
}

func TestEvaluateNoTravelFindingForSameLocation(t *testing.T) {
	f := newEvaluatorFixture(t)
	account := testAccount()
	f.knowDevice(t, account.AccountID, "known-device")
	f.knowLocation(t, account.AccountID, "New York")

	now := atHour(14)
	f.seedCompleted(t, account.AccountID, now.Add(-time.Minute), "New York")

	txn := models.NewTransaction(account.AccountID, decimal.NewFromInt(10), "merchant", "known-device", "New York", now)

	assessment, err := f.evaluator.Evaluate(context.Background(), account, testBaseline(100), txn)
	require.NoError(t, err)

	for _, finding := range assessment.Findings {
		assert.NotEqual(t, TagImpossibleTravel, finding.Tag)
	}
}

func TestRiskLevelThresholds(t *testing.T) {
	f := newEvaluatorFixture(t)

	tests := []struct {
		score int
		level string
	}{
		{0, models.RiskLevelLow},
		{30, models.RiskLevelLow},
		{31, models.RiskLevelMedium},
		{60, models.RiskLevelMedium},
		{61, models.RiskLevelHigh},
		{100, models.RiskLevelHigh},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("score_%d", tt.score), func(t *testing.T) {
			assert.Equal(t, tt.level, f.evaluator.level(tt.score))
		})
	}
}
