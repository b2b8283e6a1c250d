package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fraudwallet-api/internal/alert"
	"fraudwallet-api/internal/baseline"
	"fraudwallet-api/internal/config"
	"fraudwallet-api/internal/engine"
	"fraudwallet-api/internal/external"
	"fraudwallet-api/internal/models"
	"fraudwallet-api/internal/monitoring"
	"fraudwallet-api/internal/repository"
	"fraudwallet-api/internal/risk"
)

type serviceFixture struct {
	svc      WalletService
	accounts *repository.MemoryAccountRepository
	txns     *repository.MemoryTransactionRepository
	alerts   *repository.MemoryAlertRepository
	devices  *repository.MemoryDeviceRepository
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		accounts: repository.NewMemoryAccountRepository(),
		txns:     repository.NewMemoryTransactionRepository(),
		alerts:   repository.NewMemoryAlertRepository(),
		devices:  repository.NewMemoryDeviceRepository(),
	}
	locations := repository.NewMemoryLocationRepository()
	baselineRepo := repository.NewMemoryBaselineRepository()
	publisher := external.NewNoopPublisher()

	riskCfg := config.RiskConfig{
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

	tracker := baseline.NewTracker(baselineRepo, f.txns)
	eng := engine.NewWalletEngine(engine.Config{
		Accounts:            f.accounts,
		Txns:                f.txns,
		Devices:             f.devices,
		Locations:           locations,
		Evaluator:           risk.NewEvaluator(riskCfg, f.txns, f.devices, locations),
		Baselines:           tracker,
		Alerts:              alert.NewEmitter(f.alerts, publisher, nil),
		Locks:               repository.NewLocalLockManager(),
		Metrics:             monitoring.NoopMetrics{},
		Publisher:           publisher,
		ConfirmationTimeout: time.Minute,
	})

	f.svc = NewWalletService(f.accounts, f.txns, f.devices, locations, f.alerts, eng, tracker)
	return f
}

func (f *serviceFixture) createAccount(t *testing.T, balance int64) *models.Account {
	t.Helper()

	account, err := f.svc.CreateAccount(context.Background(), &CreateAccountRequest{
		AccountID:        7,
		OpeningBalance:   decimal.NewFromInt(balance),
		MaxTxnAmount:     decimal.NewFromInt(1000),
		MaxTxnsPerWindow: 10,
		AllowedHourStart: 0,
		AllowedHourEnd:   23,
	})
	require.NoError(t, err)
	return account
}

func TestCreateAccountRejectsDuplicate(t *testing.T) {
	f := newServiceFixture(t)
	f.createAccount(t, 1000)

	_, err := f.svc.CreateAccount(context.Background(), &CreateAccountRequest{
		AccountID:      7,
		OpeningBalance: decimal.NewFromInt(500),
	})
	assert.ErrorIs(t, err, models.ErrAccountAlreadyExists)
}

func TestGetBalanceReturnsFreezeState(t *testing.T) {
	f := newServiceFixture(t)
	f.createAccount(t, 1000)

	balance, err := f.svc.GetBalance(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, models.FreezeStateActive, balance.FreezeState)
	assert.True(t, balance.Balance.Equal(decimal.NewFromInt(1000)))
	assert.Nil(t, balance.FrozenUntil)
}

func TestGetBalanceLiftsExpiredFreeze(t *testing.T) {
	f := newServiceFixture(t)
	account := f.createAccount(t, 1000)

	past := time.Now().Add(-time.Hour)
	account.FreezeState = models.FreezeStateFrozen
	account.FrozenUntil = &past
	require.NoError(t, f.accounts.Update(context.Background(), account))

	balance, err := f.svc.GetBalance(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, models.FreezeStateActive, balance.FreezeState)
	require.NotNil(t, balance.FrozenUntil, "lapsed freeze keeps its velocity anchor")
	assert.True(t, balance.FrozenUntil.Equal(past))
}

func TestGetBalanceUnknownAccount(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.GetBalance(context.Background(), 999)
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestSendTransactionRejectsNonPositiveAmount(t *testing.T) {
	f := newServiceFixture(t)
	f.createAccount(t, 1000)

	_, err := f.svc.SendTransaction(context.Background(), &SendTransactionRequest{
		AccountID: 7,
		Amount:    decimal.Zero,
		Recipient: "merchant-1",
	})

	var rangeErr *models.InvalidRangeError
	assert.ErrorAs(t, err, &rangeErr)
}

func TestSendTransactionCompletesLowRisk(t *testing.T) {
	f := newServiceFixture(t)
	f.createAccount(t, 1000)

	result, err := f.svc.SendTransaction(context.Background(), &SendTransactionRequest{
		AccountID: 7,
		Amount:    decimal.NewFromInt(50),
		Recipient: "merchant-1",
	})
	require.NoError(t, err)

	assert.Equal(t, models.TxnStatusCompleted, result.Transaction.Status)

	balance, err := f.svc.GetBalance(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, balance.Balance.Equal(decimal.NewFromInt(950)))
}

func TestTransactionHistoryFilterValidation(t *testing.T) {
	f := newServiceFixture(t)
	f.createAccount(t, 1000)

	_, err := f.svc.GetTransactionHistory(context.Background(), 7, &HistoryRequest{From: "yesterday"})
	var rangeErr *models.InvalidRangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, "from", rangeErr.Field)

	_, err = f.svc.GetTransactionHistory(context.Background(), 7, &HistoryRequest{
		From: "2025-06-02T00:00:00Z",
		To:   "2025-06-01T00:00:00Z",
	})
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, "to", rangeErr.Field)
}

func TestTransactionHistoryReturnsRecorded(t *testing.T) {
	f := newServiceFixture(t)
	f.createAccount(t, 1000)

	for i := 0; i < 3; i++ {
		_, err := f.svc.SendTransaction(context.Background(), &SendTransactionRequest{
			AccountID: 7,
			Amount:    decimal.NewFromInt(10),
			Recipient: "merchant-1",
		})
		require.NoError(t, err)
	}

	txns, err := f.svc.GetTransactionHistory(context.Background(), 7, &HistoryRequest{})
	require.NoError(t, err)
	assert.Len(t, txns, 3)
}

func TestGetTransactionEnforcesOwnership(t *testing.T) {
	f := newServiceFixture(t)
	f.createAccount(t, 1000)

	result, err := f.svc.SendTransaction(context.Background(), &SendTransactionRequest{
		AccountID: 7,
		Amount:    decimal.NewFromInt(10),
		Recipient: "merchant-1",
	})
	require.NoError(t, err)

	_, err = f.svc.GetTransaction(context.Background(), 8, result.Transaction.TxnID)
	assert.ErrorIs(t, err, models.ErrNotTransactionOwner)

	txn, err := f.svc.GetTransaction(context.Background(), 7, result.Transaction.TxnID)
	require.NoError(t, err)
	assert.Equal(t, result.Transaction.TxnID, txn.TxnID)
}

func TestGetStatsAggregates(t *testing.T) {
	f := newServiceFixture(t)
	f.createAccount(t, 1000)

	_, err := f.svc.SendTransaction(context.Background(), &SendTransactionRequest{
		AccountID: 7,
		Amount:    decimal.NewFromInt(10),
		Recipient: "merchant-1",
	})
	require.NoError(t, err)

	stats, err := f.svc.GetStats(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.CountsByStatus[models.TxnStatusCompleted])
	assert.Equal(t, 1, stats.RiskBreakdown[models.RiskLevelLow])
	assert.Equal(t, 1, stats.ThisMonth.Count)
	assert.True(t, stats.ThisMonth.TotalDebits.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, models.FreezeStateActive, stats.FreezeState)
}

func TestRiskTimelineAggregatesByDay(t *testing.T) {
	f := newServiceFixture(t)
	f.createAccount(t, 1000)

	for i := 0; i < 2; i++ {
		_, err := f.svc.SendTransaction(context.Background(), &SendTransactionRequest{
			AccountID: 7,
			Amount:    decimal.NewFromInt(10),
			Recipient: "merchant-1",
		})
		require.NoError(t, err)
	}

	timeline, err := f.svc.GetRiskTimeline(context.Background(), 7, 30)
	require.NoError(t, err)
	require.Len(t, timeline, 1)

	point := timeline[0]
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), point.Date)
	assert.Equal(t, 2, point.Count)
	assert.GreaterOrEqual(t, point.MaxScore, 0)
}

func TestBaselineRequiresExistingAccount(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.GetBaseline(context.Background(), 999)
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestRecomputeBaselineReflectsHistory(t *testing.T) {
	f := newServiceFixture(t)
	f.createAccount(t, 1000)

	_, err := f.svc.SendTransaction(context.Background(), &SendTransactionRequest{
		AccountID: 7,
		Amount:    decimal.NewFromInt(100),
		Recipient: "merchant-1",
	})
	require.NoError(t, err)

	bl, err := f.svc.RecomputeBaseline(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, bl.AvgAmount.Equal(decimal.NewFromInt(100)))
}

func TestUpdateSecuritySettingsPartial(t *testing.T) {
	f := newServiceFixture(t)
	f.createAccount(t, 1000)

	newMax := decimal.NewFromInt(250)
	freezeMinutes := 45
	account, err := f.svc.UpdateSecuritySettings(context.Background(), 7, &SecuritySettingsRequest{
		MaxTxnAmount:          &newMax,
		FreezeDurationMinutes: &freezeMinutes,
	})
	require.NoError(t, err)

	assert.True(t, account.Limits.MaxTxnAmount.Equal(newMax))
	assert.Equal(t, 45, account.FreezeDurationMinutes)
	assert.Equal(t, 10, account.Limits.MaxTxnsPerWindow)
}

func TestFreezeAndUnfreezeAccount(t *testing.T) {
	f := newServiceFixture(t)
	f.createAccount(t, 1000)

	account, err := f.svc.FreezeAccount(context.Background(), 7, "suspicious login")
	require.NoError(t, err)
	assert.Equal(t, models.FreezeStateFrozen, account.FreezeState)
	require.NotNil(t, account.FrozenUntil)

	account, err = f.svc.UnfreezeAccount(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, models.FreezeStateActive, account.FreezeState)
	assert.Nil(t, account.FrozenUntil)
}

func TestResolveAlertRejectsMalformedID(t *testing.T) {
	f := newServiceFixture(t)
	f.createAccount(t, 1000)

	err := f.svc.ResolveAlert(context.Background(), 7, "not-an-object-id", "noted")
	var rangeErr *models.InvalidRangeError
	assert.ErrorAs(t, err, &rangeErr)
}

func TestResolveAllAlerts(t *testing.T) {
	f := newServiceFixture(t)
	f.createAccount(t, 1000)

	require.NoError(t, f.alerts.Create(context.Background(), &models.Alert{
		AccountID: 7,
		AlertType: models.AlertTypeNewDevice,
		Severity:  models.SeverityHigh,
		Message:   "first use of device abc",
	}))
	require.NoError(t, f.alerts.Create(context.Background(), &models.Alert{
		AccountID: 7,
		AlertType: models.AlertTypeHighAmount,
		Severity:  models.SeverityMedium,
		Message:   "amount above baseline",
	}))

	count, err := f.svc.ResolveAllAlerts(context.Background(), 7, "reviewed")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	unresolved, err := f.svc.ListAlerts(context.Background(), 7, repository.AlertFilter{UnresolvedOnly: true})
	require.NoError(t, err)
	assert.Empty(t, unresolved)
}

func TestDeviceLifecycle(t *testing.T) {
	f := newServiceFixture(t)
	f.createAccount(t, 1000)

	_, err := f.svc.SendTransaction(context.Background(), &SendTransactionRequest{
		AccountID: 7,
		Amount:    decimal.NewFromInt(10),
		Recipient: "merchant-1",
		DeviceID:  "device-abc",
	})
	require.NoError(t, err)

	devices, err := f.svc.ListDevices(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "device-abc", devices[0].DeviceFingerprint)

	require.NoError(t, f.svc.RemoveDevice(context.Background(), 7, "device-abc"))

	devices, err = f.svc.ListDevices(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, devices)
}
