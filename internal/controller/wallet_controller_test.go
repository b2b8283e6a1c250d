package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
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
	"fraudwallet-api/internal/service"
)

type apiFixture struct {
	router   *gin.Engine
	accounts *repository.MemoryAccountRepository
	svc      service.WalletService
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	accounts := repository.NewMemoryAccountRepository()
	txns := repository.NewMemoryTransactionRepository()
	devices := repository.NewMemoryDeviceRepository()
	locations := repository.NewMemoryLocationRepository()
	alerts := repository.NewMemoryAlertRepository()
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

	tracker := baseline.NewTracker(baselineRepo, txns)
	eng := engine.NewWalletEngine(engine.Config{
		Accounts:            accounts,
		Txns:                txns,
		Devices:             devices,
		Locations:           locations,
		Evaluator:           risk.NewEvaluator(riskCfg, txns, devices, locations),
		Baselines:           tracker,
		Alerts:              alert.NewEmitter(alerts, publisher, nil),
		Locks:               repository.NewLocalLockManager(),
		Metrics:             monitoring.NoopMetrics{},
		Publisher:           publisher,
		ConfirmationTimeout: time.Minute,
	})

	svc := service.NewWalletService(accounts, txns, devices, locations, alerts, eng, tracker)
	ctrl := NewWalletController(svc)

	router := gin.New()
	api := router.Group("/api")
	{
		api.POST("/accounts", ctrl.CreateAccount)
		api.GET("/accounts/:accountId/balance", ctrl.GetBalance)
		api.GET("/accounts/:accountId/transactions", ctrl.GetTransactionHistory)
		api.POST("/accounts/:accountId/freeze", ctrl.FreezeAccount)
		api.DELETE("/accounts/:accountId/devices/:fingerprint", ctrl.RemoveDevice)
		api.POST("/transactions", ctrl.SendTransaction)
		api.POST("/transactions/:txnId/confirm", ctrl.ConfirmTransaction)
	}

	return &apiFixture{router: router, accounts: accounts, svc: svc}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) seedAccount(t *testing.T, balance int64) {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/accounts", gin.H{
		"account_id":          int64(7),
		"opening_balance":     balance,
		"max_txn_amount":      1000,
		"max_txns_per_window": 10,
		"allowed_hour_start":  0,
		"allowed_hour_end":    23,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCreateAccountEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.seedAccount(t, 1000)

	rec := f.do(t, http.MethodPost, "/api/accounts", gin.H{
		"account_id":      int64(7),
		"opening_balance": 500,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetBalanceEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.seedAccount(t, 1000)

	rec := f.do(t, http.MethodGet, "/api/accounts/7/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp service.BalanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.FreezeStateActive, resp.FreezeState)

	rec = f.do(t, http.MethodGet, "/api/accounts/999/balance", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/accounts/abc/balance", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendTransactionEndpointStatuses(t *testing.T) {
	f := newAPIFixture(t)
	f.seedAccount(t, 1000)

	rec := f.do(t, http.MethodPost, "/api/transactions", gin.H{
		"account_id": int64(7),
		"amount":     50,
		"recipient":  "merchant-1",
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/transactions", gin.H{
		"account_id": int64(7),
		"amount":     5000,
		"recipient":  "merchant-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/transactions", gin.H{
		"account_id": int64(7),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendTransactionHeldReturns202(t *testing.T) {
	f := newAPIFixture(t)
	f.seedAccount(t, 2000)

	// Over the per-transaction limit from an unknown device pushes the
	// score into the high band without reaching the auto-freeze cutoff.
	rec := f.do(t, http.MethodPost, "/api/transactions", gin.H{
		"account_id": int64(7),
		"amount":     1100,
		"recipient":  "merchant-1",
		"device_id":  "burner-device",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var result engine.SubmitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, models.TxnStatusPending, result.Transaction.Status)
	assert.True(t, result.Assessment.RequiresConfirmation)
}

func TestSendTransactionFrozenReturns403(t *testing.T) {
	f := newAPIFixture(t)
	f.seedAccount(t, 1000)

	rec := f.do(t, http.MethodPost, "/api/accounts/7/freeze", gin.H{"reason": "operator hold"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/transactions", gin.H{
		"account_id": int64(7),
		"amount":     50,
		"recipient":  "merchant-1",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestConfirmTransactionEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.seedAccount(t, 2000)

	held, err := f.svc.SendTransaction(context.Background(), &service.SendTransactionRequest{
		AccountID: 7,
		Amount:    decimal.NewFromInt(1100),
		Recipient: "merchant-1",
		DeviceID:  "burner-device",
	})
	require.NoError(t, err)
	require.Equal(t, models.TxnStatusPending, held.Transaction.Status)

	path := fmt.Sprintf("/api/transactions/%s/confirm", held.Transaction.TxnID)

	rec := f.do(t, http.MethodPost, path, gin.H{"account_id": int64(8), "accepted": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, path, gin.H{"account_id": int64(7), "accepted": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var txn models.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txn))
	assert.Equal(t, models.TxnStatusCompleted, txn.Status)

	rec = f.do(t, http.MethodPost, "/api/transactions/txn-missing/confirm", gin.H{
		"account_id": int64(7),
		"accepted":   true,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransactionHistoryEndpointValidatesRange(t *testing.T) {
	f := newAPIFixture(t)
	f.seedAccount(t, 1000)

	rec := f.do(t, http.MethodGet, "/api/accounts/7/transactions?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/accounts/7/transactions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRemoveUnknownDeviceReturns404(t *testing.T) {
	f := newAPIFixture(t)
	f.seedAccount(t, 1000)

	rec := f.do(t, http.MethodDelete, "/api/accounts/7/devices/never-seen", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
