package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"fraudwallet-api/internal/baseline"
	"fraudwallet-api/internal/engine"
	"fraudwallet-api/internal/models"
	"fraudwallet-api/internal/repository"
	"fraudwallet-api/internal/risk"
)

type WalletService interface {
	CreateAccount(ctx context.Context, req *CreateAccountRequest) (*models.Account, error)
	GetBalance(ctx context.Context, accountID int64) (*BalanceResponse, error)

	SendTransaction(ctx context.Context, req *SendTransactionRequest) (*engine.SubmitResult, error)
	ConfirmTransaction(ctx context.Context, accountID int64, txnID string, accepted bool) (*models.Transaction, error)
	TimeoutTransaction(ctx context.Context, txnID string) (*models.Transaction, error)
	EvaluateTransaction(ctx context.Context, req *EvaluateRequest) (*risk.Assessment, error)

	GetTransaction(ctx context.Context, accountID int64, txnID string) (*models.Transaction, error)
	GetTransactionHistory(ctx context.Context, accountID int64, req *HistoryRequest) ([]*models.Transaction, error)
	GetRiskTimeline(ctx context.Context, accountID int64, days int) ([]*DailyRiskPoint, error)
	GetStats(ctx context.Context, accountID int64) (*StatsResponse, error)

	GetBaseline(ctx context.Context, accountID int64) (*models.BehaviorBaseline, error)
	RecomputeBaseline(ctx context.Context, accountID int64) (*models.BehaviorBaseline, error)

	ListAlerts(ctx context.Context, accountID int64, filter repository.AlertFilter) ([]*models.Alert, error)
	ResolveAlert(ctx context.Context, accountID int64, alertID string, note string) error
	ResolveAllAlerts(ctx context.Context, accountID int64, note string) (int, error)

	FreezeAccount(ctx context.Context, accountID int64, reason string) (*models.Account, error)
	UnfreezeAccount(ctx context.Context, accountID int64) (*models.Account, error)
	UpdateSecuritySettings(ctx context.Context, accountID int64, req *SecuritySettingsRequest) (*models.Account, error)

	ListDevices(ctx context.Context, accountID int64) ([]*models.KnownDevice, error)
	RemoveDevice(ctx context.Context, accountID int64, fingerprint string) error
	ListLocations(ctx context.Context, accountID int64) ([]*models.KnownLocation, error)
	RemoveLocation(ctx context.Context, accountID int64, locationName string) error
}

type walletService struct {
	accounts  repository.AccountRepository
	txns      repository.TransactionRepository
	devices   repository.DeviceRepository
	locations repository.LocationRepository
	alerts    repository.AlertRepository

	engine    *engine.WalletEngine
	baselines *baseline.Tracker
	logger    *logrus.Entry
}

func NewWalletService(
	accounts repository.AccountRepository,
	txns repository.TransactionRepository,
	devices repository.DeviceRepository,
	locations repository.LocationRepository,
	alerts repository.AlertRepository,
	eng *engine.WalletEngine,
	baselines *baseline.Tracker,
) WalletService {
	return &walletService{
		accounts:  accounts,
		txns:      txns,
		devices:   devices,
		locations: locations,
		alerts:    alerts,
		engine:    eng,
		baselines: baselines,
		logger:    logrus.WithField("component", "wallet_service"),
	}
}

// Request/Response types

type CreateAccountRequest struct {
	AccountID        int64           `json:"account_id" binding:"required,gt=0"`
	OpeningBalance   decimal.Decimal `json:"opening_balance"`
	MaxTxnAmount     decimal.Decimal `json:"max_txn_amount"`
	MaxTxnsPerWindow int             `json:"max_txns_per_window"`
	AllowedHourStart int             `json:"allowed_hour_start" binding:"min=0,max=23"`
	AllowedHourEnd   int             `json:"allowed_hour_end" binding:"min=0,max=23"`
}

type BalanceResponse struct {
	AccountID   int64           `json:"account_id"`
	Balance     decimal.Decimal `json:"balance"`
	FreezeState string          `json:"freeze_state"`
	FrozenUntil *time.Time      `json:"frozen_until,omitempty"`
}

type SendTransactionRequest struct {
	AccountID    int64           `json:"account_id" binding:"required,gt=0"`
	Amount       decimal.Decimal `json:"amount" binding:"required"`
	Recipient    string          `json:"recipient" binding:"required"`
	DeviceID     string          `json:"device_id"`
	LocationName string          `json:"location_name"`
}

type EvaluateRequest struct {
	AccountID    int64           `json:"account_id" binding:"required,gt=0"`
	Amount       decimal.Decimal `json:"amount" binding:"required"`
	DeviceID     string          `json:"device_id"`
	LocationName string          `json:"location_name"`
}

type HistoryRequest struct {
	Status    string `form:"status"`
	RiskLevel string `form:"risk_level"`
	Direction string `form:"direction"`
	From      string `form:"from"`
	To        string `form:"to"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}

// DailyRiskPoint is one day of the risk timeline: how many transactions
// were scored and how anomalous they looked.
type DailyRiskPoint struct {
	Date     string  `json:"date"`
	Count    int     `json:"count"`
	AvgScore float64 `json:"avg_score"`
	MaxScore int     `json:"max_score"`
}

type MonthSummary struct {
	Count       int             `json:"count"`
	TotalDebits decimal.Decimal `json:"total_debits"`
}

type StatsResponse struct {
	AccountID       int64           `json:"account_id"`
	Balance         decimal.Decimal `json:"balance"`
	FreezeState     string          `json:"freeze_state"`
	CountsByStatus  map[string]int  `json:"counts_by_status"`
	RiskBreakdown   map[string]int  `json:"risk_breakdown"`
	ThisMonth       MonthSummary    `json:"this_month"`
	UnresolvedCount int             `json:"unresolved_alerts"`
}

type SecuritySettingsRequest struct {
	MaxTxnAmount          *decimal.Decimal `json:"max_txn_amount,omitempty"`
	MaxTxnsPerWindow      *int             `json:"max_txns_per_window,omitempty" binding:"omitempty,gt=0"`
	AllowedHourStart      *int             `json:"allowed_hour_start,omitempty" binding:"omitempty,min=0,max=23"`
	AllowedHourEnd        *int             `json:"allowed_hour_end,omitempty" binding:"omitempty,min=0,max=23"`
	FreezeDurationMinutes *int             `json:"freeze_duration_minutes,omitempty" binding:"omitempty,gt=0"`
}

func (s *walletService) CreateAccount(ctx context.Context, req *CreateAccountRequest) (*models.Account, error) {
	account := models.NewAccount(req.AccountID, req.OpeningBalance, models.PolicyLimits{
		MaxTxnAmount:     req.MaxTxnAmount,
		MaxTxnsPerWindow: req.MaxTxnsPerWindow,
		AllowedHourStart: req.AllowedHourStart,
		AllowedHourEnd:   req.AllowedHourEnd,
	})
	if account.Limits.MaxTxnsPerWindow <= 0 {
		account.Limits.MaxTxnsPerWindow = 10
	}

	if err := account.Validate(); err != nil {
		return nil, err
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	s.logger.WithField("account_id", account.AccountID).Info("Account created")
	return account, nil
}

// GetBalance reports the balance and freeze state. An expired freeze is
// lazily lifted here too, so reads never show a stale frozen state.
func (s *walletService) GetBalance(ctx context.Context, accountID int64) (*BalanceResponse, error) {
	account, err := s.accounts.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if account.FreezeExpired(time.Now()) {
		account, err = s.engine.LiftExpiredFreeze(ctx, accountID)
		if err != nil {
			return nil, err
		}
	}

	return &BalanceResponse{
		AccountID:   account.AccountID,
		Balance:     account.Balance,
		FreezeState: account.FreezeState,
		FrozenUntil: account.FrozenUntil,
	}, nil
}

func (s *walletService) SendTransaction(ctx context.Context, req *SendTransactionRequest) (*engine.SubmitResult, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, &models.InvalidRangeError{Field: "amount", Reason: "must be positive"}
	}

	return s.engine.Submit(ctx, req.AccountID, req.Amount, req.Recipient, req.DeviceID, req.LocationName)
}

func (s *walletService) ConfirmTransaction(ctx context.Context, accountID int64, txnID string, accepted bool) (*models.Transaction, error) {
	return s.engine.Confirm(ctx, accountID, txnID, accepted)
}

func (s *walletService) TimeoutTransaction(ctx context.Context, txnID string) (*models.Transaction, error) {
	return s.engine.Timeout(ctx, txnID)
}

func (s *walletService) EvaluateTransaction(ctx context.Context, req *EvaluateRequest) (*risk.Assessment, error) {
	return s.engine.Evaluate(ctx, req.AccountID, req.Amount, req.DeviceID, req.LocationName, time.Now())
}

func (s *walletService) GetTransaction(ctx context.Context, accountID int64, txnID string) (*models.Transaction, error) {
	txn, err := s.txns.GetByTxnID(ctx, txnID)
	if err != nil {
		return nil, err
	}
	if txn.AccountID != accountID {
		return nil, models.ErrNotTransactionOwner
	}
	return txn, nil
}

func (s *walletService) GetTransactionHistory(ctx context.Context, accountID int64, req *HistoryRequest) ([]*models.Transaction, error) {
	filter, err := historyFilter(req)
	if err != nil {
		return nil, err
	}

	return s.txns.ListByAccount(ctx, accountID, filter)
}

func historyFilter(req *HistoryRequest) (repository.TransactionFilter, error) {
	filter := repository.TransactionFilter{
		Status:    req.Status,
		RiskLevel: req.RiskLevel,
		Direction: req.Direction,
		Limit:     req.Limit,
		Offset:    req.Offset,
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}

	if req.From != "" {
		from, err := time.Parse(time.RFC3339, req.From)
		if err != nil {
			return filter, &models.InvalidRangeError{Field: "from", Reason: "must be RFC3339"}
		}
		filter.From = &from
	}
	if req.To != "" {
		to, err := time.Parse(time.RFC3339, req.To)
		if err != nil {
			return filter, &models.InvalidRangeError{Field: "to", Reason: "must be RFC3339"}
		}
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return filter, &models.InvalidRangeError{Field: "to", Reason: "must not precede from"}
	}

	return filter, nil
}

// GetRiskTimeline aggregates anomaly scores per day over the trailing
// window, newest day last.
func (s *walletService) GetRiskTimeline(ctx context.Context, accountID int64, days int) ([]*DailyRiskPoint, error) {
	if days <= 0 || days > 365 {
		days = 30
	}

	from := time.Now().AddDate(0, 0, -days)
	txns, err := s.txns.ListByAccount(ctx, accountID, repository.TransactionFilter{From: &from})
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]*DailyRiskPoint)
	totals := make(map[string]int)
	for _, txn := range txns {
		day := txn.CreatedAt.UTC().Format("2006-01-02")
		point, ok := byDay[day]
		if !ok {
			point = &DailyRiskPoint{Date: day}
			byDay[day] = point
		}
		point.Count++
		totals[day] += txn.AnomalyScore
		if txn.AnomalyScore > point.MaxScore {
			point.MaxScore = txn.AnomalyScore
		}
	}

	timeline := make([]*DailyRiskPoint, 0, len(byDay))
	for day, point := range byDay {
		point.AvgScore = float64(totals[day]) / float64(point.Count)
		timeline = append(timeline, point)
	}
	sort.Slice(timeline, func(i, j int) bool { return timeline[i].Date < timeline[j].Date })

	return timeline, nil
}

func (s *walletService) GetStats(ctx context.Context, accountID int64) (*StatsResponse, error) {
	account, err := s.accounts.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	counts, err := s.txns.CountByStatus(ctx, accountID)
	if err != nil {
		return nil, err
	}

	riskBreakdown, err := s.txns.CountByRiskLevel(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthTxns, err := s.txns.ListByAccount(ctx, accountID, repository.TransactionFilter{
		Status:    models.TxnStatusCompleted,
		Direction: models.TxnDirectionDebit,
		From:      &monthStart,
	})
	if err != nil {
		return nil, err
	}

	month := MonthSummary{Count: len(monthTxns)}
	for _, txn := range monthTxns {
		month.TotalDebits = month.TotalDebits.Add(txn.Amount)
	}

	unresolved, err := s.alerts.List(ctx, accountID, repository.AlertFilter{UnresolvedOnly: true})
	if err != nil {
		return nil, err
	}

	return &StatsResponse{
		AccountID:       accountID,
		Balance:         account.Balance,
		FreezeState:     account.FreezeState,
		CountsByStatus:  counts,
		RiskBreakdown:   riskBreakdown,
		ThisMonth:       month,
		UnresolvedCount: len(unresolved),
	}, nil
}

func (s *walletService) GetBaseline(ctx context.Context, accountID int64) (*models.BehaviorBaseline, error) {
	if _, err := s.accounts.GetByAccountID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.baselines.Get(ctx, accountID)
}

func (s *walletService) RecomputeBaseline(ctx context.Context, accountID int64) (*models.BehaviorBaseline, error) {
	if _, err := s.accounts.GetByAccountID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.baselines.Recompute(ctx, accountID)
}

func (s *walletService) ListAlerts(ctx context.Context, accountID int64, filter repository.AlertFilter) ([]*models.Alert, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.alerts.List(ctx, accountID, filter)
}

func (s *walletService) ResolveAlert(ctx context.Context, accountID int64, alertID string, note string) error {
	oid, err := primitive.ObjectIDFromHex(alertID)
	if err != nil {
		return &models.InvalidRangeError{Field: "alert_id", Reason: "must be a valid object id"}
	}
	return s.alerts.Resolve(ctx, accountID, oid, note)
}

func (s *walletService) ResolveAllAlerts(ctx context.Context, accountID int64, note string) (int, error) {
	return s.alerts.ResolveAll(ctx, accountID, note)
}

func (s *walletService) FreezeAccount(ctx context.Context, accountID int64, reason string) (*models.Account, error) {
	return s.engine.Freeze(ctx, accountID, reason)
}

func (s *walletService) UnfreezeAccount(ctx context.Context, accountID int64) (*models.Account, error) {
	return s.engine.Unfreeze(ctx, accountID)
}

func (s *walletService) UpdateSecuritySettings(ctx context.Context, accountID int64, req *SecuritySettingsRequest) (*models.Account, error) {
	account, err := s.accounts.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if req.MaxTxnAmount != nil {
		account.Limits.MaxTxnAmount = *req.MaxTxnAmount
	}
	if req.MaxTxnsPerWindow != nil {
		account.Limits.MaxTxnsPerWindow = *req.MaxTxnsPerWindow
	}
	if req.AllowedHourStart != nil {
		account.Limits.AllowedHourStart = *req.AllowedHourStart
	}
	if req.AllowedHourEnd != nil {
		account.Limits.AllowedHourEnd = *req.AllowedHourEnd
	}
	if req.FreezeDurationMinutes != nil {
		account.FreezeDurationMinutes = *req.FreezeDurationMinutes
	}

	if err := account.Validate(); err != nil {
		return nil, err
	}
	if err := s.accounts.UpdateLimits(ctx, accountID, account.Limits, account.FreezeDurationMinutes); err != nil {
		return nil, err
	}

	s.logger.WithField("account_id", accountID).Info("Security settings updated")
	return account, nil
}

func (s *walletService) ListDevices(ctx context.Context, accountID int64) ([]*models.KnownDevice, error) {
	return s.devices.List(ctx, accountID)
}

func (s *walletService) RemoveDevice(ctx context.Context, accountID int64, fingerprint string) error {
	return s.devices.Delete(ctx, accountID, fingerprint)
}

func (s *walletService) ListLocations(ctx context.Context, accountID int64) ([]*models.KnownLocation, error) {
	return s.locations.List(ctx, accountID)
}

func (s *walletService) RemoveLocation(ctx context.Context, accountID int64, locationName string) error {
	return s.locations.Delete(ctx, accountID, locationName)
}
