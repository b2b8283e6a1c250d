package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"fraudwallet-api/internal/alert"
	"fraudwallet-api/internal/baseline"
	"fraudwallet-api/internal/external"
	"fraudwallet-api/internal/models"
	"fraudwallet-api/internal/monitoring"
	"fraudwallet-api/internal/repository"
	"fraudwallet-api/internal/risk"
)

// SubmitResult is the outcome of a transaction submission.
type SubmitResult struct {
	Transaction *models.Transaction `json:"transaction"`
	Assessment  *risk.Assessment    `json:"assessment"`
}

// WalletEngine drives the transaction lifecycle: risk evaluation, the
// account freeze state machine and balance mutation. Every read-evaluate-write
// sequence for an account runs under that account's exclusive lock; different
// accounts proceed in parallel.
type WalletEngine struct {
	accounts  repository.AccountRepository
	txns      repository.TransactionRepository
	devices   repository.DeviceRepository
	locations repository.LocationRepository

	evaluator *risk.Evaluator
	baselines *baseline.Tracker
	alerts    *alert.Emitter
	locks     repository.AccountLockManager
	metrics   monitoring.MetricsService
	publisher external.EventPublisher

	confirmationTimeout time.Duration
	logger              *logrus.Entry
	now                 func() time.Time
}

type Config struct {
	Accounts  repository.AccountRepository
	Txns      repository.TransactionRepository
	Devices   repository.DeviceRepository
	Locations repository.LocationRepository

	Evaluator *risk.Evaluator
	Baselines *baseline.Tracker
	Alerts    *alert.Emitter
	Locks     repository.AccountLockManager
	Metrics   monitoring.MetricsService
	Publisher external.EventPublisher

	ConfirmationTimeout time.Duration
}

func NewWalletEngine(cfg Config) *WalletEngine {
	return &WalletEngine{
		accounts:            cfg.Accounts,
		txns:                cfg.Txns,
		devices:             cfg.Devices,
		locations:           cfg.Locations,
		evaluator:           cfg.Evaluator,
		baselines:           cfg.Baselines,
		alerts:              cfg.Alerts,
		locks:               cfg.Locks,
		metrics:             cfg.Metrics,
		publisher:           cfg.Publisher,
		confirmationTimeout: cfg.ConfirmationTimeout,
		logger:              logrus.WithField("component", "wallet_engine"),
		now:                 time.Now,
	}
}

// Submit runs the full submission state machine for an outgoing transfer.
// The transaction either completes immediately, is held pending user
// confirmation, or triggers a policy freeze, decided before any balance
// mutation is committed.
func (e *WalletEngine) Submit(ctx context.Context, accountID int64, amount decimal.Decimal, recipient, deviceID, locationName string) (*SubmitResult, error) {
	var result *SubmitResult

	err := e.locks.WithAccountLock(ctx, accountID, func(ctx context.Context) error {
		var err error
		result, err = e.submitLocked(ctx, accountID, amount, recipient, deviceID, locationName)
		return err
	})

	return result, err
}

func (e *WalletEngine) submitLocked(ctx context.Context, accountID int64, amount decimal.Decimal, recipient, deviceID, locationName string) (*SubmitResult, error) {
	now := e.now()

	account, err := e.accounts.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if account.IsFrozen(now) {
		return nil, &models.WalletFrozenError{AccountID: accountID, FrozenUntil: *account.FrozenUntil}
	}

	// Lazy auto-unfreeze. FrozenUntil stays set as the velocity reset anchor.
	if account.FreezeExpired(now) {
		account.LiftExpiredFreeze(now)
		if err := e.accounts.SetFreezeState(ctx, accountID, account.FreezeState, account.FrozenUntil); err != nil {
			return nil, err
		}
		e.metrics.RecordUnfreeze("expired")
		e.publishFreeze(ctx, account, "unfrozen", "freeze window lapsed")
	}

	if !account.HasSufficientBalance(amount) {
		return nil, models.ErrInsufficientBalance
	}

	txn := models.NewTransaction(accountID, amount, recipient, deviceID, locationName, now)

	bl, err := e.baselines.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	assessment, err := e.evaluator.Evaluate(ctx, account, bl, txn)
	if err != nil {
		return nil, err
	}
	txn.ApplyAssessment(assessment.Score, assessment.Level, assessment.Findings, assessment.RequiresConfirmation)
	e.metrics.RecordRiskScore(assessment.Level, assessment.Score)

	if assessment.ShouldAutoFreeze {
		return nil, e.autoFreeze(ctx, account, txn, assessment, now)
	}

	if assessment.RequiresConfirmation {
		if err := e.txns.Create(ctx, txn); err != nil {
			return nil, err
		}

		e.logger.WithFields(logrus.Fields{
			"account_id": accountID,
			"txn_id":     txn.TxnID,
			"score":      assessment.Score,
		}).Info("Transaction held pending confirmation")

		return &SubmitResult{Transaction: txn, Assessment: assessment}, nil
	}

	if err := txn.MarkCompleted(now); err != nil {
		return nil, err
	}
	if err := e.txns.Create(ctx, txn); err != nil {
		return nil, err
	}
	if err := e.settle(ctx, account, txn, now); err != nil {
		return nil, err
	}

	if len(txn.Findings) > 0 {
		e.alerts.EmitFindings(ctx, txn)
	}

	return &SubmitResult{Transaction: txn, Assessment: assessment}, nil
}

// autoFreeze records the blocked transaction, freezes the account and
// returns the typed policy error. The balance is untouched.
func (e *WalletEngine) autoFreeze(ctx context.Context, account *models.Account, txn *models.Transaction, assessment *risk.Assessment, now time.Time) error {
	if err := txn.MarkBlocked(now); err != nil {
		return err
	}
	if err := e.txns.Create(ctx, txn); err != nil {
		return err
	}

	account.Freeze(now)
	if err := e.accounts.SetFreezeState(ctx, account.AccountID, account.FreezeState, account.FrozenUntil); err != nil {
		return err
	}

	e.alerts.EmitAutoFreeze(ctx, txn, *account.FrozenUntil)
	e.metrics.RecordFreeze("policy")
	e.metrics.RecordTransactionOutcome(models.TxnStatusBlocked)
	e.publishFreeze(ctx, account, "frozen", "risk policy triggered")
	e.publishTransaction(ctx, txn)

	e.logger.WithFields(logrus.Fields{
		"account_id":   account.AccountID,
		"txn_id":       txn.TxnID,
		"score":        assessment.Score,
		"frozen_until": account.FrozenUntil,
	}).Warn("Account frozen by policy")

	return &models.WalletFrozenByPolicyError{
		AccountID:     account.AccountID,
		FrozenUntil:   *account.FrozenUntil,
		AnomalyScore:  assessment.Score,
		VelocityCount: assessment.VelocityCount,
		Findings:      assessment.Findings,
	}
}

// settle debits the balance, updates the baseline and registers the
// transaction's device and location as known context.
func (e *WalletEngine) settle(ctx context.Context, account *models.Account, txn *models.Transaction, now time.Time) error {
	if err := account.Debit(txn.Amount); err != nil {
		return err
	}
	if err := e.accounts.Update(ctx, account); err != nil {
		return err
	}

	if err := e.baselines.UpdateAfterTransaction(ctx, account.AccountID, txn.Amount, now); err != nil {
		e.logger.WithError(err).WithField("account_id", account.AccountID).Warn("Baseline update failed")
	}

	e.rememberContext(ctx, txn, now)
	e.metrics.RecordTransactionOutcome(models.TxnStatusCompleted)
	e.publishTransaction(ctx, txn)

	return nil
}

func (e *WalletEngine) rememberContext(ctx context.Context, txn *models.Transaction, now time.Time) {
	if txn.DeviceID != "" {
		err := e.devices.Upsert(ctx, &models.KnownDevice{
			AccountID:         txn.AccountID,
			DeviceFingerprint: txn.DeviceID,
			FirstSeen:         now,
			LastUsed:          now,
		})
		if err != nil {
			e.logger.WithError(err).Warn("Failed to record device")
		}
	}

	if txn.LocationName != "" {
		err := e.locations.Upsert(ctx, &models.KnownLocation{
			AccountID:    txn.AccountID,
			LocationName: txn.LocationName,
			FirstSeen:    now,
			LastUsed:     now,
		})
		if err != nil {
			e.logger.WithError(err).Warn("Failed to record location")
		}
	}
}

// Confirm resolves a pending held transaction. Accepting re-checks the
// balance because it may have changed since submission; declining cancels
// without freezing. Confirming an already-terminal transaction returns the
// transaction as-is: timeout and confirm race, and the loser just observes.
func (e *WalletEngine) Confirm(ctx context.Context, accountID int64, txnID string, accepted bool) (*models.Transaction, error) {
	var txn *models.Transaction

	err := e.locks.WithAccountLock(ctx, accountID, func(ctx context.Context) error {
		var err error
		txn, err = e.confirmLocked(ctx, accountID, txnID, accepted)
		return err
	})

	return txn, err
}

func (e *WalletEngine) confirmLocked(ctx context.Context, accountID int64, txnID string, accepted bool) (*models.Transaction, error) {
	now := e.now()

	txn, err := e.txns.GetByTxnID(ctx, txnID)
	if err != nil {
		return nil, err
	}
	if txn.AccountID != accountID {
		return nil, models.ErrNotTransactionOwner
	}

	// Status must be re-checked under the lock: a timeout may have won.
	if txn.IsTerminal() {
		return txn, nil
	}

	if !accepted {
		if err := txn.MarkCancelled(now); err != nil {
			return nil, err
		}
		if err := e.txns.Update(ctx, txn); err != nil {
			return nil, err
		}

		e.alerts.EmitConfirmationRejected(ctx, txn)
		e.metrics.RecordTransactionOutcome(models.TxnStatusCancelled)
		e.publishTransaction(ctx, txn)

		return txn, nil
	}

	account, err := e.accounts.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if !account.HasSufficientBalance(txn.Amount) {
		if err := txn.MarkCancelled(now); err != nil {
			return nil, err
		}
		if err := e.txns.Update(ctx, txn); err != nil {
			return nil, err
		}
		e.metrics.RecordTransactionOutcome(models.TxnStatusCancelled)
		return nil, models.ErrInsufficientBalance
	}

	if err := txn.MarkConfirmed(now); err != nil {
		return nil, err
	}
	if err := e.txns.Update(ctx, txn); err != nil {
		return nil, err
	}
	if err := e.settle(ctx, account, txn, now); err != nil {
		return nil, err
	}

	if len(txn.Findings) > 0 {
		e.alerts.EmitFindings(ctx, txn)
	}

	return txn, nil
}

// Timeout blocks a pending transaction whose confirmation window lapsed and
// freezes the account. Calling it on an already-terminal transaction is an
// idempotent no-op that reports the existing status.
func (e *WalletEngine) Timeout(ctx context.Context, txnID string) (*models.Transaction, error) {
	// The account id is needed for the lock; re-read the transaction inside
	// the lock since its status may change while we wait.
	peek, err := e.txns.GetByTxnID(ctx, txnID)
	if err != nil {
		return nil, err
	}

	var txn *models.Transaction
	err = e.locks.WithAccountLock(ctx, peek.AccountID, func(ctx context.Context) error {
		var err error
		txn, err = e.timeoutLocked(ctx, txnID)
		return err
	})

	return txn, err
}

func (e *WalletEngine) timeoutLocked(ctx context.Context, txnID string) (*models.Transaction, error) {
	now := e.now()

	txn, err := e.txns.GetByTxnID(ctx, txnID)
	if err != nil {
		return nil, err
	}
	if txn.IsTerminal() {
		return txn, nil
	}

	if err := txn.MarkBlocked(now); err != nil {
		return nil, err
	}
	if err := e.txns.Update(ctx, txn); err != nil {
		return nil, err
	}

	account, err := e.accounts.GetByAccountID(ctx, txn.AccountID)
	if err != nil {
		return nil, err
	}
	account.Freeze(now)
	if err := e.accounts.SetFreezeState(ctx, account.AccountID, account.FreezeState, account.FrozenUntil); err != nil {
		return nil, err
	}

	e.alerts.EmitManualFreeze(ctx, account.AccountID, txn.TxnID, "confirmation window lapsed", *account.FrozenUntil)
	e.metrics.RecordConfirmationTimeout()
	e.metrics.RecordFreeze("timeout")
	e.metrics.RecordTransactionOutcome(models.TxnStatusBlocked)
	e.publishFreeze(ctx, account, "frozen", "confirmation window lapsed")
	e.publishTransaction(ctx, txn)

	e.logger.WithFields(logrus.Fields{
		"account_id": account.AccountID,
		"txn_id":     txn.TxnID,
	}).Warn("Pending transaction timed out, account frozen")

	return txn, nil
}

// SweepPendingTimeouts blocks every pending transaction older than the
// confirmation window. The cron scheduler runs this periodically.
func (e *WalletEngine) SweepPendingTimeouts(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-e.confirmationTimeout)

	stale, err := e.txns.ListPendingOlderThan(ctx, cutoff, 100)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, txn := range stale {
		if _, err := e.Timeout(ctx, txn.TxnID); err != nil {
			e.logger.WithError(err).WithField("txn_id", txn.TxnID).Warn("Timeout sweep failed for transaction")
			continue
		}
		swept++
	}

	return swept, nil
}

// Freeze manually freezes an account until now plus its freeze duration.
func (e *WalletEngine) Freeze(ctx context.Context, accountID int64, reason string) (*models.Account, error) {
	var account *models.Account

	err := e.locks.WithAccountLock(ctx, accountID, func(ctx context.Context) error {
		now := e.now()

		var err error
		account, err = e.accounts.GetByAccountID(ctx, accountID)
		if err != nil {
			return err
		}

		account.Freeze(now)
		if err := e.accounts.SetFreezeState(ctx, accountID, account.FreezeState, account.FrozenUntil); err != nil {
			return err
		}

		e.alerts.EmitManualFreeze(ctx, accountID, "", reason, *account.FrozenUntil)
		e.metrics.RecordFreeze("manual")
		e.publishFreeze(ctx, account, "frozen", reason)
		return nil
	})

	return account, err
}

// Unfreeze manually reactivates an account.
func (e *WalletEngine) Unfreeze(ctx context.Context, accountID int64) (*models.Account, error) {
	var account *models.Account

	err := e.locks.WithAccountLock(ctx, accountID, func(ctx context.Context) error {
		now := e.now()

		var err error
		account, err = e.accounts.GetByAccountID(ctx, accountID)
		if err != nil {
			return err
		}

		account.Unfreeze(now)
		if err := e.accounts.SetFreezeState(ctx, accountID, account.FreezeState, nil); err != nil {
			return err
		}

		e.metrics.RecordUnfreeze("manual")
		e.publishFreeze(ctx, account, "unfrozen", "manual unfreeze")
		return nil
	})

	return account, err
}

// LiftExpiredFreeze reactivates an account whose freeze window has lapsed,
// keeping FrozenUntil as the velocity window anchor. Active or still-frozen
// accounts are left untouched.
func (e *WalletEngine) LiftExpiredFreeze(ctx context.Context, accountID int64) (*models.Account, error) {
	var account *models.Account

	err := e.locks.WithAccountLock(ctx, accountID, func(ctx context.Context) error {
		now := e.now()

		var err error
		account, err = e.accounts.GetByAccountID(ctx, accountID)
		if err != nil {
			return err
		}

		if !account.FreezeExpired(now) {
			return nil
		}

		account.LiftExpiredFreeze(now)
		if err := e.accounts.SetFreezeState(ctx, accountID, account.FreezeState, account.FrozenUntil); err != nil {
			return err
		}

		e.metrics.RecordUnfreeze("expired")
		e.publishFreeze(ctx, account, "unfrozen", "freeze window lapsed")
		return nil
	})

	return account, err
}

// Evaluate runs the risk rules without creating any records. Exposed for
// dry-run inspection of what a submission would score.
func (e *WalletEngine) Evaluate(ctx context.Context, accountID int64, amount decimal.Decimal, deviceID, locationName string, at time.Time) (*risk.Assessment, error) {
	account, err := e.accounts.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	bl, err := e.baselines.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	txn := models.NewTransaction(accountID, amount, "", deviceID, locationName, at)
	return e.evaluator.Evaluate(ctx, account, bl, txn)
}

func (e *WalletEngine) publishFreeze(ctx context.Context, account *models.Account, action, reason string) {
	err := e.publisher.PublishFreezeEvent(ctx, &external.FreezeEvent{
		AccountID:   account.AccountID,
		Action:      action,
		Reason:      reason,
		FrozenUntil: account.FrozenUntil,
	})
	if err != nil {
		e.logger.WithError(err).Warn("Failed to publish freeze event")
	}
}

func (e *WalletEngine) publishTransaction(ctx context.Context, txn *models.Transaction) {
	err := e.publisher.PublishTransactionEvent(ctx, &external.TransactionEvent{
		TxnID:        txn.TxnID,
		AccountID:    txn.AccountID,
		Amount:       txn.Amount.StringFixed(2),
		Status:       txn.Status,
		RiskLevel:    txn.RiskLevel,
		AnomalyScore: txn.AnomalyScore,
	})
	if err != nil {
		e.logger.WithError(err).Warn("Failed to publish transaction event")
	}
}
