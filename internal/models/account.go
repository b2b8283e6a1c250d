package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Freeze states for an account's wallet.
const (
	FreezeStateActive = "active"
	FreezeStateFrozen = "frozen"
)

// Account represents a wallet account with its balance, per-account
// risk policy limits and freeze state.
type Account struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	AccountID int64              `bson:"account_id" json:"account_id"`

	Balance     decimal.Decimal `bson:"balance" json:"balance"`
	FreezeState string          `bson:"freeze_state" json:"freeze_state"` // "active", "frozen"

	// FrozenUntil is kept after a freeze lapses on its own: the velocity
	// window uses it as a reset anchor so transactions before the freeze are
	// not re-counted. A manual unfreeze clears it.
	FrozenUntil           *time.Time `bson:"frozen_until,omitempty" json:"frozen_until,omitempty"`
	FreezeDurationMinutes int        `bson:"freeze_duration_minutes" json:"freeze_duration_minutes"`

	Limits PolicyLimits `bson:"limits" json:"limits"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// PolicyLimits holds per-account security preferences consumed by the
// risk rule evaluator.
type PolicyLimits struct {
	MaxTxnAmount     decimal.Decimal `bson:"max_txn_amount" json:"max_txn_amount"`
	MaxTxnsPerWindow int             `bson:"max_txns_per_window" json:"max_txns_per_window"`
	AllowedHourStart int             `bson:"allowed_hour_start" json:"allowed_hour_start"`
	AllowedHourEnd   int             `bson:"allowed_hour_end" json:"allowed_hour_end"`
}

// NewAccount creates an active account with the given opening balance and limits.
func NewAccount(accountID int64, openingBalance decimal.Decimal, limits PolicyLimits) *Account {
	now := time.Now()
	return &Account{
		AccountID:             accountID,
		Balance:               openingBalance,
		FreezeState:           FreezeStateActive,
		FreezeDurationMinutes: 30,
		Limits:                limits,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// IsFrozen reports whether the account is frozen with an unexpired freeze at t.
func (a *Account) IsFrozen(t time.Time) bool {
	return a.FreezeState == FreezeStateFrozen && a.FrozenUntil != nil && t.Before(*a.FrozenUntil)
}

// FreezeExpired reports whether the account is marked frozen but the freeze
// window has already lapsed, making it eligible for lazy auto-unfreeze.
func (a *Account) FreezeExpired(t time.Time) bool {
	return a.FreezeState == FreezeStateFrozen && (a.FrozenUntil == nil || !t.Before(*a.FrozenUntil))
}

// Freeze marks the account frozen until t plus its configured freeze duration.
func (a *Account) Freeze(t time.Time) {
	until := t.Add(a.FreezeDuration())
	a.FreezeState = FreezeStateFrozen
	a.FrozenUntil = &until
	a.UpdatedAt = t
}

// Unfreeze reactivates the account after a manual unfreeze. FrozenUntil is
// cleared so an operator lifting a freeze early does not leave a stale
// velocity window anchor in the future.
func (a *Account) Unfreeze(t time.Time) {
	a.FreezeState = FreezeStateActive
	a.FrozenUntil = nil
	a.UpdatedAt = t
}

// LiftExpiredFreeze reactivates the account after its freeze window lapsed.
// FrozenUntil is retained as the velocity window reset anchor.
func (a *Account) LiftExpiredFreeze(t time.Time) {
	a.FreezeState = FreezeStateActive
	a.UpdatedAt = t
}

// FreezeDuration returns the configured freeze duration, defaulting to 30 minutes.
func (a *Account) FreezeDuration() time.Duration {
	minutes := a.FreezeDurationMinutes
	if minutes <= 0 {
		minutes = 30
	}
	return time.Duration(minutes) * time.Minute
}

// HasSufficientBalance checks whether a debit of amount is covered.
// Submitting exactly the full balance is allowed.
func (a *Account) HasSufficientBalance(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}

// Debit subtracts amount from the balance.
func (a *Account) Debit(amount decimal.Decimal) error {
	if !a.HasSufficientBalance(amount) {
		return ErrInsufficientBalance
	}
	a.Balance = a.Balance.Sub(amount)
	a.UpdatedAt = time.Now()
	return nil
}

// Validate validates the account data.
func (a *Account) Validate() error {
	if a.AccountID <= 0 {
		return fmt.Errorf("invalid account ID")
	}

	if a.Balance.LessThan(decimal.Zero) {
		return fmt.Errorf("balance cannot be negative")
	}

	if a.FreezeState != FreezeStateActive && a.FreezeState != FreezeStateFrozen {
		return fmt.Errorf("invalid freeze state: %s", a.FreezeState)
	}

	if a.FreezeState == FreezeStateFrozen && a.FrozenUntil == nil {
		return fmt.Errorf("frozen account must have frozen_until set")
	}

	if a.Limits.AllowedHourStart < 0 || a.Limits.AllowedHourStart > 23 {
		return fmt.Errorf("invalid allowed start hour: %d", a.Limits.AllowedHourStart)
	}

	if a.Limits.AllowedHourEnd < 0 || a.Limits.AllowedHourEnd > 23 {
		return fmt.Errorf("invalid allowed end hour: %d", a.Limits.AllowedHourEnd)
	}

	if a.Limits.MaxTxnsPerWindow <= 0 {
		return fmt.Errorf("max transactions per window must be positive")
	}

	return nil
}
