package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel domain errors. Callers match with errors.Is; the richer variants
// below wrap these so matching works through the wrapping.
var (
	ErrAccountNotFound        = errors.New("account not found")
	ErrAccountAlreadyExists   = errors.New("account already exists")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrNotTransactionOwner    = errors.New("transaction does not belong to account")
	ErrWalletFrozen           = errors.New("wallet is frozen")
	ErrWalletFrozenByPolicy   = errors.New("wallet frozen by policy")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInvalidRange           = errors.New("invalid range")
)

// WalletFrozenError is returned when a submission is rejected because an
// earlier freeze is still in effect.
type WalletFrozenError struct {
	AccountID   int64
	FrozenUntil time.Time
}

func (e *WalletFrozenError) Error() string {
	return fmt.Sprintf("wallet is frozen until %s", e.FrozenUntil.Format(time.RFC3339))
}

func (e *WalletFrozenError) Unwrap() error { return ErrWalletFrozen }

// WalletFrozenByPolicyError is returned when the submission itself triggered
// an auto-freeze. It carries the findings so the caller can tell the user why.
type WalletFrozenByPolicyError struct {
	AccountID     int64
	FrozenUntil   time.Time
	AnomalyScore  int
	VelocityCount int
	Findings      []RiskFinding
}

func (e *WalletFrozenByPolicyError) Error() string {
	return fmt.Sprintf("wallet frozen by policy until %s (score %d)",
		e.FrozenUntil.Format(time.RFC3339), e.AnomalyScore)
}

func (e *WalletFrozenByPolicyError) Unwrap() error { return ErrWalletFrozenByPolicy }

// InvalidStateTransitionError is returned for confirm/timeout calls against a
// transaction that is not pending.
type InvalidStateTransitionError struct {
	TxnID string
	From  string
	To    string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("transaction %s: illegal transition %s -> %s", e.TxnID, e.From, e.To)
}

func (e *InvalidStateTransitionError) Unwrap() error { return ErrInvalidStateTransition }

// InvalidRangeError is returned for malformed caller-supplied query filters.
type InvalidRangeError struct {
	Field  string
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }
