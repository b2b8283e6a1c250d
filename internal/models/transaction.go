package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Transaction statuses. A transaction is terminal once it leaves "pending".
const (
	TxnStatusPending   = "pending"
	TxnStatusCompleted = "completed"
	TxnStatusBlocked   = "blocked"
	TxnStatusCancelled = "cancelled"
)

// Transaction directions.
const (
	TxnDirectionDebit  = "debit"
	TxnDirectionCredit = "credit"
)

// Risk levels assigned by the evaluator.
const (
	RiskLevelLow    = "low"
	RiskLevelMedium = "medium"
	RiskLevelHigh   = "high"
)

// Transaction represents a wallet transaction together with the risk
// assessment snapshot taken when it was submitted.
type Transaction struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	TxnID     string             `bson:"txn_id" json:"txn_id"`
	AccountID int64              `bson:"account_id" json:"account_id"`

	Amount    decimal.Decimal `bson:"amount" json:"amount"`
	Direction string          `bson:"direction" json:"direction"` // "debit", "credit"
	Recipient string          `bson:"recipient" json:"recipient"`

	Timestamp    time.Time `bson:"timestamp" json:"timestamp"`
	DeviceID     string    `bson:"device_id,omitempty" json:"device_id,omitempty"`
	LocationName string    `bson:"location_name,omitempty" json:"location_name,omitempty"`

	// Risk assessment snapshot. Findings is the ordered sequence of fired
	// rules; RiskFactors mirrors the tags for compatibility with consumers
	// of the wire contract.
	AnomalyScore int           `bson:"anomaly_score" json:"anomaly_score"`
	RiskLevel    string        `bson:"risk_level" json:"risk_level"`
	RiskFactors  []string      `bson:"risk_factors" json:"risk_factors"`
	Findings     []RiskFinding `bson:"findings,omitempty" json:"findings,omitempty"`

	Status               string     `bson:"status" json:"status"`
	RequiresConfirmation bool       `bson:"requires_confirmation" json:"requires_confirmation"`
	ConfirmedAt          *time.Time `bson:"confirmed_at,omitempty" json:"confirmed_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// RiskFinding is one fired rule: its tag, the points it contributed and a
// human-readable explanation. Keeping the three together removes the old
// parallel-list alignment between factors and explanations.
type RiskFinding struct {
	Tag         string `bson:"tag" json:"tag"`
	Points      int    `bson:"points" json:"points"`
	Explanation string `bson:"explanation" json:"explanation"`
}

// NewTransaction creates a pending debit transaction for the given intent.
func NewTransaction(accountID int64, amount decimal.Decimal, recipient, deviceID, locationName string, ts time.Time) *Transaction {
	return &Transaction{
		TxnID:        fmt.Sprintf("TXN-%d-%d", ts.UnixNano(), accountID),
		AccountID:    accountID,
		Amount:       amount,
		Direction:    TxnDirectionDebit,
		Recipient:    recipient,
		Timestamp:    ts,
		DeviceID:     deviceID,
		LocationName: locationName,
		RiskLevel:    RiskLevelLow,
		RiskFactors:  []string{},
		Status:       TxnStatusPending,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
}

// IsTerminal reports whether the transaction has reached a final status.
func (t *Transaction) IsTerminal() bool {
	switch t.Status {
	case TxnStatusCompleted, TxnStatusBlocked, TxnStatusCancelled:
		return true
	}
	return false
}

// ApplyAssessment records the evaluator's verdict on the transaction.
func (t *Transaction) ApplyAssessment(score int, level string, findings []RiskFinding, requiresConfirmation bool) {
	t.AnomalyScore = score
	t.RiskLevel = level
	t.Findings = findings
	t.RequiresConfirmation = requiresConfirmation

	t.RiskFactors = make([]string, 0, len(findings))
	for _, f := range findings {
		t.RiskFactors = append(t.RiskFactors, f.Tag)
	}
}

// MarkCompleted transitions a pending transaction to completed.
func (t *Transaction) MarkCompleted(at time.Time) error {
	if err := t.ensurePending(TxnStatusCompleted); err != nil {
		return err
	}
	t.Status = TxnStatusCompleted
	t.UpdatedAt = at
	return nil
}

// MarkConfirmed transitions a pending transaction to completed recording
// the user's confirmation time.
func (t *Transaction) MarkConfirmed(at time.Time) error {
	if err := t.MarkCompleted(at); err != nil {
		return err
	}
	t.ConfirmedAt = &at
	return nil
}

// MarkCancelled transitions a pending transaction to cancelled.
func (t *Transaction) MarkCancelled(at time.Time) error {
	if err := t.ensurePending(TxnStatusCancelled); err != nil {
		return err
	}
	t.Status = TxnStatusCancelled
	t.UpdatedAt = at
	return nil
}

// MarkBlocked transitions a pending transaction to blocked.
func (t *Transaction) MarkBlocked(at time.Time) error {
	if err := t.ensurePending(TxnStatusBlocked); err != nil {
		return err
	}
	t.Status = TxnStatusBlocked
	t.UpdatedAt = at
	return nil
}

func (t *Transaction) ensurePending(target string) error {
	if t.Status != TxnStatusPending {
		return &InvalidStateTransitionError{TxnID: t.TxnID, From: t.Status, To: target}
	}
	return nil
}

// Validate validates the transaction data.
func (t *Transaction) Validate() error {
	if t.TxnID == "" {
		return fmt.Errorf("transaction ID is required")
	}

	if t.AccountID <= 0 {
		return fmt.Errorf("invalid account ID")
	}

	if t.Amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("transaction amount must be positive")
	}

	if t.Direction != TxnDirectionDebit && t.Direction != TxnDirectionCredit {
		return fmt.Errorf("invalid transaction direction: %s", t.Direction)
	}

	switch t.Status {
	case TxnStatusPending, TxnStatusCompleted, TxnStatusBlocked, TxnStatusCancelled:
	default:
		return fmt.Errorf("invalid transaction status: %s", t.Status)
	}

	if t.AnomalyScore < 0 || t.AnomalyScore > 100 {
		return fmt.Errorf("anomaly score out of range: %d", t.AnomalyScore)
	}

	return nil
}
