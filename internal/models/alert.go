package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Alert types persisted for audit and notification.
const (
	AlertTypeExceedsMax           = "exceeds_max"
	AlertTypeHighAmount           = "high_amount"
	AlertTypeUnusualTime          = "unusual_time"
	AlertTypeNewDevice            = "new_device"
	AlertTypeNewLocation          = "new_location"
	AlertTypeHighVelocity         = "high_velocity"
	AlertTypeImpossibleTravel     = "impossible_travel"
	AlertTypeAutoFreeze           = "auto_freeze"
	AlertTypeManualFreeze         = "manual_freeze"
	AlertTypeConfirmationRejected = "confirmation_rejected"
)

// Alert severities.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Alert is a persisted record of a fired risk rule or freeze event.
type Alert struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	AccountID int64              `bson:"account_id" json:"account_id"`
	TxnID     string             `bson:"txn_id,omitempty" json:"txn_id,omitempty"`

	AlertType string `bson:"alert_type" json:"alert_type"`
	Severity  string `bson:"severity" json:"severity"`
	Message   string `bson:"message" json:"message"`

	Resolved       bool       `bson:"resolved" json:"resolved"`
	ResolvedAt     *time.Time `bson:"resolved_at,omitempty" json:"resolved_at,omitempty"`
	ResolutionNote string     `bson:"resolution_note,omitempty" json:"resolution_note,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Resolve marks the alert resolved with an optional note.
func (a *Alert) Resolve(note string, at time.Time) {
	a.Resolved = true
	a.ResolvedAt = &at
	a.ResolutionNote = note
}
