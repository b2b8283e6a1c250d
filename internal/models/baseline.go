package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BehaviorBaseline is a per-account running statistical profile of completed
// debit transactions. SampleCount only decreases on a full recompute.
type BehaviorBaseline struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	AccountID int64              `bson:"account_id" json:"account_id"`

	AvgAmount         decimal.Decimal `bson:"avg_amount" json:"avg_amount"`
	MaxAmount         decimal.Decimal `bson:"max_amount" json:"max_amount"`
	TypicalDailyCount int             `bson:"typical_daily_count" json:"typical_daily_count"`

	ActiveHourStart int `bson:"active_hour_start" json:"active_hour_start"`
	ActiveHourEnd   int `bson:"active_hour_end" json:"active_hour_end"`

	AvgVelocityPer10Min decimal.Decimal `bson:"avg_velocity_per_10min" json:"avg_velocity_per_10min"`

	SampleCount int       `bson:"sample_count" json:"sample_count"`
	ComputedAt  time.Time `bson:"computed_at" json:"computed_at"`
}

// Default active-hour window and velocity used when no history exists yet.
const (
	DefaultActiveHourStart = 9
	DefaultActiveHourEnd   = 21
)

// NewDefaultBaseline creates the baseline used for accounts with no
// completed debit history.
func NewDefaultBaseline(accountID int64) *BehaviorBaseline {
	return &BehaviorBaseline{
		AccountID:           accountID,
		AvgAmount:           decimal.Zero,
		MaxAmount:           decimal.Zero,
		TypicalDailyCount:   0,
		ActiveHourStart:     DefaultActiveHourStart,
		ActiveHourEnd:       DefaultActiveHourEnd,
		AvgVelocityPer10Min: decimal.NewFromFloat(1.0),
		SampleCount:         0,
		ComputedAt:          time.Now(),
	}
}

// Observe folds one completed debit into the running statistics:
// newAvg = (oldAvg*n + amount) / (n+1).
func (b *BehaviorBaseline) Observe(amount decimal.Decimal, at time.Time) {
	n := decimal.NewFromInt(int64(b.SampleCount))
	b.AvgAmount = b.AvgAmount.Mul(n).Add(amount).Div(n.Add(decimal.NewFromInt(1)))
	b.SampleCount++

	if amount.GreaterThan(b.MaxAmount) {
		b.MaxAmount = amount
	}

	b.ComputedAt = at
}
