package baseline

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"fraudwallet-api/internal/models"
	"fraudwallet-api/internal/repository"
)

const (
	velocityBucket = 10 * time.Minute
	// Velocity averages above this are clamped; a handful of dense bursts
	// should not permanently inflate the profile.
	maxAvgVelocity = 10.0
)

// Tracker maintains per-account behavioral baselines: a cheap incremental
// update on every completed debit and a full recompute over history.
type Tracker struct {
	baselines repository.BaselineRepository
	txns      repository.TransactionRepository
	logger    *logrus.Entry
}

func NewTracker(baselines repository.BaselineRepository, txns repository.TransactionRepository) *Tracker {
	return &Tracker{
		baselines: baselines,
		txns:      txns,
		logger:    logrus.WithField("component", "baseline_tracker"),
	}
}

// Get returns the account's baseline, computing and storing one from
// transaction history when none exists yet.
func (t *Tracker) Get(ctx context.Context, accountID int64) (*models.BehaviorBaseline, error) {
	baseline, err := t.baselines.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if baseline != nil {
		return baseline, nil
	}

	return t.Recompute(ctx, accountID)
}

// UpdateAfterTransaction folds one completed debit into the stored baseline
// without touching transaction history. When no baseline exists yet, a full
// recompute bootstraps it; that history already contains the just-recorded
// transaction, so the incremental fold is skipped to avoid counting it twice.
func (t *Tracker) UpdateAfterTransaction(ctx context.Context, accountID int64, amount decimal.Decimal, at time.Time) error {
	baseline, err := t.baselines.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if baseline == nil {
		_, err := t.Recompute(ctx, accountID)
		return err
	}

	baseline.Observe(amount, at)

	if err := t.baselines.Upsert(ctx, baseline); err != nil {
		return fmt.Errorf("failed to store baseline update: %w", err)
	}

	return nil
}

// Recompute rebuilds the baseline from all completed debit transactions and
// stores the result. With no history it stores the defaults.
func (t *Tracker) Recompute(ctx context.Context, accountID int64) (*models.BehaviorBaseline, error) {
	txns, err := t.txns.ListCompletedDebits(ctx, accountID)
	if err != nil {
		return nil, err
	}

	baseline := models.NewDefaultBaseline(accountID)
	if len(txns) > 0 {
		aggregate(baseline, txns)
	}

	if err := t.baselines.Upsert(ctx, baseline); err != nil {
		return nil, fmt.Errorf("failed to store recomputed baseline: %w", err)
	}

	t.logger.WithFields(logrus.Fields{
		"account_id":   accountID,
		"sample_count": baseline.SampleCount,
	}).Debug("Baseline recomputed")

	return baseline, nil
}

// aggregate fills the baseline from a non-empty, chronologically ordered
// transaction history.
func aggregate(baseline *models.BehaviorBaseline, txns []*models.Transaction) {
	total := decimal.Zero
	maxAmount := decimal.Zero
	minHour, maxHour := 23, 0
	buckets := make(map[int64]int)

	for _, txn := range txns {
		total = total.Add(txn.Amount)
		if txn.Amount.GreaterThan(maxAmount) {
			maxAmount = txn.Amount
		}

		hour := txn.Timestamp.Hour()
		if hour < minHour {
			minHour = hour
		}
		if hour > maxHour {
			maxHour = hour
		}

		buckets[txn.Timestamp.Unix()/int64(velocityBucket.Seconds())]++
	}

	count := int64(len(txns))
	baseline.AvgAmount = total.Div(decimal.NewFromInt(count))
	baseline.MaxAmount = maxAmount
	baseline.ActiveHourStart = minHour
	baseline.ActiveHourEnd = maxHour
	baseline.SampleCount = int(count)

	first := txns[0].Timestamp
	last := txns[len(txns)-1].Timestamp
	daySpan := int(last.Sub(first).Hours() / 24)
	if daySpan < 1 {
		daySpan = 1
	}
	baseline.TypicalDailyCount = int(count) / daySpan

	bucketTotal := 0
	for _, n := range buckets {
		bucketTotal += n
	}
	avgVelocity := float64(bucketTotal) / float64(len(buckets))
	if avgVelocity > maxAvgVelocity {
		avgVelocity = maxAvgVelocity
	}
	baseline.AvgVelocityPer10Min = decimal.NewFromFloat(avgVelocity)

	baseline.ComputedAt = time.Now()
}

// RecomputeAll rebuilds every stored baseline. The nightly maintenance job
// calls this to correct any drift the incremental path accumulated.
func (t *Tracker) RecomputeAll(ctx context.Context) (int, error) {
	ids, err := t.baselines.ListAccountIDs(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, id := range ids {
		if _, err := t.Recompute(ctx, id); err != nil {
			t.logger.WithError(err).WithField("account_id", id).Warn("Baseline recompute failed")
			continue
		}
		updated++
	}

	return updated, nil
}
