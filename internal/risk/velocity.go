package risk

import (
	"context"
	"time"

	"fraudwallet-api/internal/models"
)

// VelocityResult is the outcome of the trailing-window transaction count.
type VelocityResult struct {
	Count     int
	HardLimit bool
}

// velocity counts completed transactions in the trailing window ending at
// submission time. When a freeze has expired, the window's lower bound is
// raised to the freeze's end so the burst that caused the freeze is not
// counted again against the fresh start.
func (e *Evaluator) velocity(ctx context.Context, account *models.Account, at time.Time) (*VelocityResult, error) {
	from := at.Add(-e.cfg.VelocityWindow)

	if account.FrozenUntil != nil && !account.FrozenUntil.After(at) && account.FrozenUntil.After(from) {
		from = *account.FrozenUntil
	}

	count, err := e.txns.CountCompletedInRange(ctx, account.AccountID, from, at)
	if err != nil {
		return nil, err
	}

	return &VelocityResult{
		Count:     count,
		HardLimit: count >= account.Limits.MaxTxnsPerWindow,
	}, nil
}
