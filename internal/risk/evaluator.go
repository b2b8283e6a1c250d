package risk

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"fraudwallet-api/internal/config"
	"fraudwallet-api/internal/models"
	"fraudwallet-api/internal/repository"
)

// Assessment is the evaluator's verdict on a submitted transaction.
type Assessment struct {
	Score    int                  `json:"score"`
	Level    string               `json:"level"`
	Findings []models.RiskFinding `json:"findings"`

	RequiresConfirmation bool `json:"requires_confirmation"`
	ShouldAutoFreeze     bool `json:"should_auto_freeze"`

	VelocityCount     int  `json:"velocity_count"`
	VelocityHardLimit bool `json:"velocity_hard_limit"`
}

// Evaluator scores submitted transactions against the account's policy
// limits, its behavioral baseline and its transaction history. All rule
// points and thresholds come from configuration.
type Evaluator struct {
	cfg       config.RiskConfig
	txns      repository.TransactionRepository
	devices   repository.DeviceRepository
	locations repository.LocationRepository
	logger    *logrus.Entry
}

func NewEvaluator(
	cfg config.RiskConfig,
	txns repository.TransactionRepository,
	devices repository.DeviceRepository,
	locations repository.LocationRepository,
) *Evaluator {
	return &Evaluator{
		cfg:       cfg,
		txns:      txns,
		devices:   devices,
		locations: locations,
		logger:    logrus.WithField("component", "risk_evaluator"),
	}
}

// Evaluate runs every rule against the transaction and returns the combined
// assessment. Rules are independent; each fired rule contributes a finding
// and its configured points, and the sum is capped at 100.
func (e *Evaluator) Evaluate(ctx context.Context, account *models.Account, baseline *models.BehaviorBaseline, txn *models.Transaction) (*Assessment, error) {
	var findings []models.RiskFinding

	addFinding := func(tag string, points int, explanation string) {
		findings = append(findings, models.RiskFinding{
			Tag:         tag,
			Points:      points,
			Explanation: explanation,
		})
	}

	// Amount against the hard per-transaction cap.
	if account.Limits.MaxTxnAmount.IsPositive() && txn.Amount.GreaterThan(account.Limits.MaxTxnAmount) {
		addFinding(TagExceedsMax, e.cfg.PointsExceedsMax,
			fmt.Sprintf("amount %s exceeds the maximum allowed %s",
				txn.Amount.StringFixed(2), account.Limits.MaxTxnAmount.StringFixed(2)))
	}

	// Amount against the behavioral average.
	if baseline != nil && baseline.AvgAmount.IsPositive() {
		threshold := baseline.AvgAmount.Mul(decimal.NewFromFloat(e.cfg.HighAmountMultiplier))
		if txn.Amount.GreaterThan(threshold) {
			ratio := txn.Amount.Div(baseline.AvgAmount)
			addFinding(TagHighAmount, e.cfg.PointsHighAmount,
				fmt.Sprintf("amount %s is %sx the average of %s",
					txn.Amount.StringFixed(2), ratio.StringFixed(1), baseline.AvgAmount.StringFixed(2)))
		}
	}

	// Time of day against the allowed window.
	hourStart, hourEnd := e.allowedHours(account, baseline)
	hour := txn.Timestamp.Hour()
	if hour < hourStart || hour > hourEnd {
		addFinding(TagUnusualTime, e.cfg.PointsUnusualTime,
			fmt.Sprintf("transaction at hour %d is outside the usual window %02d:00-%02d:00",
				hour, hourStart, hourEnd))
	}

	// Device recognition.
	if txn.DeviceID != "" {
		known, err := e.devices.Exists(ctx, account.AccountID, txn.DeviceID)
		if err != nil {
			return nil, fmt.Errorf("device lookup failed: %w", err)
		}
		if !known {
			addFinding(TagNewDevice, e.cfg.PointsNewDevice,
				fmt.Sprintf("device %q has not been seen on this account before", txn.DeviceID))
		}
	}

	// Location recognition.
	if txn.LocationName != "" {
		known, err := e.locations.Exists(ctx, account.AccountID, txn.LocationName)
		if err != nil {
			return nil, fmt.Errorf("location lookup failed: %w", err)
		}
		if !known {
			addFinding(TagNewLocation, e.cfg.PointsNewLocation,
				fmt.Sprintf("location %q has not been seen on this account before", txn.LocationName))
		}
	}

	// Velocity over the trailing window.
	vel, err := e.velocity(ctx, account, txn.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("velocity count failed: %w", err)
	}
	switch {
	case vel.HardLimit:
		addFinding(TagHighVelocity, e.cfg.PointsHighVelocity,
			fmt.Sprintf("%d transactions in the last %s reaches the limit of %d",
				vel.Count, e.cfg.VelocityWindow, account.Limits.MaxTxnsPerWindow))
	case vel.Count == account.Limits.MaxTxnsPerWindow-1:
		addFinding(TagHighVelocity, e.cfg.PointsHighVelocity/2,
			fmt.Sprintf("%d transactions in the last %s is approaching the limit of %d",
				vel.Count, e.cfg.VelocityWindow, account.Limits.MaxTxnsPerWindow))
	}

	// Travel plausibility against the last located transaction.
	if txn.LocationName != "" {
		finding, err := e.travelFinding(ctx, account, txn)
		if err != nil {
			return nil, err
		}
		if finding != nil {
			findings = append(findings, *finding)
		}
	}

	score := 0
	for _, f := range findings {
		score += f.Points
	}
	if score > maxScore {
		score = maxScore
	}

	assessment := &Assessment{
		Score:             score,
		Level:             e.level(score),
		Findings:          findings,
		VelocityCount:     vel.Count,
		VelocityHardLimit: vel.HardLimit,
	}
	assessment.RequiresConfirmation = assessment.Level == models.RiskLevelHigh
	assessment.ShouldAutoFreeze = vel.HardLimit || score >= e.cfg.AutoFreezeScore

	e.logger.WithFields(logrus.Fields{
		"account_id": account.AccountID,
		"txn_id":     txn.TxnID,
		"score":      assessment.Score,
		"level":      assessment.Level,
		"findings":   len(assessment.Findings),
	}).Debug("Transaction evaluated")

	return assessment, nil
}

// allowedHours resolves the active-hour window: account limits first, then
// the behavioral baseline, then the global defaults.
func (e *Evaluator) allowedHours(account *models.Account, baseline *models.BehaviorBaseline) (int, int) {
	if account.Limits.AllowedHourStart != 0 || account.Limits.AllowedHourEnd != 0 {
		return account.Limits.AllowedHourStart, account.Limits.AllowedHourEnd
	}
	if baseline != nil {
		return baseline.ActiveHourStart, baseline.ActiveHourEnd
	}
	return models.DefaultActiveHourStart, models.DefaultActiveHourEnd
}

func (e *Evaluator) level(score int) string {
	switch {
	case score <= e.cfg.LowThreshold:
		return models.RiskLevelLow
	case score <= e.cfg.MediumThreshold:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelHigh
	}
}

// travelFinding checks whether the location change since the last completed
// located transaction is physically plausible.
func (e *Evaluator) travelFinding(ctx context.Context, account *models.Account, txn *models.Transaction) (*models.RiskFinding, error) {
	prev, err := e.txns.LastCompletedWithLocation(ctx, account.AccountID)
	if err != nil {
		return nil, fmt.Errorf("previous location lookup failed: %w", err)
	}
	if prev == nil {
		return nil, nil
	}

	elapsedHours := txn.Timestamp.Sub(prev.Timestamp).Hours()

	prevCoords, err := e.resolveCoords(ctx, account.AccountID, prev.LocationName)
	if err != nil {
		return nil, err
	}
	currCoords, err := e.resolveCoords(ctx, account.AccountID, txn.LocationName)
	if err != nil {
		return nil, err
	}

	verdict, speed := classifyTravel(prev.LocationName, prevCoords, currCoords, txn.LocationName, elapsedHours, e.cfg.MaxTravelSpeedKMH)
	switch verdict {
	case travelImpossible:
		return &models.RiskFinding{
			Tag:    TagImpossibleTravel,
			Points: e.cfg.PointsImpossibleTravel,
			Explanation: fmt.Sprintf("travel from %q to %q would require %.0f km/h",
				prev.LocationName, txn.LocationName, speed),
		}, nil
	case travelSuspect:
		return &models.RiskFinding{
			Tag:    TagImpossibleTravel,
			Points: e.cfg.PointsImpossibleTravel / 2,
			Explanation: fmt.Sprintf("location changed from %q to %q within an hour and coordinates could not be verified",
				prev.LocationName, txn.LocationName),
		}, nil
	}

	return nil, nil
}

// resolveCoords resolves a location name to coordinates: stored known
// location first, built-in city table second.
func (e *Evaluator) resolveCoords(ctx context.Context, accountID int64, name string) (*[2]float64, error) {
	known, err := e.locations.GetByName(ctx, accountID, name)
	if err != nil {
		return nil, fmt.Errorf("coordinate lookup failed: %w", err)
	}
	if known != nil && known.HasCoordinates() {
		return &[2]float64{*known.Latitude, *known.Longitude}, nil
	}

	if lat, lon, ok := cityFallbackCoords(name); ok {
		return &[2]float64{lat, lon}, nil
	}

	return nil, nil
}
