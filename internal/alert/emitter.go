package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"fraudwallet-api/internal/external"
	"fraudwallet-api/internal/models"
	"fraudwallet-api/internal/repository"
)

// severityByType maps fired rule tags and freeze events to alert severities.
var severityByType = map[string]string{
	models.AlertTypeExceedsMax:           models.SeverityHigh,
	models.AlertTypeHighAmount:           models.SeverityMedium,
	models.AlertTypeUnusualTime:          models.SeverityMedium,
	models.AlertTypeNewDevice:            models.SeverityHigh,
	models.AlertTypeNewLocation:          models.SeverityHigh,
	models.AlertTypeHighVelocity:         models.SeverityHigh,
	models.AlertTypeImpossibleTravel:     models.SeverityCritical,
	models.AlertTypeAutoFreeze:           models.SeverityCritical,
	models.AlertTypeManualFreeze:         models.SeverityHigh,
	models.AlertTypeConfirmationRejected: models.SeverityLow,
}

// Emitter persists alerts and pushes them to the event broker. Persistence
// failures propagate; broker failures are logged and swallowed so a flaky
// broker never blocks a transaction.
type Emitter struct {
	alerts    repository.AlertRepository
	publisher external.EventPublisher
	audit     *logrus.Logger
	logger    *logrus.Entry
}

func NewEmitter(alerts repository.AlertRepository, publisher external.EventPublisher, audit *logrus.Logger) *Emitter {
	return &Emitter{
		alerts:    alerts,
		publisher: publisher,
		audit:     audit,
		logger:    logrus.WithField("component", "alert_emitter"),
	}
}

// EmitFindings records one alert per fired rule on the transaction.
func (e *Emitter) EmitFindings(ctx context.Context, txn *models.Transaction) {
	for _, finding := range txn.Findings {
		e.emit(ctx, &models.Alert{
			AccountID: txn.AccountID,
			TxnID:     txn.TxnID,
			AlertType: finding.Tag,
			Severity:  severityFor(finding.Tag),
			Message:   finding.Explanation,
		}, txn.AnomalyScore)
	}
}

// EmitAutoFreeze records the critical alert accompanying a policy freeze.
func (e *Emitter) EmitAutoFreeze(ctx context.Context, txn *models.Transaction, frozenUntil time.Time) {
	e.emit(ctx, &models.Alert{
		AccountID: txn.AccountID,
		TxnID:     txn.TxnID,
		AlertType: models.AlertTypeAutoFreeze,
		Severity:  models.SeverityCritical,
		Message: fmt.Sprintf("account frozen until %s: anomaly score %d with %d fired rules",
			frozenUntil.Format(time.RFC3339), txn.AnomalyScore, len(txn.Findings)),
	}, txn.AnomalyScore)
}

// EmitManualFreeze records an operator- or timeout-initiated freeze.
func (e *Emitter) EmitManualFreeze(ctx context.Context, accountID int64, txnID, reason string, frozenUntil time.Time) {
	e.emit(ctx, &models.Alert{
		AccountID: accountID,
		TxnID:     txnID,
		AlertType: models.AlertTypeManualFreeze,
		Severity:  models.SeverityHigh,
		Message:   fmt.Sprintf("account frozen until %s: %s", frozenUntil.Format(time.RFC3339), reason),
	}, 0)
}

// EmitConfirmationRejected records a user declining a held transaction.
// User-initiated cancellation is informational, not a freeze trigger.
func (e *Emitter) EmitConfirmationRejected(ctx context.Context, txn *models.Transaction) {
	e.emit(ctx, &models.Alert{
		AccountID: txn.AccountID,
		TxnID:     txn.TxnID,
		AlertType: models.AlertTypeConfirmationRejected,
		Severity:  models.SeverityLow,
		Message:   fmt.Sprintf("user declined transaction of %s", txn.Amount.StringFixed(2)),
	}, txn.AnomalyScore)
}

func (e *Emitter) emit(ctx context.Context, alert *models.Alert, score int) {
	if err := e.alerts.Create(ctx, alert); err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"account_id": alert.AccountID,
			"alert_type": alert.AlertType,
		}).Error("Failed to persist alert")
		return
	}

	if e.audit != nil {
		e.audit.WithFields(logrus.Fields{
			"account_id": alert.AccountID,
			"txn_id":     alert.TxnID,
			"alert_type": alert.AlertType,
			"severity":   alert.Severity,
			"risk_score": score,
		}).Info(alert.Message)
	}

	if err := e.publisher.PublishAlert(ctx, alert, score); err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"account_id": alert.AccountID,
			"alert_type": alert.AlertType,
		}).Warn("Failed to publish alert event")
	}
}

func severityFor(alertType string) string {
	if severity, ok := severityByType[alertType]; ok {
		return severity
	}
	return models.SeverityMedium
}
