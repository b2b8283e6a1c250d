package external

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"fraudwallet-api/internal/models"
)

// EventPublisher pushes risk and freeze events to the message broker for
// downstream consumers (notification delivery, compliance tooling).
type EventPublisher interface {
	PublishAlert(ctx context.Context, alert *models.Alert, score int) error
	PublishFreezeEvent(ctx context.Context, event *FreezeEvent) error
	PublishTransactionEvent(ctx context.Context, event *TransactionEvent) error
	Close() error
}

// FreezeEvent announces a change of an account's freeze state.
type FreezeEvent struct {
	EventID     string     `json:"event_id"`
	AccountID   int64      `json:"account_id"`
	Action      string     `json:"action"` // "frozen", "unfrozen"
	Reason      string     `json:"reason"`
	FrozenUntil *time.Time `json:"frozen_until,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// TransactionEvent announces a transaction reaching a terminal status.
type TransactionEvent struct {
	EventID      string    `json:"event_id"`
	TxnID        string    `json:"txn_id"`
	AccountID    int64     `json:"account_id"`
	Amount       string    `json:"amount"`
	Status       string    `json:"status"`
	RiskLevel    string    `json:"risk_level"`
	AnomalyScore int       `json:"anomaly_score"`
	Timestamp    time.Time `json:"timestamp"`
}

type alertEvent struct {
	EventID   string    `json:"event_id"`
	AccountID int64     `json:"account_id"`
	TxnID     string    `json:"txn_id,omitempty"`
	AlertType string    `json:"alert_type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	RiskScore int       `json:"risk_score"`
	Timestamp time.Time `json:"timestamp"`
}

type rabbitPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	url      string
	exchange string
	logger   *logrus.Entry
}

func NewRabbitPublisher(url, exchange string) (EventPublisher, error) {
	p := &rabbitPublisher{
		url:      url,
		exchange: exchange,
		logger:   logrus.WithField("component", "event_publisher"),
	}

	if err := p.connect(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *rabbitPublisher) connect() error {
	var err error
	p.conn, err = amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	p.channel, err = p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}

	err = p.channel.ExchangeDeclare(
		p.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", p.exchange, err)
	}

	return nil
}

func (p *rabbitPublisher) PublishAlert(ctx context.Context, alert *models.Alert, score int) error {
	routingKey := fmt.Sprintf("alert.%s.%s", alert.AlertType, alert.Severity)
	return p.publish(ctx, routingKey, alertEvent{
		EventID:   uuid.New().String(),
		AccountID: alert.AccountID,
		TxnID:     alert.TxnID,
		AlertType: alert.AlertType,
		Severity:  alert.Severity,
		Message:   alert.Message,
		RiskScore: score,
		Timestamp: time.Now(),
	})
}

func (p *rabbitPublisher) PublishFreezeEvent(ctx context.Context, event *FreezeEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return p.publish(ctx, fmt.Sprintf("freeze.%s", event.Action), event)
}

func (p *rabbitPublisher) PublishTransactionEvent(ctx context.Context, event *TransactionEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return p.publish(ctx, fmt.Sprintf("transaction.%s", event.Status), event)
}

func (p *rabbitPublisher) publish(ctx context.Context, routingKey string, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
			MessageId:    uuid.New().String(),
			DeliveryMode: amqp.Persistent,
		})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}

	return nil
}

func (p *rabbitPublisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.WithError(err).Warn("Failed to close channel")
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// NoopPublisher discards all events. Used in tests and when the broker is
// disabled by configuration.
type NoopPublisher struct{}

func NewNoopPublisher() *NoopPublisher { return &NoopPublisher{} }

func (*NoopPublisher) PublishAlert(context.Context, *models.Alert, int) error { return nil }

func (*NoopPublisher) PublishFreezeEvent(context.Context, *FreezeEvent) error { return nil }

func (*NoopPublisher) PublishTransactionEvent(context.Context, *TransactionEvent) error { return nil }

func (*NoopPublisher) Close() error { return nil }
