package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/CommerceCheckout/pkg/kafka"
	"github.com/utafrali/CommerceCheckout/pkg/logger"
	"github.com/utafrali/CommerceCheckout/services/payment/internal/domain"
)

// Kafka topics for payment domain events.
var (
	TopicPaymentAuthorized = pkgkafka.Topic("payment", "authorized")
	TopicPaymentCaptured   = pkgkafka.Topic("payment", "captured")
	TopicPaymentVoided     = pkgkafka.Topic("payment", "voided")
	TopicPaymentDeclined   = pkgkafka.Topic("payment", "declined")
)

// Aggregate type constant.
const AggregateTypePayment = "payment"

// Source identifier for events originating from the payment service.
const SourcePaymentService = "payment-service"

// PaymentData is the payload of every payment.* event.
type PaymentData struct {
	ID            string `json:"id"`
	Reference     string `json:"reference"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
	ProviderName  string `json:"provider_name"`
}

// Producer publishes payment domain events to Kafka. A nil Publisher
// disables publishing.
type Producer struct {
	kafka  pkgkafka.Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the payment service.
func NewProducer(kafka pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishStatus publishes the event matching the payment's current status.
func (p *Producer) PublishStatus(ctx context.Context, payment *domain.Payment) error {
	var topic string
	switch payment.Status {
	case domain.StatusAuthorized:
		topic = TopicPaymentAuthorized
	case domain.StatusCaptured:
		topic = TopicPaymentCaptured
	case domain.StatusVoided:
		topic = TopicPaymentVoided
	case domain.StatusDeclined:
		topic = TopicPaymentDeclined
	default:
		return fmt.Errorf("no topic for payment status %q", payment.Status)
	}

	if p == nil || p.kafka == nil {
		return nil
	}

	evt, err := pkgkafka.NewEvent(topic, payment.ID, AggregateTypePayment, SourcePaymentService, PaymentData{
		ID:            payment.ID,
		Reference:     payment.Reference,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		Status:        string(payment.Status),
		FailureReason: payment.FailureReason,
		ProviderName:  payment.ProviderName,
	})
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}
	evt.WithMetadata("reference", payment.Reference)

	if err := p.kafka.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("payment_id", payment.ID),
	)
	return nil
}
