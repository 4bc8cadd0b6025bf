package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/CommerceCheckout/pkg/kafka"
	"github.com/utafrali/CommerceCheckout/pkg/logger"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/domain"
)

// Kafka topics for cart and checkout events.
var (
	TopicCartCreated                  = pkgkafka.Topic("cart", "created")
	TopicCheckoutSettled              = pkgkafka.Topic("checkout", "settled")
	TopicCheckoutFailed               = pkgkafka.Topic("checkout", "failed")
	TopicCheckoutRejected             = pkgkafka.Topic("checkout", "rejected")
	TopicCheckoutReconciliationNeeded = pkgkafka.Topic("checkout", "reconciliation_needed")
)

const (
	AggregateTypeCart     = "cart"
	AggregateTypeCheckout = "checkout_attempt"
	SourceCartService     = "cart-service"
)

// CartCreatedData is the payload for cart.created.
type CartCreatedData struct {
	CartID   string `json:"cart_id"`
	Currency string `json:"currency"`
}

// CheckoutData is the payload shared by every checkout.* event.
type CheckoutData struct {
	AttemptID           string  `json:"attempt_id"`
	CartID              string  `json:"cart_id"`
	IdempotencyKey      string  `json:"idempotency_key"`
	State               string  `json:"state"`
	Cause               string  `json:"cause,omitempty"`
	Amount              int64   `json:"amount"`
	Currency            string  `json:"currency"`
	PaymentRef          *string `json:"payment_ref,omitempty"`
	AttachmentRef       *string `json:"attachment_ref,omitempty"`
	Voided              bool    `json:"voided"`
	NeedsReconciliation bool    `json:"needs_reconciliation"`
	RetryCount          int     `json:"retry_count"`
}

// Producer publishes cart service events. A nil Publisher disables publishing.
type Producer struct {
	kafka  pkgkafka.Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the cart service.
func NewProducer(kafka pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

// PublishCartCreated publishes cart.created.
func (p *Producer) PublishCartCreated(ctx context.Context, cart *domain.Cart) error {
	return p.publish(ctx, TopicCartCreated, cart.ID, AggregateTypeCart, CartCreatedData{
		CartID:   cart.ID,
		Currency: cart.Currency,
	})
}

// PublishCheckoutOutcome publishes the event matching a terminal attempt.
// Reconciliation cases go to their own topic so an operator queue can
// consume them without filtering.
func (p *Producer) PublishCheckoutOutcome(ctx context.Context, a *domain.Attempt) error {
	topic := TopicCheckoutFailed
	switch {
	case a.NeedsReconciliation:
		topic = TopicCheckoutReconciliationNeeded
	case a.State == domain.StateSettled:
		topic = TopicCheckoutSettled
	case a.State == domain.StateRejected:
		topic = TopicCheckoutRejected
	}

	return p.publish(ctx, topic, a.CartID, AggregateTypeCheckout, CheckoutData{
		AttemptID:           a.ID,
		CartID:              a.CartID,
		IdempotencyKey:      a.IdempotencyKey,
		State:               string(a.State),
		Cause:               string(a.CauseOrEmpty()),
		Amount:              a.Amount,
		Currency:            a.Currency,
		PaymentRef:          a.PaymentRef,
		AttachmentRef:       a.AttachmentRef,
		Voided:              a.Voided,
		NeedsReconciliation: a.NeedsReconciliation,
		RetryCount:          a.RetryCount,
	})
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	if p == nil || p.kafka == nil {
		return nil
	}

	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceCartService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}
