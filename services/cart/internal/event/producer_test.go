package event

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgkafka "github.com/utafrali/CommerceCheckout/pkg/kafka"
	"github.com/utafrali/CommerceCheckout/pkg/logger"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/domain"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []*pkgkafka.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, e *pkgkafka.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.events = append(r.events, e)
	return r.err
}

func newTestProducer(pub pkgkafka.Publisher) *Producer {
	return NewProducer(pub, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublishCheckoutOutcome_TopicByOutcome(t *testing.T) {
	tests := []struct {
		name    string
		attempt domain.Attempt
		topic   string
	}{
		{"settled", domain.Attempt{State: domain.StateSettled}, "commerce.checkout.settled"},
		{"rejected", domain.Attempt{State: domain.StateRejected, Cause: domain.Ptr(domain.CauseEmptyCart)}, "commerce.checkout.rejected"},
		{"declined", domain.Attempt{State: domain.StateFailed, Cause: domain.Ptr(domain.CausePaymentDeclined)}, "commerce.checkout.failed"},
		{"reconciliation", domain.Attempt{State: domain.StateSettled, NeedsReconciliation: true}, "commerce.checkout.reconciliation_needed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			a := tt.attempt
			a.ID, a.CartID = "a-1", "c-1"
			require.NoError(t, newTestProducer(pub).PublishCheckoutOutcome(context.Background(), &a))
			require.Len(t, pub.topics, 1)
			assert.Equal(t, tt.topic, pub.topics[0])
			assert.Equal(t, "c-1", pub.events[0].AggregateID)
		})
	}
}

func TestPublishCheckoutOutcome_Payload(t *testing.T) {
	pub := &recordingPublisher{}
	ctx := logger.WithCorrelationID(context.Background(), "corr-9")
	a := &domain.Attempt{
		ID: "a-1", CartID: "c-1", IdempotencyKey: "k-1", State: domain.StateFailed,
		Cause: domain.Ptr(domain.CauseCaptureFailed), PaymentRef: domain.Ptr("A1"), Voided: true,
	}
	require.NoError(t, newTestProducer(pub).PublishCheckoutOutcome(ctx, a))

	var data CheckoutData
	require.NoError(t, pub.events[0].UnmarshalData(&data))
	assert.Equal(t, "CAPTURE_FAILED", data.Cause)
	assert.True(t, data.Voided)
	assert.Equal(t, "A1", *data.PaymentRef)
	assert.Equal(t, "corr-9", pub.events[0].CorrelationID)
}

func TestPublishCartCreated(t *testing.T) {
	pub := &recordingPublisher{}
	require.NoError(t, newTestProducer(pub).PublishCartCreated(context.Background(), &domain.Cart{ID: "c-1", Currency: "EUR"}))
	assert.Equal(t, []string{"commerce.cart.created"}, pub.topics)
}

func TestPublish_Errors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	err := newTestProducer(pub).PublishCartCreated(context.Background(), &domain.Cart{ID: "c-1"})
	assert.ErrorContains(t, err, "broker down")
}

func TestPublish_NilPublisherIsNoop(t *testing.T) {
	assert.NoError(t, newTestProducer(nil).PublishCartCreated(context.Background(), &domain.Cart{ID: "c-1"}))
	var p *Producer
	assert.NoError(t, p.PublishCheckoutOutcome(context.Background(), &domain.Attempt{State: domain.StateSettled}))
}
