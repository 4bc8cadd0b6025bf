package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type settledPayload struct {
	CartID     string `json:"cart_id"`
	PaymentRef string `json:"payment_ref"`
}

// --- Event ---

func TestNewEvent_Fields(t *testing.T) {
	data := settledPayload{CartID: "c-1", PaymentRef: "A1"}
	event, err := NewEvent("checkout.settled", "c-1", "cart", "cart-service", data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "checkout.settled", event.Type)
	assert.Equal(t, "c-1", event.AggregateID)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.OccurredAt, 2*time.Second)

	var got settledPayload
	require.NoError(t, event.UnmarshalData(&got))
	assert.Equal(t, data, got)
}

func TestNewEvent_InvalidData(t *testing.T) {
	_, err := NewEvent("checkout.settled", "c-1", "cart", "cart-service", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkout.settled")
}

func TestNewEvent_RequiresTypeAndAggregate(t *testing.T) {
	_, err := NewEvent("", "c-1", "cart", "cart-service", nil)
	require.Error(t, err)
	_, err = NewEvent("checkout.settled", "", "cart", "cart-service", nil)
	require.Error(t, err)
}

func TestEvent_WithMetadataSkipsEmpty(t *testing.T) {
	event, err := NewEvent("payment.authorized", "p-1", "payment", "payment-service", struct{}{})
	require.NoError(t, err)

	event.WithMetadata("reference", "").WithMetadata("attempt", "a-1")
	assert.Equal(t, map[string]string{"attempt": "a-1"}, event.Metadata)
}

func TestEvent_UnmarshalDataEmpty(t *testing.T) {
	var got settledPayload
	assert.Error(t, (&Event{ID: "e-1"}).UnmarshalData(&got))
}

func TestObservePublish_CountsByResult(t *testing.T) {
	topic := Topic("test", "observe")
	okBefore := testutil.ToFloat64(eventsPublished.WithLabelValues(topic, "ok"))
	errBefore := testutil.ToFloat64(eventsPublished.WithLabelValues(topic, "error"))

	observePublish(topic, time.Now(), nil)
	observePublish(topic, time.Now(), errors.New("broker down"))
	observePublish(topic, time.Now(), nil)

	assert.Equal(t, okBefore+2, testutil.ToFloat64(eventsPublished.WithLabelValues(topic, "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(eventsPublished.WithLabelValues(topic, "error")))
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "commerce.checkout.reconciliation_needed", Topic("checkout", "reconciliation_needed"))
}

// --- HeaderCarrier ---

func TestHeaderCarrier_SetGetKeys(t *testing.T) {
	headers := []kafka.Header{{Key: "event_type", Value: []byte("checkout.failed")}}
	c := NewHeaderCarrier(&headers)

	assert.Equal(t, "checkout.failed", c.Get("event_type"))
	assert.Equal(t, "", c.Get("missing"))

	c.Set("traceparent", "00-abc-01")
	c.Set("event_type", "checkout.settled")

	assert.Equal(t, "checkout.settled", c.Get("event_type"))
	assert.ElementsMatch(t, []string{"event_type", "traceparent"}, c.Keys())
	assert.Len(t, headers, 2)
}

// --- buildMessage ---

func TestBuildMessage_KeysByAggregateAndInjectsTrace(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	event, err := NewEvent("checkout.settled", "c-1", "cart", "cart-service", settledPayload{CartID: "c-1"})
	require.NoError(t, err)
	event.WithCorrelationID("corr-1")

	msg, err := buildMessage(ctx, Topic("checkout", "settled"), event)
	require.NoError(t, err)

	assert.Equal(t, "commerce.checkout.settled", msg.Topic)
	assert.Equal(t, []byte("c-1"), msg.Key)

	headers := append([]kafka.Header(nil), msg.Headers...)
	carrier := NewHeaderCarrier(&headers)
	assert.Equal(t, "corr-1", carrier.Get("correlation_id"))
	assert.Contains(t, carrier.Get("traceparent"), "4bf92f3577b34da6a3ce929d0e0e4736")

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
}

func TestProducer_PingWithoutBrokers(t *testing.T) {
	p := NewProducer(DefaultProducerConfig(nil), slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := p.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers")
}
