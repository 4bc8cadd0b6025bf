package kafka

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "commerce",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Domain events handed to the broker, by topic and result.",
		},
		[]string{"topic", "result"},
	)

	eventPublishSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "commerce",
			Subsystem: "events",
			Name:      "publish_duration_seconds",
			Help:      "Broker write latency per topic.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"topic"},
	)
)

// observePublish records one broker write that started at start.
func observePublish(topic string, start time.Time, err error) {
	eventPublishSeconds.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	eventsPublished.WithLabelValues(topic, result).Inc()
}
