package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8003, cfg.HTTPPort)
	assert.Equal(t, LedgerPostgres, cfg.LedgerBackend)
	assert.Equal(t, "http://localhost:8005", cfg.PaymentServiceURL)
	assert.Equal(t, 4, cfg.CheckoutMaxAttempts)
	assert.Equal(t, 200, cfg.CheckoutBackoffInitialMs)
	assert.Equal(t, 3000, cfg.CheckoutInFlightWaitMs)
	assert.Equal(t, 168, cfg.RetentionHours)
	assert.Equal(t, int64(10<<20), cfg.MaxAttachmentBytes)
	assert.Equal(t, "cart", cfg.Tracing.ServiceName)
}

func TestLoad_BoltLedger(t *testing.T) {
	setEnvs(t, map[string]string{
		"LEDGER_BACKEND":   "bolt",
		"LEDGER_BOLT_PATH": "/tmp/ledger.db",
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, LedgerBolt, cfg.LedgerBackend)
	assert.Equal(t, "/tmp/ledger.db", cfg.LedgerBoltPath)
}

func TestLoad_UnknownLedgerBackend(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "sqlite")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LEDGER_BACKEND")
}

func TestLoad_InvalidHTTPPort(t *testing.T) {
	t.Setenv("CART_HTTP_PORT", "0")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
}

func TestLoad_InvalidPaymentURL(t *testing.T) {
	t.Setenv("PAYMENT_SERVICE_URL", "not-a-url")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid PAYMENT_SERVICE_URL")
}

func TestLoad_RetryPolicyBounds(t *testing.T) {
	tests := map[string]map[string]string{
		"zero attempts":     {"CHECKOUT_MAX_ATTEMPTS": "0"},
		"shrinking backoff": {"CHECKOUT_BACKOFF_MULTIPLIER": "0.5"},
		"jitter above one":  {"CHECKOUT_BACKOFF_JITTER": "1.5"},
		"initial above max": {"CHECKOUT_BACKOFF_INITIAL_MS": "5000", "CHECKOUT_BACKOFF_MAX_MS": "1000"},
	}
	for name, envs := range tests {
		t.Run(name, func(t *testing.T) {
			setEnvs(t, envs)

			cfg, err := Load()

			assert.Nil(t, cfg)
			assert.Error(t, err)
		})
	}
}

func TestLoad_InvalidOTELSampleRate(t *testing.T) {
	t.Setenv("OTEL_SAMPLE_RATE", "2.0")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OTEL_SAMPLE_RATE")
}

func TestMillis(t *testing.T) {
	assert.Equal(t, 250*time.Millisecond, Millis(250))
}
