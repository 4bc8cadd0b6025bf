package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Port        int      `env:"TEST_CFG_PORT" envDefault:"8080"`
	RedisAddr   string   `env:"TEST_CFG_REDIS_ADDR" envDefault:"localhost:6379"`
	MaxAttempts int      `env:"TEST_CFG_MAX_ATTEMPTS" envDefault:"5"`
	Brokers     []string `env:"TEST_CFG_BROKERS" envDefault:"localhost:9092" envSeparator:","`
}

type validatedConfig struct {
	MaxAttempts int `env:"TEST_CFG_VALIDATED_ATTEMPTS" envDefault:"3"`
}

func (c *validatedConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return errors.New("max attempts must be at least 1")
	}
	return nil
}

func TestLoad_Defaults(t *testing.T) {
	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
}

func TestLoad_FromEnvVars(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "9090")
	t.Setenv("TEST_CFG_MAX_ATTEMPTS", "7")
	t.Setenv("TEST_CFG_BROKERS", "k1:9092,k2:9092")

	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 7, cfg.MaxAttempts)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers)
}

func TestLoad_InvalidType(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "not-a-number")

	var cfg testConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_RunsValidator(t *testing.T) {
	t.Setenv("TEST_CFG_VALIDATED_ATTEMPTS", "0")

	var cfg validatedConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate config")
	assert.Contains(t, err.Error(), "max attempts")
}

func TestLoad_ValidatorPasses(t *testing.T) {
	var cfg validatedConfig
	require.NoError(t, Load(&cfg))
	assert.Equal(t, 3, cfg.MaxAttempts)
}
