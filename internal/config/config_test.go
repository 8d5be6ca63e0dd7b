package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "KAFKA_BROKERS", "CURRENCY", "GATEWAY_TIMEOUT", "WORKER_COUNT"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "INR", cfg.Currency)
	assert.Equal(t, 10*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, 8, cfg.WorkerCount)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("GATEWAY_TIMEOUT", "3s")
	t.Setenv("WORKER_COUNT", "not-a-number")
	t.Setenv("CURRENCY", "USD")

	cfg := Load()
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 3*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.Equal(t, "USD", cfg.Currency)
}

func TestValidate(t *testing.T) {
	cfg := Config{KafkaBrokers: []string{"k:9092"}}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "GATEWAY_KEY_ID")
	assert.ErrorContains(t, err, "GATEWAY_KEY_SECRET")

	cfg.GatewayKeyID, cfg.GatewayKeySecret = "id", "secret"
	assert.NoError(t, cfg.Validate())
}
