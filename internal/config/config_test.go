package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"HTTP_ADDR", "GRPC_ADDR", "STORE_BACKEND", "STORE_TIMEOUT", "CACHE_TTL", "LOCK_TTL",
		"EVENTS_BACKEND", "REDIS_ADDR", "CONSUL_ADDR", "FULFILLMENT_STRICT_MATCH", "EVENT_WORKERS",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":50051", cfg.GRPCAddr)
	assert.Equal(t, BackendMongo, cfg.StoreBackend)
	assert.Equal(t, EventsLog, cfg.EventsBackend)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.Equal(t, 2, cfg.EventWorkers)
	assert.True(t, cfg.FulfillmentStrictMatch)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.ConsulAddr)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("EVENTS_BACKEND", "kafka")
	t.Setenv("STORE_TIMEOUT", "250ms")
	t.Setenv("FULFILLMENT_STRICT_MATCH", "false")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, EventsKafka, cfg.EventsBackend)
	assert.Equal(t, 250*time.Millisecond, cfg.StoreTimeout)
	assert.False(t, cfg.FulfillmentStrictMatch)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("STORE_TIMEOUT", "soon")
	t.Setenv("FULFILLMENT_STRICT_MATCH", "maybe")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_BACKEND")
	assert.Contains(t, err.Error(), "STORE_TIMEOUT")
	assert.Contains(t, err.Error(), "FULFILLMENT_STRICT_MATCH")
}
