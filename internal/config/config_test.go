package config

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
)

func TestLoadMemoryDefaults(t *testing.T) {
    t.Setenv("SESSION_SECRET", "s3cret")
    t.Setenv("APP_STORAGE", "memory")
    t.Setenv("SESSION_TTL", "")
    t.Setenv("CREATE_RETRIES", "-2")

    cfg := Load()
    assert.Equal(t, StorageMemory, cfg.Storage)
    assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
    assert.Equal(t, 5*time.Second, cfg.StorageTimeout)
    assert.Equal(t, 50*time.Millisecond, cfg.CreateRetryBackoff)
    assert.Equal(t, 0, cfg.CreateRetries)
    assert.Empty(t, cfg.DBHost)
}

func TestAMQPURLPrecedence(t *testing.T) {
    t.Setenv("AMQP_URL", "amqp://fallback")
    t.Setenv("RABBITMQ_URL", "")
    assert.Equal(t, "amqp://fallback", amqpURL())
    t.Setenv("RABBITMQ_URL", "amqp://primary")
    assert.Equal(t, "amqp://primary", amqpURL())
}

func TestRateLimitConfigClamps(t *testing.T) {
    t.Setenv("LOGIN_RATE_CAPACITY", "0")
    t.Setenv("LOGIN_RATE_REFILL_INTERVAL", "2s")
    t.Setenv("LOGIN_RATE_TTL", "1s")

    rl := LoadRateLimitConfig()
    assert.Equal(t, 1, rl.Capacity)
    assert.Equal(t, 2*time.Second, rl.RefillInterval)
    assert.Equal(t, 2*time.Second, rl.TTL)
}

func TestCacheMethodsParsed(t *testing.T) {
    t.Setenv("CACHE_METHODS", "get, head")
    cc := LoadCacheConfig()
    assert.True(t, cc.Methods["GET"])
    assert.True(t, cc.Methods["HEAD"])
    assert.False(t, cc.Methods["POST"])
}

func TestRedisAddrFromHostPort(t *testing.T) {
    t.Setenv("REDIS_ADDR", "ignored:1")
    t.Setenv("REDIS_HOST", "cache")
    t.Setenv("REDIS_PORT", "6380")
    assert.Equal(t, "cache:6380", LoadRedisConfig().Addr)
}
