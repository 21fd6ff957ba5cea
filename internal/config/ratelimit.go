package config

import (
    "os"
    "strconv"
    "time"
)

// RateLimitConfig tunes the token bucket guarding POST /v1/auth/login.
// Capacity is the burst size; one bucket of RefillTokens is added every
// RefillInterval.  TTL bounds how long an idle bucket is kept in Redis.
type RateLimitConfig struct {
    Enabled        bool
    Capacity       int
    RefillTokens   int
    RefillInterval time.Duration
    TTL            time.Duration
    KeyStrategy    string // "ip", "route" or "ip_route"
    Prefix         string
}

// LoadRateLimitConfig reads LOGIN_RATE_* variables.  The defaults allow a
// burst of 5 attempts and one more every 12 seconds per client address.
func LoadRateLimitConfig() RateLimitConfig {
    rl := RateLimitConfig{
        Enabled:        envBool("LOGIN_RATE_LIMIT_ENABLED", true),
        Capacity:       envInt("LOGIN_RATE_CAPACITY", 5),
        RefillTokens:   envInt("LOGIN_RATE_REFILL_TOKENS", 1),
        RefillInterval: envDur("LOGIN_RATE_REFILL_INTERVAL", 12*time.Second),
        TTL:            envDur("LOGIN_RATE_TTL", 10*time.Minute),
        KeyStrategy:    envStr("LOGIN_RATE_KEY_STRATEGY", "ip_route"),
        Prefix:         envStr("LOGIN_RATE_PREFIX", "rl"),
    }
    if rl.Capacity < 1 { rl.Capacity = 1 }
    if rl.RefillTokens < 1 { rl.RefillTokens = 1 }
    if rl.RefillInterval <= 0 { rl.RefillInterval = time.Second }
    // an idle bucket must outlive a full refill
    if minTTL := time.Duration(rl.Capacity) * rl.RefillInterval; rl.TTL < minTTL { rl.TTL = minTTL }
    return rl
}

func envStr(k, d string) string { if v := os.Getenv(k); v != "" { return v }; return d }
func envBool(k string, d bool) bool {
    switch os.Getenv(k) {
    case "1", "true", "TRUE", "True", "yes", "on":
        return true
    case "0", "false", "FALSE", "False", "no", "off":
        return false
    }
    return d
}
func envInt(k string, d int) int {
    v := os.Getenv(k); if v == "" { return d }
    if n, err := strconv.Atoi(v); err == nil { return n }
    return d
}
func envDur(k string, d time.Duration) time.Duration {
    v := os.Getenv(k); if v == "" { return d }
    if dur, err := time.ParseDuration(v); err == nil { return dur }
    return d
}
