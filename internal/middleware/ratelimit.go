package middleware

import (
    "fmt"
    "math"
    "net/http"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "golang.org/x/time/rate"

    "github.com/iliyamo/clinic-appointment-scheduler/internal/apperr"
    "github.com/iliyamo/clinic-appointment-scheduler/internal/config"
    "github.com/iliyamo/clinic-appointment-scheduler/internal/logger"
)

var limiterScript = redis.NewScript(`
    local key = KEYS[1]
    local now_ms = tonumber(ARGV[1])
    local capacity = tonumber(ARGV[2])
    local refill_tokens = tonumber(ARGV[3])
    local interval_ms = tonumber(ARGV[4])
    local ttl_seconds = tonumber(ARGV[5])

    local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
    local tokens = tonumber(state[1])
    local last_refill = tonumber(state[2])

    if tokens == nil or last_refill == nil then
        tokens = capacity
        last_refill = now_ms
    end

    local elapsed = math.max(0, now_ms - last_refill)
    local intervals = math.floor(elapsed / interval_ms)
    if intervals > 0 then
        tokens = math.min(capacity, tokens + (intervals * refill_tokens))
        last_refill = last_refill + (intervals * interval_ms)
    end

    local allowed = 0
    local retry_after_ms = 0
    if tokens > 0 then
        allowed = 1
        tokens = tokens - 1
    else
        retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
    end

    redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
    redis.call('EXPIRE', key, ttl_seconds)

    return { allowed, tokens, retry_after_ms }
`)

// NewTokenBucket limits requests per client.  With Redis the bucket is
// shared across replicas; without it each process keeps its own
// golang.org/x/time/rate limiters.  Redis errors fail open.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *logger.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    if rdb == nil {
        return localBucket(cfg, newLocalLimiter(cfg))
    }

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)
            args := []interface{}{
                time.Now().UnixMilli(),
                cfg.Capacity,
                cfg.RefillTokens,
                cfg.RefillInterval.Milliseconds(),
                int64(cfg.TTL / time.Second),
            }
            vals, err := limiterScript.Run(c.Request().Context(), rdb, []string{key}, args...).Result()
            if err != nil {
                log.WithComponent("ratelimit").WithError(err).WithField("key", key).Warn("redis limiter unavailable")
                return next(c)
            }
            arr, ok := vals.([]interface{})
            if !ok || len(arr) != 3 {
                log.WithComponent("ratelimit").WithField("key", key).Warnf("unexpected script result %#v", vals)
                return next(c)
            }

            allowed := fmt.Sprint(arr[0]) == "1"
            remaining := asInt64(arr[1])
            c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
            if !allowed {
                return tooMany(c, time.Duration(asInt64(arr[2]))*time.Millisecond)
            }
            return next(c)
        }
    }
}

// localLimiter keeps one x/time/rate limiter per client key and forgets
// clients idle for longer than the bucket TTL.
type localLimiter struct {
    mu      sync.Mutex
    clients map[string]*localClient
    limit   rate.Limit
    burst   int
    ttl     time.Duration
    lastGC  time.Time
}

type localClient struct {
    lim  *rate.Limiter
    seen time.Time
}

func newLocalLimiter(cfg config.RateLimitConfig) *localLimiter {
    per := cfg.RefillInterval / time.Duration(cfg.RefillTokens)
    return &localLimiter{
        clients: make(map[string]*localClient),
        limit:   rate.Every(per),
        burst:   cfg.Capacity,
        ttl:     cfg.TTL,
        lastGC:  time.Now(),
    }
}

func (l *localLimiter) get(key string, now time.Time) *rate.Limiter {
    l.mu.Lock()
    defer l.mu.Unlock()
    if now.Sub(l.lastGC) > l.ttl {
        for k, c := range l.clients {
            if now.Sub(c.seen) > l.ttl {
                delete(l.clients, k)
            }
        }
        l.lastGC = now
    }
    if c, ok := l.clients[key]; ok {
        c.seen = now
        return c.lim
    }
    lim := rate.NewLimiter(l.limit, l.burst)
    l.clients[key] = &localClient{lim: lim, seen: now}
    return lim
}

func localBucket(cfg config.RateLimitConfig, l *localLimiter) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            now := time.Now()
            lim := l.get(buildRateKey(cfg, c), now)
            r := lim.ReserveN(now, 1)
            delay := r.DelayFrom(now)
            c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            if delay > 0 {
                r.CancelAt(now)
                return tooMany(c, delay)
            }
            c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(lim.TokensAt(now))))
            return next(c)
        }
    }
}

func tooMany(c echo.Context, retry time.Duration) error {
    secs := int(math.Ceil(retry.Seconds()))
    if secs < 1 {
        secs = 1
    }
    c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
    return c.JSON(http.StatusTooManyRequests, apperr.Body{Error: apperr.BodyError{
        Code:    apperr.CodeRateLimited,
        Message: "too many requests, retry in " + strconv.Itoa(secs) + "s",
    }})
}

func asInt64(v interface{}) int64 {
    switch t := v.(type) {
    case int64:
        return t
    case int:
        return int64(t)
    case float64:
        return int64(t)
    case string:
        if n, err := strconv.ParseInt(t, 10, 64); err == nil {
            return n
        }
    }
    return 0
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    route := c.Request().Method + " " + c.Path()
    parts := []string{cfg.Prefix}
    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip":
        parts = append(parts, "ip", ip)
    case "route":
        parts = append(parts, "route", route)
    case "user":
        parts = append(parts, "user", userKey(c))
    default:
        parts = append(parts, "ip", ip, "route", route)
    }
    return strings.Join(parts, ":")
}
