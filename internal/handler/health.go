package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
)

// Pinger is anything whose liveness can be probed (sql.DB, redis.Client
// wrapped in a func).
type Pinger func(ctx context.Context) error

// Health is a liveness probe.  It returns "ok" with 200.
func Health(c echo.Context) error {
    return c.String(http.StatusOK, "ok")
}

// Ready returns a readiness probe that pings each named dependency and
// reports 503 if any fails.
func Ready(deps map[string]Pinger) echo.HandlerFunc {
    return func(c echo.Context) error {
        ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
        defer cancel()
        status := http.StatusOK
        out := make(map[string]string, len(deps))
        for name, ping := range deps {
            if err := ping(ctx); err != nil {
                out[name] = err.Error()
                status = http.StatusServiceUnavailable
                continue
            }
            out[name] = "ok"
        }
        return c.JSON(status, out)
    }
}
