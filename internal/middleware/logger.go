package middleware

import (
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/clinic-appointment-scheduler/internal/logger"
)

// RequestLogger writes one structured entry per request.
func RequestLogger(log *logger.Logger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)
            if err != nil {
                // let echo's error handler set the status before it is logged
                c.Error(err)
            }
            req, res := c.Request(), c.Response()
            entry := log.WithFields(logrus.Fields{
                "component":  "http",
                "method":     req.Method,
                "route":      c.Path(),
                "uri":        req.RequestURI,
                "status":     res.Status,
                "bytes_out":  res.Size,
                "remote_ip":  c.RealIP(),
                "latency_ms": time.Since(start).Milliseconds(),
                "request_id": res.Header().Get(echo.HeaderXRequestID),
            })
            if uid := UserID(c); uid != "" {
                entry = entry.WithField("user_id", uid)
            }
            switch {
            case res.Status >= 500:
                entry.Error("request failed")
            case res.Status >= 400:
                entry.Warn("request rejected")
            default:
                entry.Info("request served")
            }
            return nil
        }
    }
}
