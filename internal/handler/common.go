package handler

import (
    "context"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/clinic-appointment-scheduler/internal/apperr"
)

// requestTimeout bounds the work done for a single request.
const requestTimeout = 5 * time.Second

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
    return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// respondError writes err as the standard error envelope.
func respondError(c echo.Context, err error) error {
    return c.JSON(apperr.Response(err))
}

// bindOrFail decodes the request body; malformed bodies become 400.
func bindOrFail(c echo.Context, dst interface{}) error {
    if err := c.Bind(dst); err != nil {
        return apperr.NewValidation("", "invalid request body")
    }
    return nil
}
