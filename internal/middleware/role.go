package middleware

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/clinic-appointment-scheduler/internal/apperr"
    "github.com/iliyamo/clinic-appointment-scheduler/internal/model"
)

// RequireRole rejects requests whose session role is not among roles with
// 403.  It must run after SessionAuth.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
    allowed := make(map[string]bool, len(roles))
    for _, r := range roles {
        allowed[string(r)] = true
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if !allowed[Role(c)] {
                return c.JSON(apperr.Response(apperr.NewAuthorization("role not permitted for this operation")))
            }
            return next(c)
        }
    }
}
