package middleware

import (
    "context"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/clinic-appointment-scheduler/internal/apperr"
    "github.com/iliyamo/clinic-appointment-scheduler/internal/model"
)

// SessionValidator resolves a session token to an identity.
type SessionValidator interface {
    Validate(ctx context.Context, token string) (model.Identity, error)
}

// SessionAuth validates the Bearer session token against the session store
// and stores the identity in the echo context under "user_id" and "role",
// and the raw token under "session_token".  Requests without a live session
// get 401 with the standard error envelope.
func SessionAuth(v SessionValidator) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            raw, ok := BearerToken(c)
            if !ok {
                return c.JSON(apperr.Response(apperr.NewSessionExpired("missing bearer token")))
            }
            id, err := v.Validate(c.Request().Context(), raw)
            if err != nil {
                return c.JSON(apperr.Response(err))
            }
            c.Set(ctxUserID, id.UserID)
            c.Set(ctxRole, string(id.Role))
            c.Set(ctxToken, raw)
            return next(c)
        }
    }
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(c echo.Context) (string, bool) {
    auth := c.Request().Header.Get(echo.HeaderAuthorization)
    if !strings.HasPrefix(auth, "Bearer ") {
        return "", false
    }
    raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
    return raw, raw != ""
}
