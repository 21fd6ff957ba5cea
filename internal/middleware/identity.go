package middleware

// identity.go holds the context keys SessionAuth fills and accessors for
// handlers and other middleware.

import "github.com/labstack/echo/v4"

const (
    ctxUserID = "user_id"
    ctxRole   = "role"
    ctxToken  = "session_token"
)

// UserID returns the authenticated user id, or "" for anonymous requests.
func UserID(c echo.Context) string {
    s, _ := c.Get(ctxUserID).(string)
    return s
}

// Role returns the authenticated role, or "".
func Role(c echo.Context) string {
    s, _ := c.Get(ctxRole).(string)
    return s
}

// SessionToken returns the raw token SessionAuth validated.
func SessionToken(c echo.Context) string {
    s, _ := c.Get(ctxToken).(string)
    return s
}

// userKey identifies the caller for rate limiting.
func userKey(c echo.Context) string {
    if id := UserID(c); id != "" {
        return id
    }
    return "guest"
}
