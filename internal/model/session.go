package model

import "time"

// Session is an authenticated, server-side session.  The raw token is only
// ever returned to the client; stores key records by TokenHash.
//
// Fields:
//  Token     – signed token handed to the client (empty when loaded from a store).
//  TokenHash – SHA-256 hex digest of the session id embedded in the token.
//  UserID    – authenticated identity.
//  Role      – role of UserID at login time.
//  IssuedAt  – login time.
//  ExpiresAt – sliding expiry; moved forward on refresh.
type Session struct {
    Token     string    `json:"token,omitempty"`
    TokenHash string    `json:"-"`
    UserID    string    `json:"user_id"`
    Role      Role      `json:"role"`
    IssuedAt  time.Time `json:"issued_at"`
    ExpiresAt time.Time `json:"expires_at"`
}

// ValidAt reports whether the session is still inside its window at now.
func (s Session) ValidAt(now time.Time) bool { return now.Before(s.ExpiresAt) }

// Identity is the result of validating a session.
type Identity struct {
    UserID string `json:"user_id"`
    Role   Role   `json:"role"`
}
