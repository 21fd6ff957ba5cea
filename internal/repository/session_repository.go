package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/clinic-appointment-scheduler/internal/apperr"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/model"
)

// SessionRepo is the MySQL session store, used when Redis is unavailable.
// Rows are keyed by the SHA-256 of the session id; the raw token is never
// stored.  Timestamps are kept at millisecond precision (DATETIME(3)) and
// callers pass millisecond-truncated values so the compare-and-swap in
// Extend matches exactly.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

// Create inserts a new session row.
func (r *SessionRepo) Create(ctx context.Context, s model.Session) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO sessions (token_hash, user_id, role, issued_at, expires_at) VALUES (?,?,?,?,?)",
		s.TokenHash, s.UserID, string(s.Role), s.IssuedAt, s.ExpiresAt)
	return classify("create session", err)
}

// Get returns the session stored under tokenHash, expired or not.
func (r *SessionRepo) Get(ctx context.Context, tokenHash string) (model.Session, error) {
	var (
		s    model.Session
		role string
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT token_hash, user_id, role, issued_at, expires_at FROM sessions WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&s.TokenHash, &s.UserID, &role, &s.IssuedAt, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, apperr.NewNotFound("session not found")
	}
	if err != nil {
		return model.Session{}, classify("get session", err)
	}
	s.Role = model.Role(role)
	return s, nil
}

// Extend moves expires_at from prev to next only if the row still holds
// prev and has not expired at now.  It reports whether the swap happened.
func (r *SessionRepo) Extend(ctx context.Context, tokenHash string, prev, next, now time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET expires_at=? WHERE token_hash=? AND expires_at=? AND expires_at>?",
		next, tokenHash, prev, now)
	if err != nil {
		return false, classify("extend session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify("extend session", err)
	}
	return n == 1, nil
}

// Revoke deletes a session.  Revoking an unknown session is not an error.
func (r *SessionRepo) Revoke(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM sessions WHERE token_hash=?", tokenHash)
	return classify("revoke session", err)
}

// RevokeAll deletes every session of a user.
func (r *SessionRepo) RevokeAll(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM sessions WHERE user_id=?", userID)
	return classify("revoke sessions", err)
}

// DeleteExpired purges rows whose window closed at or before now.
func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at<=?", now)
	if err != nil {
		return 0, classify("sweep sessions", err)
	}
	return res.RowsAffected()
}
