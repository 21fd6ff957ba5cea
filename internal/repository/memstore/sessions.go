package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/clinic-appointment-scheduler/internal/apperr"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/model"
)

// Sessions is an in-memory session store keyed by token hash.
type Sessions struct {
	mu   sync.Mutex
	byID map[string]model.Session
}

// NewSessions returns an empty store.
func NewSessions() *Sessions {
	return &Sessions{byID: map[string]model.Session{}}
}

func (s *Sessions) Create(ctx context.Context, sess model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.Token = ""
	s.byID[sess.TokenHash] = sess
	return nil
}

func (s *Sessions) Get(ctx context.Context, tokenHash string) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[tokenHash]
	if !ok {
		return model.Session{}, apperr.NewNotFound("session not found")
	}
	return sess, nil
}

// Extend is the compare-and-swap on ExpiresAt.
func (s *Sessions) Extend(ctx context.Context, tokenHash string, prev, next, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[tokenHash]
	if !ok || !sess.ExpiresAt.Equal(prev) || !sess.ValidAt(now) {
		return false, nil
	}
	sess.ExpiresAt = next
	s.byID[tokenHash] = sess
	return true, nil
}

func (s *Sessions) Revoke(ctx context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, tokenHash)
	return nil
}

func (s *Sessions) RevokeAll(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, sess := range s.byID {
		if sess.UserID == userID {
			delete(s.byID, h)
		}
	}
	return nil
}

// DeleteExpired drops sessions whose window closed at or before now.
func (s *Sessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for h, sess := range s.byID {
		if !sess.ValidAt(now) {
			delete(s.byID, h)
			n++
		}
	}
	return n, nil
}
