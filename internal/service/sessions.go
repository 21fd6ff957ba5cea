package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/clinic-appointment-scheduler/internal/apperr"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/logger"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/model"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/utils"
)

// refreshAttempts bounds the compare-and-swap loop in Refresh.
const refreshAttempts = 5

// SessionService issues, validates, refreshes and revokes sessions.
//
// Tokens are never rotated.  Refresh slides the stored expiry forward with
// a compare-and-swap, so a validate racing a refresh of the same token sees
// either the old or the new window, never an invalidated token.
type SessionService struct {
	store   SessionStore
	dir     CredentialVerifier
	codec   *utils.TokenCodec
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	log     *logger.Logger
}

// SessionOptions configures a SessionService.
type SessionOptions struct {
	TTL            time.Duration
	StorageTimeout time.Duration
	Now            func() time.Time
}

// NewSessionService wires a session service.
func NewSessionService(store SessionStore, dir CredentialVerifier, codec *utils.TokenCodec, opts SessionOptions, log *logger.Logger) *SessionService {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SessionService{store: store, dir: dir, codec: codec, ttl: opts.TTL, timeout: opts.StorageTimeout, now: opts.Now, log: log}
}

// clock returns the current time at the millisecond precision stores keep.
func (s *SessionService) clock() time.Time { return s.now().UTC().Truncate(time.Millisecond) }

// Login verifies credentials and opens a session.
func (s *SessionService) Login(ctx context.Context, email, password string) (model.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	userID, err := s.dir.VerifyCredentials(ctx, email, password)
	if err != nil {
		if errors.Is(err, apperr.Authentication) {
			s.log.Security("login_failed", "", map[string]interface{}{"email": email})
		}
		return model.Session{}, err
	}
	ref, err := s.dir.ResolveUser(ctx, userID)
	if err != nil {
		return model.Session{}, err
	}

	now := s.clock()
	token, sid, err := s.codec.Issue(ref.ID, string(ref.Role), now)
	if err != nil {
		return model.Session{}, apperr.NewInternal("issue token", err)
	}
	sess := model.Session{
		Token:     token,
		TokenHash: utils.HashSessionID(sid),
		UserID:    ref.ID,
		Role:      ref.Role,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return model.Session{}, err
	}
	s.log.WithComponent("sessions").WithField("user_id", ref.ID).Info("session opened")
	return sess, nil
}

// Validate resolves a token to the identity it was issued to.
func (s *SessionService) Validate(ctx context.Context, token string) (model.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sess, err := s.load(ctx, token)
	if err != nil {
		return model.Identity{}, err
	}
	if !sess.ValidAt(s.clock()) {
		_ = s.store.Revoke(ctx, sess.TokenHash)
		return model.Identity{}, apperr.NewSessionExpired("session expired")
	}
	return model.Identity{UserID: sess.UserID, Role: sess.Role}, nil
}

// Refresh extends a live session to now+TTL.  The new expiry is always
// strictly later than the previous one.
func (s *SessionService) Refresh(ctx context.Context, token string) (model.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	for attempt := 0; attempt < refreshAttempts; attempt++ {
		sess, err := s.load(ctx, token)
		if err != nil {
			return model.Session{}, err
		}
		now := s.clock()
		if !sess.ValidAt(now) {
			return model.Session{}, apperr.NewSessionExpired("session expired")
		}
		next := now.Add(s.ttl)
		if !next.After(sess.ExpiresAt) {
			next = sess.ExpiresAt.Add(time.Millisecond)
		}
		ok, err := s.store.Extend(ctx, sess.TokenHash, sess.ExpiresAt, next, now)
		if err != nil {
			return model.Session{}, err
		}
		if ok {
			sess.ExpiresAt = next
			sess.Token = token
			return sess, nil
		}
		// lost the swap to a concurrent refresh or logout
		cur, err := s.load(ctx, token)
		if err != nil {
			return model.Session{}, err
		}
		if cur.ExpiresAt.After(sess.ExpiresAt) && cur.ValidAt(s.clock()) {
			cur.Token = token
			return cur, nil
		}
	}
	return model.Session{}, apperr.NewTransient("session refresh contended", nil)
}

// Logout revokes a session.  Unknown, malformed or already revoked tokens
// succeed silently.
func (s *SessionService) Logout(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	claims, err := s.codec.Parse(token)
	if err != nil {
		return nil
	}
	if err := s.store.Revoke(ctx, utils.HashSessionID(claims.SID)); err != nil {
		return err
	}
	s.log.WithComponent("sessions").WithField("user_id", claims.Subject).Info("session closed")
	return nil
}

// LogoutAll revokes every session of the token's user, including its own.
func (s *SessionService) LogoutAll(ctx context.Context, token string) error {
	id, err := s.Validate(ctx, token)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.RevokeAll(ctx, id.UserID); err != nil {
		return err
	}
	s.log.Audit(id.UserID, "logout_all", "user:"+id.UserID, true, nil)
	return nil
}

// SweepExpired deletes expired sessions when the store needs it and reports
// how many were removed.
func (s *SessionService) SweepExpired(ctx context.Context) (int64, error) {
	d, ok := s.store.(ExpiredSessionDeleter)
	if !ok {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return d.DeleteExpired(ctx, s.clock())
}

// RunSweeper calls SweepExpired every interval until ctx is cancelled.
func (s *SessionService) RunSweeper(ctx context.Context, interval time.Duration) error {
	if _, ok := s.store.(ExpiredSessionDeleter); !ok || interval <= 0 {
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n, err := s.SweepExpired(ctx)
			if err != nil {
				s.log.WithComponent("sessions").WithError(err).Warn("session sweep failed")
				continue
			}
			if n > 0 {
				s.log.WithComponent("sessions").WithField("deleted", n).Debug("expired sessions swept")
			}
		}
	}
}

// load verifies the token signature and fetches the stored record bound to
// it.  Every failure that means "this token does not name a live session"
// becomes SessionExpired; storage outages pass through.
func (s *SessionService) load(ctx context.Context, token string) (model.Session, error) {
	claims, err := s.codec.Parse(token)
	if err != nil {
		return model.Session{}, apperr.NewSessionExpired("session token invalid")
	}
	sess, err := s.store.Get(ctx, utils.HashSessionID(claims.SID))
	if errors.Is(err, apperr.NotFound) {
		return model.Session{}, apperr.NewSessionExpired("session expired or revoked")
	}
	if err != nil {
		return model.Session{}, err
	}
	if sess.UserID != claims.Subject {
		return model.Session{}, apperr.NewSessionExpired("session token invalid")
	}
	return sess, nil
}
