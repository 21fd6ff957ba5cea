package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/clinic-appointment-scheduler/internal/apperr"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/logger"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/model"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/utils"
)

func TestLoginAndValidate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	s, err := f.sess.Login(ctx, "P1@clinic.test", password)
	require.NoError(t, err)
	assert.NotEmpty(t, s.Token)
	assert.Equal(t, "P1", s.UserID)
	assert.Equal(t, 30*time.Minute, s.ExpiresAt.Sub(s.IssuedAt))

	id, err := f.sess.Validate(ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, model.Identity{UserID: "P1", Role: model.RolePatient}, id)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.sess.Login(ctx, "P1@clinic.test", "wrong-password")
	assert.True(t, errors.Is(err, apperr.Authentication))
	_, err = f.sess.Login(ctx, "nobody@clinic.test", password)
	assert.True(t, errors.Is(err, apperr.Authentication))
}

func TestValidateFailsAfterExpiry(t *testing.T) {
	f := newFixture(t, nil)
	tok := f.login(t, "P1")

	f.clock.Advance(30 * time.Minute)
	_, err := f.sess.Validate(context.Background(), tok)
	assert.True(t, errors.Is(err, apperr.SessionExpired))
}

func TestLogoutInvalidatesImmediately(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	tok := f.login(t, "D1")

	require.NoError(t, f.sess.Logout(ctx, tok))
	_, err := f.sess.Validate(ctx, tok)
	assert.True(t, errors.Is(err, apperr.SessionExpired))

	// idempotent, including for garbage
	assert.NoError(t, f.sess.Logout(ctx, tok))
	assert.NoError(t, f.sess.Logout(ctx, "garbage"))
}

func TestValidateRejectsGarbageAndForgery(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.sess.Validate(context.Background(), "not-a-token")
	assert.True(t, errors.Is(err, apperr.SessionExpired))
}

func TestRefreshMovesExpiryStrictlyForward(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	s, err := f.sess.Login(ctx, "P1@clinic.test", password)
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	r1, err := f.sess.Refresh(ctx, s.Token)
	require.NoError(t, err)
	assert.True(t, r1.ExpiresAt.After(s.ExpiresAt))
	assert.Equal(t, s.UserID, r1.UserID)
	assert.Equal(t, s.Token, r1.Token)

	// same instant: now+TTL equals the current expiry, must still move forward
	r2, err := f.sess.Refresh(ctx, s.Token)
	require.NoError(t, err)
	assert.True(t, r2.ExpiresAt.After(r1.ExpiresAt))

	// still valid past the original window
	f.clock.Advance(25 * time.Minute)
	_, err = f.sess.Validate(ctx, s.Token)
	assert.NoError(t, err)
}

func TestRefreshOfExpiredOrRevokedFails(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	tok := f.login(t, "P1")

	f.clock.Advance(31 * time.Minute)
	_, err := f.sess.Refresh(ctx, tok)
	assert.True(t, errors.Is(err, apperr.SessionExpired))

	tok = f.login(t, "P1")
	require.NoError(t, f.sess.Logout(ctx, tok))
	_, err = f.sess.Refresh(ctx, tok)
	assert.True(t, errors.Is(err, apperr.SessionExpired))
}

func TestConcurrentRefreshAndValidate(t *testing.T) {
	f := newFixture(t, nil)
	tok := f.login(t, "P2")
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := f.sess.Refresh(ctx, tok); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := f.sess.Validate(ctx, tok); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.login(t, "D1")
	b := f.login(t, "D1")
	other := f.login(t, "D2")

	require.NoError(t, f.sess.LogoutAll(ctx, a))
	for _, tok := range []string{a, b} {
		_, err := f.sess.Validate(ctx, tok)
		assert.True(t, errors.Is(err, apperr.SessionExpired))
	}
	_, err := f.sess.Validate(ctx, other)
	assert.NoError(t, err)
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t, nil)
	f.login(t, "P1")
	f.login(t, "P2")

	f.clock.Advance(time.Hour)
	n, err := f.sess.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestSessionAndRegistrationLogsCarryUserID(t *testing.T) {
	f := newFixture(t, nil)
	var buf bytes.Buffer
	log := logger.NewWithOutput("info", &buf)
	dir := NewDirectory(f.users, bcrypt.MinCost, log).WithClock(f.clock.Now)
	sess := NewSessionService(f.sessions, dir, utils.NewTokenCodec("test-secret"),
		SessionOptions{TTL: time.Minute, Now: f.clock.Now}, log)
	ctx := context.Background()

	u, err := dir.RegisterPatient(ctx, Registration{
		Email: "new@clinic.test", Password: password, Name: "New", Surname: "Patient",
		BirthDate: time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	s, err := sess.Login(ctx, "new@clinic.test", password)
	require.NoError(t, err)
	require.NoError(t, sess.Logout(ctx, s.Token))

	out := buf.String()
	for _, msg := range []string{"user registered", "session opened", "session closed"} {
		assert.Contains(t, out, `"message":"`+msg+`"`)
	}
	assert.Contains(t, out, `"user_id":"`+u.ID+`"`)
	assert.Contains(t, out, `"component":"sessions"`)
}
