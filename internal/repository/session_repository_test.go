package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/clinic-appointment-scheduler/internal/apperr"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/model"
)

func TestSessionRepoExtendCAS(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := at
	prev := now.Add(10 * time.Minute)
	next := now.Add(30 * time.Minute)

	q := regexp.QuoteMeta("UPDATE sessions SET expires_at=? WHERE token_hash=? AND expires_at=? AND expires_at>?")
	mock.ExpectExec(q).WithArgs(next, "h", prev, now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(next, "h", prev, now).WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewSessionRepo(db)
	ok, err := repo.Extend(context.Background(), "h", prev, next, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Extend(context.Background(), "h", prev, next, now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepoGetMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE token_hash=?")).
		WillReturnRows(sqlmock.NewRows([]string{"token_hash", "user_id", "role", "issued_at", "expires_at"}))
	_, err = NewSessionRepo(db).Get(context.Background(), "h")
	assert.True(t, errors.Is(err, apperr.NotFound))
}

func TestSessionRepoDeleteExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE expires_at<=?")).WithArgs(at).
		WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := NewSessionRepo(db).DeleteExpired(context.Background(), at)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func newRedisStore(t *testing.T, now time.Time) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	mr.SetTime(now)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisSessionStore(rdb, "sess"), mr
}

func TestRedisSessionLifecycle(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	store, mr := newRedisStore(t, now)
	ctx := context.Background()

	sess := model.Session{TokenHash: "h1", UserID: "u1", Role: model.RolePatient, IssuedAt: now, ExpiresAt: now.Add(30 * time.Minute)}
	require.NoError(t, store.Create(ctx, sess))
	assert.True(t, mr.Exists("sess:h1"))

	got, err := store.Get(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, model.RolePatient, got.Role)
	assert.True(t, got.ExpiresAt.Equal(sess.ExpiresAt))

	next := now.Add(40 * time.Minute)
	ok, err := store.Extend(ctx, "h1", sess.ExpiresAt, next, now)
	require.NoError(t, err)
	assert.True(t, ok)

	// a second swap from the stale value must fail
	ok, err = store.Extend(ctx, "h1", sess.ExpiresAt, next.Add(time.Minute), now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err = store.Get(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(next))

	require.NoError(t, store.Revoke(ctx, "h1"))
	require.NoError(t, store.Revoke(ctx, "h1"))
	_, err = store.Get(ctx, "h1")
	assert.True(t, errors.Is(err, apperr.NotFound))
}

func TestRedisRevokeAll(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	store, mr := newRedisStore(t, now)
	ctx := context.Background()

	for _, h := range []string{"a", "b"} {
		require.NoError(t, store.Create(ctx, model.Session{TokenHash: h, UserID: "u1", Role: model.RoleDoctor, IssuedAt: now, ExpiresAt: now.Add(time.Hour)}))
	}
	require.NoError(t, store.Create(ctx, model.Session{TokenHash: "c", UserID: "u2", Role: model.RolePatient, IssuedAt: now, ExpiresAt: now.Add(time.Hour)}))

	require.NoError(t, store.RevokeAll(ctx, "u1"))
	assert.False(t, mr.Exists("sess:a"))
	assert.False(t, mr.Exists("sess:b"))
	assert.False(t, mr.Exists("sess:user:u1"))
	assert.True(t, mr.Exists("sess:c"))
}

func TestRedisSessionExpiresWithTTL(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	store, mr := newRedisStore(t, now)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, model.Session{TokenHash: "h", UserID: "u", Role: model.RolePatient, IssuedAt: now, ExpiresAt: now.Add(time.Minute)}))
	mr.FastForward(2 * time.Minute)
	_, err := store.Get(ctx, "h")
	assert.True(t, errors.Is(err, apperr.NotFound))
}
