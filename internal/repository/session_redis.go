package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/clinic-appointment-scheduler/internal/apperr"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/model"
)

// RedisSessionStore keeps each session in a hash at <prefix>:<token hash>
// with a PEXPIREAT matching its window, so expired sessions disappear on
// their own.  A set at <prefix>:user:<user id> indexes a user's sessions for
// RevokeAll.  Every multi-step mutation is a Lua script and therefore
// atomic with respect to concurrent refreshes and logouts.
type RedisSessionStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisSessionStore returns a store using keys under prefix (e.g. "sess").
func NewRedisSessionStore(rdb *redis.Client, prefix string) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, prefix: prefix}
}

func (s *RedisSessionStore) key(hash string) string     { return s.prefix + ":" + hash }
func (s *RedisSessionStore) userKey(userID string) string { return s.prefix + ":user:" + userID }

var createSessionScript = redis.NewScript(`
	redis.call('HSET', KEYS[1], 'user_id', ARGV[1], 'role', ARGV[2], 'issued_at', ARGV[3], 'expires_at', ARGV[4])
	redis.call('PEXPIREAT', KEYS[1], ARGV[4])
	redis.call('SADD', KEYS[2], ARGV[5])
	redis.call('PEXPIREAT', KEYS[2], ARGV[4])
	return 1
`)

// extendSessionScript is the compare-and-swap on expires_at.
// ARGV: prev ms, next ms, now ms, user key prefix.
var extendSessionScript = redis.NewScript(`
	local exp = redis.call('HGET', KEYS[1], 'expires_at')
	if not exp then return 0 end
	exp = tonumber(exp)
	if exp ~= tonumber(ARGV[1]) or exp <= tonumber(ARGV[3]) then return 0 end
	redis.call('HSET', KEYS[1], 'expires_at', ARGV[2])
	redis.call('PEXPIREAT', KEYS[1], ARGV[2])
	local uid = redis.call('HGET', KEYS[1], 'user_id')
	if uid then redis.call('PEXPIREAT', ARGV[4] .. uid, ARGV[2]) end
	return 1
`)

// ARGV: token hash, user key prefix.
var revokeSessionScript = redis.NewScript(`
	local uid = redis.call('HGET', KEYS[1], 'user_id')
	redis.call('DEL', KEYS[1])
	if uid then redis.call('SREM', ARGV[2] .. uid, ARGV[1]) end
	return 1
`)

// ARGV: session key prefix.
var revokeAllScript = redis.NewScript(`
	local members = redis.call('SMEMBERS', KEYS[1])
	for _, h in ipairs(members) do
		redis.call('DEL', ARGV[1] .. h)
	end
	redis.call('DEL', KEYS[1])
	return #members
`)

// Create stores a new session.
func (s *RedisSessionStore) Create(ctx context.Context, sess model.Session) error {
	err := createSessionScript.Run(ctx, s.rdb,
		[]string{s.key(sess.TokenHash), s.userKey(sess.UserID)},
		sess.UserID, string(sess.Role), sess.IssuedAt.UnixMilli(), sess.ExpiresAt.UnixMilli(), sess.TokenHash,
	).Err()
	return redisErr("create session", err)
}

// Get returns the session stored under tokenHash.
func (s *RedisSessionStore) Get(ctx context.Context, tokenHash string) (model.Session, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key(tokenHash)).Result()
	if err != nil {
		return model.Session{}, redisErr("get session", err)
	}
	if len(vals) == 0 {
		return model.Session{}, apperr.NewNotFound("session not found")
	}
	issued, err1 := strconv.ParseInt(vals["issued_at"], 10, 64)
	expires, err2 := strconv.ParseInt(vals["expires_at"], 10, 64)
	if err1 != nil || err2 != nil || vals["user_id"] == "" {
		return model.Session{}, apperr.NewNotFound("session record corrupt")
	}
	return model.Session{
		TokenHash: tokenHash,
		UserID:    vals["user_id"],
		Role:      model.Role(vals["role"]),
		IssuedAt:  time.UnixMilli(issued).UTC(),
		ExpiresAt: time.UnixMilli(expires).UTC(),
	}, nil
}

// Extend moves expires_at from prev to next if the record still holds prev
// and is live at now.
func (s *RedisSessionStore) Extend(ctx context.Context, tokenHash string, prev, next, now time.Time) (bool, error) {
	n, err := extendSessionScript.Run(ctx, s.rdb, []string{s.key(tokenHash)},
		prev.UnixMilli(), next.UnixMilli(), now.UnixMilli(), s.prefix+":user:").Int()
	if err != nil {
		return false, redisErr("extend session", err)
	}
	return n == 1, nil
}

// Revoke deletes a session; unknown sessions are ignored.
func (s *RedisSessionStore) Revoke(ctx context.Context, tokenHash string) error {
	err := revokeSessionScript.Run(ctx, s.rdb, []string{s.key(tokenHash)}, tokenHash, s.prefix+":user:").Err()
	return redisErr("revoke session", err)
}

// RevokeAll deletes every indexed session of userID.
func (s *RedisSessionStore) RevokeAll(ctx context.Context, userID string) error {
	err := revokeAllScript.Run(ctx, s.rdb, []string{s.userKey(userID)}, s.prefix+":").Err()
	return redisErr("revoke sessions", err)
}

func redisErr(op string, err error) error {
	if err == nil || err == redis.Nil {
		return nil
	}
	return apperr.NewTransient(op+": session store unavailable", err)
}
