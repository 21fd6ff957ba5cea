package utils // package utils provides the session token codec and hashing helpers

import (
    "crypto/rand"
    "crypto/sha256"
    "encoding/hex"
    "errors"
    "fmt"
    "time"

    "github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that are malformed, carry a bad
// signature or lack a session id.
var ErrInvalidToken = errors.New("invalid session token")

// SessionClaims is the payload of a session token.  The token has no exp
// claim: expiry is a property of the server-side record so that refresh can
// slide it without reissuing the token.
type SessionClaims struct {
    SID  string `json:"sid"`  // random session id; only its hash is stored
    Role string `json:"role"` // role at login time
    jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 session tokens.
type TokenCodec struct {
    secret []byte
}

// NewTokenCodec returns a codec keyed by secret.
func NewTokenCodec(secret string) *TokenCodec {
    return &TokenCodec{secret: []byte(secret)}
}

// Issue builds a fresh session id and signs a token binding it to userID and
// role.  It returns the signed token and the raw session id.
func (c *TokenCodec) Issue(userID, role string, issuedAt time.Time) (token, sid string, err error) {
    sid, err = randomHex(32) // 32 bytes -> 64 hex chars
    if err != nil {
        return "", "", err
    }
    claims := SessionClaims{
        SID:  sid,
        Role: role,
        RegisteredClaims: jwt.RegisteredClaims{
            Subject:  userID,
            IssuedAt: jwt.NewNumericDate(issuedAt),
        },
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString(c.secret)
    if err != nil {
        return "", "", err
    }
    return signed, sid, nil
}

// Parse verifies the signature and returns the claims.  Only HS256 is
// accepted.
func (c *TokenCodec) Parse(token string) (SessionClaims, error) {
    var claims SessionClaims
    parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
        return c.secret, nil
    }, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
    if err != nil || !parsed.Valid {
        return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
    }
    if claims.SID == "" || claims.Subject == "" {
        return SessionClaims{}, ErrInvalidToken
    }
    return claims, nil
}

// HashSessionID returns the SHA-256 hex digest of a session id.  Stores key
// sessions by this value so a leaked table or keyspace yields no usable
// tokens.
func HashSessionID(sid string) string {
    sum := sha256.Sum256([]byte(sid))
    return hex.EncodeToString(sum[:])
}

// randomHex returns a hex string built from n bytes of crypto/rand output.
func randomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
