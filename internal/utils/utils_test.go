package utils

import (
    "strings"
    "testing"
    "time"

    "github.com/golang-jwt/jwt/v5"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "golang.org/x/crypto/bcrypt"
)

func TestIssueAndParse(t *testing.T) {
    c := NewTokenCodec("secret")
    tok, sid, err := c.Issue("user-1", "PATIENT", time.Now())
    require.NoError(t, err)
    assert.Len(t, sid, 64)

    claims, err := c.Parse(tok)
    require.NoError(t, err)
    assert.Equal(t, sid, claims.SID)
    assert.Equal(t, "user-1", claims.Subject)
    assert.Equal(t, "PATIENT", claims.Role)
}

func TestIssueProducesDistinctSessionIDs(t *testing.T) {
    c := NewTokenCodec("secret")
    _, a, err := c.Issue("u", "DOCTOR", time.Now())
    require.NoError(t, err)
    _, b, err := c.Issue("u", "DOCTOR", time.Now())
    require.NoError(t, err)
    assert.NotEqual(t, a, b)
}

func TestParseRejectsForgedAndMalformed(t *testing.T) {
    tok, _, err := NewTokenCodec("secret").Issue("u", "PATIENT", time.Now())
    require.NoError(t, err)

    _, err = NewTokenCodec("other").Parse(tok)
    assert.ErrorIs(t, err, ErrInvalidToken)

    _, err = NewTokenCodec("secret").Parse("not-a-token")
    assert.ErrorIs(t, err, ErrInvalidToken)

    // alg=none must never be accepted
    none := jwt.NewWithClaims(jwt.SigningMethodNone, SessionClaims{SID: "x", RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}})
    unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
    require.NoError(t, err)
    _, err = NewTokenCodec("secret").Parse(unsigned)
    assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRequiresSessionID(t *testing.T) {
    t0 := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}})
    s, err := t0.SignedString([]byte("secret"))
    require.NoError(t, err)
    _, err = NewTokenCodec("secret").Parse(s)
    assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHashSessionID(t *testing.T) {
    h := HashSessionID("abc")
    assert.Len(t, h, 64)
    assert.Equal(t, h, HashSessionID("abc"))
    assert.NotEqual(t, h, HashSessionID("abd"))
    assert.Equal(t, strings.ToLower(h), h)
}

func TestPasswordRoundTrip(t *testing.T) {
    hash, err := HashPassword("correct horse", bcrypt.MinCost)
    require.NoError(t, err)
    assert.True(t, VerifyPassword(hash, "correct horse"))
    assert.False(t, VerifyPassword(hash, "wrong horse"))
    assert.False(t, VerifyPassword("not-a-hash", "correct horse"))
}
