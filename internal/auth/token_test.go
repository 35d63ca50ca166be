package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()

	svc, err := NewTokenService("super-secret", time.Hour)
	require.NoError(t, err)

	ownerID := uuid.New()
	tok, err := svc.Issue(ownerID)
	require.NoError(t, err)

	got, err := svc.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, ownerID, got)
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	t.Parallel()

	_, err := NewTokenService("  ", time.Hour)
	assert.ErrorIs(t, err, ErrMissingSecret)

	svc, err := NewTokenService("k", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenTTL, svc.TTL())
}

func TestVerifyExpired(t *testing.T) {
	t.Parallel()

	svc, err := NewTokenService("secret", time.Hour)
	require.NoError(t, err)

	issuedAt := time.Now().Add(-2 * time.Hour)
	svc.now = func() time.Time { return issuedAt }
	tok, err := svc.Issue(uuid.New())
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyWrongSecret(t *testing.T) {
	t.Parallel()

	issuer, err := NewTokenService("right-secret", time.Hour)
	require.NoError(t, err)
	verifier, err := NewTokenService("wrong-secret", time.Hour)
	require.NoError(t, err)

	tok, err := issuer.Issue(uuid.New())
	require.NoError(t, err)

	_, err = verifier.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyMalformed(t *testing.T) {
	t.Parallel()

	svc, err := NewTokenService("k", time.Hour)
	require.NoError(t, err)

	for _, raw := range []string{"", "not.a.jwt", "abc"} {
		_, err := svc.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken, raw)
	}
}

func TestVerifyRejectsTokenWithoutExpiry(t *testing.T) {
	t.Parallel()

	svc, err := NewTokenService("k", time.Hour)
	require.NoError(t, err)

	unbounded := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: uuid.NewString()})
	tok, err := unbounded.SignedString([]byte("k"))
	require.NoError(t, err)

	_, err = svc.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsNonUUIDSubject(t *testing.T) {
	t.Parallel()

	svc, err := NewTokenService("k", time.Hour)
	require.NoError(t, err)

	claims := jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)

	_, err = svc.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", hash)
	assert.True(t, ComparePassword(hash, "secret1"))
	assert.False(t, ComparePassword(hash, "secret2"))
	assert.False(t, ComparePassword("not-a-hash", "secret1"))
}
