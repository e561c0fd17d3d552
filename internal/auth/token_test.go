// ABOUTME: Tests for JWT token verification and generation.
// ABOUTME: Validates round-trips, expiry, wrong secrets, and missing claims.

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTVerifier_RoundTrip(t *testing.T) {
	verifier, err := NewJWTVerifier([]byte("test-secret"))
	require.NoError(t, err)

	token, err := verifier.Generate("operator", time.Hour)
	require.NoError(t, err)

	subject, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", subject)
}

func TestNewJWTVerifier_EmptySecret(t *testing.T) {
	_, err := NewJWTVerifier(nil)
	assert.Error(t, err)
}

func TestJWTVerifier_Expired(t *testing.T) {
	verifier, err := NewJWTVerifier([]byte("test-secret"))
	require.NoError(t, err)

	token, err := verifier.Generate("operator", -time.Minute)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTVerifier_WrongSecret(t *testing.T) {
	verifier, err := NewJWTVerifier([]byte("secret-a"))
	require.NoError(t, err)
	other, err := NewJWTVerifier([]byte("secret-b"))
	require.NoError(t, err)

	token, err := other.Generate("operator", time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_Garbage(t *testing.T) {
	verifier, err := NewJWTVerifier([]byte("test-secret"))
	require.NoError(t, err)

	_, err = verifier.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_MissingSubject(t *testing.T) {
	verifier, err := NewJWTVerifier([]byte("test-secret"))
	require.NoError(t, err)

	claims := jwt.MapClaims{
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = verifier.Verify(signed)
	assert.ErrorIs(t, err, ErrMissingClaim)
}
