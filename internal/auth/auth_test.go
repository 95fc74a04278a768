// internal/auth/auth_test.go
// Token source and subject extraction tests.
package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	require.NoError(t, err)
	return token
}

func TestSubject(t *testing.T) {
	token := signed(t, jwt.RegisteredClaims{
		Subject:   "a3d9c1b0-7e2f-4a6b-b1c4-9f8e7d6c5b33",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	sub, err := Subject(token)
	require.NoError(t, err)
	assert.Equal(t, "a3d9c1b0-7e2f-4a6b-b1c4-9f8e7d6c5b33", sub)
}

func TestSubjectIgnoresExpiry(t *testing.T) {
	token := signed(t, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	sub, err := Subject(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestSubjectErrors(t *testing.T) {
	_, err := Subject("not-a-jwt")
	assert.Error(t, err)

	_, err = Subject(signed(t, jwt.RegisteredClaims{Issuer: "api"}))
	assert.Error(t, err)
}

func TestIdentity(t *testing.T) {
	id, ok := Identity(Static(signed(t, jwt.RegisteredClaims{Subject: "user-7"})))()
	assert.True(t, ok)
	assert.Equal(t, "user-7", id)

	_, ok = Identity(Static(""))()
	assert.False(t, ok)

	_, ok = Identity(Static("garbage"))()
	assert.False(t, ok)
}

func TestEnv(t *testing.T) {
	t.Setenv("TURING_TEST_TOKEN", "")
	_, err := Env("TURING_TEST_TOKEN")()
	assert.ErrorIs(t, err, ErrNoToken)

	t.Setenv("TURING_TEST_TOKEN", " tok ")
	token, err := Env("TURING_TEST_TOKEN")()
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
}
