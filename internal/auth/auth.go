// internal/auth/auth.go
// Package auth reads what the client needs from the bearer credential.
// The credential is opaque to the client; signatures are checked by the
// server, never here.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoToken = errors.New("no bearer token")

// TokenSource returns the current bearer credential.
type TokenSource func() (string, error)

// Static always returns token.
func Static(token string) TokenSource {
	return func() (string, error) {
		if strings.TrimSpace(token) == "" {
			return "", ErrNoToken
		}
		return token, nil
	}
}

// Env reads the credential from the named variable on every call.
func Env(key string) TokenSource {
	return func() (string, error) {
		token := strings.TrimSpace(os.Getenv(key))
		if token == "" {
			return "", fmt.Errorf("%w: %s is not set", ErrNoToken, key)
		}
		return token, nil
	}
}

// Subject returns the sub claim of token without verifying it.
func Subject(token string) (string, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// Identity resolves the interrogator id from src on each call. It
// reports false when no token is available or it carries no subject.
func Identity(src TokenSource) func() (string, bool) {
	return func() (string, bool) {
		token, err := src()
		if err != nil {
			return "", false
		}
		sub, err := Subject(token)
		if err != nil {
			return "", false
		}
		return sub, true
	}
}
