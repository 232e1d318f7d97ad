// Package auth supplies the bearer credential used for every call to the
// challenge service.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/uubinn0/Challengobi-sub000/internal/clock"
)

var (
	// ErrNoCredential indicates no access token is configured.
	ErrNoCredential = errors.New("auth: no access token configured")
	// ErrExpired indicates the access token's exp claim has passed.
	ErrExpired = errors.New("auth: access token expired")
	// ErrRejected indicates the server refused the token.
	ErrRejected = errors.New("auth: access token rejected")
)

// IsAuthError reports whether err means the user must sign in again.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNoCredential) || errors.Is(err, ErrExpired) || errors.Is(err, ErrRejected)
}

// expirySkew treats tokens about to expire as already expired so a
// request does not race the server's own check.
const expirySkew = 30 * time.Second

// Provider returns a bearer token, or an error when none is usable.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// Static serves a fixed token, rejecting it once its JWT exp claim passes.
// Tokens that are not JWTs never expire locally; the server decides.
type Static struct {
	token     string
	expiresAt time.Time
	clock     clock.Clock
}

// NewStatic returns a provider for token using the real clock.
func NewStatic(token string) *Static {
	return NewStaticWithClock(token, clock.Real())
}

// NewStaticWithClock returns a provider for token checked against c.
func NewStaticWithClock(token string, c clock.Clock) *Static {
	token = strings.TrimSpace(token)
	token = strings.TrimPrefix(token, "Bearer ")
	return &Static{
		token:     token,
		expiresAt: jwtExpiry(token),
		clock:     c,
	}
}

// Token implements Provider.
func (s *Static) Token(_ context.Context) (string, error) {
	if s.token == "" {
		return "", ErrNoCredential
	}
	if !s.expiresAt.IsZero() && !s.clock.Now().Add(expirySkew).Before(s.expiresAt) {
		return "", ErrExpired
	}
	return s.token, nil
}

// ExpiresAt returns the token's exp claim, or the zero time if unknown.
func (s *Static) ExpiresAt() time.Time {
	return s.expiresAt
}

// jwtExpiry reads the exp claim from a JWT payload without verifying the
// signature. Returns the zero time for anything that is not a JWT.
func jwtExpiry(token string) time.Time {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return time.Time{}
	}
	var claims struct {
		Exp json.Number `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.Exp.Int64()
	if err != nil || exp <= 0 {
		return time.Time{}
	}
	return time.Unix(exp, 0)
}
