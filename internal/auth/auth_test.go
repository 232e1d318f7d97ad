package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/uubinn0/Challengobi-sub000/internal/clock"
)

func makeJWT(t *testing.T, exp int64) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"user_id":7,"exp":%d}`, exp)))
	return header + "." + payload + ".sig"
}

func TestStatic_Empty(t *testing.T) {
	_, err := NewStatic("   ").Token(context.Background())
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("err = %v, want ErrNoCredential", err)
	}
}

func TestStatic_OpaqueTokenNeverExpiresLocally(t *testing.T) {
	p := NewStatic("Bearer opaque-token")
	tok, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok != "opaque-token" {
		t.Errorf("Token = %q, want opaque-token", tok)
	}
	if !p.ExpiresAt().IsZero() {
		t.Errorf("ExpiresAt = %v, want zero", p.ExpiresAt())
	}
}

func TestStatic_JWTExpiry(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	fc := clock.NewFake(now)
	p := NewStaticWithClock(makeJWT(t, now.Add(time.Hour).Unix()), fc)

	if _, err := p.Token(context.Background()); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}

	fc.Advance(time.Hour - 10*time.Second) // inside the skew window
	if _, err := p.Token(context.Background()); !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
}

func TestJWTExpiry_Malformed(t *testing.T) {
	tests := []string{"", "a.b", "a.!!!.c", "a." + base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".c"}
	for _, tok := range tests {
		if got := jwtExpiry(tok); !got.IsZero() {
			t.Errorf("jwtExpiry(%q) = %v, want zero", tok, got)
		}
	}
}

func TestIsAuthError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrNoCredential, true},
		{fmt.Errorf("upload: %w", ErrExpired), true},
		{fmt.Errorf("api: %w", ErrRejected), true},
		{errors.New("connection reset"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsAuthError(tt.err); got != tt.want {
			t.Errorf("IsAuthError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
