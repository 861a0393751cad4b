package syncclient

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/marcus/rollcall/internal/syncerr"
)

var (
	ErrNoToken      = errors.New("not logged in")
	ErrTokenExpired = errors.New("token expired")
)

// TokenInfo is what the client can read from a token without the server key.
type TokenInfo struct {
	Subject   string
	ExpiresAt *time.Time
}

// InspectToken decodes token claims without verifying the signature. Only
// the server can verify; the client uses the claims for display and for
// skipping requests that would certainly fail.
func InspectToken(token string) (*TokenInfo, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	info := &TokenInfo{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time
		info.ExpiresAt = &exp
	}
	return info, nil
}

// CheckToken reports KindAuth for a missing or expired token. Tokens that
// are not JWTs are passed through for the server to judge.
func CheckToken(token string, now time.Time) error {
	if token == "" {
		return syncerr.Auth(ErrNoToken)
	}
	info, err := InspectToken(token)
	if err != nil {
		return nil
	}
	if info.ExpiresAt != nil && !now.Before(*info.ExpiresAt) {
		return syncerr.Auth(ErrTokenExpired)
	}
	return nil
}
