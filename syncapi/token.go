// Copyright 2025 Vinay Kumar
// SPDX-License-Identifier: Apache-2.0

package syncapi

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenFunc supplies a bearer token for outgoing requests.
type TokenFunc func(ctx context.Context) (string, error)

// StaticToken returns a TokenFunc that always yields the same token, for
// callers whose session layer already holds one.
func StaticToken(token string) TokenFunc {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

// Claims are the JWT claims the backend expects: the user in the standard
// sub claim and the device in did.
type Claims struct {
	DeviceID string `json:"did"`
	jwt.RegisteredClaims
}

// TokenSource mints short-lived HS256 tokens for a fixed user/device pair.
type TokenSource struct {
	secret   []byte
	userID   string
	deviceID string
	expiry   time.Duration
}

// NewTokenSource creates a token source. expiry <= 0 defaults to 24h.
func NewTokenSource(secret, userID, deviceID string, expiry time.Duration) *TokenSource {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &TokenSource{
		secret:   []byte(secret),
		userID:   userID,
		deviceID: deviceID,
		expiry:   expiry,
	}
}

// Token mints a fresh token. It satisfies TokenFunc.
func (t *TokenSource) Token(_ context.Context) (string, error) {
	now := time.Now()
	claims := &Claims{
		DeviceID: t.deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "smriti-sync",
			Subject:   t.userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
