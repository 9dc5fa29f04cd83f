/*
Package auth resolves who is calling the API.

PURPOSE:
  The core treats identity as a given: operations receive acting user IDs
  and the role directory answers RoleOf. This package is the HTTP-side
  glue - it mints and verifies signed bearer tokens carrying (userID, role)
  and exposes middleware that puts the resolved principal on the request
  context.

SCOPE:
  This is NOT an authentication system. There is no password check; the
  token mint endpoint is a development stand-in for the hosted auth
  service the platform uses. What matters to the core is that a verified
  (userID, role) pair arrives with each request.

TOKENS:
  HS256 JWTs with standard expiry claims. The role is embedded at mint
  time from the directory; role changes require a fresh token.
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/englishhop/marketplace/market"
)

// Principal is the verified acting user attached to a request.
type Principal struct {
	UserID market.UserID
	Role   market.Role
}

// Claims is the JWT payload.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Manager mints and verifies tokens.
type Manager struct {
	secret   []byte
	identity market.Identity
	ttl      time.Duration
}

func NewManager(secret []byte, identity market.Identity) *Manager {
	return &Manager{secret: secret, identity: identity, ttl: 24 * time.Hour}
}

// Mint issues a token for the user, embedding their current role from the
// directory. Unknown users get RoleNone tokens; the API's role checks
// reject them where a role is required.
func (m *Manager) Mint(ctx context.Context, userID market.UserID) (string, error) {
	role, err := m.identity.RoleOf(ctx, userID)
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify parses and validates a token, returning the principal it carries.
func (m *Manager) Verify(tokenString string) (Principal, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !token.Valid {
		return Principal{}, errors.New("invalid token")
	}
	return Principal{
		UserID: market.UserID(claims.Subject),
		Role:   market.Role(claims.Role),
	}, nil
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

type ctxKey struct{}

// Middleware resolves "Authorization: Bearer <token>" into a Principal on
// the request context. Requests without a token pass through anonymous;
// handlers that need an actor enforce presence themselves.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if strings.HasPrefix(header, "Bearer ") {
			p, err := m.Verify(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, p))
		}
		next.ServeHTTP(w, r)
	})
}

// FromContext returns the request's principal, if any.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}
