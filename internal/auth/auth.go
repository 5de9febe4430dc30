// Package auth resolves bearer tokens to user identities. Token issuance
// lives elsewhere; this side only verifies.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/Huddle/internal/domain"
)

var ErrInvalidToken = errors.New("invalid or expired token")

type Identity struct {
	UserID      domain.UserID
	DisplayName string
}

// Authorizer maps an opaque bearer token to a resolved identity.
// A failure is reported to the offending connection as an error frame;
// it never tears the transport down.
type Authorizer interface {
	Authorize(token string) (Identity, error)
}

// JWTAuthorizer verifies HS256-signed tokens. The subject claim is the
// user id; an optional "name" claim carries the display name.
type JWTAuthorizer struct {
	secret []byte
}

func NewJWTAuthorizer(secret string) *JWTAuthorizer {
	return &JWTAuthorizer{secret: []byte(secret)}
}

func (a *JWTAuthorizer) Authorize(token string) (Identity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, ErrInvalidToken
	}
	id := Identity{UserID: domain.UserID(sub)}
	if name, ok := claims["name"].(string); ok {
		id.DisplayName = name
	}
	return id, nil
}

// StaticAuthorizer accepts a fixed token table. Used in dev mode and tests.
type StaticAuthorizer map[string]Identity

func (a StaticAuthorizer) Authorize(token string) (Identity, error) {
	id, ok := a[token]
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	return id, nil
}
