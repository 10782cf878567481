// Package httpapi exposes the marketplace over HTTP.
//
// Reads are public. Writes require a bearer JWT whose subject is the
// caller's account id; the token establishes identity only, there is no
// role model.
package httpapi

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperr "github.com/mintbay/mintbay/internal/errors"
)

const tokenIssuer = "mintbay"

// Auth issues and verifies the HS256 bearer tokens the API accepts.
type Auth struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// NewAuth builds an Auth from a shared signing secret. Tokens expire
// after ttl; a non-positive ttl defaults to 24 hours.
func NewAuth(secret []byte, ttl time.Duration) *Auth {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Auth{secret: secret, ttl: ttl, clock: time.Now}
}

// IssueToken signs a token identifying account.
func (a *Auth) IssueToken(account string) (string, error) {
	now := a.clock()
	claims := jwt.RegisteredClaims{
		Subject:   account,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// VerifyToken validates a signed token and returns its subject account.
func (a *Auth) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.clock))
	if err != nil {
		return "", apperr.Wrap(apperr.CodeAuthInvalidToken, "invalid or expired token", err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", apperr.New(apperr.CodeAuthInvalidToken, "token carries no subject account")
	}
	return claims.Subject, nil
}
