package core

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid covers every verification failure: malformed input, wrong
// signature, unexpected algorithm, and expiry. Callers do not learn which,
// so the API never acts as an oracle for forgery attempts.
var ErrTokenInvalid = errors.New("invalid token")

// Identity is the authenticated principal for a single in-flight request.
// It is derived from a verified token, attached to the request context by the
// gate, and discarded when the request ends.
type Identity struct {
	UserID int64
	Email  string
}

type tokenClaims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// TokenCodec mints and verifies self-contained HS256 access tokens. The
// secret and TTL are fixed at construction; both Issue and Verify are pure
// functions of their inputs, so a codec can be shared by any number of
// concurrent requests without coordination.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenCodec(secret string, ttl time.Duration) *TokenCodec {
	return &TokenCodec{secret: []byte(secret), ttl: ttl}
}

// TTL returns the configured token validity.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a token for the given user valid from now until now+TTL.
// Issuing the same identity at two instants yields two distinct tokens.
func (c *TokenCodec) Issue(userID int64, email string, now time.Time) (string, error) {
	claims := tokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify checks signature and expiry against the supplied clock and returns
// the embedded identity. Expiry is strict: a token whose exp equals now is
// already dead, so TTL=0 tokens never validate.
func (c *TokenCodec) Verify(tokenString string, now time.Time) (Identity, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil || !token.Valid {
		return Identity{}, ErrTokenInvalid
	}
	if claims.ExpiresAt == nil || !now.Before(claims.ExpiresAt.Time) {
		return Identity{}, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return Identity{}, ErrTokenInvalid
	}
	return Identity{UserID: claims.UserID, Email: claims.Subject}, nil
}
