package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer mints tokens that Verifier accepts. It stands in for the identity
// service in tests and local tooling.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	opts   options
}

// NewIssuer returns an Issuer signing with HS256.
func NewIssuer(secret []byte, ttl time.Duration, opts ...Option) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: empty secret")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: ttl must be positive")
	}
	return &Issuer{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		opts:   buildOptions(opts),
	}, nil
}

// Issue returns a signed token for userID.
func (i *Issuer) Issue(userID int64) (string, error) {
	if userID <= 0 {
		return "", errors.New("auth: user id must be positive")
	}
	now := i.opts.now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(i.ttl).Unix(),
		"jti": uuid.NewString(),
	}
	if i.opts.issuer != "" {
		claims["iss"] = i.opts.issuer
	}
	if i.opts.audience != "" {
		claims["aud"] = i.opts.audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}
