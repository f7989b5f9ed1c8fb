// Package auth verifies and mints the HMAC-signed bearer tokens shared by
// every service in the mesh. Any holder of the secret can do both; there is
// no revocation, a token stays valid until its exp claim.
package auth

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const bearerPrefix = "Bearer "

var hmacMethods = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
}

// Claims is the verified identity carried by a token.
type Claims struct {
	UserID    int64
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Verifier checks bearer credentials against the shared secret.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier returns a Verifier for secret. Issuer and audience are only
// checked when configured through options.
func NewVerifier(secret []byte, opts ...Option) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: empty secret")
	}
	o := buildOptions(opts)

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(hmacMethods),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(o.now),
	}
	if o.leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(o.leeway))
	}
	if o.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(o.issuer))
	}
	if o.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(o.audience))
	}

	return &Verifier{
		secret: append([]byte(nil), secret...),
		parser: jwt.NewParser(parserOpts...),
	}, nil
}

// Verify validates an Authorization header value of the form "Bearer <token>".
func (v *Verifier) Verify(header string) (Claims, error) {
	if len(header) <= len(bearerPrefix) {
		return Claims{}, reject(Missing, nil)
	}
	if !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return Claims{}, reject(Malformed, errors.New("authorization scheme is not bearer"))
	}
	return v.VerifyToken(strings.TrimSpace(header[len(bearerPrefix):]))
}

// VerifyToken validates a raw token string.
func (v *Verifier) VerifyToken(raw string) (Claims, error) {
	if raw == "" {
		return Claims{}, reject(Missing, nil)
	}

	mc := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(raw, mc, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Claims{}, classify(err)
	}

	userID, err := subject(mc)
	if err != nil {
		return Claims{}, reject(Malformed, err)
	}

	claims := Claims{UserID: userID}
	if exp, _ := mc.GetExpirationTime(); exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if iat, _ := mc.GetIssuedAt(); iat != nil {
		claims.IssuedAt = iat.Time
	}
	return claims, nil
}

// classify maps jwt parser errors onto rejection reasons. The parser checks
// the signature before any claim, so a forged expired token reports
// InvalidSignature.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return reject(Malformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return reject(InvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return reject(Expired, err)
	default:
		return reject(Malformed, err)
	}
}

// subject reads sub as a positive user id. Issuers encode it as a JSON
// number; a decimal string is accepted too.
func subject(mc jwt.MapClaims) (int64, error) {
	var id int64
	switch sub := mc["sub"].(type) {
	case float64:
		if sub != math.Trunc(sub) || sub > math.MaxInt64 {
			return 0, fmt.Errorf("sub %v is not an integer", sub)
		}
		id = int64(sub)
	case string:
		n, err := strconv.ParseInt(sub, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("sub %q is not an integer", sub)
		}
		id = n
	case nil:
		return 0, errors.New("sub claim is missing")
	default:
		return 0, fmt.Errorf("sub has unsupported type %T", sub)
	}
	if id <= 0 {
		return 0, fmt.Errorf("sub %d is not a user id", id)
	}
	return id, nil
}
