// Package auth implements the access-token codec: HS256 JWTs minted with a
// process-wide symmetric key and decoded with strict algorithm checks.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenauth/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

var signingMethod = jwt.SigningMethodHS256

// Codec mints and decodes access tokens. The key is copied at construction
// and never mutated, so a Codec is safe for concurrent use.
type Codec struct {
	secret []byte
	now    func() time.Time
}

type Option func(*Codec)

// WithClock overrides the time source used for iat/exp.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func NewCodec(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty signing secret")
	}
	c := &Codec{secret: append([]byte(nil), secret...), now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Mint signs claims for subject with iat=now and exp=now+lifetime. A negative
// lifetime yields an already expired token.
func (c *Codec) Mint(subject string, claims Claims, lifetime time.Duration) (string, error) {
	now := c.now()
	claims.Subject = subject
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(lifetime))

	token, err := jwt.NewWithClaims(signingMethod, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// DecodeIgnoringExpiry verifies structure, algorithm and signature but not
// exp/nbf/iat, so the refresh flow can inspect expired tokens. Business
// checks on the returned claims are the caller's job.
func (c *Codec) DecodeIgnoringExpiry(token string) (*Claims, error) {
	return c.parse(token, jwt.WithoutClaimsValidation())
}

// Validate is DecodeIgnoringExpiry plus a mandatory, enforced exp claim.
// It guards protected calls.
func (c *Codec) Validate(token string) (*Claims, error) {
	return c.parse(token, jwt.WithExpirationRequired(), jwt.WithTimeFunc(c.now))
}

func (c *Codec) parse(token string, opts ...jwt.ParserOption) (*Claims, error) {
	opts = append(opts, jwt.WithValidMethods([]string{signingMethod.Alg()}))
	claims := &Claims{}

	_, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, c.keyFunc)
	if err != nil {
		return nil, classify(err)
	}
	return claims, nil
}

func (c *Codec) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok || t.Method.Alg() != signingMethod.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %v", t.Header["alg"])
	}
	return c.secret, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", common.ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", common.ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return common.ErrTokenExpired
	default:
		return fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
}
