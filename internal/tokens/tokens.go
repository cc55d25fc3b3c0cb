// Package tokens issues and verifies signed session tokens (HS256 JWT).
package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Lifetime is fixed: a session is always valid for exactly this long after issue.
const Lifetime = 24 * time.Hour

var (
	ErrInvalid = errors.New("token is invalid")
	ErrExpired = errors.New("token is expired")
)

// Claims is the identity snapshot carried inside a token.
type Claims struct {
	UserID    uuid.UUID
	Name      string
	Email     string
	Admin     bool
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Remaining reports how long the token stays valid after now.
func (c Claims) Remaining(now time.Time) time.Duration {
	return c.ExpiresAt.Sub(now)
}

type wireClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Admin bool   `json:"admin"`
	jwt.RegisteredClaims
}

type Codec struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

func NewCodec(secret []byte) *Codec {
	return newCodec(secret, time.Now)
}

func newCodec(secret []byte, now func() time.Time) *Codec {
	return &Codec{
		secret: secret,
		now:    now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(now),
			jwt.WithExpirationRequired(),
			jwt.WithStrictDecoding(),
		),
	}
}

// Issue stamps iat/exp onto c and signs it. The returned Claims are exactly
// what Verify will report for the token.
func (c *Codec) Issue(claims Claims) (string, Claims, error) {
	now := c.now().Truncate(time.Second)
	claims.IssuedAt = now
	claims.ExpiresAt = now.Add(Lifetime)

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, wireClaims{
		Name:  claims.Name,
		Email: claims.Email,
		Admin: claims.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	signed, err := t.SignedString(c.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify checks the signature and then expiry. Every failure other than
// expiry is reported as ErrInvalid, whatever its cause.
func (c *Codec) Verify(raw string) (Claims, error) {
	var wc wireClaims
	_, err := c.parser.ParseWithClaims(raw, &wc, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrInvalid
	}

	id, err := uuid.Parse(wc.Subject)
	if err != nil || wc.IssuedAt == nil {
		return Claims{}, ErrInvalid
	}
	return Claims{
		UserID:    id,
		Name:      wc.Name,
		Email:     wc.Email,
		Admin:     wc.Admin,
		IssuedAt:  wc.IssuedAt.Time,
		ExpiresAt: wc.ExpiresAt.Time,
	}, nil
}
