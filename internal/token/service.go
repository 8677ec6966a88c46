// Package token issues and verifies the HS256 access and refresh tokens.
//
// Tokens are stateless: nothing is persisted and verification needs only
// the shared secret. Both token kinds carry the same claims and differ only
// in lifetime.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenUnsupported      = errors.New("token unsupported")
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
)

// Principal is the narrow view of an identity needed to mint a token.
type Principal interface {
	PrincipalName() string
	RoleName() string
}

// Claims is the decoded payload: sub, role, iat, exp.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Service struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now. Tests use it to move past expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(secret string, accessTTL, refreshTTL time.Duration, opts ...Option) *Service {
	s := &Service{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// GenerateToken issues an access token for p.
func (s *Service) GenerateToken(p Principal) (string, error) {
	return s.sign(p, s.accessTTL)
}

// GenerateRefreshToken issues a refresh token for p.
func (s *Service) GenerateRefreshToken(p Principal) (string, error) {
	return s.sign(p, s.refreshTTL)
}

// ExpirySeconds is the access token lifetime reported to clients.
func (s *Service) ExpirySeconds() int64 {
	return int64(s.accessTTL / time.Second)
}

func (s *Service) sign(p Principal, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Role: p.RoleName(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.PrincipalName(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseClaims verifies raw and returns its claims. Errors are always one of
// the four token sentinels.
func (s *Service) ParseClaims(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrTokenMalformed
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, s.keyFunc,
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, classify(err)
	}
	if claims.Subject == "" {
		return nil, ErrTokenMalformed
	}
	return &claims, nil
}

// ExtractUsername returns the subject of a valid token.
func (s *Service) ExtractUsername(raw string) (string, error) {
	c, err := s.ParseClaims(raw)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

// IsTokenValid reports whether raw is valid, unexpired and issued to p.
func (s *Service) IsTokenValid(raw string, p Principal) bool {
	c, err := s.ParseClaims(raw)
	if err != nil {
		return false
	}
	return c.Subject == p.PrincipalName()
}

func (s *Service) keyFunc(t *jwt.Token) (any, error) {
	if t.Method != jwt.SigningMethodHS256 {
		return nil, fmt.Errorf("%w: alg %v", ErrTokenUnsupported, t.Header["alg"])
	}
	return s.secret, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrTokenUnsupported):
		return ErrTokenUnsupported
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrTokenSignatureInvalid
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenUnsupported
	default:
		return ErrTokenMalformed
	}
}
