package oauth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	PendingCookieName = "oauth2_auth_request"
	pendingAudience   = "oauth2-pending"
	pendingVersion    = 1
)

var (
	ErrPendingMissing = errors.New("oauth2 pending request missing")
	ErrPendingInvalid = errors.New("oauth2 pending request invalid")
	ErrPendingExpired = errors.New("oauth2 pending request expired")
)

// PendingRequest is the authorization round-trip state carried in a signed
// cookie between the redirect to the provider and its callback.
type PendingRequest struct {
	Version   int
	State     string
	Nonce     string
	Redirect  string
	ExpiresAt time.Time
}

type pendingClaims struct {
	V        int    `json:"v"`
	State    string `json:"state"`
	Nonce    string `json:"nonce"`
	Redirect string `json:"redirect,omitempty"`
	jwt.RegisteredClaims
}

// PendingCodec signs pending requests as HS256 JWTs and manages the cookie.
type PendingCodec struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewPendingCodec(secret string, ttl time.Duration, secureCookie bool) *PendingCodec {
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	return &PendingCodec{secret: []byte(secret), ttl: ttl, secure: secureCookie, now: time.Now}
}

// New starts a pending request with a fresh state and nonce.
func (c *PendingCodec) New(redirect string) PendingRequest {
	return PendingRequest{
		Version:   pendingVersion,
		State:     uuid.NewString(),
		Nonce:     uuid.NewString(),
		Redirect:  redirect,
		ExpiresAt: c.now().Add(c.ttl),
	}
}

func (c *PendingCodec) Encode(p PendingRequest) (string, error) {
	claims := pendingClaims{
		V:        p.Version,
		State:    p.State,
		Nonce:    p.Nonce,
		Redirect: p.Redirect,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{pendingAudience},
			ExpiresAt: jwt.NewNumericDate(p.ExpiresAt),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign pending request: %w", err)
	}
	return s, nil
}

func (c *PendingCodec) Decode(raw string) (PendingRequest, error) {
	var claims pendingClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(pendingAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return PendingRequest{}, ErrPendingExpired
		}
		return PendingRequest{}, fmt.Errorf("%w: %v", ErrPendingInvalid, err)
	}
	if claims.V != pendingVersion || claims.State == "" {
		return PendingRequest{}, ErrPendingInvalid
	}
	return PendingRequest{
		Version:   claims.V,
		State:     claims.State,
		Nonce:     claims.Nonce,
		Redirect:  claims.Redirect,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Save encodes p into the pending cookie.
func (c *PendingCodec) Save(w http.ResponseWriter, p PendingRequest) error {
	v, err := c.Encode(p)
	if err != nil {
		return err
	}
	http.SetCookie(w, c.cookie(v, int(c.ttl/time.Second)))
	return nil
}

// Load reads and verifies the pending cookie from r.
func (c *PendingCodec) Load(r *http.Request) (PendingRequest, error) {
	ck, err := r.Cookie(PendingCookieName)
	if err != nil || ck.Value == "" {
		return PendingRequest{}, ErrPendingMissing
	}
	return c.Decode(ck.Value)
}

func (c *PendingCodec) Clear(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie("", -1))
}

func (c *PendingCodec) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     PendingCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
