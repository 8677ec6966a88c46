package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeGoogle struct {
	*httptest.Server
	idToken   string
	lastForm  url.Values
	userInfo  map[string]string
	tokenCode int
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	f := &fakeGoogle{tokenCode: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.lastForm = r.PostForm
		if f.tokenCode != http.StatusOK {
			w.WriteHeader(f.tokenCode)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		body := map[string]any{"access_token": "google-access", "token_type": "Bearer", "expires_in": 3600}
		if f.idToken != "" {
			body["id_token"] = f.idToken
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer google-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.userInfo)
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeGoogle) provider() *GoogleProvider {
	return NewGoogleProvider(GoogleConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     oauth2.Endpoint{AuthURL: f.URL + "/auth", TokenURL: f.URL + "/token"},
		UserInfoURL:  f.URL + "/userinfo",
		HTTPClient:   f.Client(),
	})
}

func idToken(t *testing.T, aud, iss, nonce string, exp time.Time) string {
	t.Helper()
	claims := idTokenClaims{
		Email: "maria@gmail.com",
		Name:  "Maria Silva",
		Nonce: nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "10987654321",
			Issuer:    iss,
			Audience:  jwt.ClaimStrings{aud},
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("google-signs-this"))
	require.NoError(t, err)
	return s
}

func TestGoogleAuthCodeURL(t *testing.T) {
	g := NewGoogleProvider(GoogleConfig{ClientID: "client-id", ClientSecret: "s", Scopes: []string{"openid", "email"}})
	raw := g.AuthCodeURL("the-state", "the-nonce", "http://localhost:8080/api/login/oauth2/code/google")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", u.Host)
	q := u.Query()
	assert.Equal(t, "the-state", q.Get("state"))
	assert.Equal(t, "the-nonce", q.Get("nonce"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "openid email", q.Get("scope"))
	assert.Equal(t, "http://localhost:8080/api/login/oauth2/code/google", q.Get("redirect_uri"))
}

func TestGoogleExchangeWithIDToken(t *testing.T) {
	f := newFakeGoogle(t)
	f.idToken = idToken(t, "client-id", "https://accounts.google.com", "n-1", time.Now().Add(time.Hour))

	p, err := f.provider().Exchange(context.Background(), "auth-code", "http://cb", "n-1")
	require.NoError(t, err)
	assert.Equal(t, Profile{Subject: "10987654321", Email: "maria@gmail.com", Name: "Maria Silva"}, p)
	assert.Equal(t, "auth-code", f.lastForm.Get("code"))
	assert.Equal(t, "http://cb", f.lastForm.Get("redirect_uri"))
}

func TestGoogleExchangeRejectsBadIDToken(t *testing.T) {
	f := newFakeGoogle(t)
	ctx := context.Background()
	future := time.Now().Add(time.Hour)

	for name, tok := range map[string]string{
		"audience": idToken(t, "someone-else", "accounts.google.com", "n-1", future),
		"issuer":   idToken(t, "client-id", "https://evil.example", "n-1", future),
		"nonce":    idToken(t, "client-id", "accounts.google.com", "other", future),
		"expired":  idToken(t, "client-id", "accounts.google.com", "n-1", time.Now().Add(-time.Hour)),
	} {
		f.idToken = tok
		_, err := f.provider().Exchange(ctx, "code", "http://cb", "n-1")
		assert.ErrorIs(t, err, ErrIDTokenRejected, name)
	}
}

func TestGoogleExchangeFallsBackToUserInfo(t *testing.T) {
	f := newFakeGoogle(t)
	f.userInfo = map[string]string{"sub": "42", "email": "joao@gmail.com", "name": "João"}

	p, err := f.provider().Exchange(context.Background(), "code", "http://cb", "")
	require.NoError(t, err)
	assert.Equal(t, Profile{Subject: "42", Email: "joao@gmail.com", Name: "João"}, p)
}

func TestGoogleExchangeFailure(t *testing.T) {
	f := newFakeGoogle(t)
	f.tokenCode = http.StatusBadRequest

	_, err := f.provider().Exchange(context.Background(), "code", "http://cb", "")
	assert.ErrorIs(t, err, ErrExchangeFailed)
}
