package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-pulse/internal/customer"
	customerrepo "github.com/ovaphlow/pitchfork/service-pulse/internal/customer/repo"
	"github.com/ovaphlow/pitchfork/service-pulse/internal/oauth"
	"github.com/ovaphlow/pitchfork/service-pulse/internal/token"
	"github.com/ovaphlow/pitchfork/service-pulse/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-pulse/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-pulse/pkg/database"
)

const testSecret = "router-test-secret-0123456789abcdef"

var origins = []string{"http://localhost:4200"}

func newServer(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()
	db, err := database.Connect(database.Config{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "router.db") + "?_time_format=sqlite",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := userrepo.NewUserRepo(db)
	require.NoError(t, users.EnsureTable(ctx))
	customers := customerrepo.NewRepo(db)
	require.NoError(t, customers.EnsureTable(ctx))

	lg := zap.NewNop().Sugar()
	tokens := token.NewService(testSecret, time.Hour, 24*time.Hour)
	userSvc := user.NewUserService(users, user.NewBcryptHasher(bcrypt.MinCost), tokens, lg)

	allowlist, err := oauth.NewRedirectAllowlist("http://localhost:4200/oauth2/callback")
	require.NoError(t, err)
	provider := oauth.NewGoogleProvider(oauth.GoogleConfig{ClientID: "id", ClientSecret: "secret"})
	oauthHandler := oauth.NewHandler(oauth.HandlerConfig{ContextPath: "/api", FrontendURL: "http://localhost:4200"},
		provider, oauth.NewPendingCodec(testSecret, 3*time.Minute, false), nil,
		oauth.NewReconciler(users, userSvc, allowlist, lg), allowlist, lg)

	return RegisterRoutes(Deps{
		ContextPath:    "/api",
		AllowedOrigins: origins,
		Auth:           userSvc,
		Users:          user.NewHandler(userSvc, lg),
		OAuth:          oauthHandler,
		Customers:      customer.NewHandler(customer.NewService(customers, lg), lg),
		Logger:         lg,
	})
}

func send(h http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndSecurityHeaders(t *testing.T) {
	h := newServer(t)
	rec := send(h, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "connect-src 'self' http://localhost:4200")
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))

	assert.Equal(t, http.StatusNotFound, send(h, http.MethodGet, "/health", "", nil).Code)
}

func TestProtectedRoutesNeedBearer(t *testing.T) {
	h := newServer(t)
	for _, p := range []string{"/api/auth/me", "/api/customers", "/api/customers/stats"} {
		rec := send(h, http.MethodGet, p, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, p)
		assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())
	}
	rec := send(h, http.MethodGet, "/api/customers", "", map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterThenUseAccessToken(t *testing.T) {
	h := newServer(t)
	rec := send(h, http.MethodPost, "/api/auth/register",
		`{"cpf":"52998224725","email":"maria@example.com","password":"s3nh4-forte","fullName":"Maria Silva"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var auth struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &auth))
	bearer := map[string]string{"Authorization": "Bearer " + auth.AccessToken}

	rec = send(h, http.MethodGet, "/api/auth/me", "", bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	var me map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "52998224725", me["username"])

	rec = send(h, http.MethodPost, "/api/customers",
		`{"nome":"João Silva Santos","cpf":"12345678901","email":"joao.silva@email.com","telefone":"(11) 99999-1234"}`, bearer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = send(h, http.MethodGet, "/api/customers/stats", "", bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"totalCustomers":1`)

	rec = send(h, http.MethodPost, "/api/auth/refresh", "", map[string]string{"Authorization": "Bearer " + auth.RefreshToken})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPublicOAuthRoutes(t *testing.T) {
	h := newServer(t)
	rec := send(h, http.MethodGet, "/api/auth/providers", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"enabled":false`)

	rec = send(h, http.MethodGet, "/api/login?error=true", "", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "http://localhost:4200/login?error=oauth_failed", rec.Header().Get("Location"))
}

func TestCORS(t *testing.T) {
	h := newServer(t)

	rec := send(h, http.MethodOptions, "/api/auth/login", "", map[string]string{
		"Origin":                         "http://localhost:4200",
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "content-type,authorization",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:4200", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PUT")
	assert.Equal(t, "content-type,authorization", rec.Header().Get("Access-Control-Allow-Headers"))

	rec = send(h, http.MethodOptions, "/api/auth/login", "", map[string]string{
		"Origin":                        "https://evil.example",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = send(h, http.MethodGet, "/api/health", "", map[string]string{"Origin": "http://localhost:4200"})
	assert.Equal(t, "http://localhost:4200", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = send(h, http.MethodGet, "/api/health", "", map[string]string{"Origin": "https://evil.example"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoggingMiddlewareKeepsStatus(t *testing.T) {
	lg := zap.NewNop().Sugar()
	h := LoggingMiddleware(lg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
