package oauth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type HandlerConfig struct {
	ContextPath string
	// PublicURL overrides the request-derived origin when building absolute URLs.
	PublicURL   string
	FrontendURL string
	Scopes      []string
	// Enabled is false when provider credentials are missing or placeholders.
	Enabled bool
}

// Handler drives the browser side of the OAuth2 login: the /login entry
// point, the redirect to the provider, the provider callback and the
// provider discovery endpoint.
type Handler struct {
	cfg        HandlerConfig
	provider   Provider
	codec      *PendingCodec
	guard      StateGuard
	reconciler *Reconciler
	allowlist  *RedirectAllowlist
	logger     *zap.SugaredLogger
}

// NewHandler wires the flow. guard may be nil, in which case a state is
// protected only by the pending cookie's signature and expiry.
func NewHandler(cfg HandlerConfig, provider Provider, codec *PendingCodec, guard StateGuard,
	reconciler *Reconciler, allowlist *RedirectAllowlist, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		cfg:        cfg,
		provider:   provider,
		codec:      codec,
		guard:      guard,
		reconciler: reconciler,
		allowlist:  allowlist,
		logger:     logger,
	}
}

// Login handles GET /login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if info, _ := strconv.ParseBool(q.Get("info")); info {
		h.writeJSON(w, http.StatusOK, map[string]any{
			"status":  http.StatusOK,
			"message": "Utilize POST /auth/login para CPF/senha ou acesse /oauth2/authorization/google para login com Google.",
			"providers": map[string]any{
				"cpf":    map[string]string{"type": "password", "endpoint": "/auth/login"},
				"google": map[string]string{"type": "oauth2", "endpoint": "/oauth2/authorization/google"},
			},
		})
		return
	}
	if strings.EqualFold(q.Get("error"), "true") {
		http.Redirect(w, r, h.cfg.FrontendURL+"/login?error=oauth_failed", http.StatusFound)
		return
	}
	provider := q.Get("provider")
	if provider == "" {
		provider = "google"
	}
	if !strings.EqualFold(provider, "google") {
		h.unsupportedProvider(w)
		return
	}
	target := h.cfg.ContextPath + "/oauth2/authorization/google?redirect_uri=" +
		url.QueryEscape(h.allowlist.Resolve(q.Get("redirect_uri")))
	http.Redirect(w, r, target, http.StatusFound)
}

// Authorize handles GET /oauth2/authorization/{provider}: it stores the
// pending request cookie and sends the browser to the provider.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	if !strings.EqualFold(chi.URLParam(r, "provider"), h.provider.Name()) {
		h.unsupportedProvider(w)
		return
	}
	if !h.cfg.Enabled {
		h.logger.Warnw("oauth2 authorization requested but provider is not configured", "provider", h.provider.Name())
		h.fail(w, r)
		return
	}

	redirect := r.URL.Query().Get("redirect_uri")
	if redirect != "" && !h.allowlist.IsAuthorized(redirect) {
		h.logger.Warnw("oauth2 redirect_uri rejected", "redirect_uri", redirect)
		redirect = ""
	}
	pending := h.codec.New(redirect)
	if err := h.codec.Save(w, pending); err != nil {
		h.logger.Errorw("save oauth2 pending request", "err", err)
		h.fail(w, r)
		return
	}
	http.Redirect(w, r, h.provider.AuthCodeURL(pending.State, pending.Nonce, h.callbackURI(r)), http.StatusFound)
}

// Callback handles GET /login/oauth2/code/{provider}.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	// the pending request is single use whatever the outcome
	h.codec.Clear(w)

	if e := q.Get("error"); e != "" {
		h.logger.Warnw("oauth2 provider returned error", "error", e, "description", q.Get("error_description"))
		h.fail(w, r)
		return
	}
	pending, err := h.codec.Load(r)
	if err != nil {
		h.logger.Warnw("oauth2 callback without valid pending request", "err", err)
		h.fail(w, r)
		return
	}
	if subtle.ConstantTimeCompare([]byte(pending.State), []byte(q.Get("state"))) != 1 {
		h.logger.Warnw("oauth2 state mismatch")
		h.fail(w, r)
		return
	}
	if h.guard != nil {
		if err := h.guard.Consume(ctx, pending.State, time.Until(pending.ExpiresAt)); err != nil {
			h.logger.Warnw("oauth2 state rejected", "err", err)
			h.fail(w, r)
			return
		}
	}
	code := q.Get("code")
	if code == "" {
		h.logger.Warnw("oauth2 callback without code")
		h.fail(w, r)
		return
	}

	profile, err := h.provider.Exchange(ctx, code, h.callbackURI(r), pending.Nonce)
	if err != nil {
		h.logger.Warnw("oauth2 exchange failed", "provider", h.provider.Name(), "err", err)
		h.fail(w, r)
		return
	}
	out, err := h.reconciler.Reconcile(ctx, h.provider.Name(), profile, pending.Redirect)
	if err != nil {
		if errors.Is(err, ErrMissingIdentityAttribute) {
			h.logger.Errorw("provider profile has no email", "provider", h.provider.Name())
			http.Error(w, "Unable to retrieve email from Google account", http.StatusBadRequest)
			return
		}
		h.logger.Errorw("oauth2 reconciliation failed", "err", err)
		h.fail(w, r)
		return
	}
	http.Redirect(w, r, out.RedirectURL, http.StatusFound)
}

// Providers handles GET /auth/providers.
func (h *Handler) Providers(w http.ResponseWriter, r *http.Request) {
	google := map[string]any{"enabled": h.cfg.Enabled}
	if h.cfg.Enabled {
		base := h.baseURL(r)
		google["authorizationUrl"] = base + "/login?provider=google&redirect_uri=" + h.allowlist.Default()
		google["redirectUri"] = h.callbackURI(r)
		google["scopes"] = h.cfg.Scopes
		google["postLoginRedirect"] = h.allowlist.Default()
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"providers": map[string]any{"google": google}})
}

func (h *Handler) unsupportedProvider(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusBadRequest, map[string]any{
		"status":  http.StatusBadRequest,
		"error":   "UnsupportedProvider",
		"message": "Somente o provedor Google está habilitado neste endpoint.",
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.cfg.ContextPath+"/login?error=true", http.StatusFound)
}

// callbackURI is the redirect_uri registered with the provider.
func (h *Handler) callbackURI(r *http.Request) string {
	return h.baseURL(r) + "/login/oauth2/code/" + h.provider.Name()
}

func (h *Handler) baseURL(r *http.Request) string {
	if h.cfg.PublicURL != "" {
		return h.cfg.PublicURL + h.cfg.ContextPath
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	return scheme + "://" + r.Host + h.cfg.ContextPath
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
