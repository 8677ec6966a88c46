// Package router assembles the HTTP surface of the service.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-pulse/internal/customer"
	"github.com/ovaphlow/pitchfork/service-pulse/internal/oauth"
	"github.com/ovaphlow/pitchfork/service-pulse/internal/user"
)

type Deps struct {
	ContextPath    string
	AllowedOrigins []string
	Auth           Authenticator
	Users          *user.Handler
	OAuth          *oauth.Handler
	Customers      *customer.Handler
	Logger         *zap.SugaredLogger
}

// RegisterRoutes mounts every endpoint under the context path. Only the
// auth, oauth and health endpoints are reachable without a bearer token.
func RegisterRoutes(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeadersMiddleware(d.AllowedOrigins))
	r.Use(CORSMiddleware(d.AllowedOrigins))

	routes := func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})

		r.Post("/auth/login", d.Users.Login)
		r.Post("/auth/register", d.Users.Register)
		r.Post("/auth/refresh", d.Users.Refresh)

		r.Get("/auth/providers", d.OAuth.Providers)
		r.Get("/login", d.OAuth.Login)
		r.Get("/oauth2/authorization/{provider}", d.OAuth.Authorize)
		r.Get("/login/oauth2/code/{provider}", d.OAuth.Callback)

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(d.Auth, d.Logger))
			r.Get("/auth/me", d.Users.Me)
			r.Route("/customers", d.Customers.Routes)
		})
	}

	if d.ContextPath == "" {
		routes(r)
	} else {
		r.Route(d.ContextPath, routes)
	}
	return r
}
