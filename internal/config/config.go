// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/ovaphlow/pitchfork/service-pulse/pkg/database"
	"github.com/ovaphlow/pitchfork/service-pulse/pkg/utilities"
)

const minSecretLen = 32

var ErrWeakSecret = errors.New("JWT_SECRET must be at least 32 bytes")

type Config struct {
	Server    Server
	Database  database.Config
	Log       utilities.Config
	JWT       JWT
	App       App
	Google    Google
	OAuth2    OAuth2
	Redis     Redis
	Bootstrap Bootstrap
	CORS      CORS
}

type Server struct {
	Addr        string `env:"SERVER_ADDR"         envDefault:":8080"`
	ContextPath string `env:"SERVER_CONTEXT_PATH" envDefault:"/api"`
	// PublicURL is the externally visible origin, e.g. https://pulse.example.com.
	// When empty it is derived from each request.
	PublicURL string `env:"SERVER_PUBLIC_URL"`
}

type JWT struct {
	Secret            string        `env:"JWT_SECRET,required"`
	Expiration        time.Duration `env:"JWT_EXPIRATION"         envDefault:"24h"`
	RefreshExpiration time.Duration `env:"JWT_REFRESH_EXPIRATION" envDefault:"168h"`
}

type App struct {
	FrontendURL        string `env:"APP_FRONTEND_URL"         envDefault:"http://localhost:4200"`
	OAuth2CallbackPath string `env:"APP_OAUTH2_CALLBACK_PATH" envDefault:"/oauth2/callback"`
}

type Google struct {
	ClientID     string   `env:"GOOGLE_CLIENT_ID"`
	ClientSecret string   `env:"GOOGLE_CLIENT_SECRET"`
	Scopes       []string `env:"GOOGLE_SCOPES" envSeparator:"," envDefault:"openid,email,profile"`
}

type OAuth2 struct {
	StateSecret  string        `env:"OAUTH2_STATE_SECRET"`
	StateTTL     time.Duration `env:"OAUTH2_STATE_TTL"      envDefault:"3m"`
	CookieSecure bool          `env:"OAUTH2_COOKIE_SECURE"`
}

type Redis struct {
	URL string `env:"REDIS_URL"`
}

type Bootstrap struct {
	AdminEnabled  bool   `env:"APP_BOOTSTRAP_ADMIN_ENABLED"   envDefault:"true"`
	AdminCPF      string `env:"APP_BOOTSTRAP_ADMIN_CPF"       envDefault:"11122233344"`
	AdminPassword string `env:"APP_BOOTSTRAP_ADMIN_PASSWORD"  envDefault:"admin123"`
	AdminEmail    string `env:"APP_BOOTSTRAP_ADMIN_EMAIL"     envDefault:"admin@santander.com"`
	AdminFullName string `env:"APP_BOOTSTRAP_ADMIN_FULL_NAME" envDefault:"Santander Pulse Admin"`
	SeedData      bool   `env:"PULSE_SEED_DATA_ENABLED"`
}

type CORS struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:4200,http://localhost:4201"`
}

// Load reads the process environment.
func Load() (Config, error) {
	return load(env.Options{})
}

// LoadFrom reads the given variables only. Used by tests.
func LoadFrom(vars map[string]string) (Config, error) {
	return load(env.Options{Environment: vars})
}

func load(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	if len(c.JWT.Secret) < minSecretLen {
		return ErrWeakSecret
	}
	if c.OAuth2.StateSecret == "" {
		c.OAuth2.StateSecret = c.JWT.Secret
	}
	c.Server.ContextPath = normalizePath(c.Server.ContextPath)
	c.Server.PublicURL = strings.TrimRight(strings.TrimSpace(c.Server.PublicURL), "/")
	c.App.FrontendURL = strings.TrimRight(strings.TrimSpace(c.App.FrontendURL), "/")
	c.App.OAuth2CallbackPath = normalizePath(c.App.OAuth2CallbackPath)
	c.Log = c.Log.Normalize()
	return nil
}

// DefaultCallbackURI is where the frontend receives tokens after an OAuth2 login.
func (c Config) DefaultCallbackURI() string {
	return c.App.FrontendURL + c.App.OAuth2CallbackPath
}

// GoogleEnabled reports whether real Google credentials are configured.
func (c Config) GoogleEnabled() bool {
	return usableCredential(c.Google.ClientID) && usableCredential(c.Google.ClientSecret)
}

func usableCredential(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return false
	}
	for _, marker := range []string{"dummy", "changeme", "placeholder"} {
		if strings.Contains(v, marker) {
			return false
		}
	}
	return true
}

// normalizePath returns "" for root and otherwise a path with a leading and
// no trailing slash.
func normalizePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}
