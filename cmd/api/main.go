package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-pulse/internal/bootstrap"
	"github.com/ovaphlow/pitchfork/service-pulse/internal/config"
	"github.com/ovaphlow/pitchfork/service-pulse/internal/customer"
	customerrepo "github.com/ovaphlow/pitchfork/service-pulse/internal/customer/repo"
	"github.com/ovaphlow/pitchfork/service-pulse/internal/oauth"
	"github.com/ovaphlow/pitchfork/service-pulse/internal/router"
	"github.com/ovaphlow/pitchfork/service-pulse/internal/token"
	"github.com/ovaphlow/pitchfork/service-pulse/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-pulse/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-pulse/pkg/database"
	"github.com/ovaphlow/pitchfork/service-pulse/pkg/utilities"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	lg, err := utilities.Init(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-pulse")

	db, err := database.Connect(cfg.Database)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	users := userrepo.NewUserRepo(db)
	customers := customerrepo.NewRepo(db)
	if err := users.EnsureTable(ctx); err != nil {
		sugar.Fatalf("ensure users table: %v", err)
	}
	if err := customers.EnsureTable(ctx); err != nil {
		sugar.Fatalf("ensure customers table: %v", err)
	}

	tokens := token.NewService(cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.RefreshExpiration)
	hasher := user.NewBcryptHasher(user.DefaultBcryptCost)
	userSvc := user.NewUserService(users, hasher, tokens, sugar)

	if err := bootstrap.New(cfg.Bootstrap, users, customers, hasher, sugar).Run(ctx); err != nil {
		sugar.Fatalf("bootstrap: %v", err)
	}

	allowlist, err := oauth.NewRedirectAllowlist(cfg.DefaultCallbackURI())
	if err != nil {
		sugar.Fatalf("oauth2 callback uri: %v", err)
	}

	var guard oauth.StateGuard
	if cfg.Redis.URL != "" {
		rdb, err := oauth.ConnectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			sugar.Fatalf("redis connect: %v", err)
		}
		defer rdb.Close()
		guard = oauth.NewRedisStateGuard(rdb)
	} else {
		sugar.Warn("REDIS_URL not set; oauth2 state replay is limited to cookie expiry")
	}

	googleEnabled := cfg.GoogleEnabled()
	if !googleEnabled {
		sugar.Info("google oauth2 disabled: client credentials missing or placeholders")
	}
	provider := oauth.NewGoogleProvider(oauth.GoogleConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		Scopes:       cfg.Google.Scopes,
	})
	oauthHandler := oauth.NewHandler(oauth.HandlerConfig{
		ContextPath: cfg.Server.ContextPath,
		PublicURL:   cfg.Server.PublicURL,
		FrontendURL: cfg.App.FrontendURL,
		Scopes:      cfg.Google.Scopes,
		Enabled:     googleEnabled,
	},
		provider,
		oauth.NewPendingCodec(cfg.OAuth2.StateSecret, cfg.OAuth2.StateTTL, cfg.OAuth2.CookieSecure),
		guard,
		oauth.NewReconciler(users, userSvc, allowlist, sugar),
		allowlist,
		sugar,
	)

	handler := router.RegisterRoutes(router.Deps{
		ContextPath:    cfg.Server.ContextPath,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Auth:           userSvc,
		Users:          user.NewHandler(userSvc, sugar),
		OAuth:          oauthHandler,
		Customers:      customer.NewHandler(customer.NewService(customers, sugar), sugar),
		Logger:         sugar,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("http server listening", "addr", cfg.Server.Addr, "context_path", cfg.Server.ContextPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
