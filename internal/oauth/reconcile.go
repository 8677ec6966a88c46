package oauth

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-pulse/internal/user"
	"github.com/ovaphlow/pitchfork/service-pulse/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-pulse/pkg/database"
)

var ErrMissingIdentityAttribute = errors.New("identity provider returned neither email nor subject")

const defaultDisplayName = "Google User"

type IdentityStore interface {
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	Save(ctx context.Context, u *entity.User) (*entity.User, error)
	Update(ctx context.Context, u *entity.User) error
}

type TokenIssuer interface {
	IssueTokens(u *entity.User) (*user.AuthResult, error)
}

// Reconciler maps a provider profile onto a local identity and builds the
// redirect that hands the issued tokens to the frontend.
type Reconciler struct {
	store     IdentityStore
	tokens    TokenIssuer
	allowlist *RedirectAllowlist
	logger    *zap.SugaredLogger
}

func NewReconciler(store IdentityStore, tokens TokenIssuer, allowlist *RedirectAllowlist, logger *zap.SugaredLogger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Reconciler{store: store, tokens: tokens, allowlist: allowlist, logger: logger}
}

type Outcome struct {
	User        *entity.User
	Created     bool
	RedirectURL string
}

// Reconcile finds or creates the identity for profile, refreshes its display
// name, issues tokens and composes the callback URL. redirect is the value
// captured at authorization start; it is replaced by the default unless
// the allowlist authorizes it.
func (rc *Reconciler) Reconcile(ctx context.Context, provider string, profile Profile, redirect string) (*Outcome, error) {
	email, err := resolveEmail(provider, profile)
	if err != nil {
		return nil, err
	}

	u, created, err := rc.findOrCreate(ctx, email, profile.Name)
	if err != nil {
		return nil, err
	}
	if !created && profile.Name != "" && profile.Name != u.FullName {
		u.FullName = profile.Name
		if err := rc.store.Update(ctx, u); err != nil {
			return nil, fmt.Errorf("update display name: %w", err)
		}
	}

	res, err := rc.tokens.IssueTokens(u)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	target, err := buildCallbackURL(rc.allowlist.Resolve(redirect), res)
	if err != nil {
		return nil, err
	}
	rc.logger.Infow("oauth2 login reconciled", "provider", provider, "user_id", u.ID, "created", created)
	return &Outcome{User: u, Created: created, RedirectURL: target}, nil
}

func resolveEmail(provider string, p Profile) (string, error) {
	if e := strings.ToLower(strings.TrimSpace(p.Email)); e != "" {
		return e, nil
	}
	if sub := strings.TrimSpace(p.Subject); sub != "" {
		return strings.ToLower(sub + "@" + provider + "usercontent.com"), nil
	}
	return "", ErrMissingIdentityAttribute
}

func (rc *Reconciler) findOrCreate(ctx context.Context, email, name string) (*entity.User, bool, error) {
	u, err := rc.store.FindByEmail(ctx, email)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("find by email: %w", err)
	}

	fullName := strings.TrimSpace(name)
	if fullName == "" {
		fullName = defaultDisplayName
	}
	u = &entity.User{
		Username: email,
		Email:    email,
		// not a bcrypt hash, so password login can never match
		PasswordHash:          "!oauth:" + uuid.NewString(),
		FullName:              fullName,
		Role:                  entity.RoleUser,
		Enabled:               true,
		AccountNonExpired:     true,
		AccountNonLocked:      true,
		CredentialsNonExpired: true,
	}
	if _, err := rc.store.Save(ctx, u); err != nil {
		if database.IsUniqueViolation(err) {
			// a concurrent callback created it first
			existing, ferr := rc.store.FindByEmail(ctx, email)
			if ferr == nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("create oauth user: %w", err)
	}
	return u, true, nil
}

func buildCallbackURL(base string, res *user.AuthResult) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse callback: %w", err)
	}
	info, err := json.Marshal(res.User)
	if err != nil {
		return "", fmt.Errorf("encode user info: %w", err)
	}
	q := u.Query()
	q.Set("accessToken", res.AccessToken)
	q.Set("refreshToken", res.RefreshToken)
	q.Set("expiresIn", strconv.FormatInt(res.ExpiresIn, 10))
	q.Set("user", base64.URLEncoding.EncodeToString(info))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
