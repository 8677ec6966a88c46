package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-pulse/internal/token"
	"github.com/ovaphlow/pitchfork/service-pulse/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-pulse/pkg/banking"
	"github.com/ovaphlow/pitchfork/service-pulse/pkg/database"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateCpf       = errors.New("cpf already exists")
	ErrDuplicateEmail     = errors.New("email already exists")
	ErrInvalidCpf         = errors.New("invalid cpf")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrUserNotFound       = errors.New("user not found")
)

// Store is the persistence the flows need. *repo.UserRepo implements it.
type Store interface {
	FindByPrincipal(ctx context.Context, cpfOrUsername string) (*entity.User, error)
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	ExistsByCpf(ctx context.Context, cpf string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Save(ctx context.Context, u *entity.User) (*entity.User, error)
}

// Tokens is the token issuer used by the flows. *token.Service implements it.
type Tokens interface {
	GenerateToken(p token.Principal) (string, error)
	GenerateRefreshToken(p token.Principal) (string, error)
	ParseClaims(raw string) (*token.Claims, error)
	ExpirySeconds() int64
}

// AuthResult is the token envelope returned by login and register.
type AuthResult struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	TokenType    string          `json:"tokenType"`
	ExpiresIn    int64           `json:"expiresIn"`
	User         entity.UserInfo `json:"user"`
	Timestamp    time.Time       `json:"timestamp"`
}

// RefreshResult carries only a new access token; the refresh token is kept.
type RefreshResult struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

type RegisterInput struct {
	Cpf      string
	Email    string
	Password string
	FullName string
}

// UserService runs login, registration and refresh.
type UserService struct {
	store  Store
	hasher PasswordHasher
	tokens Tokens
	logger *zap.SugaredLogger
	now    func() time.Time

	// compared against when the account does not exist, so unknown CPFs
	// cost the same bcrypt work as wrong passwords
	dummyHash string
}

func NewUserService(store Store, hasher PasswordHasher, tokens Tokens, logger *zap.SugaredLogger) *UserService {
	if hasher == nil {
		hasher = NewBcryptHasher(DefaultBcryptCost)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &UserService{store: store, hasher: hasher, tokens: tokens, logger: logger, now: time.Now}
	if h, err := hasher.Hash(context.Background(), "pulse-dummy-password"); err == nil {
		s.dummyHash = h
	}
	return s
}

// Login verifies cpf (or username) and password and issues both tokens.
// Every failure, including disabled or locked accounts, is ErrInvalidCredentials.
func (s *UserService) Login(ctx context.Context, cpfOrUsername, password string) (*AuthResult, error) {
	identifier := strings.TrimSpace(cpfOrUsername)
	if banking.IsCPFFormat(identifier) {
		identifier = banking.CleanDocument(identifier)
	}

	u, err := s.store.FindByPrincipal(ctx, identifier)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("find user: %w", err)
		}
		s.hasher.Verify(ctx, password, s.dummyHash)
		s.logger.Infow("login rejected", "cpf", banking.MaskCPF(identifier), "reason", "unknown")
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(ctx, password, u.PasswordHash) {
		s.logger.Infow("login rejected", "cpf", banking.MaskCPF(identifier), "reason", "password")
		return nil, ErrInvalidCredentials
	}
	if !u.Active() {
		s.logger.Warnw("login rejected", "user_id", u.ID, "reason", "inactive")
		return nil, ErrInvalidCredentials
	}

	res, err := s.issue(u)
	if err != nil {
		return nil, err
	}
	s.logger.Infow("login succeeded", "user_id", u.ID, "role", u.Role)
	return res, nil
}

// Register creates a USER account and logs it in.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	cpf := banking.CleanDocument(in.Cpf)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !banking.IsValidCPF(cpf) {
		return nil, ErrInvalidCpf
	}

	exists, err := s.store.ExistsByCpf(ctx, cpf)
	if err != nil {
		return nil, fmt.Errorf("check cpf: %w", err)
	}
	if exists {
		return nil, ErrDuplicateCpf
	}
	exists, err = s.store.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, ErrDuplicateEmail
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &entity.User{
		Username:              cpf,
		Email:                 email,
		Cpf:                   &cpf,
		PasswordHash:          hash,
		FullName:              strings.TrimSpace(in.FullName),
		Role:                  entity.RoleUser,
		Enabled:               true,
		AccountNonExpired:     true,
		AccountNonLocked:      true,
		CredentialsNonExpired: true,
	}
	if _, err := s.store.Save(ctx, u); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, s.resolveDuplicate(ctx, cpf, email, err)
		}
		return nil, fmt.Errorf("save user: %w", err)
	}

	s.logger.Infow("user registered", "user_id", u.ID, "cpf", banking.FormatCPF(cpf))
	return s.issue(u)
}

// resolveDuplicate maps a unique violation lost to a concurrent insert back
// to the field that collided.
func (s *UserService) resolveDuplicate(ctx context.Context, cpf, email string, cause error) error {
	if ok, err := s.store.ExistsByCpf(ctx, cpf); err == nil && ok {
		return ErrDuplicateCpf
	}
	if ok, err := s.store.ExistsByEmail(ctx, email); err == nil && ok {
		return ErrDuplicateEmail
	}
	return fmt.Errorf("save user: %w", cause)
}

// Refresh issues a new access token for the subject of a valid refresh token.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	claims, err := s.tokens.ParseClaims(refreshToken)
	if err != nil {
		s.logger.Warnw("refresh token rejected", "err", err)
		return nil, ErrUnauthorized
	}
	u, err := s.store.FindByPrincipal(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warnw("refresh token subject unknown")
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !u.Active() {
		return nil, ErrUnauthorized
	}
	access, err := s.tokens.GenerateToken(u.Principal())
	if err != nil {
		return nil, err
	}
	return &RefreshResult{AccessToken: access, TokenType: "Bearer", ExpiresIn: s.tokens.ExpirySeconds()}, nil
}

// Authenticate resolves an access token to an active principal. It backs
// the bearer middleware.
func (s *UserService) Authenticate(ctx context.Context, accessToken string) (*token.Claims, *entity.User, error) {
	claims, err := s.tokens.ParseClaims(accessToken)
	if err != nil {
		return nil, nil, err
	}
	u, err := s.store.FindByPrincipal(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, err
	}
	if !u.Active() {
		return nil, nil, ErrUnauthorized
	}
	return claims, u, nil
}

// IssueTokens mints both tokens for u. OAuth reconciliation uses it too.
func (s *UserService) IssueTokens(u *entity.User) (*AuthResult, error) {
	return s.issue(u)
}

func (s *UserService) issue(u *entity.User) (*AuthResult, error) {
	p := u.Principal()
	access, err := s.tokens.GenerateToken(p)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.GenerateRefreshToken(p)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    s.tokens.ExpirySeconds(),
		User:         u.Info(),
		Timestamp:    s.now(),
	}, nil
}
