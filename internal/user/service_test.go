package user

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-pulse/internal/token"
	"github.com/ovaphlow/pitchfork/service-pulse/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-pulse/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-pulse/pkg/database"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fixture struct {
	svc    *UserService
	repo   *repo.UserRepo
	tokens *token.Service
	hasher *BcryptHasher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Connect(database.Config{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "auth.db") + "?_time_format=sqlite",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	r := repo.NewUserRepo(db)
	require.NoError(t, r.EnsureTable(context.Background()))

	tokens := token.NewService(testSecret, time.Hour, 24*time.Hour)
	hasher := NewBcryptHasher(bcrypt.MinCost)
	return &fixture{
		svc:    NewUserService(r, hasher, tokens, nil),
		repo:   r,
		tokens: tokens,
		hasher: hasher,
	}
}

func (f *fixture) register(t *testing.T, cpf, email string) *AuthResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), RegisterInput{
		Cpf: cpf, Email: email, Password: "s3nh4-forte", FullName: "Maria Silva",
	})
	require.NoError(t, err)
	return res
}

func TestRegisterThenLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg := f.register(t, "52998224725", "Maria@Example.com")
	assert.Equal(t, "Bearer", reg.TokenType)
	assert.Equal(t, int64(3600), reg.ExpiresIn)
	assert.Equal(t, "52998224725", reg.User.Username)
	assert.Equal(t, "maria@example.com", reg.User.Email)
	assert.Equal(t, entity.RoleUser, reg.User.Role)
	require.NotNil(t, reg.User.Cpf)
	assert.Equal(t, "52998224725", *reg.User.Cpf)

	stored, err := f.repo.FindByCpf(ctx, "52998224725")
	require.NoError(t, err)
	assert.NotEqual(t, "s3nh4-forte", stored.PasswordHash)

	res, err := f.svc.Login(ctx, "52998224725", "s3nh4-forte")
	require.NoError(t, err)
	sub, err := f.tokens.ExtractUsername(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "52998224725", sub)
	sub, err = f.tokens.ExtractUsername(res.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "52998224725", sub)
	assert.Equal(t, reg.User.ID, res.User.ID)
}

func TestLoginFailuresAreUniform(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "52998224725", "maria@example.com")

	_, err := f.svc.Login(ctx, "52998224725", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "98765432100", "s3nh4-forte")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	u, err := f.repo.FindByCpf(ctx, "52998224725")
	require.NoError(t, err)
	u.Enabled = false
	require.NoError(t, f.repo.Update(ctx, u))

	_, err = f.svc.Login(ctx, "52998224725", "s3nh4-forte")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginAcceptsFormattedCpf(t *testing.T) {
	f := newFixture(t)
	f.register(t, "52998224725", "maria@example.com")

	_, err := f.svc.Login(context.Background(), "529.982.247-25", "s3nh4-forte")
	assert.NoError(t, err)
}

func TestRegisterDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "52998224725", "maria@example.com")

	_, err := f.svc.Register(ctx, RegisterInput{
		Cpf: "52998224725", Email: "another@example.com", Password: "s3nh4-forte", FullName: "X",
	})
	assert.ErrorIs(t, err, ErrDuplicateCpf)

	_, err = f.svc.Register(ctx, RegisterInput{
		Cpf: "98765432100", Email: "MARIA@example.com", Password: "s3nh4-forte", FullName: "X",
	})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestRegisterRejectsBadCheckDigits(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Register(context.Background(), RegisterInput{
		Cpf: "12345678900", Email: "a@example.com", Password: "s3nh4-forte", FullName: "X",
	})
	assert.ErrorIs(t, err, ErrInvalidCpf)

	_, err = f.svc.Register(context.Background(), RegisterInput{
		Cpf: "11111111111", Email: "a@example.com", Password: "s3nh4-forte", FullName: "X",
	})
	assert.ErrorIs(t, err, ErrInvalidCpf)
}

type raceStore struct {
	Store
	mu    sync.Mutex
	saved bool
}

// ExistsByCpf reports false until a Save has been attempted, simulating a
// concurrent registration that wins between the check and the insert.
func (s *raceStore) ExistsByCpf(ctx context.Context, cpf string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.saved {
		return false, nil
	}
	return s.Store.ExistsByCpf(ctx, cpf)
}

func (s *raceStore) Save(ctx context.Context, u *entity.User) (*entity.User, error) {
	s.mu.Lock()
	s.saved = true
	s.mu.Unlock()
	return s.Store.Save(ctx, u)
}

func TestRegisterResolvesUniqueRace(t *testing.T) {
	f := newFixture(t)
	f.register(t, "52998224725", "maria@example.com")

	svc := NewUserService(&raceStore{Store: f.repo}, f.hasher, f.tokens, nil)
	_, err := svc.Register(context.Background(), RegisterInput{
		Cpf: "52998224725", Email: "other@example.com", Password: "s3nh4-forte", FullName: "X",
	})
	assert.ErrorIs(t, err, ErrDuplicateCpf)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register(t, "52998224725", "maria@example.com")

	res, err := f.svc.Refresh(ctx, reg.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", res.TokenType)
	sub, err := f.tokens.ExtractUsername(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "52998224725", sub)

	_, err = f.svc.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, ErrUnauthorized)

	ghost, err := f.tokens.GenerateRefreshToken(entity.Principal{Username: "98765432100", Role: entity.RoleUser})
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, ghost)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register(t, "52998224725", "maria@example.com")

	claims, u, err := f.svc.Authenticate(ctx, reg.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "USER", claims.Role)
	assert.Equal(t, reg.User.ID, u.ID)

	_, _, err = f.svc.Authenticate(ctx, "bad.token.value")
	assert.ErrorIs(t, err, token.ErrTokenMalformed)
}

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	ctx := context.Background()

	hash, err := h.Hash(ctx, "admin123")
	require.NoError(t, err)
	assert.True(t, h.Verify(ctx, "admin123", hash))
	assert.False(t, h.Verify(ctx, "admin124", hash))
	assert.False(t, h.Verify(ctx, "admin123", "not-a-hash"))

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewBcryptHasher(bcrypt.MinCost).Hash(cancelled, "x")
	assert.Error(t, err)
}
