package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-pulse/internal/config"
	customerentity "github.com/ovaphlow/pitchfork/service-pulse/internal/customer/entity"
	customerrepo "github.com/ovaphlow/pitchfork/service-pulse/internal/customer/repo"
	"github.com/ovaphlow/pitchfork/service-pulse/internal/user"
	"github.com/ovaphlow/pitchfork/service-pulse/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-pulse/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-pulse/pkg/database"
)

type env struct {
	users     *userrepo.UserRepo
	customers *customerrepo.Repo
	hasher    user.PasswordHasher
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := database.Connect(database.Config{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "bootstrap.db") + "?_time_format=sqlite",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	e := &env{
		users:     userrepo.NewUserRepo(db),
		customers: customerrepo.NewRepo(db),
		hasher:    user.NewBcryptHasher(bcrypt.MinCost),
	}
	require.NoError(t, e.users.EnsureTable(context.Background()))
	require.NoError(t, e.customers.EnsureTable(context.Background()))
	return e
}

func adminConfig() config.Bootstrap {
	return config.Bootstrap{
		AdminEnabled:  true,
		AdminCPF:      "111.222.333-44",
		AdminPassword: "admin123",
		AdminEmail:    "Admin@Santander.com",
		AdminFullName: "Santander Pulse Admin",
	}
}

func TestEnsureAdminCreatesOnce(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	b := New(adminConfig(), e.users, e.customers, e.hasher, nil)

	require.NoError(t, b.Run(ctx))
	require.NoError(t, b.Run(ctx))

	a, err := e.users.FindByCpf(ctx, "11122233344")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleAdmin, a.Role)
	assert.Equal(t, "11122233344", a.Username)
	assert.Equal(t, "admin@santander.com", a.Email)
	assert.Equal(t, "Santander Pulse Admin", a.FullName)
	assert.True(t, a.Active())
	assert.True(t, e.hasher.Verify(ctx, "admin123", a.PasswordHash))
}

func TestEnsureAdminSkipsTakenCpf(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	cpf := "11122233344"
	_, err := e.users.Save(ctx, &entity.User{
		Username: cpf, Cpf: &cpf, Email: "someone@santander.com", PasswordHash: "x",
		FullName: "Someone", Role: entity.RoleUser, Enabled: true,
		AccountNonExpired: true, AccountNonLocked: true, CredentialsNonExpired: true,
	})
	require.NoError(t, err)

	require.NoError(t, New(adminConfig(), e.users, e.customers, e.hasher, nil).Run(ctx))

	has, err := e.users.ExistsByRole(ctx, entity.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestEnsureAdminSkipsTakenEmail(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, err := e.users.Save(ctx, &entity.User{
		Username: "admin@santander.com", Email: "admin@santander.com", PasswordHash: "!oauth:x",
		FullName: "Google User", Role: entity.RoleUser, Enabled: true,
		AccountNonExpired: true, AccountNonLocked: true, CredentialsNonExpired: true,
	})
	require.NoError(t, err)

	require.NoError(t, New(adminConfig(), e.users, e.customers, e.hasher, nil).Run(ctx))

	has, err := e.users.ExistsByRole(ctx, entity.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestAdminDisabled(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	cfg := adminConfig()
	cfg.AdminEnabled = false
	require.NoError(t, New(cfg, e.users, e.customers, e.hasher, nil).Run(ctx))

	has, err := e.users.ExistsByRole(ctx, entity.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestSeedData(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	cfg := adminConfig()
	cfg.SeedData = true
	b := New(cfg, e.users, e.customers, e.hasher, nil)

	require.NoError(t, b.Run(ctx))
	require.NoError(t, b.Run(ctx))

	mgr, err := e.users.FindByCpf(ctx, "55566677788")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleManager, mgr.Role)
	assert.True(t, e.hasher.Verify(ctx, "manager123", mgr.PasswordHash))

	u, err := e.users.FindByCpf(ctx, "99988877766")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleUser, u.Role)

	// the seeded admin satisfies the default admin check
	admin, err := e.users.FindByCpf(ctx, "11122233344")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleAdmin, admin.Role)
	assert.Equal(t, "System Administrator", admin.FullName)

	n, err := e.customers.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	inactive, err := e.customers.CountByStatus(ctx, customerentity.StatusInativo)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inactive)
}
