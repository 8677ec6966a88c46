// Package bootstrap creates the default admin and optional seed data at startup.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-pulse/internal/config"
	customerentity "github.com/ovaphlow/pitchfork/service-pulse/internal/customer/entity"
	"github.com/ovaphlow/pitchfork/service-pulse/internal/user"
	"github.com/ovaphlow/pitchfork/service-pulse/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-pulse/pkg/banking"
)

type UserStore interface {
	ExistsByRole(ctx context.Context, role entity.Role) (bool, error)
	ExistsByCpf(ctx context.Context, cpf string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Save(ctx context.Context, u *entity.User) (*entity.User, error)
}

type CustomerStore interface {
	ExistsByCpf(ctx context.Context, cpf string) (bool, error)
	Create(ctx context.Context, c *customerentity.Customer) error
}

type seedUser struct {
	cpf, email, password, fullName string
	role                           entity.Role
}

var seedUsers = []seedUser{
	{"11122233344", "admin@santander.com", "admin123", "System Administrator", entity.RoleAdmin},
	{"55566677788", "manager@santander.com", "manager123", "Bank Manager", entity.RoleManager},
	{"99988877766", "user@santander.com", "user123", "Bank User", entity.RoleUser},
}

var seedCustomers = []customerentity.Customer{
	{Nome: "João Silva Santos", Cpf: "12345678901", Email: "joao.silva@email.com", Telefone: "(11) 99999-1234", Status: customerentity.StatusAtivo},
	{Nome: "Maria Oliveira Costa", Cpf: "98765432100", Email: "maria.oliveira@email.com", Telefone: "(11) 88888-5678", Status: customerentity.StatusAtivo},
	{Nome: "Carlos Eduardo Ferreira", Cpf: "11122233344", Email: "carlos.eduardo@email.com", Telefone: "(11) 77777-9012", Status: customerentity.StatusAtivo},
	{Nome: "Ana Paula Rodrigues", Cpf: "55566677788", Email: "ana.paula@email.com", Telefone: "(11) 66666-3456", Status: customerentity.StatusInativo},
}

type Bootstrapper struct {
	cfg       config.Bootstrap
	users     UserStore
	customers CustomerStore
	hasher    user.PasswordHasher
	logger    *zap.SugaredLogger
}

func New(cfg config.Bootstrap, users UserStore, customers CustomerStore, hasher user.PasswordHasher, logger *zap.SugaredLogger) *Bootstrapper {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Bootstrapper{cfg: cfg, users: users, customers: customers, hasher: hasher, logger: logger}
}

// Run seeds data when enabled and then ensures a default admin exists.
// Every step is idempotent.
func (b *Bootstrapper) Run(ctx context.Context) error {
	if b.cfg.SeedData {
		if err := b.seed(ctx); err != nil {
			return err
		}
	}
	if b.cfg.AdminEnabled {
		return b.ensureAdmin(ctx)
	}
	return nil
}

func (b *Bootstrapper) ensureAdmin(ctx context.Context) error {
	hasAdmin, err := b.users.ExistsByRole(ctx, entity.RoleAdmin)
	if err != nil {
		return fmt.Errorf("check admin: %w", err)
	}
	if hasAdmin {
		b.logger.Infow("admin already present, skipping default admin")
		return nil
	}
	cpf := banking.CleanDocument(b.cfg.AdminCPF)
	taken, err := b.users.ExistsByCpf(ctx, cpf)
	if err != nil {
		return fmt.Errorf("check admin cpf: %w", err)
	}
	if taken {
		b.logger.Infow("default admin cpf already in use, skipping", "cpf", banking.MaskCPF(cpf))
		return nil
	}
	email := strings.ToLower(strings.TrimSpace(b.cfg.AdminEmail))
	taken, err = b.users.ExistsByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("check admin email: %w", err)
	}
	if taken {
		b.logger.Warnw("default admin email already in use, skipping", "email", email)
		return nil
	}
	if err := b.createUser(ctx, seedUser{
		cpf:      cpf,
		email:    email,
		password: b.cfg.AdminPassword,
		fullName: b.cfg.AdminFullName,
		role:     entity.RoleAdmin,
	}); err != nil {
		return err
	}
	b.logger.Infow("default admin created", "cpf", banking.MaskCPF(cpf))
	return nil
}

func (b *Bootstrapper) seed(ctx context.Context) error {
	for _, su := range seedUsers {
		exists, err := b.users.ExistsByCpf(ctx, su.cpf)
		if err != nil {
			return fmt.Errorf("check seed user: %w", err)
		}
		if exists {
			continue
		}
		if err := b.createUser(ctx, su); err != nil {
			return err
		}
		b.logger.Infow("seed user created", "cpf", banking.MaskCPF(su.cpf), "role", su.role)
	}
	for _, sc := range seedCustomers {
		exists, err := b.customers.ExistsByCpf(ctx, sc.Cpf)
		if err != nil {
			return fmt.Errorf("check seed customer: %w", err)
		}
		if exists {
			continue
		}
		c := sc
		if err := b.customers.Create(ctx, &c); err != nil {
			return fmt.Errorf("seed customer: %w", err)
		}
		b.logger.Infow("seed customer created", "customer_id", c.ID, "status", c.Status)
	}
	return nil
}

func (b *Bootstrapper) createUser(ctx context.Context, su seedUser) error {
	hash, err := b.hasher.Hash(ctx, su.password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	cpf := su.cpf
	u := &entity.User{
		Username:              cpf,
		Email:                 strings.ToLower(strings.TrimSpace(su.email)),
		Cpf:                   &cpf,
		PasswordHash:          hash,
		FullName:              su.fullName,
		Role:                  su.role,
		Enabled:               true,
		AccountNonExpired:     true,
		AccountNonLocked:      true,
		CredentialsNonExpired: true,
	}
	if _, err := b.users.Save(ctx, u); err != nil {
		return fmt.Errorf("save %s user: %w", strings.ToLower(string(su.role)), err)
	}
	return nil
}
