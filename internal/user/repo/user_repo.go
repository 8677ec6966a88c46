package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-pulse/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-pulse/pkg/database"
	"github.com/ovaphlow/pitchfork/service-pulse/pkg/utilities"
)

const userColumns = `id, username, email, cpf, password_hash, full_name, role, enabled,
	account_non_expired, account_non_locked, credentials_non_expired, created_at, updated_at`

// UserRepo provides data access for the users table. Lookups return
// sql.ErrNoRows when nothing matches.
type UserRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db, now: time.Now}
}

// EnsureTable creates the users table if not exists (idempotent).
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	return database.ExecAll(ctx, r.db,
		`CREATE TABLE IF NOT EXISTS users (
  id VARCHAR(32) PRIMARY KEY,
  username VARCHAR(255) NOT NULL UNIQUE,
  email VARCHAR(255) NOT NULL UNIQUE,
  cpf VARCHAR(11) UNIQUE,
  password_hash VARCHAR(255) NOT NULL,
  full_name VARCHAR(255) NOT NULL,
  role VARCHAR(16) NOT NULL DEFAULT 'USER',
  enabled BOOLEAN NOT NULL DEFAULT TRUE,
  account_non_expired BOOLEAN NOT NULL DEFAULT TRUE,
  account_non_locked BOOLEAN NOT NULL DEFAULT TRUE,
  credentials_non_expired BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMP NOT NULL,
  updated_at TIMESTAMP NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_users_role ON users(role)`,
	)
}

func (r *UserRepo) findOne(ctx context.Context, where string, arg any) (*entity.User, error) {
	q := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + where)
	var u entity.User
	if err := r.db.GetContext(ctx, &u, q, arg); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) FindByID(ctx context.Context, id string) (*entity.User, error) {
	return r.findOne(ctx, `id = ?`, id)
}

func (r *UserRepo) FindByCpf(ctx context.Context, cpf string) (*entity.User, error) {
	return r.findOne(ctx, `cpf = ?`, cpf)
}

func (r *UserRepo) FindByUsername(ctx context.Context, username string) (*entity.User, error) {
	return r.findOne(ctx, `username = ?`, username)
}

// FindByEmail matches case-insensitively; emails are stored lower-cased.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.findOne(ctx, `email = LOWER(?)`, email)
}

// FindByPrincipal resolves a token subject or login identifier: CPF first,
// then username.
func (r *UserRepo) FindByPrincipal(ctx context.Context, cpfOrUsername string) (*entity.User, error) {
	u, err := r.FindByCpf(ctx, cpfOrUsername)
	if err == nil || !errors.Is(err, sql.ErrNoRows) {
		return u, err
	}
	return r.FindByUsername(ctx, cpfOrUsername)
}

func (r *UserRepo) exists(ctx context.Context, where string, arg any) (bool, error) {
	q := r.db.Rebind(`SELECT COUNT(1) FROM users WHERE ` + where)
	var n int
	if err := r.db.GetContext(ctx, &n, q, arg); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *UserRepo) ExistsByCpf(ctx context.Context, cpf string) (bool, error) {
	return r.exists(ctx, `cpf = ?`, cpf)
}

func (r *UserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `email = LOWER(?)`, email)
}

func (r *UserRepo) ExistsByRole(ctx context.Context, role entity.Role) (bool, error) {
	return r.exists(ctx, `role = ?`, role)
}

// Save inserts u, assigning its id and timestamps. A duplicate cpf, email or
// username surfaces as a unique violation (see database.IsUniqueViolation).
func (r *UserRepo) Save(ctx context.Context, u *entity.User) (*entity.User, error) {
	now := r.now().UTC().Truncate(time.Microsecond)
	if u.ID == "" {
		u.ID = utilities.NewSnowflakeID()
	}
	if u.Role == "" {
		u.Role = entity.RoleUser
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	const q = `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :username, :email, :cpf, :password_hash, :full_name, :role, :enabled,
			:account_non_expired, :account_non_locked, :credentials_non_expired, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, q, u); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// Update writes the mutable profile fields of u.
func (r *UserRepo) Update(ctx context.Context, u *entity.User) error {
	u.UpdatedAt = r.now().UTC().Truncate(time.Microsecond)
	const q = `UPDATE users SET email = :email, full_name = :full_name, password_hash = :password_hash,
		role = :role, enabled = :enabled, account_non_expired = :account_non_expired,
		account_non_locked = :account_non_locked, credentials_non_expired = :credentials_non_expired,
		updated_at = :updated_at
		WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, q, u); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}
