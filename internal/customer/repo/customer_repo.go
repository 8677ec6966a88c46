package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-pulse/internal/customer/entity"
	"github.com/ovaphlow/pitchfork/service-pulse/pkg/database"
	"github.com/ovaphlow/pitchfork/service-pulse/pkg/utilities"
)

var ErrInvalidSort = errors.New("invalid sort field")

const customerColumns = `id, nome, cpf, email, telefone, status, created_at, updated_at`

// sortColumns maps API sort keys to columns. Anything else is rejected so
// the ORDER BY clause never carries caller text.
var sortColumns = map[string]string{
	"id":        "id",
	"nome":      "nome",
	"cpf":       "cpf",
	"email":     "email",
	"telefone":  "telefone",
	"status":    "status",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

// Repo is the repository for the customers table.
type Repo struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{db: db, now: time.Now}
}

// EnsureTable creates the customers table and its indexes.
func (r *Repo) EnsureTable(ctx context.Context) error {
	return database.ExecAll(ctx, r.db,
		`CREATE TABLE IF NOT EXISTS customers (
  id VARCHAR(32) PRIMARY KEY,
  nome VARCHAR(100) NOT NULL,
  cpf VARCHAR(11) NOT NULL UNIQUE,
  email VARCHAR(255) NOT NULL UNIQUE,
  telefone VARCHAR(20) NOT NULL,
  status VARCHAR(16) NOT NULL DEFAULT 'ATIVO',
  created_at TIMESTAMP NOT NULL,
  updated_at TIMESTAMP NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_customer_status ON customers(status)`,
		`CREATE INDEX IF NOT EXISTS idx_customer_created_at ON customers(created_at)`,
	)
}

func (r *Repo) stamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

// Create inserts c and assigns its id and timestamps.
func (r *Repo) Create(ctx context.Context, c *entity.Customer) error {
	if c.ID == "" {
		c.ID = utilities.NewSnowflakeID()
	}
	now := r.stamp()
	c.CreatedAt, c.UpdatedAt = now, now
	const q = `INSERT INTO customers (` + customerColumns + `)
		VALUES (:id, :nome, :cpf, :email, :telefone, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, q, c); err != nil {
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

// Update writes every field except cpf, which never changes after creation.
// It returns the number of affected rows.
func (r *Repo) Update(ctx context.Context, c *entity.Customer) (int64, error) {
	c.UpdatedAt = r.stamp()
	const q = `UPDATE customers SET nome = :nome, email = :email, telefone = :telefone,
		status = :status, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, q, c)
	if err != nil {
		return 0, fmt.Errorf("update customer: %w", err)
	}
	return res.RowsAffected()
}

// GetByID returns the customer or sql.ErrNoRows.
func (r *Repo) GetByID(ctx context.Context, id string) (*entity.Customer, error) {
	var c entity.Customer
	q := r.db.Rebind(`SELECT ` + customerColumns + ` FROM customers WHERE id = ?`)
	if err := r.db.GetContext(ctx, &c, q, id); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) count(ctx context.Context, where string, args ...any) (int64, error) {
	q := `SELECT COUNT(1) FROM customers`
	if where != "" {
		q += ` WHERE ` + where
	}
	var n int64
	if err := r.db.GetContext(ctx, &n, r.db.Rebind(q), args...); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *Repo) ExistsByCpf(ctx context.Context, cpf string) (bool, error) {
	n, err := r.count(ctx, `cpf = ?`, cpf)
	return n > 0, err
}

func (r *Repo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	n, err := r.count(ctx, `LOWER(email) = LOWER(?)`, email)
	return n > 0, err
}

func (r *Repo) Count(ctx context.Context) (int64, error) {
	return r.count(ctx, "")
}

func (r *Repo) CountByStatus(ctx context.Context, st entity.Status) (int64, error) {
	return r.count(ctx, `status = ?`, st)
}

func (r *Repo) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	return r.count(ctx, `created_at >= ?`, since.UTC())
}

// List returns one page of customers matching f and the total match count.
func (r *Repo) List(ctx context.Context, f entity.Filter) ([]*entity.Customer, int64, error) {
	col, ok := sortColumns[f.SortBy]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidSort, f.SortBy)
	}
	dir := "ASC"
	if strings.EqualFold(f.SortDir, "desc") {
		dir = "DESC"
	}

	var (
		conds []string
		args  []any
	)
	if f.Nome != "" {
		conds = append(conds, `LOWER(nome) LIKE ?`)
		args = append(args, "%"+strings.ToLower(f.Nome)+"%")
	}
	if f.Email != "" {
		conds = append(conds, `LOWER(email) LIKE ?`)
		args = append(args, "%"+strings.ToLower(f.Email)+"%")
	}
	if f.Status != "" {
		conds = append(conds, `status = ?`)
		args = append(args, f.Status)
	}
	where := strings.Join(conds, " AND ")

	total, err := r.count(ctx, where, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("count customers: %w", err)
	}

	q := `SELECT ` + customerColumns + ` FROM customers`
	if where != "" {
		q += ` WHERE ` + where
	}
	// id breaks ties so pages are stable
	q += ` ORDER BY ` + col + ` ` + dir + `, id ` + dir + ` LIMIT ? OFFSET ?`
	pageArgs := append(append([]any{}, args...), f.Size, f.Page*f.Size)

	out := []*entity.Customer{}
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(q), pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("list customers: %w", err)
	}
	return out, total, nil
}
