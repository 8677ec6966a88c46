package customer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-pulse/internal/customer/entity"
	"github.com/ovaphlow/pitchfork/service-pulse/pkg/banking"
	"github.com/ovaphlow/pitchfork/service-pulse/pkg/database"
)

var (
	ErrNotFound       = errors.New("customer not found")
	ErrDuplicateCpf   = errors.New("cpf already registered")
	ErrDuplicateEmail = errors.New("email already registered")
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	DefaultSortBy   = "nome"
	recentWindow    = 30 * 24 * time.Hour
)

// Store is the persistence the service needs. *repo.Repo implements it.
type Store interface {
	Create(ctx context.Context, c *entity.Customer) error
	Update(ctx context.Context, c *entity.Customer) (int64, error)
	GetByID(ctx context.Context, id string) (*entity.Customer, error)
	ExistsByCpf(ctx context.Context, cpf string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	List(ctx context.Context, f entity.Filter) ([]*entity.Customer, int64, error)
	Count(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context, st entity.Status) (int64, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int64, error)
}

type CreateInput struct {
	Nome     string
	Cpf      string
	Email    string
	Telefone string
	Status   entity.Status
}

// UpdateInput has no Cpf: a customer's CPF is fixed once created.
type UpdateInput struct {
	Nome     string
	Email    string
	Telefone string
	Status   entity.Status
}

type Service struct {
	store  Store
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewService(store Store, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// List returns a page of customers. Without an explicit status only ATIVO
// customers are listed.
func (s *Service) List(ctx context.Context, f entity.Filter) (*entity.Page, error) {
	if f.Page < 0 {
		f.Page = 0
	}
	f.Size = effectiveSize(f.Size)
	if f.SortBy == "" {
		f.SortBy = DefaultSortBy
	}
	if f.Status == "" {
		f.Status = entity.StatusAtivo
	}
	f.Nome = strings.TrimSpace(f.Nome)
	f.Email = strings.TrimSpace(f.Email)

	rows, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	pages := int((total + int64(f.Size) - 1) / int64(f.Size))
	return &entity.Page{
		Customers:     rows,
		CurrentPage:   f.Page,
		TotalElements: total,
		TotalPages:    pages,
		PageSize:      f.Size,
	}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*entity.Customer, error) {
	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.Customer, error) {
	c := &entity.Customer{
		Nome:     strings.TrimSpace(in.Nome),
		Cpf:      banking.CleanDocument(in.Cpf),
		Email:    strings.ToLower(strings.TrimSpace(in.Email)),
		Telefone: strings.TrimSpace(in.Telefone),
		Status:   in.Status,
	}
	if c.Status == "" {
		c.Status = entity.StatusAtivo
	}

	exists, err := s.store.ExistsByCpf(ctx, c.Cpf)
	if err != nil {
		return nil, fmt.Errorf("check cpf: %w", err)
	}
	if exists {
		return nil, ErrDuplicateCpf
	}
	exists, err = s.store.ExistsByEmail(ctx, c.Email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, ErrDuplicateEmail
	}

	if err := s.store.Create(ctx, c); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, s.resolveDuplicate(ctx, c.Cpf, c.Email, err)
		}
		return nil, err
	}
	s.logger.Infow("customer created", "customer_id", c.ID, "cpf", banking.MaskCPF(c.Cpf))
	return c, nil
}

func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*entity.Customer, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !strings.EqualFold(email, c.Email) {
		exists, err := s.store.ExistsByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("check email: %w", err)
		}
		if exists {
			return nil, ErrDuplicateEmail
		}
	}

	c.Nome = strings.TrimSpace(in.Nome)
	c.Email = email
	c.Telefone = strings.TrimSpace(in.Telefone)
	if in.Status != "" {
		c.Status = in.Status
	}
	n, err := s.store.Update(ctx, c)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	s.logger.Infow("customer updated", "customer_id", c.ID)
	return c, nil
}

// Deactivate soft-deletes the customer by moving it to INATIVO. Repeating
// it on an inactive customer succeeds.
func (s *Service) Deactivate(ctx context.Context, id string) (*entity.Deletion, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Deactivate()
	n, err := s.store.Update(ctx, c)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	s.logger.Infow("customer deactivated", "customer_id", c.ID)
	return &entity.Deletion{
		CustomerID:           c.ID,
		CustomerName:         c.Nome,
		Action:               "DEACTIVATED",
		Message:              "Customer deactivated successfully",
		ShouldRemoveFromList: true,
		Timestamp:            s.now().UnixMilli(),
	}, nil
}

func (s *Service) Stats(ctx context.Context) (*entity.Stats, error) {
	now := s.now()
	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count customers: %w", err)
	}
	active, err := s.store.CountByStatus(ctx, entity.StatusAtivo)
	if err != nil {
		return nil, fmt.Errorf("count active: %w", err)
	}
	inactive, err := s.store.CountByStatus(ctx, entity.StatusInativo)
	if err != nil {
		return nil, fmt.Errorf("count inactive: %w", err)
	}
	recent, err := s.store.CountCreatedSince(ctx, now.Add(-recentWindow))
	if err != nil {
		return nil, fmt.Errorf("count recent: %w", err)
	}
	return &entity.Stats{
		TotalCustomers:    total,
		ActiveCustomers:   active,
		InactiveCustomers: inactive,
		RecentCustomers:   recent,
		Timestamp:         now,
	}, nil
}

func (s *Service) resolveDuplicate(ctx context.Context, cpf, email string, cause error) error {
	if ok, err := s.store.ExistsByCpf(ctx, cpf); err == nil && ok {
		return ErrDuplicateCpf
	}
	if ok, err := s.store.ExistsByEmail(ctx, email); err == nil && ok {
		return ErrDuplicateEmail
	}
	return cause
}
