package customer

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-pulse/internal/customer/entity"
	"github.com/ovaphlow/pitchfork/service-pulse/internal/customer/repo"
	"github.com/ovaphlow/pitchfork/service-pulse/pkg/banking"
)

// Handler exposes HTTP endpoints for customers.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the customer endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/stats", h.Stats)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

type Request struct {
	Nome     string `json:"nome"`
	Cpf      string `json:"cpf"`
	Email    string `json:"email"`
	Telefone string `json:"telefone"`
	Status   string `json:"status,omitempty"`
}

// validate checks request shape. withCpf is false on update, where the
// CPF is ignored.
func (req Request) validate(withCpf bool) (map[string]string, entity.Status) {
	errs := map[string]string{}
	switch n := len([]rune(strings.TrimSpace(req.Nome))); {
	case n == 0:
		errs["nome"] = "Nome e obrigatorio"
	case n < 2 || n > 100:
		errs["nome"] = "Nome deve ter entre 2 e 100 caracteres"
	}
	if withCpf {
		switch {
		case strings.TrimSpace(req.Cpf) == "":
			errs["cpf"] = "CPF e obrigatorio"
		case !banking.IsCPFFormat(req.Cpf):
			errs["cpf"] = "CPF deve estar no formato 11111111111 ou 111.111.111-11"
		}
	}
	switch {
	case strings.TrimSpace(req.Email) == "":
		errs["email"] = "Email e obrigatorio"
	case !banking.IsValidEmail(req.Email):
		errs["email"] = "Email deve ser valido"
	}
	switch {
	case strings.TrimSpace(req.Telefone) == "":
		errs["telefone"] = "Telefone e obrigatorio"
	case !banking.IsValidPhone(req.Telefone):
		errs["telefone"] = "Telefone deve estar no formato (11) 99999-9999"
	}
	var status entity.Status
	if req.Status != "" {
		st, ok := entity.ParseStatus(req.Status)
		if !ok {
			errs["status"] = "Status deve ser ATIVO, INATIVO ou SUSPENSO"
		}
		status = st
	}
	return errs, status
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := entity.Filter{
		Nome:    q.Get("nome"),
		Email:   q.Get("email"),
		SortBy:  q.Get("sortBy"),
		SortDir: q.Get("sortDir"),
	}
	var err error
	if f.Page, err = intParam(q.Get("page"), 0); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid page"})
		return
	}
	if f.Size, err = intParam(q.Get("size"), DefaultPageSize); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid size"})
		return
	}
	// the offset must stay a valid 32-bit value on every driver
	if f.Page > math.MaxInt32/effectiveSize(f.Size) {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid page"})
		return
	}
	if raw := q.Get("status"); raw != "" {
		st, ok := entity.ParseStatus(raw)
		if !ok {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid status"})
			return
		}
		f.Status = st
	}

	page, err := h.svc.List(r.Context(), f)
	if err != nil {
		if errors.Is(err, repo.ErrInvalidSort) {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid sort field"})
			return
		}
		h.logger.Errorw("list customers failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Unable to retrieve customers"})
		return
	}
	h.writeJSON(w, http.StatusOK, page)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "Customer not found"})
			return
		}
		h.logger.Errorw("get customer failed", "customer_id", id, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Unable to retrieve customer"})
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid customer payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	errs, status := req.validate(true)
	if len(errs) > 0 {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Validation failed", "fields": errs})
		return
	}
	c, err := h.svc.Create(r.Context(), CreateInput{
		Nome:     req.Nome,
		Cpf:      req.Cpf,
		Email:    req.Email,
		Telefone: req.Telefone,
		Status:   status,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateCpf):
			h.writeJSON(w, http.StatusConflict, map[string]string{"error": "CPF already registered"})
		case errors.Is(err, ErrDuplicateEmail):
			h.writeJSON(w, http.StatusConflict, map[string]string{"error": "Email already registered"})
		default:
			h.logger.Errorw("create customer failed", "err", err)
			h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Unable to create customer"})
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid customer payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	errs, status := req.validate(false)
	if len(errs) > 0 {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Validation failed", "fields": errs})
		return
	}
	c, err := h.svc.Update(r.Context(), id, UpdateInput{
		Nome:     req.Nome,
		Email:    req.Email,
		Telefone: req.Telefone,
		Status:   status,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "Customer not found"})
		case errors.Is(err, ErrDuplicateEmail):
			h.writeJSON(w, http.StatusConflict, map[string]string{"error": "Email already registered"})
		default:
			h.logger.Errorw("update customer failed", "customer_id", id, "err", err)
			h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Unable to update customer"})
		}
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.svc.Deactivate(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "Customer not found"})
			return
		}
		h.logger.Errorw("deactivate customer failed", "customer_id", id, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Unable to delete customer"})
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		h.logger.Errorw("customer stats failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Unable to retrieve statistics"})
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

// effectiveSize mirrors the clamping done by Service.List.
func effectiveSize(size int) int {
	switch {
	case size <= 0:
		return DefaultPageSize
	case size > MaxPageSize:
		return MaxPageSize
	}
	return size
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
