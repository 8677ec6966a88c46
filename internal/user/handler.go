package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-pulse/pkg/banking"
)

var elevenDigits = regexp.MustCompile(`^\d{11}$`)

// bcrypt accepts at most 72 bytes of input.
const maxPasswordBytes = 72

// Handler exposes HTTP endpoints for login, registration and refresh.
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type LoginRequest struct {
	Cpf      string `json:"cpf"`
	Password string `json:"password"`
}

func (req LoginRequest) validate() map[string]string {
	errs := map[string]string{}
	switch {
	case strings.TrimSpace(req.Cpf) == "":
		errs["cpf"] = "CPF is required"
	case !elevenDigits.MatchString(req.Cpf):
		errs["cpf"] = "CPF must contain exactly 11 digits"
	}
	if strings.TrimSpace(req.Password) == "" {
		errs["password"] = "Password is required"
	}
	return errs
}

type RegisterRequest struct {
	Cpf      string `json:"cpf"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

func (req RegisterRequest) validate() map[string]string {
	errs := map[string]string{}
	switch {
	case strings.TrimSpace(req.Cpf) == "":
		errs["cpf"] = "CPF is required"
	case !elevenDigits.MatchString(req.Cpf):
		errs["cpf"] = "CPF must contain exactly 11 digits"
	}
	switch {
	case strings.TrimSpace(req.Email) == "":
		errs["email"] = "Email is required"
	case !banking.IsValidEmail(req.Email):
		errs["email"] = "Email must be valid"
	}
	switch {
	case strings.TrimSpace(req.Password) == "":
		errs["password"] = "Password is required"
	case len(req.Password) < 8:
		errs["password"] = "Password must be at least 8 characters"
	case len(req.Password) > maxPasswordBytes:
		errs["password"] = "Password must not exceed 72 bytes"
	}
	switch {
	case strings.TrimSpace(req.FullName) == "":
		errs["fullName"] = "Full name is required"
	case len([]rune(req.FullName)) > 100:
		errs["fullName"] = "Full name must not exceed 100 characters"
	}
	return errs
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Validation failed", "fields": errs})
		return
	}
	res, err := h.svc.Login(r.Context(), req.Cpf, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error":   "Invalid credentials",
				"message": "CPF or password is incorrect",
			})
			return
		}
		h.logger.Errorw("login failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Login failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid register payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Validation failed", "fields": errs})
		return
	}
	res, err := h.svc.Register(r.Context(), RegisterInput(req))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCpf):
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid CPF"})
		case errors.Is(err, ErrDuplicateCpf):
			h.writeJSON(w, http.StatusConflict, map[string]string{
				"error":   "CPF already exists",
				"message": "CPF is already registered",
			})
		case errors.Is(err, ErrDuplicateEmail):
			h.writeJSON(w, http.StatusConflict, map[string]string{
				"error":   "Email already exists",
				"message": "Please use a different email address",
			})
		default:
			h.logger.Errorw("registration failed", "cpf", banking.MaskCPF(req.Cpf), "err", err)
			h.writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":   "Registration failed",
				"message": "Unable to create user account",
			})
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, res)
}

// Refresh reads the refresh token from the Authorization header.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw, ok := BearerToken(r)
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid refresh token"})
		return
	}
	res, err := h.svc.Refresh(r.Context(), raw)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid refresh token"})
			return
		}
		h.logger.Errorw("token refresh failed", "err", err)
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Token refresh failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// Me returns the user-info projection of the authenticated caller.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}
	h.writeJSON(w, http.StatusOK, u.Info())
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(auth[len(prefix):])
	return tok, tok != ""
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
