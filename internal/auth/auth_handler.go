package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	appctx "github.com/mfcarvalho/email-triage/backend/internal/context"
)

// APIResponse represents the standard API response format
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents the error detail in API response
type APIError struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

// AuthHandler handles HTTP requests for authentication endpoints
type AuthHandler struct {
	authService *AuthService
	validate    *validator.Validate
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(authService *AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		validate:    validator.New(),
	}
}

// Login handles user authentication
// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Corpo da requisição inválido", nil)
		return
	}

	if details := h.validateRequest(req); details != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Falha de validação", details)
		return
	}

	response, err := h.authService.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.writeError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Credenciais inválidas", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Erro inesperado", nil)
		return
	}

	h.writeSuccess(w, http.StatusOK, response)
}

// ChangePassword handles password changes for the authenticated user
// POST /api/v1/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := appctx.ExtractUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, CodeAuthTokenInvalid, "Token inválido ou expirado", nil)
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Corpo da requisição inválido", nil)
		return
	}

	if details := h.validateRequest(req); details != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Falha de validação", details)
		return
	}

	if err := h.authService.ChangePassword(r.Context(), userID, req); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.writeError(w, http.StatusBadRequest, CodeInvalidCredentials, "Senha atual inválida", nil)
			return
		}
		if errors.Is(err, ErrUserNotFound) {
			h.writeError(w, http.StatusUnauthorized, CodeUserNotFound, "Usuário não encontrado", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Erro inesperado", nil)
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]string{
		"mensagem": "Senha alterada com sucesso",
	})
}

// GetMe handles getting the current user profile
// GET /api/v1/auth/me
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := appctx.ExtractUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, CodeAuthTokenInvalid, "Token inválido ou expirado", nil)
		return
	}

	profile, err := h.authService.Profile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			h.writeError(w, http.StatusUnauthorized, CodeUserNotFound, "Usuário não encontrado", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Erro inesperado", nil)
		return
	}

	h.writeSuccess(w, http.StatusOK, profile)
}

// validateRequest runs struct validation and maps failures to
// field-keyed details
func (h *AuthHandler) validateRequest(req interface{}) map[string][]string {
	err := h.validate.Struct(req)
	if err == nil {
		return nil
	}

	details := make(map[string][]string)
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, fe := range validationErrors {
			details[fe.Field()] = append(details[fe.Field()], "failed "+fe.Tag()+" validation")
		}
		return details
	}

	details["request"] = []string{err.Error()}
	return details
}

// writeSuccess writes a successful JSON response
func (h *AuthHandler) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// writeError writes an error JSON response
func (h *AuthHandler) writeError(w http.ResponseWriter, statusCode int, code, message string, details map[string][]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now().UTC(),
	})
}
