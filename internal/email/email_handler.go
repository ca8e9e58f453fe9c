package email

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	appctx "github.com/mfcarvalho/email-triage/backend/internal/context"
	"github.com/mfcarvalho/email-triage/backend/internal/nlp"
	"github.com/mfcarvalho/email-triage/backend/internal/parser"
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

// Handler handles HTTP requests for email workflow endpoints
type Handler struct {
	emailService   *Service
	maxUploadBytes int64
	validate       *validator.Validate
	logger         *slog.Logger
}

// NewHandler creates a new Handler instance
func NewHandler(emailService *Service, maxUploadBytes int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		emailService:   emailService,
		maxUploadBytes: maxUploadBytes,
		validate:       validator.New(),
		logger:         logger,
	}
}

// Classify handles POST /api/v1/emails/classify.
// Accepts form fields email_destinatario (required), assunto, and
// either email_body or an uploaded TXT/PDF file in arquivo.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	userID, ok := appctx.ExtractUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "AUTH_TOKEN_INVALID", "Token inválido ou expirado", nil)
		return
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	isMultipart := strings.HasPrefix(mediaType, "multipart/")
	if isMultipart {
		if err := r.ParseMultipartForm(h.maxUploadBytes + 1); err != nil {
			h.writeError(w, http.StatusBadRequest, CodeValidationError, "Formulário multipart inválido", nil)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.writeError(w, http.StatusBadRequest, CodeValidationError, "Formulário inválido", nil)
			return
		}
	}

	destinatario := strings.TrimSpace(r.FormValue("email_destinatario"))
	if err := h.validate.Var(destinatario, "required,email"); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "email_destinatario é obrigatório e deve ser um email válido", nil)
		return
	}

	var assunto *string
	if value := strings.TrimSpace(r.FormValue("assunto")); value != "" {
		assunto = &value
	}

	body := r.FormValue("email_body")

	if isMultipart {
		file, header, err := r.FormFile("arquivo")
		switch {
		case err == nil:
			defer file.Close()
			extracted, ok := h.extractUpload(w, file, header.Filename, header.Header.Get("Content-Type"))
			if !ok {
				return
			}
			body = extracted
		case errors.Is(err, http.ErrMissingFile):
			// typed body only
		default:
			h.writeError(w, http.StatusBadRequest, CodeValidationError, "Arquivo inválido", nil)
			return
		}
	}

	if strings.TrimSpace(body) == "" {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Email vazio", nil)
		return
	}

	response, err := h.emailService.Classify(r.Context(), userID, body, destinatario, assunto)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusCreated, response)
}

// GenerateResponse handles POST /api/v1/emails/{id}/generate-response
func (h *Handler) GenerateResponse(w http.ResponseWriter, r *http.Request) {
	userID, emailID, ok := h.scopedIDs(w, r)
	if !ok {
		return
	}

	response, err := h.emailService.GenerateResponse(r.Context(), emailID, userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusOK, response)
}

// MarkResponded handles POST /api/v1/emails/{id}/mark-responded
func (h *Handler) MarkResponded(w http.ResponseWriter, r *http.Request) {
	userID, emailID, ok := h.scopedIDs(w, r)
	if !ok {
		return
	}

	response, err := h.emailService.MarkResponded(r.Context(), emailID, userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusOK, response)
}

// History handles GET /api/v1/emails/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := appctx.ExtractUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "AUTH_TOKEN_INVALID", "Token inválido ou expirado", nil)
		return
	}

	var respondido *bool
	if value := r.URL.Query().Get("respondido"); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, CodeValidationError, "respondido deve ser true ou false", nil)
			return
		}
		respondido = &parsed
	}

	response, err := h.emailService.ListHistory(r.Context(), userID, respondido)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusOK, response)
}

// GetByID handles GET /api/v1/emails/{id}
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	userID, emailID, ok := h.scopedIDs(w, r)
	if !ok {
		return
	}

	response, err := h.emailService.GetDetail(r.Context(), emailID, userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusOK, response)
}

// extractUpload validates and converts an uploaded file into text.
// Size is enforced by reading one byte beyond the limit.
func (h *Handler) extractUpload(w http.ResponseWriter, file io.Reader, filename, contentType string) (string, bool) {
	if !parser.IsSupported(filename) {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Tipo de arquivo não suportado (use TXT ou PDF)", nil)
		return "", false
	}

	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil || !parser.SupportedContentTypes[mediaType] {
			h.writeError(w, http.StatusBadRequest, CodeValidationError, "Content-Type do arquivo não suportado", nil)
			return "", false
		}
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Falha ao ler o arquivo", nil)
		return "", false
	}
	if int64(len(data)) > h.maxUploadBytes {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Arquivo excede o tamanho máximo permitido", nil)
		return "", false
	}

	text, err := parser.ExtractText(filename, data)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Não foi possível extrair texto do arquivo", nil)
		return "", false
	}

	return text, true
}

// scopedIDs extracts the authenticated user ID and the email ID from
// the request
func (h *Handler) scopedIDs(w http.ResponseWriter, r *http.Request) (userID, emailID uuid.UUID, ok bool) {
	userID, found := appctx.ExtractUserID(r.Context())
	if !found {
		h.writeError(w, http.StatusUnauthorized, "AUTH_TOKEN_INVALID", "Token inválido ou expirado", nil)
		return uuid.Nil, uuid.Nil, false
	}

	emailID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Identificador de email inválido", nil)
		return uuid.Nil, uuid.Nil, false
	}

	return userID, emailID, true
}

// writeServiceError translates workflow and gateway errors to
// transport status codes. This is the only place that translation
// happens.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var cfgErr *nlp.ConfigError
	var extErr *nlp.ExternalServiceError

	switch {
	case errors.As(err, &cfgErr):
		details := map[string][]string{
			"service": {cfgErr.Service},
			"hint":    {"defina a chave de API no ambiente do serviço e reinicie"},
		}
		h.writeError(w, http.StatusInternalServerError, CodeConfigError, cfgErr.Detail, details)
	case errors.As(err, &extErr):
		details := map[string][]string{
			"service":  {extErr.Service},
			"endpoint": {extErr.Endpoint},
			"detail":   {extErr.Detail},
		}
		if extErr.StatusCode > 0 {
			details["status_code"] = []string{strconv.Itoa(extErr.StatusCode)}
		}
		h.writeError(w, http.StatusBadGateway, CodeExternalError, "Falha ao chamar o serviço externo de IA", details)
	case errors.Is(err, ErrEmailNotFound):
		h.writeError(w, http.StatusNotFound, CodeEmailNotFound, "Email não encontrado", nil)
	case errors.Is(err, ErrNotClassified):
		h.writeError(w, http.StatusBadRequest, CodeNotClassified, "Email sem classificação", nil)
	case errors.Is(err, ErrEmptyGeneration):
		h.writeError(w, http.StatusBadGateway, CodeEmptyGeneration, "Resposta vazia gerada pelo modelo", nil)
	default:
		h.logger.Error("email workflow failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Erro inesperado", nil)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, statusCode int, code, message string, details map[string][]string) {
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
