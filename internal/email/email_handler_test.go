package email

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	appctx "github.com/mfcarvalho/email-triage/backend/internal/context"
	"github.com/mfcarvalho/email-triage/backend/internal/nlp"
)

const testMaxUpload = 1024

// newTestRouter wires the email routes with a stub auth middleware
// that injects the given user into every request
func newTestRouter(service *Service, userID uuid.UUID) chi.Router {
	handler := NewHandler(service, testMaxUpload, nil)

	injectUser := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := appctx.WithUser(r.Context(), userID, "analista@empresa.com")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
	passthrough := func(next http.Handler) http.Handler { return next }

	r := chi.NewRouter()
	RegisterRoutes(r, handler, injectUser, passthrough)
	return r
}

func postForm(t *testing.T, router http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func postMultipart(t *testing.T, router http.Handler, fields map[string]string, filename string, fileContent []byte) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	if filename != "" {
		part, err := writer.CreateFormFile("arquivo", filename)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := part.Write(fileContent); err != nil {
			t.Fatalf("failed to write file content: %v", err)
		}
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/emails/classify", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestClassifyEndpoint_Success(t *testing.T) {
	repo := newMockEmailRepo()
	classifier := &mockClassifier{result: nlp.Classification{Label: "Produtivo", Score: 0.95}}
	service := newTestService(repo, classifier, nil)
	router := newTestRouter(service, uuid.New())

	rec := postForm(t, router, "/emails/classify", url.Values{
		"email_destinatario": {"suporte@empresa.com"},
		"assunto":            {"Sistema fora do ar"},
		"email_body":         {"Preciso de suporte urgente, aguardo retorno"},
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Error("expected success response")
	}
}

func TestClassifyEndpoint_MissingDestinatario(t *testing.T) {
	service := newTestService(newMockEmailRepo(), nil, nil)
	router := newTestRouter(service, uuid.New())

	rec := postForm(t, router, "/emails/classify", url.Values{
		"email_body": {"corpo do email"},
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Code != CodeValidationError {
		t.Errorf("expected VALIDATION_ERROR, got %+v", resp.Error)
	}
}

func TestClassifyEndpoint_InvalidDestinatario(t *testing.T) {
	service := newTestService(newMockEmailRepo(), nil, nil)
	router := newTestRouter(service, uuid.New())

	rec := postForm(t, router, "/emails/classify", url.Values{
		"email_destinatario": {"nao-e-um-email"},
		"email_body":         {"corpo do email"},
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestClassifyEndpoint_EmptyBody(t *testing.T) {
	service := newTestService(newMockEmailRepo(), nil, nil)
	router := newTestRouter(service, uuid.New())

	rec := postForm(t, router, "/emails/classify", url.Values{
		"email_destinatario": {"suporte@empresa.com"},
		"email_body":         {"   "},
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error == nil || !strings.Contains(resp.Error.Message, "Email vazio") {
		t.Errorf("expected empty email message, got %+v", resp.Error)
	}
}

func TestClassifyEndpoint_TXTUpload(t *testing.T) {
	repo := newMockEmailRepo()
	classifier := &mockClassifier{result: nlp.Classification{Label: "Produtivo", Score: 0.9}}
	service := newTestService(repo, classifier, nil)
	router := newTestRouter(service, uuid.New())

	rec := postMultipart(t, router,
		map[string]string{"email_destinatario": "suporte@empresa.com"},
		"email.txt", []byte("Solicito acesso ao sistema."))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(classifier.lastInput, "Solicito acesso ao sistema.") {
		t.Errorf("expected file content classified, got %q", classifier.lastInput)
	}
}

func TestClassifyEndpoint_UnsupportedFileType(t *testing.T) {
	service := newTestService(newMockEmailRepo(), nil, nil)
	router := newTestRouter(service, uuid.New())

	rec := postMultipart(t, router,
		map[string]string{"email_destinatario": "suporte@empresa.com"},
		"planilha.xlsx", []byte("dados"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestClassifyEndpoint_FileTooLarge(t *testing.T) {
	service := newTestService(newMockEmailRepo(), nil, nil)
	router := newTestRouter(service, uuid.New())

	rec := postMultipart(t, router,
		map[string]string{"email_destinatario": "suporte@empresa.com"},
		"grande.txt", bytes.Repeat([]byte("a"), testMaxUpload+1))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestClassifyEndpoint_ConfigErrorMapsTo500(t *testing.T) {
	classifier := &mockClassifier{err: &nlp.ConfigError{Service: "classifier", Detail: "HUGGINGFACE_API_KEY não configurada"}}
	service := newTestService(newMockEmailRepo(), classifier, nil)
	router := newTestRouter(service, uuid.New())

	rec := postForm(t, router, "/emails/classify", url.Values{
		"email_destinatario": {"suporte@empresa.com"},
		"email_body":         {"corpo"},
	})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Code != CodeConfigError {
		t.Fatalf("expected CONFIGURATION_ERROR, got %+v", resp.Error)
	}
	if len(resp.Error.Details["hint"]) == 0 {
		t.Error("expected remediation hint in error details")
	}
}

func TestClassifyEndpoint_ExternalErrorMapsTo502(t *testing.T) {
	classifier := &mockClassifier{err: &nlp.ExternalServiceError{
		Service:    "classifier",
		Detail:     "model is loading",
		StatusCode: 503,
		Endpoint:   "https://api-inference.huggingface.co/models/facebook/bart-large-mnli",
	}}
	service := newTestService(newMockEmailRepo(), classifier, nil)
	router := newTestRouter(service, uuid.New())

	rec := postForm(t, router, "/emails/classify", url.Values{
		"email_destinatario": {"suporte@empresa.com"},
		"email_body":         {"corpo"},
	})

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Code != CodeExternalError {
		t.Fatalf("expected EXTERNAL_SERVICE_ERROR, got %+v", resp.Error)
	}
	if got := resp.Error.Details["status_code"]; len(got) == 0 || got[0] != "503" {
		t.Errorf("expected status_code detail 503, got %v", got)
	}
	if got := resp.Error.Details["service"]; len(got) == 0 || got[0] != "classifier" {
		t.Errorf("expected service detail classifier, got %v", got)
	}
}

func TestGenerateResponseEndpoint_InvalidID(t *testing.T) {
	service := newTestService(newMockEmailRepo(), nil, nil)
	router := newTestRouter(service, uuid.New())

	req := httptest.NewRequest(http.MethodPost, "/emails/nao-e-uuid/generate-response", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGenerateResponseEndpoint_NotFound(t *testing.T) {
	service := newTestService(newMockEmailRepo(), nil, nil)
	router := newTestRouter(service, uuid.New())

	req := httptest.NewRequest(http.MethodPost, "/emails/"+uuid.NewString()+"/generate-response", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Code != CodeEmailNotFound {
		t.Errorf("expected EMAIL_NOT_FOUND, got %+v", resp.Error)
	}
}

func TestGenerateResponseEndpoint_EmptyGenerationMapsTo502(t *testing.T) {
	repo := newMockEmailRepo()
	generator := &mockGenerator{reply: "  "}
	service := newTestService(repo, nil, generator)
	userID := uuid.New()
	record := seedRecord(t, repo, userID, strPtr("Produtivo"))
	router := newTestRouter(service, userID)

	req := httptest.NewRequest(http.MethodPost, "/emails/"+record.ID.String()+"/generate-response", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Code != CodeEmptyGeneration {
		t.Errorf("expected EMPTY_GENERATION, got %+v", resp.Error)
	}
}

func TestHistoryEndpoint_InvalidFilter(t *testing.T) {
	service := newTestService(newMockEmailRepo(), nil, nil)
	router := newTestRouter(service, uuid.New())

	req := httptest.NewRequest(http.MethodGet, "/emails/history?respondido=talvez", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHistoryEndpoint_Success(t *testing.T) {
	repo := newMockEmailRepo()
	service := newTestService(repo, nil, nil)
	userID := uuid.New()
	seedRecord(t, repo, userID, strPtr("Produtivo"))
	router := newTestRouter(service, userID)

	req := httptest.NewRequest(http.MethodGet, "/emails/history", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Success bool            `json:"success"`
		Data    HistoryResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data.Total != 1 || len(resp.Data.Emails) != 1 {
		t.Errorf("expected 1 record, got total %d len %d", resp.Data.Total, len(resp.Data.Emails))
	}
}

func TestMarkRespondedEndpoint_Success(t *testing.T) {
	repo := newMockEmailRepo()
	service := newTestService(repo, nil, nil)
	userID := uuid.New()
	record := seedRecord(t, repo, userID, strPtr("Produtivo"))
	router := newTestRouter(service, userID)

	req := httptest.NewRequest(http.MethodPost, "/emails/"+record.ID.String()+"/mark-responded", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data DetailResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Data.Respondido || resp.Data.RespondidoEm == nil {
		t.Errorf("expected responded flag and timestamp, got %+v", resp.Data)
	}
}
