package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/mfcarvalho/email-triage/backend/internal/config"
)

func newTestClassifier(serverURL string) *ClassifierClient {
	return NewClassifierClient(config.ClassifierConfig{
		APIKey:       "test-key",
		Model:        "test-model",
		EndpointBase: serverURL,
		Timeout:      5 * time.Second,
	})
}

func TestClassify_Success(t *testing.T) {
	var captured zeroShotRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/test-model" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected Authorization header: %s", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}

		json.NewEncoder(w).Encode(zeroShotResponse{
			Labels: []string{"Produtivo (requer ação ou resposta)", "Improdutivo (não requer ação)"},
			Scores: []float64{0.95, 0.05},
		})
	}))
	defer server.Close()

	client := newTestClassifier(server.URL)

	result, err := client.Classify(context.Background(), "Preciso de suporte urgente, aguardo retorno")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	if result.Label != "Produtivo" {
		t.Errorf("expected label Produtivo, got %s", result.Label)
	}
	if result.Score != 0.95 {
		t.Errorf("expected score 0.95, got %f", result.Score)
	}

	if captured.Parameters.HypothesisTemplate != "Este email é {}." {
		t.Errorf("unexpected hypothesis template: %s", captured.Parameters.HypothesisTemplate)
	}
	if len(captured.Parameters.CandidateLabels) != 2 {
		t.Errorf("expected 2 candidate labels, got %d", len(captured.Parameters.CandidateLabels))
	}
}

func TestClassify_StripsSignatureFromInput(t *testing.T) {
	var captured zeroShotRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(zeroShotResponse{
			Labels: []string{"Improdutivo (não requer ação)"},
			Scores: []float64{0.8},
		})
	}))
	defer server.Close()

	client := newTestClassifier(server.URL)

	_, err := client.Classify(context.Background(), "Feliz natal para todos!\n\nAtenciosamente,\nJoão Silva")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	if captured.Inputs != "Feliz natal para todos!" {
		t.Errorf("expected signature stripped from input, got %q", captured.Inputs)
	}
}

func TestClassify_MissingAPIKey(t *testing.T) {
	client := NewClassifierClient(config.ClassifierConfig{
		APIKey:       "",
		Model:        "test-model",
		EndpointBase: "http://localhost:0",
	})

	_, err := client.Classify(context.Background(), "qualquer texto")

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cfgErr.Service != "classifier" {
		t.Errorf("expected service classifier, got %s", cfgErr.Service)
	}
	if !strings.Contains(cfgErr.Detail, "HUGGINGFACE_API_KEY") {
		t.Errorf("expected detail to name the missing variable, got %s", cfgErr.Detail)
	}
}

func TestClassify_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "model is loading"})
	}))
	defer server.Close()

	client := newTestClassifier(server.URL)

	_, err := client.Classify(context.Background(), "texto")

	var extErr *ExternalServiceError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ExternalServiceError, got %v", err)
	}
	if extErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", extErr.StatusCode)
	}
	if extErr.Detail != "model is loading" {
		t.Errorf("expected detail from error body, got %q", extErr.Detail)
	}
	if extErr.Endpoint == "" {
		t.Error("expected endpoint to be set")
	}
}

func TestClassify_ErrorFieldInBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(zeroShotResponse{Error: "invalid input"})
	}))
	defer server.Close()

	client := newTestClassifier(server.URL)

	_, err := client.Classify(context.Background(), "texto")

	var extErr *ExternalServiceError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ExternalServiceError, got %v", err)
	}
	if extErr.Detail != "invalid input" {
		t.Errorf("unexpected detail: %q", extErr.Detail)
	}
}

func TestClassify_EmptyLabels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(zeroShotResponse{})
	}))
	defer server.Close()

	client := newTestClassifier(server.URL)

	_, err := client.Classify(context.Background(), "texto")

	var extErr *ExternalServiceError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ExternalServiceError, got %v", err)
	}
}

func TestClassify_NetworkError(t *testing.T) {
	// Closed server forces a connection failure
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := newTestClassifier(server.URL)

	_, err := client.Classify(context.Background(), "texto")

	var extErr *ExternalServiceError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ExternalServiceError, got %v", err)
	}
	if extErr.StatusCode != 0 {
		t.Errorf("expected no status code on network error, got %d", extErr.StatusCode)
	}
}

func TestStripSignature(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no marker keeps text",
			input:    "Preciso do relatório até sexta.",
			expected: "Preciso do relatório até sexta.",
		},
		{
			name:     "atenciosamente cut",
			input:    "Segue o anexo.\n\nAtenciosamente,\nMaria",
			expected: "Segue o anexo.",
		},
		{
			name:     "case insensitive match",
			input:    "Tudo certo.\nATENCIOSAMENTE\nJoão",
			expected: "Tudo certo.",
		},
		{
			name:     "marker order wins over text position",
			input:    "Cordialmente falando, o projeto vai bem.\nAtenciosamente, Ana",
			expected: "Cordialmente falando, o projeto vai bem.",
		},
		{
			name:     "att with comma",
			input:    "Confirmo presença.\natt, Pedro",
			expected: "Confirmo presença.",
		},
		{
			name:     "length-shrinking case mapping before marker",
			input:    strings.Repeat("Ⱥ", 10) + "att.",
			expected: strings.Repeat("Ⱥ", 10),
		},
		{
			name:     "length-growing case mapping before marker",
			input:    strings.Repeat("İ", 10) + " corpo do email atenciosamente",
			expected: strings.Repeat("İ", 10) + " corpo do email",
		},
		{
			name:     "whitespace trimmed",
			input:    "   Mensagem simples   ",
			expected: "Mensagem simples",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripSignature(tt.input); got != tt.expected {
				t.Errorf("StripSignature(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestProperty_StripSignatureRemovesTrailingSignature(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		// Digits and spaces cannot collide with any signature marker
		body := rapid.StringMatching(`[0-9][0-9 ]{0,40}[0-9]`).Draw(t, "body")
		marker := rapid.SampledFrom(signatureMarkers).Draw(t, "marker")
		tail := rapid.StringMatching(`[0-9 ]{0,20}`).Draw(t, "tail")

		input := body + "\n" + marker + tail
		got := StripSignature(input)

		if got != strings.TrimSpace(body) {
			t.Fatalf("StripSignature(%q) = %q, want %q", input, got, strings.TrimSpace(body))
		}
	})
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Produtivo (requer ação ou resposta)", "Produtivo"},
		{"Improdutivo (não requer ação)", "Improdutivo"},
		{"produtivo", "Produtivo"},
		{"IMPRODUTIVO", "Improdutivo"},
		{"Spam (lixo)", "Spam"},
		{"  Produtivo  ", "Produtivo"},
	}

	for _, tt := range tests {
		if got := normalizeLabel(tt.input); got != tt.expected {
			t.Errorf("normalizeLabel(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
