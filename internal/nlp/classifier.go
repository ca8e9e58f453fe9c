// Package nlp integrates the outbound AI providers: a zero-shot text
// classifier and a chat-completion reply generator.
package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mfcarvalho/email-triage/backend/internal/config"
	"github.com/mfcarvalho/email-triage/backend/internal/metrics"
)

const classifierService = "classifier"

// Candidate labels sent to the zero-shot classifier. The parenthetical
// qualifiers improve zero-shot accuracy; normalizeLabel strips them
// before the label is persisted.
var candidateLabels = []string{
	"Produtivo (requer ação ou resposta)",
	"Improdutivo (não requer ação)",
}

const hypothesisTemplate = "Este email é {}."

// signatureMarkers are Portuguese closing phrases that start a trailing
// signature block. Order matters: the first marker found wins, and
// matching is case-insensitive. Downstream classification semantics
// depend on this exact behavior.
var signatureMarkers = []string{
	"atenciosamente",
	"cordialmente",
	"abraços",
	"abraço,",
	"att.",
	"att,",
	"obrigado,",
	"obrigada,",
	"grato,",
	"grata,",
}

// labelAliases maps normalized label prefixes to canonical short names.
var labelAliases = map[string]string{
	"produtivo":   "Produtivo",
	"improdutivo": "Improdutivo",
}

// Classification is the tagged result of a zero-shot call
type Classification struct {
	Label string
	Score float64
}

// ClassifierClient calls a Hugging Face style zero-shot classification API
type ClassifierClient struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
}

// NewClassifierClient builds a classifier gateway from configuration
func NewClassifierClient(cfg config.ClassifierConfig) *ClassifierClient {
	return &ClassifierClient{
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		endpoint: strings.TrimRight(cfg.EndpointBase, "/") + "/" + cfg.Model,
		httpClient: &http.Client{
			Timeout: timeoutOrDefault(cfg.Timeout, 30*time.Second),
		},
	}
}

type zeroShotRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters zeroShotParameters `json:"parameters"`
}

type zeroShotParameters struct {
	CandidateLabels    []string `json:"candidate_labels"`
	HypothesisTemplate string   `json:"hypothesis_template"`
}

type zeroShotResponse struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
	Error  string    `json:"error"`
}

// Classify runs zero-shot classification over the email text and
// returns the canonical top label with its confidence score
func (c *ClassifierClient) Classify(ctx context.Context, text string) (Classification, error) {
	if c.apiKey == "" {
		return Classification{}, &ConfigError{
			Service: classifierService,
			Detail:  "HUGGINGFACE_API_KEY não configurada",
		}
	}

	payload := zeroShotRequest{
		Inputs: StripSignature(text),
		Parameters: zeroShotParameters{
			CandidateLabels:    candidateLabels,
			HypothesisTemplate: hypothesisTemplate,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Classification{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Classification{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordAICall(classifierService, "error", time.Since(start))
		return Classification{}, &ExternalServiceError{
			Service:  classifierService,
			Detail:   err.Error(),
			Endpoint: c.endpoint,
		}
	}
	defer resp.Body.Close()
	metrics.RecordAICall(classifierService, strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Classification{}, &ExternalServiceError{
			Service:    classifierService,
			Detail:     readErrorDetail(resp.Body),
			StatusCode: resp.StatusCode,
			Endpoint:   c.endpoint,
		}
	}

	var decoded zeroShotResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Classification{}, &ExternalServiceError{
			Service:    classifierService,
			Detail:     fmt.Sprintf("resposta inválida: %v", err),
			StatusCode: resp.StatusCode,
			Endpoint:   c.endpoint,
		}
	}

	if decoded.Error != "" {
		return Classification{}, &ExternalServiceError{
			Service:    classifierService,
			Detail:     decoded.Error,
			StatusCode: resp.StatusCode,
			Endpoint:   c.endpoint,
		}
	}

	if len(decoded.Labels) == 0 || len(decoded.Scores) == 0 {
		return Classification{}, &ExternalServiceError{
			Service:    classifierService,
			Detail:     "resposta sem labels",
			StatusCode: resp.StatusCode,
			Endpoint:   c.endpoint,
		}
	}

	return Classification{
		Label: normalizeLabel(decoded.Labels[0]),
		Score: decoded.Scores[0],
	}, nil
}

// StripSignature removes a trailing signature block from the email
// text. Markers are checked in order and matched case-insensitively;
// the text up to the first match is kept.
func StripSignature(text string) string {
	for _, marker := range signatureMarkers {
		if idx := indexFold(text, marker); idx >= 0 {
			return strings.TrimSpace(text[:idx])
		}
	}
	return strings.TrimSpace(text)
}

// indexFold returns the byte offset of the first case-insensitive
// occurrence of substr in s, or -1. Offsets are computed on s itself;
// lowering a copy would shift byte positions for characters whose
// case mapping changes length.
func indexFold(s, substr string) int {
	if substr == "" {
		return 0
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(substr)], substr) {
			return i
		}
	}
	return -1
}

// normalizeLabel maps a raw classifier label to its canonical short
// name: the prefix before any parenthetical qualifier, resolved
// through the alias table. Unrecognized prefixes pass through as-is.
func normalizeLabel(label string) string {
	prefix := label
	if idx := strings.Index(label, "("); idx >= 0 {
		prefix = label[:idx]
	}
	prefix = strings.TrimSpace(prefix)

	if canonical, ok := labelAliases[strings.ToLower(prefix)]; ok {
		return canonical
	}
	return prefix
}

// readErrorDetail extracts a short detail string from an error body
func readErrorDetail(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 2048))
	if err != nil || len(raw) == 0 {
		return "resposta de erro vazia"
	}

	var decoded struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &decoded); err == nil && decoded.Error != "" {
		return decoded.Error
	}

	return strings.TrimSpace(string(raw))
}

// timeoutOrDefault guards against a zero timeout from config
func timeoutOrDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
