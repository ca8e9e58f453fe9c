package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mfcarvalho/email-triage/backend/internal/config"
	"github.com/mfcarvalho/email-triage/backend/internal/metrics"
)

const llmService = "llm"

const replySystemPrompt = "Voce e um assistente que escreve respostas profissionais de email."

// rateLimitHeaders are extracted into the error detail on HTTP 429
var rateLimitHeaders = []string{
	"x-request-id",
	"x-ratelimit-limit-requests",
	"x-ratelimit-remaining-requests",
	"x-ratelimit-reset-requests",
	"x-ratelimit-limit-tokens",
	"x-ratelimit-remaining-tokens",
	"x-ratelimit-reset-tokens",
	"retry-after",
}

// LLMClient calls an OpenAI-compatible chat completions endpoint to
// generate suggested email replies
type LLMClient struct {
	apiKey     string
	model      string
	endpoint   string
	referer    string
	title      string
	httpClient *http.Client
}

// NewLLMClient builds a reply generator gateway from configuration.
// Generation can be slow, so the timeout is minutes-scale.
func NewLLMClient(cfg config.LLMConfig) *LLMClient {
	return &LLMClient{
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		endpoint: cfg.Endpoint,
		referer:  cfg.Referer,
		title:    cfg.Title,
		httpClient: &http.Client{
			Timeout: timeoutOrDefault(cfg.Timeout, 120*time.Second),
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// GenerateReply asks the LLM for a short professional reply based on
// the classification and the raw email body. The returned text is
// trimmed; callers decide how to treat an empty result.
func (c *LLMClient) GenerateReply(ctx context.Context, classification, emailBody string) (string, error) {
	if c.apiKey == "" {
		return "", &ConfigError{
			Service: llmService,
			Detail:  "LLM_API_KEY não configurada",
		}
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: replySystemPrompt},
			{Role: "user", Content: buildReplyPrompt(classification, emailBody)},
		},
		Temperature: 0.4,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordAICall(llmService, "error", time.Since(start))
		return "", &ExternalServiceError{
			Service:  llmService,
			Detail:   err.Error(),
			Endpoint: c.endpoint,
		}
	}
	defer resp.Body.Close()
	metrics.RecordAICall(llmService, strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := readErrorDetail(resp.Body)
		if resp.StatusCode == http.StatusTooManyRequests {
			if limits := collectRateLimitInfo(resp.Header); limits != "" {
				detail = detail + " (" + limits + ")"
			}
		}
		return "", &ExternalServiceError{
			Service:    llmService,
			Detail:     detail,
			StatusCode: resp.StatusCode,
			Endpoint:   c.endpoint,
		}
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &ExternalServiceError{
			Service:    llmService,
			Detail:     fmt.Sprintf("resposta inválida: %v", err),
			StatusCode: resp.StatusCode,
			Endpoint:   c.endpoint,
		}
	}

	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", &ExternalServiceError{
			Service:    llmService,
			Detail:     decoded.Error.Message,
			StatusCode: resp.StatusCode,
			Endpoint:   c.endpoint,
		}
	}

	if len(decoded.Choices) == 0 {
		return "", &ExternalServiceError{
			Service:    llmService,
			Detail:     "resposta sem choices",
			StatusCode: resp.StatusCode,
			Endpoint:   c.endpoint,
		}
	}

	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}

// buildReplyPrompt builds the fixed-structure instruction prompt
func buildReplyPrompt(classification, emailBody string) string {
	return "Classificacao: " + classification + ".\n" +
		"Email:\n" + emailBody + "\n\n" +
		"Escreva uma resposta curta, educada e objetiva em portugues brasileiro."
}

// collectRateLimitInfo extracts rate-limit response headers into a
// single detail fragment
func collectRateLimitInfo(h http.Header) string {
	var parts []string
	for _, name := range rateLimitHeaders {
		if value := h.Get(name); value != "" {
			parts = append(parts, name+"="+value)
		}
	}
	return strings.Join(parts, ", ")
}
