// Package email implements the email processing and classification
// workflow: classify, generate a suggested reply, mark responded, and
// query history, always scoped to the owning user.
package email

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mfcarvalho/email-triage/backend/internal/metrics"
	"github.com/mfcarvalho/email-triage/backend/internal/nlp"
	"github.com/mfcarvalho/email-triage/backend/internal/repository"
)

// Service errors
var (
	ErrEmailNotFound   = errors.New("email not found")
	ErrNotClassified   = errors.New("email has no classification")
	ErrEmptyGeneration = errors.New("model generated an empty response")
)

// Error codes for API responses
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeEmailNotFound   = "EMAIL_NOT_FOUND"
	CodeNotClassified   = "EMAIL_NOT_CLASSIFIED"
	CodeEmptyGeneration = "EMPTY_GENERATION"
	CodeConfigError     = "CONFIGURATION_ERROR"
	CodeExternalError   = "EXTERNAL_SERVICE_ERROR"
)

// Classifier is the outbound zero-shot classification gateway
type Classifier interface {
	Classify(ctx context.Context, text string) (nlp.Classification, error)
}

// ReplyGenerator is the outbound chat-completion gateway
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, classification, emailBody string) (string, error)
}

// ClassifyResponse is returned after a classification request
type ClassifyResponse struct {
	ID                string  `json:"id"`
	Classification    *string `json:"classification"`
	GeneratedResponse *string `json:"generated_response"`
	Destinatario      string  `json:"email_destinatario"`
}

// DetailResponse is the full view of an email record
type DetailResponse struct {
	ID                string     `json:"id"`
	EmailBody         string     `json:"email_body"`
	Destinatario      string     `json:"email_destinatario"`
	Assunto           *string    `json:"assunto"`
	Classification    *string    `json:"classification"`
	GeneratedResponse *string    `json:"generated_response"`
	Respondido        bool       `json:"respondido"`
	RespondidoEm      *time.Time `json:"respondido_em"`
	CreatedAt         time.Time  `json:"created_at"`
}

// HistoryItem is the compact view used in history listings
type HistoryItem struct {
	ID             string     `json:"id"`
	Destinatario   string     `json:"email_destinatario"`
	Assunto        *string    `json:"assunto"`
	Classification *string    `json:"classification"`
	Respondido     bool       `json:"respondido"`
	RespondidoEm   *time.Time `json:"respondido_em"`
	CreatedAt      time.Time  `json:"created_at"`
}

// HistoryResponse holds a user's email history plus the total count
// under the same responded filter
type HistoryResponse struct {
	Emails []HistoryItem `json:"emails"`
	Total  int           `json:"total"`
}

// Service orchestrates classification, persistence, reply generation,
// and status transitions for email records
type Service struct {
	repo       repository.EmailRepositoryInterface
	classifier Classifier
	generator  ReplyGenerator
	logger     *slog.Logger
}

// NewService creates a new Service instance
func NewService(repo repository.EmailRepositoryInterface, classifier Classifier, generator ReplyGenerator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		classifier: classifier,
		generator:  generator,
		logger:     logger,
	}
}

// Classify runs the classifier over the email body (with the subject
// prefixed when present) and persists a new record with the resulting
// label and no generated reply. Gateway errors propagate unchanged; on
// failure nothing is persisted.
func (s *Service) Classify(ctx context.Context, userID uuid.UUID, body, destinatario string, assunto *string) (*ClassifyResponse, error) {
	input := body
	if assunto != nil && *assunto != "" {
		input = "Assunto: " + *assunto + "\n\n" + body
	}

	result, err := s.classifier.Classify(ctx, input)
	if err != nil {
		return nil, err
	}

	label := result.Label

	record := &repository.Email{
		UserID:         userID,
		Destinatario:   destinatario,
		Assunto:        assunto,
		RawBody:        body,
		Classification: &label,
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}

	metrics.EmailsClassified.WithLabelValues(label).Inc()
	s.logger.Info("email classified",
		"email_id", record.ID,
		"user_id", userID,
		"classification", label,
		"score", result.Score,
	)

	return &ClassifyResponse{
		ID:                record.ID.String(),
		Classification:    record.Classification,
		GeneratedResponse: record.GeneratedResponse,
		Destinatario:      record.Destinatario,
	}, nil
}

// GenerateResponse produces a suggested reply for an already
// classified record. The record's generated_response is only written
// after a successful, non-empty generation.
func (s *Service) GenerateResponse(ctx context.Context, emailID, userID uuid.UUID) (*DetailResponse, error) {
	record, err := s.repo.GetByIDForUser(ctx, emailID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrEmailNotFound) {
			return nil, ErrEmailNotFound
		}
		return nil, err
	}

	if record.Classification == nil || *record.Classification == "" {
		return nil, ErrNotClassified
	}

	generated, err := s.generator.GenerateReply(ctx, *record.Classification, record.RawBody)
	if err != nil {
		return nil, err
	}

	generated = strings.TrimSpace(generated)
	if generated == "" {
		return nil, ErrEmptyGeneration
	}

	updated, err := s.repo.UpdateGeneratedResponse(ctx, emailID, userID, generated)
	if err != nil {
		if errors.Is(err, repository.ErrEmailNotFound) {
			return nil, ErrEmailNotFound
		}
		return nil, err
	}

	metrics.ResponsesGenerated.Inc()
	s.logger.Info("response generated", "email_id", emailID, "user_id", userID)

	return toDetailResponse(updated), nil
}

// MarkResponded flags an owned record as responded, stamping the
// responded and updated timestamps together
func (s *Service) MarkResponded(ctx context.Context, emailID, userID uuid.UUID) (*DetailResponse, error) {
	updated, err := s.repo.MarkResponded(ctx, emailID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrEmailNotFound) {
			return nil, ErrEmailNotFound
		}
		return nil, err
	}

	return toDetailResponse(updated), nil
}

// ListHistory returns the user's records newest-first, optionally
// filtered by responded status
func (s *Service) ListHistory(ctx context.Context, userID uuid.UUID, respondido *bool) (*HistoryResponse, error) {
	records, total, err := s.repo.ListByUser(ctx, userID, respondido)
	if err != nil {
		return nil, err
	}

	items := make([]HistoryItem, 0, len(records))
	for _, record := range records {
		items = append(items, HistoryItem{
			ID:             record.ID.String(),
			Destinatario:   record.Destinatario,
			Assunto:        record.Assunto,
			Classification: record.Classification,
			Respondido:     record.Respondido,
			RespondidoEm:   record.RespondidoEm,
			CreatedAt:      record.CreatedAt,
		})
	}

	return &HistoryResponse{Emails: items, Total: total}, nil
}

// GetDetail returns a single owned record
func (s *Service) GetDetail(ctx context.Context, emailID, userID uuid.UUID) (*DetailResponse, error) {
	record, err := s.repo.GetByIDForUser(ctx, emailID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrEmailNotFound) {
			return nil, ErrEmailNotFound
		}
		return nil, err
	}

	return toDetailResponse(record), nil
}

// toDetailResponse converts a database record into its full view
func toDetailResponse(record *repository.Email) *DetailResponse {
	return &DetailResponse{
		ID:                record.ID.String(),
		EmailBody:         record.RawBody,
		Destinatario:      record.Destinatario,
		Assunto:           record.Assunto,
		Classification:    record.Classification,
		GeneratedResponse: record.GeneratedResponse,
		Respondido:        record.Respondido,
		RespondidoEm:      record.RespondidoEm,
		CreatedAt:         record.CreatedAt,
	}
}
