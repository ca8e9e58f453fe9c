package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Email repository errors
var (
	ErrEmailNotFound = errors.New("email not found")
)

// EmailRepositoryInterface defines the interface for email record access.
//
// Every lookup is scoped by the owning user ID in the same query: a
// record that belongs to another user is indistinguishable from one
// that does not exist.
type EmailRepositoryInterface interface {
	Create(ctx context.Context, email *Email) error
	GetByIDForUser(ctx context.Context, emailID, userID uuid.UUID) (*Email, error)
	UpdateGeneratedResponse(ctx context.Context, emailID, userID uuid.UUID, response string) (*Email, error)
	MarkResponded(ctx context.Context, emailID, userID uuid.UUID) (*Email, error)
	ListByUser(ctx context.Context, userID uuid.UUID, respondido *bool) ([]Email, int, error)
}

// EmailRepo implements EmailRepositoryInterface using PostgreSQL
type EmailRepo struct {
	db *sqlx.DB
}

// NewEmailRepo creates a new EmailRepo instance
func NewEmailRepo(db *sqlx.DB) *EmailRepo {
	return &EmailRepo{db: db}
}

// Create inserts a new email record
func (r *EmailRepo) Create(ctx context.Context, email *Email) error {
	query := `
		INSERT INTO emails (user_id, email_destinatario, assunto, raw_body, classification, generated_response)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, respondido, created_at, updated_at
	`

	return r.db.QueryRowxContext(ctx, query,
		email.UserID,
		email.Destinatario,
		email.Assunto,
		email.RawBody,
		email.Classification,
		email.GeneratedResponse,
	).Scan(&email.ID, &email.Respondido, &email.CreatedAt, &email.UpdatedAt)
}

// GetByIDForUser retrieves an email record scoped to its owner
func (r *EmailRepo) GetByIDForUser(ctx context.Context, emailID, userID uuid.UUID) (*Email, error) {
	query := `
		SELECT id, user_id, email_destinatario, assunto, raw_body, classification,
		       generated_response, respondido, respondido_em, created_at, updated_at
		FROM emails
		WHERE id = $1 AND user_id = $2
	`

	email := &Email{}
	if err := r.db.GetContext(ctx, email, query, emailID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEmailNotFound
		}
		return nil, err
	}

	return email, nil
}

// UpdateGeneratedResponse stores the generated reply for an owned record
func (r *EmailRepo) UpdateGeneratedResponse(ctx context.Context, emailID, userID uuid.UUID, response string) (*Email, error) {
	query := `
		UPDATE emails
		SET generated_response = $1, updated_at = $2
		WHERE id = $3 AND user_id = $4
		RETURNING id, user_id, email_destinatario, assunto, raw_body, classification,
		          generated_response, respondido, respondido_em, created_at, updated_at
	`

	email := &Email{}
	err := r.db.GetContext(ctx, email, query, response, time.Now().UTC(), emailID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEmailNotFound
		}
		return nil, err
	}

	return email, nil
}

// MarkResponded flips the responded flag and timestamp in a single update
func (r *EmailRepo) MarkResponded(ctx context.Context, emailID, userID uuid.UUID) (*Email, error) {
	query := `
		UPDATE emails
		SET respondido = TRUE, respondido_em = $1, updated_at = $1
		WHERE id = $2 AND user_id = $3
		RETURNING id, user_id, email_destinatario, assunto, raw_body, classification,
		          generated_response, respondido, respondido_em, created_at, updated_at
	`

	email := &Email{}
	err := r.db.GetContext(ctx, email, query, time.Now().UTC(), emailID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEmailNotFound
		}
		return nil, err
	}

	return email, nil
}

// ListByUser returns the user's records newest-first with an optional
// responded filter, plus the total count under the same filter
func (r *EmailRepo) ListByUser(ctx context.Context, userID uuid.UUID, respondido *bool) ([]Email, int, error) {
	baseWhere := ` WHERE user_id = $1`
	args := []interface{}{userID}

	if respondido != nil {
		baseWhere += ` AND respondido = $2`
		args = append(args, *respondido)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM emails` + baseWhere
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	listQuery := `
		SELECT id, user_id, email_destinatario, assunto, raw_body, classification,
		       generated_response, respondido, respondido_em, created_at, updated_at
		FROM emails` + baseWhere + `
		ORDER BY created_at DESC
	`

	emails := []Email{}
	if err := r.db.SelectContext(ctx, &emails, listQuery, args...); err != nil {
		return nil, 0, err
	}

	return emails, total, nil
}
