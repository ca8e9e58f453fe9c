package repository

import (
	"time"

	"github.com/google/uuid"
)

// User represents a user account in the database
type User struct {
	ID                 uuid.UUID `db:"id"`
	Email              string    `db:"email"`
	PasswordHash       string    `db:"password_hash"`
	MustChangePassword bool      `db:"must_change_password"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

// Email represents a processed email record in the database.
//
// Classification is NULL until the classifier has labeled the record,
// GeneratedResponse is NULL until a reply has been generated, and
// RespondidoEm is set exactly when Respondido flips to true.
type Email struct {
	ID                uuid.UUID  `db:"id"`
	UserID            uuid.UUID  `db:"user_id"`
	Destinatario      string     `db:"email_destinatario"`
	Assunto           *string    `db:"assunto"`
	RawBody           string     `db:"raw_body"`
	Classification    *string    `db:"classification"`
	GeneratedResponse *string    `db:"generated_response"`
	Respondido        bool       `db:"respondido"`
	RespondidoEm      *time.Time `db:"respondido_em"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}
