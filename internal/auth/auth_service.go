package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mfcarvalho/email-triage/backend/internal/repository"
)

// Auth service errors
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
)

// Error codes for API responses
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAuthTokenMissing   = "AUTH_TOKEN_MISSING"
	CodeAuthTokenInvalid   = "AUTH_TOKEN_INVALID"
	CodeUserNotFound       = "USER_NOT_FOUND"
)

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email string `json:"email" validate:"required,email"`
	Senha string `json:"senha" validate:"required"`
}

// TokenResponse represents the login response
type TokenResponse struct {
	AccessToken        string `json:"access_token"`
	TokenType          string `json:"token_type"`
	MustChangePassword bool   `json:"must_change_password"`
}

// ChangePasswordRequest represents the change-password request payload
type ChangePasswordRequest struct {
	SenhaAtual string `json:"senha_atual" validate:"required"`
	NovaSenha  string `json:"nova_senha" validate:"required,min=8"`
}

// UserResponse represents the authenticated user's profile
type UserResponse struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	MustChangePassword bool      `json:"must_change_password"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// AuthService handles authentication business logic
type AuthService struct {
	userRepo     repository.UserRepository
	tokenService *TokenService
	logger       *slog.Logger
}

// NewAuthService creates a new AuthService instance
func NewAuthService(userRepo repository.UserRepository, tokenService *TokenService, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		userRepo:     userRepo,
		tokenService: tokenService,
		logger:       logger,
	}
}

// Login authenticates a user and issues an access token. An unknown
// email and a wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := VerifyPassword(req.Senha, user.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	accessToken, err := s.tokenService.GenerateAccessToken(user.Email)
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken:        accessToken,
		TokenType:          "bearer",
		MustChangePassword: user.MustChangePassword,
	}, nil
}

// ChangePassword verifies the current password and stores a new hash,
// clearing the forced-change flag
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, req ChangePasswordRequest) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if err := VerifyPassword(req.SenhaAtual, user.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}

	passwordHash, err := HashPassword(req.NovaSenha)
	if err != nil {
		return err
	}

	return s.userRepo.UpdatePassword(ctx, user.ID, passwordHash)
}

// Profile returns the authenticated user's profile
func (s *AuthService) Profile(ctx context.Context, userID uuid.UUID) (*UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return &UserResponse{
		ID:                 user.ID.String(),
		Email:              user.Email,
		MustChangePassword: user.MustChangePassword,
		CreatedAt:          user.CreatedAt,
		UpdatedAt:          user.UpdatedAt,
	}, nil
}

// SeedUser creates the initial user when it does not exist yet. The
// seeded account is forced to change its password on first use.
func (s *AuthService) SeedUser(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return errors.New("seed user requires SEED_EMAIL and SEED_PASSWORD")
	}

	if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return err
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return err
	}

	user := &repository.User{
		Email:              email,
		PasswordHash:       passwordHash,
		MustChangePassword: true,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return err
	}

	s.logger.Info("seed user created", "email", email)
	return nil
}
