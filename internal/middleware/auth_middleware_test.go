package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mfcarvalho/email-triage/backend/internal/auth"
	appctx "github.com/mfcarvalho/email-triage/backend/internal/context"
	"github.com/mfcarvalho/email-triage/backend/internal/repository"
)

// stubUserRepo implements repository.UserRepository for testing
type stubUserRepo struct {
	users map[string]*repository.User
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*repository.User)}
}

func (s *stubUserRepo) Create(ctx context.Context, user *repository.User) error {
	user.ID = uuid.New()
	s.users[strings.ToLower(user.Email)] = user
	return nil
}

func (s *stubUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.User, error) {
	for _, user := range s.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *stubUserRepo) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	if user, ok := s.users[strings.ToLower(email)]; ok {
		return user, nil
	}
	return nil, repository.ErrUserNotFound
}

func (s *stubUserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return nil
}

func newTestMiddleware(t *testing.T) (*AuthMiddleware, *auth.TokenService, *stubUserRepo) {
	t.Helper()
	tokenService := auth.NewTokenService(auth.TokenServiceConfig{
		Secret:       "test-secret",
		AccessExpiry: time.Hour,
		Issuer:       "email-triage-test",
	})
	repo := newStubUserRepo()
	return NewAuthMiddleware(tokenService, repo), tokenService, repo
}

func protectedHandler(gotUser *bool, gotID *uuid.UUID) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := appctx.ExtractUserID(r.Context())
		*gotUser = ok
		*gotID = id
		w.WriteHeader(http.StatusOK)
	})
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp.Error.Code
}

func TestAuthenticate_MissingHeader(t *testing.T) {
	mw, _, _ := newTestMiddleware(t)

	var gotUser bool
	var gotID uuid.UUID
	handler := mw.Authenticate(protectedHandler(&gotUser, &gotID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != auth.CodeAuthTokenMissing {
		t.Errorf("expected AUTH_TOKEN_MISSING, got %s", code)
	}
	if gotUser {
		t.Error("handler should not run without a token")
	}
}

func TestAuthenticate_MalformedHeader(t *testing.T) {
	mw, _, _ := newTestMiddleware(t)

	var gotUser bool
	var gotID uuid.UUID
	handler := mw.Authenticate(protectedHandler(&gotUser, &gotID))

	for _, header := range []string{"Basic abc123", "Bearer", "token-sem-esquema"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	mw, _, _ := newTestMiddleware(t)

	var gotUser bool
	var gotID uuid.UUID
	handler := mw.Authenticate(protectedHandler(&gotUser, &gotID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nao.e.token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != auth.CodeAuthTokenInvalid {
		t.Errorf("expected AUTH_TOKEN_INVALID, got %s", code)
	}
}

func TestAuthenticate_TokenForDeletedUser(t *testing.T) {
	mw, tokenService, _ := newTestMiddleware(t)

	token, err := tokenService.GenerateAccessToken("fantasma@empresa.com")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	var gotUser bool
	var gotID uuid.UUID
	handler := mw.Authenticate(protectedHandler(&gotUser, &gotID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != auth.CodeUserNotFound {
		t.Errorf("expected USER_NOT_FOUND, got %s", code)
	}
}

func TestAuthenticate_ValidToken(t *testing.T) {
	mw, tokenService, repo := newTestMiddleware(t)

	user := &repository.User{Email: "analista@empresa.com"}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	token, err := tokenService.GenerateAccessToken("analista@empresa.com")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	var gotUser bool
	var gotID uuid.UUID
	handler := mw.Authenticate(protectedHandler(&gotUser, &gotID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !gotUser {
		t.Fatal("expected user injected into context")
	}
	if gotID != user.ID {
		t.Errorf("expected user ID %s in context, got %s", user.ID, gotID)
	}
}
