package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Claims represents the access token claims. The subject carries the
// user's institutional email.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenService handles access token generation and validation
type TokenService struct {
	secret       string
	accessExpiry time.Duration
	issuer       string
}

// TokenServiceConfig holds configuration for TokenService
type TokenServiceConfig struct {
	Secret       string
	AccessExpiry time.Duration
	Issuer       string
}

// NewTokenService creates a new TokenService instance
func NewTokenService(cfg TokenServiceConfig) *TokenService {
	return &TokenService{
		secret:       cfg.Secret,
		accessExpiry: cfg.AccessExpiry,
		issuer:       cfg.Issuer,
	}
}

// GenerateAccessToken issues a signed HS256 token with subject=email
// expiring after the configured duration
func (s *TokenService) GenerateAccessToken(email string) (string, error) {
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secret))
}

// ValidateAccessToken validates a token and returns its claims. It
// fails on decode, signature, or expiry errors and on a missing
// subject claim.
func (s *TokenService) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.secret), nil
	})

	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GetAccessExpiry returns the access token expiry duration
func (s *TokenService) GetAccessExpiry() time.Duration {
	return s.accessExpiry
}
