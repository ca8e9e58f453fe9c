package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Classifier ClassifierConfig
	LLM        LLMConfig
	Seed       SeedConfig
	Upload     UploadConfig

	Environment string
	Debug       bool
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           string
	AllowedOrigins []string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// JWTConfig holds access token configuration
type JWTConfig struct {
	Secret       string
	Algorithm    string
	AccessExpiry time.Duration
	Issuer       string
}

// ClassifierConfig holds zero-shot classifier API configuration
type ClassifierConfig struct {
	APIKey       string
	Model        string
	EndpointBase string
	Timeout      time.Duration
}

// LLMConfig holds chat-completion API configuration
type LLMConfig struct {
	APIKey   string
	Model    string
	Endpoint string
	Timeout  time.Duration

	// Optional attribution headers forwarded to the provider
	Referer string
	Title   string
}

// SeedConfig controls the development seed user
type SeedConfig struct {
	Enabled  bool
	Email    string
	Password string
}

// UploadConfig holds file upload limits
type UploadConfig struct {
	MaxBytes int64
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			AllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "email_triage"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:       getEnv("JWT_SECRET", ""),
			Algorithm:    getEnv("JWT_ALGORITHM", "HS256"),
			AccessExpiry: getMinutesEnv("ACCESS_TOKEN_EXPIRE_MINUTES", 60*time.Minute),
			Issuer:       getEnv("JWT_ISSUER", "email-triage"),
		},
		Classifier: ClassifierConfig{
			APIKey:       getEnv("HUGGINGFACE_API_KEY", ""),
			Model:        getEnv("CLASSIFIER_MODEL", "facebook/bart-large-mnli"),
			EndpointBase: getEnv("CLASSIFIER_ENDPOINT_BASE", "https://api-inference.huggingface.co/models"),
			Timeout:      getSecondsEnv("CLASSIFIER_TIMEOUT_SECONDS", 30*time.Second),
		},
		LLM: LLMConfig{
			APIKey:   getEnv("LLM_API_KEY", ""),
			Model:    getEnv("LLM_MODEL", "meta-llama/llama-3.1-8b-instruct"),
			Endpoint: getEnv("LLM_ENDPOINT", "https://openrouter.ai/api/v1/chat/completions"),
			Timeout:  getSecondsEnv("LLM_TIMEOUT_SECONDS", 120*time.Second),
			Referer:  getEnv("LLM_HTTP_REFERER", ""),
			Title:    getEnv("LLM_X_TITLE", ""),
		},
		Seed: SeedConfig{
			Enabled:  getBoolEnv("SEED_ENABLED", false),
			Email:    getEnv("SEED_EMAIL", ""),
			Password: getEnv("SEED_PASSWORD", ""),
		},
		Upload: UploadConfig{
			MaxBytes: getInt64Env("UPLOAD_MAX_BYTES", 5*1024*1024),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
		Debug:       getBoolEnv("DEBUG", false),
	}
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getMinutesEnv returns a minute-based duration from environment variable or default
func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

// getSecondsEnv returns a second-based duration from environment variable or default
func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

// getBoolEnv returns a boolean from environment variable or default
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}

// getListEnv returns a comma-separated list from environment variable or default
func getListEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

// getInt64Env returns an int64 from environment variable or default
func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}
