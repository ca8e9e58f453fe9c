package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	appctx "github.com/mfcarvalho/email-triage/backend/internal/context"
)

// RateLimiter implements a simple in-memory sliding-window rate limiter
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		stopCh:   make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Stop terminates the background cleanup goroutine. Safe to call more
// than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
	})
}

// Allow checks if a request is allowed for the given key
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	windowStart := time.Now().Add(-rl.window)

	var valid []time.Time
	for _, t := range rl.requests[key] {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, time.Now())
	return true
}

// cleanup periodically removes stale entries
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.mu.Lock()
			windowStart := time.Now().Add(-rl.window)
			for key, requests := range rl.requests {
				var valid []time.Time
				for _, t := range requests {
					if t.After(windowStart) {
						valid = append(valid, t)
					}
				}
				if len(valid) == 0 {
					delete(rl.requests, key)
				} else {
					rl.requests[key] = valid
				}
			}
			rl.mu.Unlock()
		}
	}
}

// AIRateLimiter limits how often a single user may hit the endpoints
// that call the external AI providers. Those calls are the expensive
// resource here, not the database.
type AIRateLimiter struct {
	limiter *RateLimiter
}

// NewAIRateLimiter creates a per-user rate limiter for AI endpoints
func NewAIRateLimiter(limit int, window time.Duration) *AIRateLimiter {
	return &AIRateLimiter{
		limiter: NewRateLimiter(limit, window),
	}
}

// Stop terminates the underlying limiter's cleanup goroutine.
func (rl *AIRateLimiter) Stop() {
	rl.limiter.Stop()
}

// Limit returns middleware enforcing the per-user limit. Requests
// without an authenticated user pass through; the auth middleware
// already rejected them or will.
func (rl *AIRateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := appctx.ExtractUserID(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		if !rl.limiter.Allow(userID.String()) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.limiter.window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(ErrorResponse{
				Success: false,
				Error: ErrorDetail{
					Code:    "RATE_LIMIT_EXCEEDED",
					Message: "Muitas requisições de IA. Tente novamente em instantes.",
				},
				Timestamp: time.Now().UTC(),
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
