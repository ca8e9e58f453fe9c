package email

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all email workflow routes. Every route
// requires an authenticated user; the AI-backed ones additionally go
// through the per-user AI rate limiter.
func RegisterRoutes(r chi.Router, handler *Handler, authMiddleware func(http.Handler) http.Handler, aiLimit func(http.Handler) http.Handler) {
	r.Route("/emails", func(r chi.Router) {
		r.Use(authMiddleware)

		r.With(aiLimit).Post("/classify", handler.Classify)
		r.With(aiLimit).Post("/{id}/generate-response", handler.GenerateResponse)

		r.Post("/{id}/mark-responded", handler.MarkResponded)
		r.Get("/history", handler.History)
		r.Get("/{id}", handler.GetByID)
	})
}
