/**
 * @description
 * This file sets up the HTTP router for the engagement-service's verification
 * server. It defines the endpoints, associates them with their handlers, and
 * applies the standard middleware plus the per-IP rate limit.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/exoboost/engagement-service/internal/app"
)

// VerifyRoutes creates and returns the router for the verification server.
func VerifyRoutes(h *VerifyHandlers, limiter app.RateLimiter, rateLimit int, rateWindow time.Duration) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Group(func(r chi.Router) {
		r.Use(IPRateLimitMiddleware(limiter, rateLimit, rateWindow))
		r.Get("/verify", h.VerifyHandler)
	})

	return r
}
