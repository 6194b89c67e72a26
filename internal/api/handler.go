// Package api provides HTTP handlers for the Parla REST API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/parla/internal/domain"
	"github.com/ashureev/parla/internal/practice"
	"github.com/ashureev/parla/internal/store"
	"github.com/go-chi/chi/v5"
)

const defaultMaxBodyBytes = 64 << 10

// Options tunes the REST handlers.
type Options struct {
	MaxBodyBytes       int64
	ProviderConfigured bool
	StoreDriver        string
	HealthCheckTimeout time.Duration
	// Connections reports live relay connections for the health check. It may be nil.
	Connections func() int
}

// Handler serves the REST API.
type Handler struct {
	repo   store.Repository
	runner *practice.Runner
	opts   Options
	now    func() time.Time
	logger *slog.Logger
}

// NewHandler creates a REST handler.
func NewHandler(repo store.Repository, runner *practice.Runner, opts Options, logger *slog.Logger) *Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.HealthCheckTimeout <= 0 {
		opts.HealthCheckTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{repo: repo, runner: runner, opts: opts, now: time.Now, logger: logger}
}

// RegisterRoutes registers the /api routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/topics", h.ListTopics)
		r.Get("/topics/{id}", h.GetTopic)

		r.Post("/sessions", h.CreateSession)
		r.Get("/sessions", h.ListActiveSessions)
		r.Get("/sessions/{id}", h.GetSession)
		r.Patch("/sessions/{id}", h.UpdateSession)
		r.Get("/sessions/{id}/messages", h.ListMessages)
		r.Post("/sessions/{id}/messages", h.CreateMessage)

		r.Get("/progress/{userId}", h.GetProgress)
		r.Patch("/progress/{userId}", h.UpdateProgress)

		r.Post("/conversation/message", h.ConversationMessage)
	})
}

// RegisterHealth registers the health check route.
func (h *Handler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decode reads a size-limited JSON body into v.
// The returned error is already mapped to a status code.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) (int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return http.StatusBadRequest, errors.New("invalid JSON body")
	}
	return 0, nil
}

// storeError maps repository errors to responses.
func (h *Handler) storeError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		Error(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, domain.ErrValidation):
		Error(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Store operation failed", "error", err, "resource", what)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
