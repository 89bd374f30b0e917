// Package api provides HTTP handlers for the CaseCoach API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/casecoach/internal/store"
	"github.com/ashureev/casecoach/internal/turn"
)

// maxBodyBytes bounds JSON request bodies. Case text can be long.
const maxBodyBytes = 4 << 20

// Handler provides common handler utilities.
type Handler struct {
	repo           store.Repository
	turns          *turn.Service
	defaultCredits int
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, turns *turn.Service, defaultCredits int) *Handler {
	if defaultCredits <= 0 {
		defaultCredits = store.DefaultCredits
	}
	return &Handler{
		repo:           repo,
		turns:          turns,
		defaultCredits: defaultCredits,
	}
}

// RegisterRoutes registers the API routes. professor wraps the authoring
// routes with an identity; chatLimit wraps the chat endpoint. Either may be nil.
func (h *Handler) RegisterRoutes(r chi.Router, professor, chatLimit func(http.Handler) http.Handler) {
	r.Route("/api", func(r chi.Router) {
		// Learner routes are addressed by session.
		r.Group(func(r chi.Router) {
			if chatLimit != nil {
				r.Use(chatLimit)
			}
			r.Post("/chat", h.Chat)
		})
		r.Get("/messages", h.Messages)
		r.Post("/session-reset", h.SessionReset)
		r.Post("/join", h.Join)

		r.Group(func(r chi.Router) {
			if professor != nil {
				r.Use(professor)
			}
			r.Get("/cases", h.ListCases)
			r.Post("/cases", h.CreateCase)
			r.Get("/cases/{id}", h.GetCase)
			r.Put("/cases/{id}", h.UpdateCase)

			r.Get("/assignments", h.ListAssignments)
			r.Post("/assignments", h.CreateAssignment)
			r.Get("/assignments/{id}", h.GetAssignment)
			r.Put("/assignments/{id}", h.UpdateAssignment)
			r.Get("/assignments/{id}/analytics", h.Analytics)
			r.Get("/assignments/{id}/directives", h.ListDirectives)
			r.Post("/assignments/{id}/directives", h.CreateDirective)
			r.Delete("/directives/{id}", h.DeactivateDirective)
		})
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decode reads a JSON body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// writeError maps a service error to a status code. Unknown errors are
// logged and surface as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, turn.ErrInvalidInput):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, turn.ErrSessionNotFound):
		Error(w, http.StatusNotFound, "Invalid session")
	case errors.Is(err, turn.ErrAssignmentNotFound):
		Error(w, http.StatusNotFound, "Assignment not found")
	case errors.Is(err, turn.ErrBudgetExhausted), errors.Is(err, store.ErrBudgetExhausted):
		JSON(w, http.StatusForbidden, map[string]any{
			"error":             "No credits remaining",
			"credits_remaining": 0,
			"message":           "You have used all your available turns for this assignment.",
		})
	case errors.Is(err, turn.ErrTurnInProgress):
		Error(w, http.StatusConflict, "turn_in_progress")
	case errors.Is(err, store.ErrNotFound):
		Error(w, http.StatusNotFound, "Not found")
	default:
		slog.Error("Request failed", "error", err, "method", r.Method, "path", r.URL.Path)
		Error(w, http.StatusInternalServerError, "Internal server error")
	}
}
