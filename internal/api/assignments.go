package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/casecoach/internal/domain"
	"github.com/ashureev/casecoach/internal/identity"
	"github.com/ashureev/casecoach/internal/store"
)

type assignmentRequest struct {
	CaseID  string `json:"case_id"`
	Title   string `json:"title"`
	Credits int    `json:"credits"`
}

type assignmentUpdate struct {
	Title   *string `json:"title"`
	Credits *int    `json:"credits"`
	Active  *bool   `json:"active"`
}

// ListAssignments returns the caller's assignments alongside all cases.
func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assignments, err := h.repo.ListAssignments(ctx, identity.UserIDFromContext(ctx))
	if err != nil {
		writeError(w, r, err)
		return
	}
	cases, err := h.repo.ListCases(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if assignments == nil {
		assignments = []*domain.Assignment{}
	}
	if cases == nil {
		cases = []*domain.Case{}
	}
	JSON(w, http.StatusOK, map[string]any{"assignments": assignments, "cases": cases})
}

// CreateAssignment opens a case to a cohort under a fresh join code.
func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req assignmentRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	title := strings.TrimSpace(req.Title)
	if req.CaseID == "" || title == "" {
		Error(w, http.StatusBadRequest, "case_id and title are required")
		return
	}
	if req.Credits < 0 {
		Error(w, http.StatusBadRequest, "credits must be positive")
		return
	}

	ctx := r.Context()
	if _, err := h.repo.GetCase(ctx, req.CaseID); err != nil {
		writeError(w, r, err)
		return
	}

	credits := req.Credits
	if credits == 0 {
		credits = h.defaultCredits
	}
	a := &domain.Assignment{
		CaseID:    req.CaseID,
		Title:     title,
		Credits:   credits,
		CreatedBy: identity.UserIDFromContext(ctx),
	}
	if err := h.repo.CreateAssignment(ctx, a); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Assignment created", "assignment_id", a.ID, "join_code", a.JoinCode)
	JSON(w, http.StatusCreated, map[string]any{
		"assignment": a,
		"message":    fmt.Sprintf("Assignment created with join code: %s", a.JoinCode),
	})
}

// GetAssignment returns an assignment and its case.
func (h *Handler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := h.repo.GetAssignment(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.repo.GetCase(ctx, a.CaseID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"assignment": a, "case": c})
}

// UpdateAssignment toggles an assignment or changes its budget.
func (h *Handler) UpdateAssignment(w http.ResponseWriter, r *http.Request) {
	var req assignmentUpdate
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Credits != nil && *req.Credits <= 0 {
		Error(w, http.StatusBadRequest, "credits must be positive")
		return
	}

	ctx := r.Context()
	a, err := h.repo.GetAssignment(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) != "" {
		a.Title = strings.TrimSpace(*req.Title)
	}
	if req.Credits != nil {
		a.Credits = *req.Credits
	}
	if req.Active != nil {
		a.Active = *req.Active
	}
	if err := h.repo.UpdateAssignment(ctx, a); err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"success": true, "assignment": a})
}

// Analytics returns the coaching summary of an assignment.
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := h.repo.GetAssignment(ctx, id); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.repo.AssignmentAnalytics(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, out)
}

type directiveRequest struct {
	Content string `json:"content"`
}

// ListDirectives returns an assignment's directives, newest first. Only
// active ones are listed unless ?all=true.
func (h *Handler) ListDirectives(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	directives, err := h.repo.ListDirectives(r.Context(), chi.URLParam(r, "id"), activeOnly)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if directives == nil {
		directives = []domain.Directive{}
	}
	JSON(w, http.StatusOK, map[string]any{"directives": directives})
}

// CreateDirective adds an active directive to an assignment.
func (h *Handler) CreateDirective(w http.ResponseWriter, r *http.Request) {
	var req directiveRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		Error(w, http.StatusBadRequest, "content is required")
		return
	}

	ctx := r.Context()
	a, err := h.repo.GetAssignment(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	d := &domain.Directive{
		AssignmentID: a.ID,
		Content:      content,
		CreatedBy:    identity.UserIDFromContext(ctx),
	}
	if err := h.repo.CreateDirective(ctx, d); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("Directive created", "assignment_id", a.ID, "directive_id", d.ID)
	JSON(w, http.StatusCreated, map[string]any{"directive": d})
}

// DeactivateDirective stops a directive from reaching agent prompts.
func (h *Handler) DeactivateDirective(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeactivateDirective(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"success": true})
}
