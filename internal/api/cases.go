package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/casecoach/internal/domain"
	"github.com/ashureev/casecoach/internal/identity"
)

type overrideRequest struct {
	Role           domain.Role `json:"agent_name"`
	PromptAddition *string     `json:"prompt_addition"`
}

// caseRequest is the body of case create and update. Absent fields keep
// their current value on update.
type caseRequest struct {
	Title          *string           `json:"title"`
	Background     *string           `json:"pdf_text"`
	KeyMetrics     map[string]any    `json:"kpis"`
	Goals          map[string]any    `json:"goals"`
	RedLines       []string          `json:"red_lines"`
	AgentOverrides []overrideRequest `json:"agent_overrides"`
}

func (req *caseRequest) validateOverrides() error {
	for _, o := range req.AgentOverrides {
		if !o.Role.Valid() {
			return fmt.Errorf("unknown agent_name %q", o.Role)
		}
	}
	return nil
}

// ListCases returns all cases without their background text.
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	cases, err := h.repo.ListCases(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cases == nil {
		cases = []*domain.Case{}
	}
	JSON(w, http.StatusOK, map[string]any{"cases": cases})
}

// CreateCase stores a new case authored by the caller.
func (h *Handler) CreateCase(w http.ResponseWriter, r *http.Request) {
	var req caseRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		Error(w, http.StatusBadRequest, "title is required")
		return
	}
	if err := req.validateOverrides(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	c := &domain.Case{
		Title:      strings.TrimSpace(*req.Title),
		KeyMetrics: req.KeyMetrics,
		Goals:      req.Goals,
		RedLines:   req.RedLines,
		CreatedBy:  identity.UserIDFromContext(r.Context()),
	}
	if req.Background != nil {
		c.Background = *req.Background
	}
	if err := h.repo.CreateCase(r.Context(), c); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.applyOverrides(r, c.ID, req.AgentOverrides); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Case created", "case_id", c.ID, "title", c.Title)
	JSON(w, http.StatusCreated, map[string]any{"case": c})
}

// GetCase returns a case with its agent overrides.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	c, err := h.repo.GetCase(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	overrides, err := h.repo.ListAgentOverrides(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if overrides == nil {
		overrides = []domain.AgentOverride{}
	}
	JSON(w, http.StatusOK, map[string]any{"case": c, "overrides": overrides})
}

// UpdateCase edits a case and upserts any agent overrides sent with it.
func (h *Handler) UpdateCase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req caseRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validateOverrides(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	c, err := h.repo.GetCase(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if req.Title != nil && strings.TrimSpace(*req.Title) != "" {
		c.Title = strings.TrimSpace(*req.Title)
	}
	if req.Background != nil {
		c.Background = *req.Background
	}
	if req.KeyMetrics != nil {
		c.KeyMetrics = req.KeyMetrics
	}
	if req.Goals != nil {
		c.Goals = req.Goals
	}
	if req.RedLines != nil {
		c.RedLines = req.RedLines
	}

	if err := h.repo.UpdateCase(ctx, c); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.applyOverrides(r, id, req.AgentOverrides); err != nil {
		writeError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, map[string]any{"success": true, "message": "Case updated"})
}

func (h *Handler) applyOverrides(r *http.Request, caseID string, overrides []overrideRequest) error {
	author := identity.UserIDFromContext(r.Context())
	for _, o := range overrides {
		if o.PromptAddition == nil {
			continue
		}
		err := h.repo.SetAgentOverride(r.Context(), &domain.AgentOverride{
			CaseID:         caseID,
			Role:           o.Role,
			PromptAddition: *o.PromptAddition,
			CreatedBy:      author,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
