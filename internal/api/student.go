package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/casecoach/internal/domain"
	"github.com/ashureev/casecoach/internal/store"
)

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// Chat processes one learner turn.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.turns.Submit(r.Context(), req.SessionID, req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// Messages returns a session's conversation log.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		Error(w, http.StatusBadRequest, "session_id is required")
		return
	}

	ctx := r.Context()
	if _, err := h.repo.GetSession(ctx, sessionID); err != nil {
		writeError(w, r, err)
		return
	}
	turns, err := h.repo.ListTurns(ctx, sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if turns == nil {
		turns = []domain.Turn{}
	}
	JSON(w, http.StatusOK, map[string]any{"messages": turns})
}

type sessionResetRequest struct {
	SessionID string `json:"session_id"`
}

// SessionReset clears a session's conversation and restores its budget.
func (h *Handler) SessionReset(w http.ResponseWriter, r *http.Request) {
	var req sessionResetRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		Error(w, http.StatusBadRequest, "session_id is required")
		return
	}

	if err := h.repo.ResetSession(r.Context(), req.SessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, r, err)
		return
	}

	slog.Info("Session reset", "session_id", req.SessionID)
	JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Session reset successfully. You can start your analysis fresh.",
	})
}

type joinRequest struct {
	JoinCode    string `json:"join_code"`
	StudentName string `json:"student_name"`
}

// Join enrolls a student in an assignment by join code.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.JoinCode))
	name := strings.TrimSpace(req.StudentName)
	if code == "" {
		Error(w, http.StatusBadRequest, "Join code is required")
		return
	}
	if name == "" {
		Error(w, http.StatusBadRequest, "Student name is required")
		return
	}

	ctx := r.Context()
	asg, err := h.repo.GetAssignmentByJoinCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "Invalid join code. Please check and try again.")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	student := &domain.User{Name: name, Kind: domain.UserStudent}
	if err := h.repo.UpsertUser(ctx, student); err != nil {
		writeError(w, r, err)
		return
	}
	sess := &domain.Session{UserID: student.ID, AssignmentID: asg.ID}
	if err := h.repo.CreateSession(ctx, sess); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Student joined", "assignment_id", asg.ID, "session_id", sess.ID)
	JSON(w, http.StatusOK, map[string]any{
		"session_id":       sess.ID,
		"assignment_title": asg.Title,
		"credits":          asg.Credits,
		"student_name":     student.Name,
	})
}
