package domain

import (
	"time"
)

// Phase is the coaching phase a system turn was produced in.
type Phase string

const (
	PhaseClarify   Phase = "clarify"
	PhaseCritique  Phase = "critique"
	PhaseDirection Phase = "direction"
	// PhaseSafety tags turns blocked by the sensitive-content gate. It never
	// governs a turn; phase derivation skips it.
	PhaseSafety Phase = "safety"
)

// Speaker identifies who authored a turn.
type Speaker string

const (
	SpeakerStudent Speaker = "student"
	SpeakerSystem  Speaker = "system"
)

// Session is one student's conversation within an assignment.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	AssignmentID string    `json:"assignment_id"`
	CreditsUsed  int       `json:"credits_used"`
	CreatedAt    time.Time `json:"created_at"`
}

// Remaining returns the unused turn budget given the assignment's credits.
// It never returns a negative value.
func (s *Session) Remaining(credits int) int {
	if left := credits - s.CreditsUsed; left > 0 {
		return left
	}
	return 0
}

// Turn is one immutable entry of the conversation log.
type Turn struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Speaker   Speaker     `json:"role"`
	Content   string      `json:"content"`
	Phase     Phase       `json:"phase,omitempty"`
	Trace     *AgentTrace `json:"agent_trace,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
