package domain

import (
	"time"
)

// Case is a business case uploaded by a professor.
type Case struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Background string         `json:"pdf_text,omitempty"`
	KeyMetrics map[string]any `json:"kpis"`
	Goals      map[string]any `json:"goals"`
	RedLines   []string       `json:"red_lines"`
	CreatedBy  string         `json:"created_by,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// CaseContext is the per-conversation view of a case handed to the coaching core.
type CaseContext struct {
	Title      string
	KeyMetrics map[string]any
	Goals      map[string]any
	RedLines   []string
	Background string
}

// Context returns the case context for prompt composition.
// A nil case yields a nil context.
func (c *Case) Context() *CaseContext {
	if c == nil {
		return nil
	}
	return &CaseContext{
		Title:      c.Title,
		KeyMetrics: c.KeyMetrics,
		Goals:      c.Goals,
		RedLines:   c.RedLines,
		Background: c.Background,
	}
}

// Assignment binds a case to a cohort of students through a join code.
type Assignment struct {
	ID        string    `json:"id"`
	CaseID    string    `json:"case_id"`
	CaseTitle string    `json:"case_title,omitempty"`
	Title     string    `json:"title"`
	JoinCode  string    `json:"join_code"`
	Credits   int       `json:"credits"`
	CreatedBy string    `json:"created_by,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Directive is a professor instruction injected into every agent prompt while active.
type Directive struct {
	ID           string    `json:"id"`
	AssignmentID string    `json:"assignment_id"`
	Content      string    `json:"content"`
	Active       bool      `json:"active"`
	CreatedBy    string    `json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AgentOverride appends professor text to one role's base instructions for a case.
type AgentOverride struct {
	ID             string `json:"id"`
	CaseID         string `json:"case_id"`
	Role           Role   `json:"agent_name"`
	PromptAddition string `json:"prompt_addition"`
	CreatedBy      string `json:"created_by,omitempty"`
}
