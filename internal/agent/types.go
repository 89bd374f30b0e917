// Package agent runs the simulated executive panel for a direction turn:
// prompt composition, sequential role invocation, response interpretation
// and final-decision resolution.
package agent

import (
	"time"

	"github.com/ashureev/casecoach/internal/domain"
)

// Request is the input for one direction turn.
type Request struct {
	Message    string
	Case       *domain.CaseContext
	Directives []domain.Directive
	Overrides  []domain.AgentOverride
}

// Result is the orchestrator output for one turn.
type Result struct {
	Trace   domain.AgentTrace
	Summary string
}

// Blocked reports whether the sensitive-content gate short-circuited the turn.
func (r Result) Blocked() bool {
	return r.Trace.SensitiveContent
}

// FallbackCount returns how many roles answered with fallback text.
func (r Result) FallbackCount() int {
	n := 0
	for _, resp := range r.Trace.AgentResponses {
		if resp.Fallback {
			n++
		}
	}
	return n
}

// Config holds orchestrator configuration.
type Config struct {
	// CallTimeout bounds each gateway call. A timeout is treated like any
	// other gateway failure.
	CallTimeout time.Duration
}

// DefaultConfig returns default orchestrator configuration.
func DefaultConfig() Config {
	return Config{CallTimeout: 30 * time.Second}
}
