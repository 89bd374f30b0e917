package coaching

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ashureev/casecoach/internal/domain"
	"github.com/ashureev/casecoach/internal/llm"
)

// DeterminePhase derives the phase governing the next student turn from the
// conversation log. Once any system turn is tagged direction the result is
// direction for the rest of the conversation. Safety-tagged turns never
// govern a turn and are skipped.
func DeterminePhase(turns []domain.Turn) domain.Phase {
	phase := domain.PhaseClarify
	for _, t := range turns {
		if t.Speaker != domain.SpeakerSystem {
			continue
		}
		switch t.Phase {
		case domain.PhaseDirection:
			return domain.PhaseDirection
		case domain.PhaseClarify, domain.PhaseCritique:
			phase = t.Phase
		}
	}
	return phase
}

// Outcome is the gate's verdict for one student message. Phase is the tag of
// the system turn to be written: clarify or critique when a gate held the
// student back, direction when the executive panel should run.
type Outcome struct {
	Phase         domain.Phase
	Clarification *Clarification
	Questions     []string
	Critique      *Critique
	FollowUp      string
}

// Advanced reports whether the executive panel is unlocked for this turn.
func (o Outcome) Advanced() bool {
	return o.Phase == domain.PhaseDirection
}

// Gate runs the Clarify and Critique checks for a turn.
type Gate struct {
	critic *Critic
	logger *slog.Logger
}

// NewGate creates a Gate. critic may be nil, in which case critique feedback
// is lexical only.
func NewGate(critic *Critic, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{critic: critic, logger: logger}
}

// Evaluate decides the outcome of message given the prior conversation.
// A message that passes Clarify is scored by the Reasoning Evaluator in the
// same turn, so one strong message can cross both gates.
func (g *Gate) Evaluate(ctx context.Context, history []domain.Turn, message string, cc *domain.CaseContext) Outcome {
	current := DeterminePhase(history)
	if current == domain.PhaseDirection {
		return Outcome{Phase: domain.PhaseDirection}
	}

	if current == domain.PhaseClarify {
		c := AssessClarification(message)
		if !c.Passed {
			return Outcome{
				Phase:         domain.PhaseClarify,
				Clarification: &c,
				Questions:     ClarifyQuestions(c),
			}
		}
	}

	cr := EvaluateReasoning(message)
	if cr.Sufficient {
		return Outcome{Phase: domain.PhaseDirection, Critique: &cr}
	}

	out := Outcome{Phase: domain.PhaseCritique, Critique: &cr, Questions: cr.Missing}
	if g.critic != nil {
		followUp, err := g.critic.FollowUp(ctx, message, cc, cr.Rubric)
		switch {
		case errors.Is(err, llm.ErrNotConfigured):
		case err != nil:
			g.logger.Warn("critique follow-up unavailable", "error", err)
		default:
			out.FollowUp = followUp
		}
	}
	return out
}
