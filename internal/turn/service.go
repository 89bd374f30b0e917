// Package turn runs the per-turn pipeline for a learner message: validation,
// budget check, safety pre-check, phase gate, executive panel and the atomic
// commit of the learner turn with its system response.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/casecoach/internal/agent"
	"github.com/ashureev/casecoach/internal/coaching"
	"github.com/ashureev/casecoach/internal/domain"
	"github.com/ashureev/casecoach/internal/feed"
	"github.com/ashureev/casecoach/internal/metrics"
	"github.com/ashureev/casecoach/internal/safety"
	"github.com/ashureev/casecoach/internal/store"
)

var (
	// ErrInvalidInput is returned when a required field is missing.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSessionNotFound is returned for an unknown session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAssignmentNotFound is returned when the session's assignment is gone.
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrBudgetExhausted is returned when the session has no turns left.
	ErrBudgetExhausted = errors.New("no credits remaining")

	// ErrTurnInProgress is returned when another turn for the same session
	// is still being processed.
	ErrTurnInProgress = errors.New("turn already in progress")
)

// WarnThreshold is the remaining budget at or below which a warning is shown.
const WarnThreshold = 5

const (
	safetyContent  = "Your message appears to contain personal health information (PHI). Please remove any identifying details and resubmit with anonymized facts."
	safetyQuestion = "Remove all identifying details and restate the problem using anonymized facts."
	clarifyPrefix  = "Before the executive team can analyze your question, I need to understand your reasoning. "
	clarifyHint    = `Start with "I recommend..." or "I think we should..." and include at least one reason why.`
	critiqueHint   = `Strengthen the areas marked "Weak" or "Developing" in the rubric above.`
)

// Repository is the persistence the pipeline needs.
type Repository interface {
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	GetAssignment(ctx context.Context, id string) (*domain.Assignment, error)
	GetCase(ctx context.Context, id string) (*domain.Case, error)
	ListDirectives(ctx context.Context, assignmentID string, activeOnly bool) ([]domain.Directive, error)
	ListAgentOverrides(ctx context.Context, caseID string) ([]domain.AgentOverride, error)
	ListTurns(ctx context.Context, sessionID string) ([]domain.Turn, error)
	CommitTurn(ctx context.Context, learner, system *domain.Turn) error
}

// Panel runs the executive agents for a direction turn.
type Panel interface {
	Run(ctx context.Context, req agent.Request) (agent.Result, error)
}

// Publisher receives every committed turn.
type Publisher interface {
	Publish(ev feed.Event)
}

// Result is the learner-facing outcome of one turn.
type Result struct {
	SessionID           string                      `json:"session_id"`
	Phase               domain.Phase                `json:"phase"`
	Content             string                      `json:"content"`
	Questions           []string                    `json:"questions"`
	Rubric              map[domain.Dimension]string `json:"rubric"`
	CoachingHint        string                      `json:"coaching_hint,omitempty"`
	Intent              domain.Intent               `json:"intent,omitempty"`
	AgentsActivated     []domain.Role               `json:"agents_activated,omitempty"`
	AgentResponses      []domain.AgentResponse      `json:"agent_responses"`
	FinalRecommendation domain.Recommendation       `json:"final_recommendation,omitempty"`
	EscalationPath      []string                    `json:"escalation_path,omitempty"`
	CreditsRemaining    int                         `json:"credits_remaining"`
	CreditsWarning      string                      `json:"credits_warning,omitempty"`
}

// Service processes learner turns.
type Service struct {
	repo     Repository
	gate     *coaching.Gate
	panel    Panel
	detector *safety.Detector
	pub      Publisher
	logger   *slog.Logger
	inflight sync.Map
}

// NewService creates a turn Service. pub may be nil.
func NewService(repo Repository, gate *coaching.Gate, panel Panel, detector *safety.Detector, pub Publisher, logger *slog.Logger) *Service {
	if gate == nil {
		gate = coaching.NewGate(nil, logger)
	}
	if detector == nil {
		detector = safety.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		gate:     gate,
		panel:    panel,
		detector: detector,
		pub:      pub,
		logger:   logger,
	}
}

// Submit processes one learner message. Gate failures and safety blocks are
// successful results; only invalid input, missing records, an exhausted
// budget, a concurrent turn or a persistence failure return an error, and in
// those cases nothing is written.
func (s *Service) Submit(ctx context.Context, sessionID, message string) (*Result, error) {
	sessionID = strings.TrimSpace(sessionID)
	message = strings.TrimSpace(message)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	}
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}

	mutex, ok := s.acquire(sessionID)
	if !ok {
		return nil, ErrTurnInProgress
	}
	defer s.release(sessionID, mutex)

	start := time.Now()

	sess, err := s.repo.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	asg, err := s.repo.GetAssignment(ctx, sess.AssignmentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAssignmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}

	remaining := sess.Remaining(asg.Credits)
	if remaining <= 0 {
		return nil, ErrBudgetExhausted
	}

	var res *Result
	system := &domain.Turn{SessionID: sessionID}

	if s.detector.Contains(message) {
		res, system.Trace = s.blocked()
	} else {
		res, system.Trace, err = s.evaluate(ctx, sess, asg, message)
		if err != nil {
			return nil, err
		}
	}

	res.SessionID = sessionID
	system.Phase = res.Phase
	system.Content = res.Content
	learner := &domain.Turn{SessionID: sessionID, Content: message}

	if err := s.repo.CommitTurn(ctx, learner, system); err != nil {
		if errors.Is(err, store.ErrBudgetExhausted) {
			return nil, ErrBudgetExhausted
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("commit turn: %w", err)
	}

	res.CreditsRemaining = remaining - 1
	if res.CreditsRemaining <= WarnThreshold {
		res.CreditsWarning = fmt.Sprintf("%d turns remaining", res.CreditsRemaining)
	}

	s.observe(res, system.Trace, time.Since(start))
	s.publish(asg.ID, message, res)

	s.logger.Info("Turn processed",
		"session_id", sessionID,
		"assignment_id", asg.ID,
		"phase", res.Phase,
		"intent", res.Intent,
		"credits_remaining", res.CreditsRemaining,
	)
	return res, nil
}

// acquire takes the session's single-writer lock. An entry is only removed by
// its holder, so a mutex that is locked and still mapped is exclusive; one
// locked after its holder released it is stale and the lookup is retried.
func (s *Service) acquire(sessionID string) (*sync.Mutex, bool) {
	for {
		lock, _ := s.inflight.LoadOrStore(sessionID, &sync.Mutex{})
		mutex := lock.(*sync.Mutex)
		if !mutex.TryLock() {
			return nil, false
		}
		if cur, ok := s.inflight.Load(sessionID); ok && cur == mutex {
			return mutex, true
		}
		mutex.Unlock()
	}
}

// release drops the session's lock entry while it still maps to mutex, then
// unlocks.
func (s *Service) release(sessionID string, mutex *sync.Mutex) {
	s.inflight.CompareAndDelete(sessionID, mutex)
	mutex.Unlock()
}

// blocked builds the safety response. The turn is logged with the panel's
// block trace so analytics see the refused recommendation.
func (s *Service) blocked() (*Result, *domain.AgentTrace) {
	trace := agent.Block().Trace
	return &Result{
		Phase:               domain.PhaseSafety,
		Content:             safetyContent,
		Questions:           []string{safetyQuestion},
		Intent:              trace.Intent,
		AgentsActivated:     trace.AgentsActivated,
		AgentResponses:      []domain.AgentResponse{},
		FinalRecommendation: trace.FinalRecommendation,
	}, &trace
}

// evaluate runs the phase gate and, once unlocked, the executive panel.
func (s *Service) evaluate(ctx context.Context, sess *domain.Session, asg *domain.Assignment, message string) (*Result, *domain.AgentTrace, error) {
	history, err := s.repo.ListTurns(ctx, sess.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list turns: %w", err)
	}

	c, err := s.repo.GetCase(ctx, asg.CaseID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("get case: %w", err)
	}
	cc := c.Context()

	out := s.gate.Evaluate(ctx, history, message, cc)
	switch out.Phase {
	case domain.PhaseClarify:
		return &Result{
			Phase:          domain.PhaseClarify,
			Content:        clarifyPrefix + strings.Join(out.Questions, " "),
			Questions:      out.Questions,
			CoachingHint:   clarifyHint,
			AgentResponses: []domain.AgentResponse{},
		}, nil, nil

	case domain.PhaseCritique:
		content := out.Critique.Feedback
		if out.FollowUp != "" {
			content += "\n\n" + out.FollowUp
		}
		return &Result{
			Phase:          domain.PhaseCritique,
			Content:        content,
			Questions:      out.Critique.Missing,
			Rubric:         out.Critique.Rubric.Labels(),
			CoachingHint:   critiqueHint,
			AgentResponses: []domain.AgentResponse{},
		}, nil, nil
	}

	req := agent.Request{Message: message, Case: cc}
	if req.Directives, err = s.repo.ListDirectives(ctx, asg.ID, true); err != nil {
		return nil, nil, fmt.Errorf("list directives: %w", err)
	}
	if c != nil {
		if req.Overrides, err = s.repo.ListAgentOverrides(ctx, c.ID); err != nil {
			return nil, nil, fmt.Errorf("list agent overrides: %w", err)
		}
	}

	run, err := s.panel.Run(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("run executive panel: %w", err)
	}
	trace := run.Trace
	return &Result{
		Phase:               domain.PhaseDirection,
		Content:             run.Summary,
		Questions:           []string{},
		Intent:              trace.Intent,
		AgentsActivated:     trace.AgentsActivated,
		AgentResponses:      trace.AgentResponses,
		FinalRecommendation: trace.FinalRecommendation,
		EscalationPath:      trace.EscalationPath,
	}, &trace, nil
}

func (s *Service) observe(res *Result, trace *domain.AgentTrace, elapsed time.Duration) {
	metrics.TurnsTotal.WithLabelValues(string(res.Phase)).Inc()
	metrics.TurnDuration.Observe(elapsed.Seconds())
	if res.Phase != domain.PhaseDirection || trace == nil {
		return
	}
	for _, resp := range trace.AgentResponses {
		result := "ok"
		if resp.Fallback {
			result = "fallback"
		}
		metrics.AgentCalls.WithLabelValues(string(resp.Role), result).Inc()
	}
	metrics.Recommendations.WithLabelValues(string(trace.FinalRecommendation)).Inc()
}

func (s *Service) publish(assignmentID, message string, res *Result) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(feed.Event{
		AssignmentID:        assignmentID,
		SessionID:           res.SessionID,
		StudentMessage:      message,
		Phase:               res.Phase,
		Content:             res.Content,
		Intent:              res.Intent,
		FinalRecommendation: res.FinalRecommendation,
		CreditsRemaining:    res.CreditsRemaining,
	})
}
