package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/casecoach/internal/domain"
	"github.com/ashureev/casecoach/internal/intent"
	"github.com/ashureev/casecoach/internal/llm"
	"github.com/ashureev/casecoach/internal/safety"
)

// Orchestrator sequences the executive roles for a turn. Roles run one at a
// time because the CEO synthesises the text of the roles before it.
type Orchestrator struct {
	gen        llm.Generator
	detector   *safety.Detector
	classifier *intent.Classifier
	composer   *Composer
	cfg        Config
	logger     *slog.Logger
}

// NewOrchestrator creates an Orchestrator. A nil generator makes every role
// answer with its fallback text.
func NewOrchestrator(gen llm.Generator, detector *safety.Detector, cfg Config, logger *slog.Logger) *Orchestrator {
	if detector == nil {
		detector = safety.Default()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig().CallTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		gen:        gen,
		detector:   detector,
		classifier: intent.NewClassifier(detector),
		composer:   NewComposer(),
		cfg:        cfg,
		logger:     logger,
	}
}

// panel is the accumulator carried across roles within one turn.
type panel struct {
	responses []domain.AgentResponse
	path      []string
	prior     strings.Builder
}

// Run processes one direction turn. Gateway failures never fail the turn;
// an error is returned only when ctx ends before the panel finishes.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	if o.detector.Contains(req.Message) {
		return Block(), nil
	}

	in := o.classifier.Classify(req.Message)
	roles := intent.Route(in, req.Message)

	overrides := make(map[domain.Role]string, len(req.Overrides))
	for _, ov := range req.Overrides {
		overrides[ov.Role] = ov.PromptAddition
	}

	var p panel
	for i, role := range roles {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("run panel: %w", err)
		}

		system := o.composer.Compose(role, req.Case, overrides[role], req.Directives)
		user := req.Message
		if role == domain.RoleCEO && p.prior.Len() > 0 {
			user = briefing(req.Message, p.prior.String())
		}

		resp := o.invoke(ctx, role, in, system, user, req.Message)
		p.responses = append(p.responses, resp)

		if i > 0 {
			p.path = append(p.path, roles[i-1].DisplayName()+" → "+role.DisplayName())
		}
		if role != domain.RoleCEO {
			fmt.Fprintf(&p.prior, "[%s]: %s\n\n", role.DisplayName(), resp.Text)
		}
	}

	final := Resolve(p.responses)
	return Result{
		Trace: domain.AgentTrace{
			Intent:              in,
			AgentsActivated:     roles,
			AgentResponses:      p.responses,
			FinalRecommendation: final,
			EscalationPath:      p.path,
		},
		Summary: Summary(final, len(p.responses)),
	}, nil
}

// invoke calls the gateway for one role and interprets the reply, falling
// back to canned text on any gateway failure.
func (o *Orchestrator) invoke(ctx context.Context, role domain.Role, in domain.Intent, system, user, message string) domain.AgentResponse {
	var (
		out      llm.Completion
		err      = llm.ErrNotConfigured
		fallback bool
	)
	if o.gen != nil {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
		out, err = o.gen.Generate(callCtx, system, user)
		cancel()
	}
	if err != nil {
		if o.gen != nil {
			o.logger.Warn("agent gateway call failed, using fallback", "role", role, "error", err)
		}
		out = llm.Completion{Text: FallbackText(role, message), Model: fallbackModel(err)}
		fallback = true
	}

	rec := Interpret(out.Text)
	return domain.AgentResponse{
		Role:           role,
		DisplayName:    role.DisplayName(),
		AuthorityLevel: role.AuthorityLevel(),
		Text:           out.Text,
		Recommendation: rec,
		Confidence:     Confidence(out.Text, role, in),
		Escalate:       escalates(rec),
		Model:          out.Model,
		TokensUsed:     out.TokensUsed,
		Fallback:       fallback,
	}
}

// Resolve returns the signal of the highest-authority response. On a tie the
// later response wins. An empty panel is advisory.
func Resolve(responses []domain.AgentResponse) domain.Recommendation {
	final := domain.RecommendAdvisory
	best := 0
	for _, r := range responses {
		if r.AuthorityLevel >= best {
			best = r.AuthorityLevel
			final = r.Recommendation
		}
	}
	return final
}

// Block is the fixed response for a turn stopped by the sensitive-content
// gate. The gateway is never called.
func Block() Result {
	blocked := func(role domain.Role, text string, confidence int) domain.AgentResponse {
		return domain.AgentResponse{
			Role:           role,
			DisplayName:    role.DisplayName(),
			AuthorityLevel: role.AuthorityLevel(),
			Text:           text,
			Recommendation: domain.RecommendDoNotProceed,
			Confidence:     confidence,
			Escalate:       true,
		}
	}
	return Result{
		Trace: domain.AgentTrace{
			Intent:           domain.IntentSensitive,
			SensitiveContent: true,
			AgentsActivated:  []domain.Role{domain.RoleEmployee, domain.RoleChiefMedicalOfficer},
			AgentResponses: []domain.AgentResponse{
				blocked(domain.RoleEmployee, "Potential PHI/PII detected. Cannot proceed until data is anonymized.", 20),
				blocked(domain.RoleChiefMedicalOfficer, "Blocked: contains protected health information. Please remove all identifying details and resubmit.", 10),
			},
			FinalRecommendation: domain.RecommendDoNotProceed,
			EscalationPath:      []string{"Employee → ChiefMedicalOfficer (PHI block)"},
		},
		Summary: blockSummary,
	}
}
