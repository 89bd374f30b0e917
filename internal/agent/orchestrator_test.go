package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/casecoach/internal/domain"
	"github.com/ashureev/casecoach/internal/llm"
)

type call struct {
	role   domain.Role
	system string
	user   string
}

// scriptedGenerator answers by role, identified from the persona at the top
// of the system prompt.
type scriptedGenerator struct {
	replies map[domain.Role]string
	err     error
	calls   []call
}

func (g *scriptedGenerator) Generate(ctx context.Context, system, user string) (llm.Completion, error) {
	role := roleOf(system)
	g.calls = append(g.calls, call{role: role, system: system, user: user})
	if g.err != nil {
		return llm.Completion{}, g.err
	}
	return llm.Completion{Text: g.replies[role], Model: "scripted", TokensUsed: 7}, nil
}

func roleOf(system string) domain.Role {
	for _, r := range domain.Roles {
		if strings.HasPrefix(system, Persona(r)) {
			return r
		}
	}
	return ""
}

func TestRunFinancialTurn(t *testing.T) {
	gen := &scriptedGenerator{replies: map[domain.Role]string{
		domain.RoleEmployee: "Routing this to finance.",
		domain.RoleCFO:      "I recommend we hold until the cost model is clear.",
	}}
	o := NewOrchestrator(gen, nil, Config{}, nil)

	res, err := o.Run(context.Background(), Request{Message: "The cost per member looks high"})
	require.NoError(t, err)

	tr := res.Trace
	assert.Equal(t, domain.IntentFinancial, tr.Intent)
	assert.False(t, tr.SensitiveContent)
	assert.Equal(t, []domain.Role{domain.RoleEmployee, domain.RoleCFO}, tr.AgentsActivated)
	assert.Equal(t, []string{"Employee → CFO"}, tr.EscalationPath)
	require.Len(t, tr.AgentResponses, 2)

	cfo := tr.AgentResponses[1]
	assert.Equal(t, domain.RecommendHold, cfo.Recommendation)
	assert.True(t, cfo.Escalate)
	assert.Equal(t, 2, cfo.AuthorityLevel)
	assert.Equal(t, 93, cfo.Confidence)
	assert.Equal(t, "scripted", cfo.Model)
	assert.False(t, cfo.Fallback)

	assert.Equal(t, domain.RecommendHold, tr.FinalRecommendation)
	assert.Equal(t, Summary(domain.RecommendHold, 2), res.Summary)
	assert.Equal(t, 0, res.FallbackCount())
}

func TestRunExecutiveTurnBriefsCEO(t *testing.T) {
	gen := &scriptedGenerator{replies: map[domain.Role]string{
		domain.RoleEmployee: "Needs executive review.",
		domain.RoleCFO:      "Numbers are thin; need more data on payback.",
		domain.RoleCMO:      "Hold until providers are consulted.",
		domain.RoleCEO:      "We proceed with a limited pilot.",
	}}
	o := NewOrchestrator(gen, nil, Config{}, nil)

	res, err := o.Run(context.Background(), Request{Message: "Should we fund the telehealth pilot?"})
	require.NoError(t, err)

	assert.Equal(t, domain.IntentExecutiveDecision, res.Trace.Intent)
	assert.Equal(t, []domain.Role{domain.RoleEmployee, domain.RoleCFO, domain.RoleCMO, domain.RoleCEO}, res.Trace.AgentsActivated)
	assert.Equal(t, []string{"Employee → CFO", "CFO → CMO", "CMO → CEO"}, res.Trace.EscalationPath)
	assert.Equal(t, domain.RecommendProceed, res.Trace.FinalRecommendation)
	assert.Equal(t, Summary(domain.RecommendProceed, 4), res.Summary)

	require.Len(t, gen.calls, 4)
	for _, c := range gen.calls[:3] {
		assert.Equal(t, "Should we fund the telehealth pilot?", c.user)
	}
	ceo := gen.calls[3]
	assert.Equal(t, domain.RoleCEO, ceo.role)
	assert.True(t, strings.HasPrefix(ceo.user, "Student question: Should we fund the telehealth pilot?"))
	assert.Contains(t, ceo.user, "=== OTHER EXECUTIVE INPUTS ===\n[Employee]: Needs executive review.\n\n[CFO]: ")
	assert.Contains(t, ceo.user, "[CMO]: Hold until providers are consulted.")
	assert.True(t, strings.HasSuffix(ceo.user, "Based on these inputs, provide your executive decision."))
}

func TestRunGatewayFailureFallsBack(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("connection refused")}
	o := NewOrchestrator(gen, nil, Config{}, nil)

	res, err := o.Run(context.Background(), Request{Message: "What is the budget for this?"})
	require.NoError(t, err)

	require.NotEmpty(t, res.Trace.AgentResponses)
	for _, r := range res.Trace.AgentResponses {
		assert.True(t, r.Fallback, r.Role)
		assert.Equal(t, "fallback-error", r.Model)
		assert.Zero(t, r.TokensUsed)
		assert.Equal(t, FallbackText(r.Role, "What is the budget for this?"), r.Text)
	}
	assert.Equal(t, len(res.Trace.AgentResponses), res.FallbackCount())
}

func TestRunWithoutGeneratorUsesNoKeyFallback(t *testing.T) {
	o := NewOrchestrator(nil, nil, Config{}, nil)

	res, err := o.Run(context.Background(), Request{Message: "hello team"})
	require.NoError(t, err)

	require.Len(t, res.Trace.AgentResponses, 1)
	assert.Equal(t, "fallback-no-key", res.Trace.AgentResponses[0].Model)
	assert.Equal(t, domain.IntentGeneral, res.Trace.Intent)
	assert.Empty(t, res.Trace.EscalationPath)
}

func TestRunTimeoutIsFallback(t *testing.T) {
	slow := generatorFunc(func(ctx context.Context, _, _ string) (llm.Completion, error) {
		<-ctx.Done()
		return llm.Completion{}, ctx.Err()
	})
	o := NewOrchestrator(slow, nil, Config{CallTimeout: 10 * time.Millisecond}, nil)

	res, err := o.Run(context.Background(), Request{Message: "hello team"})
	require.NoError(t, err)
	assert.Equal(t, "fallback-timeout", res.Trace.AgentResponses[0].Model)
}

func TestRunSensitiveContentBlocks(t *testing.T) {
	gen := &scriptedGenerator{}
	o := NewOrchestrator(gen, nil, Config{}, nil)

	res, err := o.Run(context.Background(), Request{Message: "Member 123-45-6789 was readmitted twice"})
	require.NoError(t, err)

	assert.Empty(t, gen.calls)
	assert.True(t, res.Blocked())
	assert.Equal(t, domain.RecommendDoNotProceed, res.Trace.FinalRecommendation)
	assert.Equal(t, []domain.Role{domain.RoleEmployee, domain.RoleChiefMedicalOfficer}, res.Trace.AgentsActivated)
	assert.Len(t, res.Trace.AgentResponses, 2)
	assert.Equal(t, Block(), res)
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewOrchestrator(nil, nil, Config{}, nil).Run(ctx, Request{Message: "hello"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunAppliesOverridesAndDirectives(t *testing.T) {
	gen := &scriptedGenerator{replies: map[domain.Role]string{}}
	o := NewOrchestrator(gen, nil, Config{}, nil)

	_, err := o.Run(context.Background(), Request{
		Message:    "The cost per member looks high",
		Overrides:  []domain.AgentOverride{{Role: domain.RoleCFO, PromptAddition: "Be extra skeptical."}},
		Directives: []domain.Directive{{Content: "Focus on Medicare Advantage."}},
	})
	require.NoError(t, err)

	require.Len(t, gen.calls, 2)
	assert.NotContains(t, gen.calls[0].system, "Be extra skeptical.")
	assert.Contains(t, gen.calls[1].system, "Be extra skeptical.")
	for _, c := range gen.calls {
		assert.Contains(t, c.system, "1. Focus on Medicare Advantage.")
	}
}

func TestResolveHighestAuthorityWins(t *testing.T) {
	resp := func(role domain.Role, rec domain.Recommendation) domain.AgentResponse {
		return domain.AgentResponse{Role: role, AuthorityLevel: role.AuthorityLevel(), Recommendation: rec}
	}

	assert.Equal(t, domain.RecommendAdvisory, Resolve(nil))
	assert.Equal(t, domain.RecommendDoNotProceed, Resolve([]domain.AgentResponse{
		resp(domain.RoleEmployee, domain.RecommendProceed),
		resp(domain.RoleCEO, domain.RecommendDoNotProceed),
		resp(domain.RoleCFO, domain.RecommendProceed),
	}))
	assert.Equal(t, domain.RecommendHold, Resolve([]domain.AgentResponse{
		resp(domain.RoleEmployee, domain.RecommendProceed),
		resp(domain.RoleCFO, domain.RecommendProceed),
		resp(domain.RoleChiefMedicalOfficer, domain.RecommendHold),
	}))
}

type generatorFunc func(ctx context.Context, system, user string) (llm.Completion, error)

func (f generatorFunc) Generate(ctx context.Context, system, user string) (llm.Completion, error) {
	return f(ctx, system, user)
}
