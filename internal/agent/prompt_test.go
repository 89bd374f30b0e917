package agent

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/ashureev/casecoach/internal/domain"
)

func TestComposeLayersInOrder(t *testing.T) {
	cc := &domain.CaseContext{
		Title:      "Telehealth Expansion",
		KeyMetrics: map[string]any{"medical_loss_ratio": "88%", "budget": "$5M"},
		Goals:      map[string]any{"star_rating": 4.5},
		RedLines:   []string{"No unilateral rate cuts"},
		Background: "Background text.",
	}
	got := NewComposer().Compose(domain.RoleCFO, cc, "Push on payback.", []domain.Directive{
		{Content: "Focus on year one."},
		{Content: "Ignore marketing spend."},
	})

	order := []string{
		Persona(domain.RoleCFO),
		"=== CASE CONTEXT ===\nTitle: Telehealth Expansion",
		"Key Metrics:\n- Budget: $5M\n- Medical Loss Ratio: 88%",
		"Goals:\n- Star Rating: 4.5",
		"Red Lines (do NOT violate):\n- No unilateral rate cuts",
		"Full Case Text:\nBackground text.",
		"=== PROFESSOR'S ADDITIONAL INSTRUCTIONS FOR YOUR ROLE ===\nPush on payback.",
		"1. Focus on year one.\n2. Ignore marketing spend.",
	}
	last := -1
	for _, part := range order {
		idx := strings.Index(got, part)
		if assert.GreaterOrEqual(t, idx, 0, "missing %q", part) {
			assert.Greater(t, idx, last, "out of order: %q", part)
			last = idx
		}
	}
}

func TestComposeNonASCIIKeys(t *testing.T) {
	cc := &domain.CaseContext{
		KeyMetrics: map[string]any{"écart_budget": "5%"},
		Goals:      map[string]any{"ñandú_index": 2},
	}
	got := NewComposer().Compose(domain.RoleCFO, cc, "", nil)

	assert.True(t, utf8.ValidString(got))
	assert.Contains(t, got, "- Écart Budget: 5%")
	assert.Contains(t, got, "- Ñandú Index: 2")
}

func TestTitleCase(t *testing.T) {
	tests := map[string]string{
		"medical_loss_ratio": "Medical Loss Ratio",
		"écart_budget":       "Écart Budget",
		"mlr":                "Mlr",
		"":                   "",
	}
	for in, want := range tests {
		assert.Equal(t, want, titleCase(in), in)
	}
}

func TestComposeWithoutContext(t *testing.T) {
	got := NewComposer().Compose(domain.RoleEmployee, nil, "  ", nil)
	assert.Equal(t, Persona(domain.RoleEmployee), got)
}

func TestComposeTruncatesBackground(t *testing.T) {
	c := &Composer{BackgroundLimit: 10}
	got := c.Compose(domain.RoleCEO, &domain.CaseContext{Title: "T", Background: strings.Repeat("x", 25)}, "", nil)

	assert.Contains(t, got, "Full Case Text:\n"+strings.Repeat("x", 10)+truncationMarker)
	assert.NotContains(t, got, strings.Repeat("x", 11))
}

func TestComposeKeepsBackgroundAtLimit(t *testing.T) {
	got := NewComposer().Compose(domain.RoleCEO, &domain.CaseContext{Background: strings.Repeat("y", DefaultBackgroundLimit)}, "", nil)
	assert.NotContains(t, got, truncationMarker)
}

func TestEveryRoleHasPersona(t *testing.T) {
	for _, r := range domain.Roles {
		assert.NotEmpty(t, Persona(r), r)
	}
}

func TestInterpret(t *testing.T) {
	tests := []struct {
		text string
		want domain.Recommendation
	}{
		{"We cannot proceed, this is blocked by compliance.", domain.RecommendDoNotProceed},
		{"I would block this and approve nothing.", domain.RecommendDoNotProceed},
		{"I approve and support the plan.", domain.RecommendProceed},
		{"Let's pause and defer a quarter.", domain.RecommendHold},
		{"We need more data before deciding.", domain.RecommendNeedMoreData},
		{"Interesting idea.", domain.RecommendAdvisory},
		{"", domain.RecommendAdvisory},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Interpret(tt.text), tt.text)
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name string
		text string
		role domain.Role
		in   domain.Intent
		want int
	}{
		{"baseline", "ok", domain.RoleCMO, domain.IntentGeneral, 70},
		{"cfo on finance", "ok", domain.RoleCFO, domain.IntentFinancial, 85},
		{"cmo on clinical", "ok", domain.RoleCMO, domain.IntentClinical, 85},
		{"cmedo on compliance", "ok", domain.RoleChiefMedicalOfficer, domain.IntentCompliance, 88},
		{"ceo", "ok", domain.RoleCEO, domain.IntentGeneral, 82},
		{"employee on operations", "ok", domain.RoleEmployee, domain.IntentOperational, 90},
		{"uncertain", "The payback is unclear.", domain.RoleCFO, domain.IntentGeneral, 55},
		{"recommends", "I Recommend a pilot.", domain.RoleEmployee, domain.IntentOperational, 98},
		{"both", "I recommend waiting; the data is insufficient.", domain.RoleCEO, domain.IntentGeneral, 75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Confidence(tt.text, tt.role, tt.in)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, minConfidence)
			assert.LessOrEqual(t, got, maxConfidence)
		})
	}
}

func TestFallbackTextIsRoleSpecific(t *testing.T) {
	assert.Contains(t, FallbackText(domain.RoleCFO, "What about ROI?"), "explicit cost and benefit assumptions")
	assert.Contains(t, FallbackText(domain.RoleCFO, "hello"), "quantified financial assumptions")
	assert.Contains(t, FallbackText(domain.RoleCMO, "provider trust"), "phased approach")
	assert.Contains(t, FallbackText(domain.RoleChiefMedicalOfficer, "patient outcomes"), "non-negotiable")
	assert.Contains(t, FallbackText(domain.RoleCEO, ""), "limited pilot")
	assert.Contains(t, FallbackText(domain.RoleEmployee, "Can we approve this?"), "requires executive review")
	assert.Contains(t, FallbackText(domain.RoleEmployee, "hello"), "operational aspects")
}

func TestSummaryPerRecommendation(t *testing.T) {
	assert.NotEqual(t, Summary(domain.RecommendProceed, 2), Summary(domain.RecommendProceed, 3))
	seen := map[string]bool{}
	for _, rec := range []domain.Recommendation{
		domain.RecommendDoNotProceed, domain.RecommendProceed, domain.RecommendHold,
		domain.RecommendNeedMoreData, domain.RecommendAdvisory,
	} {
		s := Summary(rec, 1)
		assert.False(t, seen[s], "duplicate summary for %s", rec)
		seen[s] = true
	}
}
