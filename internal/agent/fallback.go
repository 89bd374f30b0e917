package agent

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/ashureev/casecoach/internal/domain"
	"github.com/ashureev/casecoach/internal/llm"
)

var (
	financeTerms      = regexp.MustCompile(`\b(cost|budget|roi|margin|revenue)\b`)
	stakeholderTerms  = regexp.MustCompile(`\b(provider|member|trust|satisfaction)\b`)
	clinicalSafety    = regexp.MustCompile(`\b(safety|clinical|quality|compliance|patient)\b`)
	escalationRequest = regexp.MustCompile(`\b(approve|budget|invest|fund|decision)\b`)
)

// FallbackText is the deterministic, role-appropriate reply used when the
// text-generation gateway is unavailable.
func FallbackText(role domain.Role, message string) string {
	lower := strings.ToLower(message)

	switch role {
	case domain.RoleCFO:
		if financeTerms.MatchString(lower) {
			return "From a financial perspective, I need explicit cost and benefit assumptions with clear units (e.g., $5M, $900K) before I can evaluate ROI against our budget constraints and payback timeline. Please provide specific numbers."
		}
		return "I need quantified financial assumptions (cost, expected benefit, and timeline) to assess this proposal against our budget and ROI requirements."
	case domain.RoleCMO:
		if stakeholderTerms.MatchString(lower) {
			return "This touches provider and member relationships. I recommend a phased approach with clear communication plans to stakeholders before implementation. Provider trust is essential and must be protected."
		}
		return "From a stakeholder perspective, we need to ensure any changes are communicated effectively and don't risk provider or member relationships. I recommend a phased rollout."
	case domain.RoleChiefMedicalOfficer:
		if clinicalSafety.MatchString(lower) {
			return "Clinical quality and patient safety are non-negotiable. Any proposed intervention needs evidence-based support and should be piloted before scaling. I recommend reviewing relevant quality benchmarks."
		}
		return "I need to evaluate the clinical implications of this proposal. Please ensure it aligns with quality standards and doesn't compromise patient safety or regulatory compliance."
	case domain.RoleCEO:
		return "After weighing all executive inputs, I recommend a measured approach. We should proceed with a limited pilot that addresses financial requirements while protecting clinical quality and stakeholder relationships. The biggest risk needs active monitoring with clear checkpoints."
	}

	if escalationRequest.MatchString(lower) {
		return "This requires executive review. I would flag this for CFO input on financial feasibility and CMO/CMedO input on stakeholder and clinical impact. Let me triage and escalate appropriately."
	}
	return "I can help scope the operational aspects. Let me assess what resources, timeline, and stakeholders are involved, and determine if executive sign-off is needed."
}

// fallbackModel labels the model field of a fallback response by cause.
func fallbackModel(err error) string {
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		return "fallback-no-key"
	case errors.Is(err, context.DeadlineExceeded):
		return "fallback-timeout"
	default:
		return "fallback-error"
	}
}
