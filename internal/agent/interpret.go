package agent

import (
	"regexp"
	"strings"

	"github.com/ashureev/casecoach/internal/domain"
)

type signalRule struct {
	rec     domain.Recommendation
	pattern *regexp.Regexp
}

// signalRules are checked in priority order against lower-cased text.
var signalRules = []signalRule{
	{domain.RecommendDoNotProceed, regexp.MustCompile(`\b(do not proceed|block|blocked|cannot proceed)\b`)},
	{domain.RecommendProceed, regexp.MustCompile(`\b(proceed|approve|support|endorse|green light)\b`)},
	{domain.RecommendHold, regexp.MustCompile(`\b(hold|wait|pause|defer|delay)\b`)},
	{domain.RecommendNeedMoreData, regexp.MustCompile(`\b(need more data|more information|insufficient|clarify)\b`)},
}

var (
	uncertainty    = regexp.MustCompile(`(?i)\b(uncertain|unclear|need more|insufficient)\b`)
	recommendation = regexp.MustCompile(`(?i)\b(recommend|strongly suggest|i advise)\b`)
)

const (
	minConfidence = 20
	maxConfidence = 98
)

// Interpret extracts exactly one recommendation signal from agent text.
func Interpret(text string) domain.Recommendation {
	lower := strings.ToLower(text)
	for _, r := range signalRules {
		if r.pattern.MatchString(lower) {
			return r.rec
		}
	}
	return domain.RecommendAdvisory
}

// Confidence estimates 20..98 from role/intent alignment and the wording of
// text. It orders responses; it is not a calibrated probability.
func Confidence(text string, role domain.Role, in domain.Intent) int {
	base := 70
	switch {
	case role == domain.RoleCFO && in == domain.IntentFinancial:
		base = 85
	case role == domain.RoleCMO && in == domain.IntentClinical:
		base = 85
	case role == domain.RoleChiefMedicalOfficer && (in == domain.IntentClinical || in == domain.IntentCompliance):
		base = 88
	case role == domain.RoleCEO:
		base = 82
	case role == domain.RoleEmployee && in == domain.IntentOperational:
		base = 90
	}

	if uncertainty.MatchString(text) {
		base -= 15
	}
	if recommendation.MatchString(text) {
		base += 8
	}
	return min(max(base, minConfidence), maxConfidence)
}

// escalates reports whether a signal asks the learner to stop or wait.
func escalates(rec domain.Recommendation) bool {
	return rec == domain.RecommendDoNotProceed || rec == domain.RecommendHold
}
