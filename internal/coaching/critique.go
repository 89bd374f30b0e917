package coaching

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ashureev/casecoach/internal/domain"
	"github.com/ashureev/casecoach/internal/llm"
)

// Sufficiency thresholds for the Critique gate.
const (
	MinAverageScore   = 1.5
	MinDimensionScore = domain.ScoreDeveloping
)

// lexicon holds the keyword list per rubric dimension. Matching is by
// substring on the lower-cased message.
var lexicon = map[domain.Dimension][]string{
	domain.DimensionProblemFraming: {
		"problem", "issue", "challenge", "question", "decision", "objective",
		"situation", "context", "background", "currently", "facing",
	},
	domain.DimensionEvidenceUse: {
		"data", "evidence", "study", "report", "number", "statistic",
		"mlr", "roi", "ebitda", "benchmark", "metric", "%", "$", "million", "billion",
	},
	domain.DimensionTradeoffQuality: {
		"tradeoff", "trade-off", "however", "on the other hand", "versus", "balanced",
		"advantage", "disadvantage", "pro", "con", "compare", "alternatively", "downside", "upside",
	},
	domain.DimensionRiskCompliance: {
		"risk", "compliance", "regulatory", "legal", "safety", "cms", "stars",
		"violation", "penalty", "audit", "standard", "requirement", "patient safety",
	},
}

var improvements = map[domain.Dimension]string{
	domain.DimensionProblemFraming:  "Clearly define the problem or decision at hand",
	domain.DimensionEvidenceUse:     "Support your argument with specific data from the case",
	domain.DimensionTradeoffQuality: "Discuss at least one tradeoff or counterargument",
	domain.DimensionRiskCompliance:  "Address compliance or risk considerations",
}

// Critique is the outcome of the Critique gate for one message.
type Critique struct {
	Rubric     domain.Rubric
	Sufficient bool
	Average    float64
	Missing    []string
	Feedback   string
}

// scoreHits maps a keyword hit count to an ordinal score.
func scoreHits(hits int) domain.Score {
	switch {
	case hits == 0:
		return domain.ScoreWeak
	case hits <= 2:
		return domain.ScoreDeveloping
	case hits <= 4:
		return domain.ScoreAdequate
	default:
		return domain.ScoreStrong
	}
}

func assessDimension(lower string, keywords []string) domain.Score {
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	return scoreHits(hits)
}

// EvaluateReasoning scores message against the four-dimension rubric.
// Scoring is lexical over the message alone; the case context only feeds the
// optional follow-up generated by a Critic.
func EvaluateReasoning(message string) Critique {
	lower := strings.ToLower(message)

	rubric := domain.Rubric{
		ProblemFraming:  assessDimension(lower, lexicon[domain.DimensionProblemFraming]),
		EvidenceUse:     assessDimension(lower, lexicon[domain.DimensionEvidenceUse]),
		TradeoffQuality: assessDimension(lower, lexicon[domain.DimensionTradeoffQuality]),
		RiskCompliance:  assessDimension(lower, lexicon[domain.DimensionRiskCompliance]),
	}

	total := 0
	lowest := domain.ScoreStrong
	var missing []string
	for _, d := range domain.Dimensions {
		s := rubric.Get(d)
		total += int(s)
		if s < lowest {
			lowest = s
		}
		if float64(s) < MinAverageScore {
			missing = append(missing, improvements[d])
		}
	}
	avg := float64(total) / float64(len(domain.Dimensions))
	sufficient := avg >= MinAverageScore && lowest >= MinDimensionScore

	return Critique{
		Rubric:     rubric,
		Sufficient: sufficient,
		Average:    avg,
		Missing:    missing,
		Feedback:   critiqueFeedback(rubric, sufficient),
	}
}

func critiqueFeedback(r domain.Rubric, sufficient bool) string {
	parts := make([]string, 0, len(domain.Dimensions))
	for _, d := range domain.Dimensions {
		label := r.Get(d).Label()
		parts = append(parts, fmt.Sprintf("**%s**: %s", d.Title(), strings.ToUpper(label[:1])+label[1:]))
	}
	if sufficient {
		return "Your reasoning is strong enough to proceed. " + strings.Join(parts, " · ")
	}
	return "Your reasoning needs strengthening before the executive team can weigh in. " + strings.Join(parts, " · ")
}

// Critic asks the text-generation gateway for two targeted follow-up
// questions. Failures are reported to the caller, who drops the follow-up.
type Critic struct {
	gen    llm.Generator
	logger *slog.Logger
}

// NewCritic creates a Critic. A nil generator disables follow-ups.
func NewCritic(gen llm.Generator, logger *slog.Logger) *Critic {
	if logger == nil {
		logger = slog.Default()
	}
	return &Critic{gen: gen, logger: logger}
}

// FollowUp returns two questions targeting the weakest rubric dimensions.
func (c *Critic) FollowUp(ctx context.Context, message string, cc *domain.CaseContext, r domain.Rubric) (string, error) {
	if c == nil || c.gen == nil {
		return "", llm.ErrNotConfigured
	}
	out, err := c.gen.Generate(ctx, critiquePrompt(cc, r), "Here is the student's reasoning:\n\n"+message)
	if err != nil {
		return "", fmt.Errorf("critique follow-up: %w", err)
	}
	return out.Text, nil
}

func critiquePrompt(cc *domain.CaseContext, r domain.Rubric) string {
	var b strings.Builder
	b.WriteString("You are a Socratic business coach on the CaseCoach AI platform. Your job is to critique a student's reasoning and push them to think deeper. Be encouraging but rigorous.\n\n")
	if cc != nil && cc.Background != "" {
		fmt.Fprintf(&b, "Case: %s\nKPIs: %s\n", cc.Title, formatMetrics(cc.KeyMetrics))
	}
	b.WriteString("\nThe student's current rubric scores are:\n")
	for _, d := range domain.Dimensions {
		fmt.Fprintf(&b, "- %s: %d/3\n", d.Title(), r.Get(d))
	}
	b.WriteString("\nGive exactly 2 specific, actionable questions that would improve their weakest areas. Be brief and direct.")
	return b.String()
}

func formatMetrics(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return strings.Join(parts, ", ")
}
