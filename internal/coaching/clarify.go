// Package coaching implements the Clarify → Critique → Direction gate that a
// student must pass before the executive agents weigh in.
package coaching

import (
	"regexp"
	"strings"
)

// MinSubstanceWords is the whitespace-token count a message needs to count as substantive.
const MinSubstanceWords = 20

var (
	rationalePattern = regexp.MustCompile(`\b(because|since|therefore|my reasoning|i think|i believe|my rationale|i recommend|my approach|i propose|i would|i suggest)\b`)
	riskPattern      = regexp.MustCompile(`\b(risk|downside|concern|worry|problem|challenge|threat|limitation|drawback|issue)s?\b`)
	evidencePattern  = regexp.MustCompile(`\d+(\.\d+)?\s*%|\$\s?\d|\b\d+(\.\d+)?\s*(million|billion|m|b|k|bps|basis)\b|\b(mlr|roi|ebitda|admissions|benchmark|data|evidence|study|metric)s?\b`)
)

// Clarification is the outcome of the Clarify gate for one message.
type Clarification struct {
	HasRationale bool `json:"has_rationale"`
	HasRisk      bool `json:"has_risk"`
	HasEvidence  bool `json:"has_evidence"`
	HasSubstance bool `json:"has_substance"`
	Score        int  `json:"score"`
	Passed       bool `json:"passed"`
}

// AssessClarification judges whether message expresses a reasoned position.
// It passes when the message carries a rationale marker and is substantive.
func AssessClarification(message string) Clarification {
	lower := strings.ToLower(message)

	c := Clarification{
		HasRationale: rationalePattern.MatchString(lower),
		HasRisk:      riskPattern.MatchString(lower),
		HasEvidence:  evidencePattern.MatchString(lower),
		HasSubstance: len(strings.Fields(message)) >= MinSubstanceWords,
	}
	for _, hit := range []bool{c.HasRationale, c.HasRisk, c.HasEvidence, c.HasSubstance} {
		if hit {
			c.Score++
		}
	}
	c.Passed = c.HasRationale && c.HasSubstance
	return c
}

// ClarifyQuestions returns one question per unmet criterion, and a generic
// prompt when every criterion is met. The result is never empty.
func ClarifyQuestions(c Clarification) []string {
	var questions []string
	if !c.HasRationale {
		questions = append(questions, `What is your proposed approach? Start with "I recommend..." or "I think we should..."`)
	}
	if !c.HasRisk {
		questions = append(questions, "What is one key risk or concern with your recommendation?")
	}
	if !c.HasEvidence {
		questions = append(questions, "Can you support your reasoning with a specific number from the case (e.g., MLR, budget, admissions)?")
	}
	if !c.HasSubstance {
		questions = append(questions, "Can you elaborate on your reasoning? Try to write at least 2-3 sentences.")
	}
	if len(questions) == 0 {
		return []string{"Tell me more about your reasoning."}
	}
	return questions
}
