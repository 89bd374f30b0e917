// Package intent classifies learner messages by topic and routes them to the
// executive roles that should respond.
package intent

import (
	"regexp"
	"strings"

	"github.com/ashureev/casecoach/internal/domain"
	"github.com/ashureev/casecoach/internal/safety"
)

type topic struct {
	intent  domain.Intent
	pattern *regexp.Regexp
}

// topics are checked in order; the first match wins.
var topics = []topic{
	{domain.IntentEscalation, regexp.MustCompile(`\b(urgent|escalate|immediate|critical|blocker|emergency|asap)\b`)},
	{domain.IntentExecutiveDecision, regexp.MustCompile(`\b(should we|should|approve|go ahead|proceed|pursue|fund|funding|invest|decision|sustainability|strategy)\b`)},
	{domain.IntentCompliance, regexp.MustCompile(`\b(policy|manual|document|sop|procedure|hipaa|compliance|regulation)\b`)},
	{domain.IntentFinancial, regexp.MustCompile(`\b(budget|cost|roi|price|margin|revenue|profit|forecast|spend|pmpy|pmpm|ebitda|investment)\b`)},
	{domain.IntentClinical, regexp.MustCompile(`\b(patient|clinical|triage|diagnosis|medication|care|provider|member|admissions|quality|safety)\b`)},
	{domain.IntentStrategic, regexp.MustCompile(`\b(strategic|market|positioning|roadmap|growth|launch|board|bid cycle|competitive)\b`)},
	{domain.IntentOperational, regexp.MustCompile(`\b(how|process|steps|workflow|who|when|where|timeline|implement)\b`)},
}

// Classifier maps free text to an intent. Sensitive content pre-empts every
// topical intent.
type Classifier struct {
	detector *safety.Detector
}

// NewClassifier creates a Classifier. A nil detector uses the default rules.
func NewClassifier(detector *safety.Detector) *Classifier {
	if detector == nil {
		detector = safety.Default()
	}
	return &Classifier{detector: detector}
}

// Classify returns the first matching intent, or general.
func (c *Classifier) Classify(message string) domain.Intent {
	if c.detector.Contains(message) {
		return domain.IntentSensitive
	}
	lower := strings.ToLower(message)
	for _, t := range topics {
		if t.pattern.MatchString(lower) {
			return t.intent
		}
	}
	return domain.IntentGeneral
}

var defaultClassifier = NewClassifier(nil)

// Classify uses the default sensitive-content rules.
func Classify(message string) domain.Intent {
	return defaultClassifier.Classify(message)
}
