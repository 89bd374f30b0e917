// Package safety detects personally identifying health and financial details in
// learner messages. A single matching rule is enough to block a turn.
package safety

import (
	"fmt"
	"regexp"
)

// Rule defines one sensitive-content pattern class.
type Rule struct {
	ID          string
	Description string
	Pattern     string
}

// DefaultRules returns the built-in pattern classes.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "government-id",
			Description: "Government ID number (ddd-dd-dddd)",
			Pattern:     `\b\d{3}-\d{2}-\d{4}\b`,
		},
		{
			ID:          "date-of-birth",
			Description: "Labelled date of birth",
			Pattern:     `(?i)\b(?:dob|date of birth)\s*[:\-]?\s*\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}\b`,
		},
		{
			ID:          "medical-record-number",
			Description: "Labelled medical record number",
			Pattern:     `(?i)\bmrn\s*[:\-]?\s*[a-z0-9\-]{4,}\b`,
		},
		{
			ID:          "account-number",
			Description: "Labelled account number of 8+ digits",
			Pattern:     `(?i)\b(?:account|acct)\s*(?:number|no)?\s*[:\-]?\s*\d{8,}\b`,
		},
		{
			ID:          "name-with-dob",
			Description: "Name-like token pair followed by a date of birth label",
			Pattern:     `(?i)\b[a-z]+\s+[a-z]+\b.*\b(?:dob|date of birth)\b`,
		},
	}
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// Detector is a pure predicate over message text. It is safe for concurrent use.
type Detector struct {
	rules []compiledRule
}

// New compiles rules into a Detector. Nil rules means DefaultRules.
func New(rules []Rule) (*Detector, error) {
	if rules == nil {
		rules = DefaultRules()
	}
	d := &Detector{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rule with pattern %q has no ID", r.Pattern)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile rule %s: %w", r.ID, err)
		}
		d.rules = append(d.rules, compiledRule{Rule: r, re: re})
	}
	return d, nil
}

// MustNew is New for static rule sets.
func MustNew(rules []Rule) *Detector {
	d, err := New(rules)
	if err != nil {
		panic(err)
	}
	return d
}

var defaultDetector = MustNew(nil)

// Default returns the process-wide detector built from DefaultRules.
func Default() *Detector {
	return defaultDetector
}

// Contains reports whether any rule matches text.
func (d *Detector) Contains(text string) bool {
	for _, r := range d.rules {
		if r.re.MatchString(text) {
			return true
		}
	}
	return false
}

// Matches returns the IDs of every rule that matches text, in rule order.
// Only IDs are returned so callers can log a block without echoing the data.
func (d *Detector) Matches(text string) []string {
	var ids []string
	for _, r := range d.rules {
		if r.re.MatchString(text) {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// Contains checks text against the default rules.
func Contains(text string) bool {
	return defaultDetector.Contains(text)
}
