package agent

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ashureev/casecoach/internal/domain"
)

const (
	// DefaultBackgroundLimit caps the case background excerpt, in characters.
	DefaultBackgroundLimit = 12000
	truncationMarker       = "\n[... case text truncated ...]"
)

// Composer builds a role's full system instruction.
type Composer struct {
	BackgroundLimit int
}

// NewComposer returns a Composer with the default background limit.
func NewComposer() *Composer {
	return &Composer{BackgroundLimit: DefaultBackgroundLimit}
}

// Compose concatenates, in order: the role persona, the case context, the
// professor's override for the role, and the numbered active directives.
func (c *Composer) Compose(role domain.Role, cc *domain.CaseContext, override string, directives []domain.Directive) string {
	parts := []string{Persona(role)}

	if cc != nil {
		parts = append(parts, "\n=== CASE CONTEXT ===\nTitle: "+cc.Title)
		if len(cc.KeyMetrics) > 0 {
			parts = append(parts, "\nKey Metrics:")
			parts = append(parts, labelled(cc.KeyMetrics)...)
		}
		if len(cc.Goals) > 0 {
			parts = append(parts, "\nGoals:")
			parts = append(parts, labelled(cc.Goals)...)
		}
		if len(cc.RedLines) > 0 {
			parts = append(parts, "\nRed Lines (do NOT violate):")
			for _, line := range cc.RedLines {
				parts = append(parts, "- "+line)
			}
		}
		if cc.Background != "" {
			parts = append(parts, "\nFull Case Text:\n"+c.truncate(cc.Background))
		}
	}

	if strings.TrimSpace(override) != "" {
		parts = append(parts, "\n=== PROFESSOR'S ADDITIONAL INSTRUCTIONS FOR YOUR ROLE ===\n"+override)
	}

	if len(directives) > 0 {
		parts = append(parts, "\n=== ACTIVE DIRECTIVES (from the professor, follow these) ===")
		for i, d := range directives {
			parts = append(parts, fmt.Sprintf("%d. %s", i+1, d.Content))
		}
	}

	return strings.Join(parts, "\n")
}

func (c *Composer) truncate(text string) string {
	limit := c.BackgroundLimit
	if limit <= 0 {
		limit = DefaultBackgroundLimit
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + truncationMarker
}

// labelled renders a mapping as "- Label: value" lines sorted by key.
func labelled(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("- %s: %v", titleCase(k), m[k]))
	}
	return lines
}

// titleCase turns "medical_loss_ratio" into "Medical Loss Ratio".
func titleCase(key string) string {
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// briefing is the user message handed to the CEO once other roles have
// responded in the same turn.
func briefing(message, prior string) string {
	return "Student question: " + message +
		"\n\n=== OTHER EXECUTIVE INPUTS ===\n" + prior +
		"\n\nBased on these inputs, provide your executive decision."
}
