package intent

import (
	"regexp"

	"github.com/ashureev/casecoach/internal/domain"
)

var (
	strategicFinance = regexp.MustCompile(`(?i)\b(strategic|decision|approve|invest|fund)\b`)
	relationship     = regexp.MustCompile(`(?i)\b(member|provider|trust|satisfaction|network)\b`)
	budgetTerms      = regexp.MustCompile(`(?i)\b(budget|cost|roi)\b`)
	clinicalTerms    = regexp.MustCompile(`(?i)\b(patient|clinical|safety)\b`)
)

// Route returns the ordered, de-duplicated roles to invoke for a message.
// The Employee role always comes first.
func Route(in domain.Intent, message string) []domain.Role {
	roles := []domain.Role{domain.RoleEmployee}

	switch in {
	case domain.IntentSensitive:
		roles = append(roles, domain.RoleChiefMedicalOfficer)
	case domain.IntentEscalation, domain.IntentExecutiveDecision, domain.IntentStrategic:
		roles = append(roles, domain.RoleCFO, domain.RoleCMO, domain.RoleCEO)
	case domain.IntentFinancial:
		roles = append(roles, domain.RoleCFO)
		if strategicFinance.MatchString(message) {
			roles = append(roles, domain.RoleCEO)
		}
	case domain.IntentClinical:
		roles = append(roles, domain.RoleChiefMedicalOfficer)
		if relationship.MatchString(message) {
			roles = append(roles, domain.RoleCMO)
		}
	case domain.IntentCompliance:
		roles = append(roles, domain.RoleChiefMedicalOfficer, domain.RoleCFO)
	case domain.IntentOperational:
		if budgetTerms.MatchString(message) {
			roles = append(roles, domain.RoleCFO)
		}
		if clinicalTerms.MatchString(message) {
			roles = append(roles, domain.RoleChiefMedicalOfficer)
		}
	}

	return dedupe(roles)
}

func dedupe(roles []domain.Role) []domain.Role {
	seen := make(map[domain.Role]struct{}, len(roles))
	out := roles[:0]
	for _, r := range roles {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
