package domain

// Role is a simulated executive agent.
type Role string

const (
	RoleEmployee            Role = "Employee"
	RoleCFO                 Role = "CFO"
	RoleCMO                 Role = "CMO"
	RoleChiefMedicalOfficer Role = "ChiefMedicalOfficer"
	RoleCEO                 Role = "CEO"
)

// Roles lists every agent role in escalation order.
var Roles = []Role{RoleEmployee, RoleCFO, RoleCMO, RoleChiefMedicalOfficer, RoleCEO}

// AuthorityLevel ranks a role when resolving the final recommendation.
// Unknown roles rank with the operational base role.
func (r Role) AuthorityLevel() int {
	switch r {
	case RoleCEO:
		return 3
	case RoleCFO, RoleCMO, RoleChiefMedicalOfficer:
		return 2
	default:
		return 1
	}
}

// DisplayName is the learner-facing label.
func (r Role) DisplayName() string {
	if r == RoleChiefMedicalOfficer {
		return "Chief Medical Officer"
	}
	return string(r)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Intent is the topical classification of a learner message.
type Intent string

const (
	IntentSensitive         Intent = "phi_sensitive"
	IntentEscalation        Intent = "escalation"
	IntentExecutiveDecision Intent = "exec_decision"
	IntentCompliance        Intent = "compliance"
	IntentFinancial         Intent = "financial"
	IntentClinical          Intent = "clinical"
	IntentStrategic         Intent = "strategic"
	IntentOperational       Intent = "operational"
	IntentGeneral           Intent = "general"
)
