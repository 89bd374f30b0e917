package agent

import "github.com/ashureev/casecoach/internal/domain"

// Summary is the learner-facing text for a final recommendation. It depends
// only on the category and how many roles responded.
func Summary(rec domain.Recommendation, responders int) string {
	switch rec {
	case domain.RecommendDoNotProceed:
		return "Safety or compliance concerns were identified. Please address the flagged issues before proceeding."
	case domain.RecommendProceed:
		if responders > 2 {
			return "The executive team supports this direction. Review their individual perspectives for important conditions and monitoring requirements."
		}
		return "This approach has initial support. Review the team's input for conditions and next steps."
	case domain.RecommendHold:
		return "The team recommends pausing to gather more evidence or address risks before committing to this direction."
	case domain.RecommendNeedMoreData:
		return "Additional information is needed before a recommendation can be made. See each team member's specific requests."
	default:
		return "This is advisory guidance. Review the team's perspectives and formulate your own recommendation."
	}
}

// blockSummary is shown when the sensitive-content gate stops a turn.
const blockSummary = "We cannot continue because the message appears to include sensitive personal health information. Please anonymize and resubmit."
