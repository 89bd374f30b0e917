package domain

// Recommendation is the structured signal extracted from an agent's text.
type Recommendation string

const (
	RecommendDoNotProceed Recommendation = "do_not_proceed"
	RecommendProceed      Recommendation = "proceed"
	RecommendHold         Recommendation = "hold"
	RecommendNeedMoreData Recommendation = "need_more_data"
	RecommendAdvisory     Recommendation = "advisory"
)

// AgentResponse is one role's contribution to a direction turn.
type AgentResponse struct {
	Role           Role           `json:"name"`
	DisplayName    string         `json:"display_name"`
	AuthorityLevel int            `json:"authority_level"`
	Text           string         `json:"text"`
	Recommendation Recommendation `json:"recommendation"`
	Confidence     int            `json:"confidence"`
	Escalate       bool           `json:"escalate"`
	Model          string         `json:"model,omitempty"`
	TokensUsed     int            `json:"tokens_used"`
	Fallback       bool           `json:"fallback,omitempty"`
}

// AgentTrace is the structured audit record stored verbatim with a system turn.
type AgentTrace struct {
	Intent              Intent          `json:"intent"`
	SensitiveContent    bool            `json:"phi"`
	AgentsActivated     []Role          `json:"agents_activated"`
	AgentResponses      []AgentResponse `json:"agent_responses"`
	FinalRecommendation Recommendation  `json:"final_recommendation"`
	EscalationPath      []string        `json:"escalation_path"`
}
