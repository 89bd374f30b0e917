package domain

// SessionStats summarizes one session for the professor dashboard.
type SessionStats struct {
	SessionID      string `json:"session_id"`
	StudentName    string `json:"student_name"`
	CreditsUsed    int    `json:"credits_used"`
	MessageCount   int    `json:"message_count"`
	ReachedPhase   Phase  `json:"reached_phase"`
	DirectionTurns int    `json:"direction_turns"`
}

// DimensionStats aggregates critique rubric labels for one dimension.
type DimensionStats struct {
	Dimension   Dimension `json:"dimension"`
	Evaluations int       `json:"evaluations"`
	Average     float64   `json:"average"`
	WeakPercent int       `json:"weak_percent"`
}

// Analytics is the per-assignment coaching performance summary.
type Analytics struct {
	AssignmentID           string                 `json:"assignment_id"`
	Sessions               int                    `json:"total_sessions"`
	StudentMessages        int                    `json:"total_student_messages"`
	SessionsReachDirection int                    `json:"sessions_reaching_direction"`
	PhaseDistribution      map[Phase]int          `json:"phase_distribution"`
	IntentDistribution     map[Intent]int         `json:"intent_distribution"`
	Recommendations        map[Recommendation]int `json:"recommendation_distribution"`
	Rubric                 []DimensionStats       `json:"rubric"`
	PerSession             []SessionStats         `json:"sessions"`
}
