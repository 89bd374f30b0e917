package domain

// Score is an ordinal rubric score from 0 (weak) to 3 (strong).
type Score int

const (
	ScoreWeak Score = iota
	ScoreDeveloping
	ScoreAdequate
	ScoreStrong
)

// Label returns the lower-case label used in API payloads.
func (s Score) Label() string {
	switch s {
	case ScoreWeak:
		return "weak"
	case ScoreDeveloping:
		return "developing"
	case ScoreAdequate:
		return "adequate"
	case ScoreStrong:
		return "strong"
	default:
		return "unknown"
	}
}

// Dimension names one rubric axis.
type Dimension string

const (
	DimensionProblemFraming  Dimension = "problem_framing"
	DimensionEvidenceUse     Dimension = "evidence_use"
	DimensionTradeoffQuality Dimension = "tradeoff_quality"
	DimensionRiskCompliance  Dimension = "risk_compliance"
)

// Dimensions lists the rubric axes in reporting order.
var Dimensions = []Dimension{
	DimensionProblemFraming,
	DimensionEvidenceUse,
	DimensionTradeoffQuality,
	DimensionRiskCompliance,
}

// Title returns the human-readable dimension name, e.g. "Problem Framing".
func (d Dimension) Title() string {
	switch d {
	case DimensionProblemFraming:
		return "Problem Framing"
	case DimensionEvidenceUse:
		return "Evidence Use"
	case DimensionTradeoffQuality:
		return "Tradeoff Quality"
	case DimensionRiskCompliance:
		return "Risk Compliance"
	default:
		return string(d)
	}
}

// Rubric holds one fresh evaluation of a learner message.
type Rubric struct {
	ProblemFraming  Score `json:"problem_framing"`
	EvidenceUse     Score `json:"evidence_use"`
	TradeoffQuality Score `json:"tradeoff_quality"`
	RiskCompliance  Score `json:"risk_compliance"`
}

// Get returns the score for a dimension.
func (r Rubric) Get(d Dimension) Score {
	switch d {
	case DimensionProblemFraming:
		return r.ProblemFraming
	case DimensionEvidenceUse:
		return r.EvidenceUse
	case DimensionTradeoffQuality:
		return r.TradeoffQuality
	case DimensionRiskCompliance:
		return r.RiskCompliance
	default:
		return ScoreWeak
	}
}

// Labels maps each dimension to its label.
func (r Rubric) Labels() map[Dimension]string {
	out := make(map[Dimension]string, len(Dimensions))
	for _, d := range Dimensions {
		out[d] = r.Get(d).Label()
	}
	return out
}
