package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"

	"github.com/ashureev/casecoach/internal/domain"
)

// rubricLabel finds "**Evidence Use**: Adequate" style labels in critique
// feedback. Only the trace is stored structurally, so rubric history is
// recovered from the text.
var rubricLabel = map[domain.Dimension]*regexp.Regexp{
	domain.DimensionProblemFraming:  regexp.MustCompile(`(?i)problem\s*framing\*{0,2}:\s*(weak|developing|adequate|strong)`),
	domain.DimensionEvidenceUse:     regexp.MustCompile(`(?i)evidence\s*use\*{0,2}:\s*(weak|developing|adequate|strong)`),
	domain.DimensionTradeoffQuality: regexp.MustCompile(`(?i)tradeoff\s*quality\*{0,2}:\s*(weak|developing|adequate|strong)`),
	domain.DimensionRiskCompliance:  regexp.MustCompile(`(?i)risk[/&]?\s*compliance\*{0,2}:\s*(weak|developing|adequate|strong)`),
}

var labelScore = map[string]domain.Score{
	"weak":       domain.ScoreWeak,
	"developing": domain.ScoreDeveloping,
	"adequate":   domain.ScoreAdequate,
	"strong":     domain.ScoreStrong,
}

type analyticsMessage struct {
	sessionID string
	speaker   domain.Speaker
	content   string
	phase     domain.Phase
	trace     *domain.AgentTrace
}

// AssignmentAnalytics summarizes coaching performance for an assignment.
func (s *SQLiteStore) AssignmentAnalytics(ctx context.Context, assignmentID string) (*domain.Analytics, error) {
	sessions, err := s.sessionStats(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.session_id, m.role, m.content, m.agent_trace, m.phase
		FROM messages m JOIN sessions s ON m.session_id = s.id
		WHERE s.assignment_id = ?
		ORDER BY m.seq ASC`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("query assignment messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close analytics rows", "error", closeErr)
		}
	}()

	var msgs []analyticsMessage
	for rows.Next() {
		var (
			m            analyticsMessage
			speaker      string
			trace, phase sql.NullString
		)
		if err := rows.Scan(&m.sessionID, &speaker, &m.content, &trace, &phase); err != nil {
			return nil, fmt.Errorf("scan analytics row: %w", err)
		}
		m.speaker = domain.Speaker(speaker)
		m.phase = domain.Phase(phase.String)
		if trace.Valid && trace.String != "" {
			m.trace = &domain.AgentTrace{}
			if err := json.Unmarshal([]byte(trace.String), m.trace); err != nil {
				slog.Warn("skipping undecodable agent trace", "session_id", m.sessionID, "error", err)
				m.trace = nil
			}
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analytics rows: %w", err)
	}

	return summarize(assignmentID, sessions, msgs), nil
}

func (s *SQLiteStore) sessionStats(ctx context.Context, assignmentID string) ([]domain.SessionStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, COALESCE(u.name, ''), s.credits_used
		FROM sessions s LEFT JOIN users u ON s.user_id = u.id
		WHERE s.assignment_id = ?
		ORDER BY s.created_at DESC, s.rowid DESC`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("query session stats: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session stats rows", "error", closeErr)
		}
	}()

	var out []domain.SessionStats
	for rows.Next() {
		var st domain.SessionStats
		if err := rows.Scan(&st.SessionID, &st.StudentName, &st.CreditsUsed); err != nil {
			return nil, fmt.Errorf("scan session stats: %w", err)
		}
		st.ReachedPhase = domain.PhaseClarify
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session stats: %w", err)
	}
	return out, nil
}

// summarize aggregates messages into analytics. Messages must be in append
// order so the reached phase reflects the latest system turn.
func summarize(assignmentID string, sessions []domain.SessionStats, msgs []analyticsMessage) *domain.Analytics {
	a := &domain.Analytics{
		AssignmentID:       assignmentID,
		Sessions:           len(sessions),
		PhaseDistribution:  map[domain.Phase]int{},
		IntentDistribution: map[domain.Intent]int{},
		Recommendations:    map[domain.Recommendation]int{},
		PerSession:         sessions,
	}
	if a.PerSession == nil {
		a.PerSession = []domain.SessionStats{}
	}

	index := make(map[string]*domain.SessionStats, len(sessions))
	for i := range a.PerSession {
		index[a.PerSession[i].SessionID] = &a.PerSession[i]
	}

	scores := map[domain.Dimension][]domain.Score{}
	for _, m := range msgs {
		st := index[m.sessionID]
		if st != nil {
			st.MessageCount++
		}
		if m.speaker == domain.SpeakerStudent {
			a.StudentMessages++
			continue
		}
		if m.phase != "" {
			a.PhaseDistribution[m.phase]++
		}
		if st != nil {
			switch {
			case m.phase == domain.PhaseDirection:
				st.DirectionTurns++
				st.ReachedPhase = domain.PhaseDirection
			case st.ReachedPhase != domain.PhaseDirection && (m.phase == domain.PhaseClarify || m.phase == domain.PhaseCritique):
				st.ReachedPhase = m.phase
			}
		}
		if m.trace != nil {
			a.IntentDistribution[m.trace.Intent]++
			a.Recommendations[m.trace.FinalRecommendation]++
		}
		if m.phase == domain.PhaseCritique {
			for d, re := range rubricLabel {
				if match := re.FindStringSubmatch(m.content); match != nil {
					scores[d] = append(scores[d], labelScore[strings.ToLower(match[1])])
				}
			}
		}
	}

	for _, st := range a.PerSession {
		if st.ReachedPhase == domain.PhaseDirection {
			a.SessionsReachDirection++
		}
	}

	for _, d := range domain.Dimensions {
		ds := domain.DimensionStats{Dimension: d, Evaluations: len(scores[d])}
		if ds.Evaluations > 0 {
			total, weak := 0, 0
			for _, sc := range scores[d] {
				total += int(sc)
				if sc == domain.ScoreWeak {
					weak++
				}
			}
			ds.Average = math.Round(float64(total)/float64(ds.Evaluations)*100) / 100
			ds.WeakPercent = int(math.Round(float64(weak) * 100 / float64(ds.Evaluations)))
		}
		a.Rubric = append(a.Rubric, ds)
	}
	return a
}
