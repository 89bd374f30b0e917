package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/casecoach/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "casecoach.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type fixture struct {
	professor  *domain.User
	student    *domain.User
	kase       *domain.Case
	assignment *domain.Assignment
	session    *domain.Session
}

func seed(t *testing.T, s *SQLiteStore, credits int) fixture {
	t.Helper()
	ctx := context.Background()

	f := fixture{
		professor: &domain.User{Name: "Prof", Email: "prof@example.edu", Kind: domain.UserProfessor},
		student:   &domain.User{Name: "Sam", Kind: domain.UserStudent},
	}
	require.NoError(t, s.UpsertUser(ctx, f.professor))
	require.NoError(t, s.UpsertUser(ctx, f.student))

	f.kase = &domain.Case{
		Title:      "Apex Health Plan",
		Background: "Apex is a Medicare Advantage plan.",
		KeyMetrics: map[string]any{"mlr_current": 91.0},
		Goals:      map[string]any{"gap_closure_pct": "2"},
		RedLines:   []string{"No aggressive coding"},
		CreatedBy:  f.professor.ID,
	}
	require.NoError(t, s.CreateCase(ctx, f.kase))

	f.assignment = &domain.Assignment{CaseID: f.kase.ID, Title: "Spring cohort", Credits: credits, CreatedBy: f.professor.ID}
	require.NoError(t, s.CreateAssignment(ctx, f.assignment))

	f.session = &domain.Session{UserID: f.student.ID, AssignmentID: f.assignment.ID}
	require.NoError(t, s.CreateSession(ctx, f.session))
	return f
}

func turnPair(sessionID, text string, phase domain.Phase, trace *domain.AgentTrace) (*domain.Turn, *domain.Turn) {
	return &domain.Turn{SessionID: sessionID, Content: text},
		&domain.Turn{SessionID: sessionID, Content: "reply to " + text, Phase: phase, Trace: trace}
}

func TestUsersRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &domain.User{Name: "Ada", Kind: domain.UserStudent}
	require.NoError(t, s.UpsertUser(ctx, u))
	require.NotEmpty(t, u.ID)

	u.Name = "Ada L."
	require.NoError(t, s.UpsertUser(ctx, u))

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", got.Name)
	assert.Equal(t, domain.UserStudent, got.Kind)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCasesAndOverrides(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s, 5)

	got, err := s.GetCase(ctx, f.kase.ID)
	require.NoError(t, err)
	assert.Equal(t, f.kase.Title, got.Title)
	assert.Equal(t, 91.0, got.KeyMetrics["mlr_current"])
	assert.Equal(t, []string{"No aggressive coding"}, got.RedLines)
	assert.Equal(t, f.kase.Background, got.Context().Background)

	got.Title = "Apex Health Plan (MA)"
	got.RedLines = nil
	require.NoError(t, s.UpdateCase(ctx, got))
	updated, err := s.GetCase(ctx, f.kase.ID)
	require.NoError(t, err)
	assert.Equal(t, "Apex Health Plan (MA)", updated.Title)
	assert.Empty(t, updated.RedLines)

	assert.ErrorIs(t, s.UpdateCase(ctx, &domain.Case{ID: "missing", Title: "x"}), ErrNotFound)

	list, err := s.ListCases(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Background)

	first := &domain.AgentOverride{CaseID: f.kase.ID, Role: domain.RoleCFO, PromptAddition: "Be skeptical."}
	require.NoError(t, s.SetAgentOverride(ctx, first))
	second := &domain.AgentOverride{CaseID: f.kase.ID, Role: domain.RoleCFO, PromptAddition: "Be very skeptical."}
	require.NoError(t, s.SetAgentOverride(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	overrides, err := s.ListAgentOverrides(ctx, f.kase.ID)
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, "Be very skeptical.", overrides[0].PromptAddition)
}

func TestAssignmentsAndJoinCodes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s, 0)

	assert.Equal(t, DefaultCredits, f.assignment.Credits)
	assert.Len(t, f.assignment.JoinCode, joinCodeLength)
	assert.Regexp(t, `^[A-Z0-9]{6}$`, f.assignment.JoinCode)

	got, err := s.GetAssignmentByJoinCode(ctx, " "+strings.ToLower(f.assignment.JoinCode))
	require.NoError(t, err)
	assert.Equal(t, f.assignment.ID, got.ID)
	assert.Equal(t, "Apex Health Plan", got.CaseTitle)

	_, err = s.GetAssignmentByJoinCode(ctx, "ZZZZZZ1")
	assert.ErrorIs(t, err, ErrNotFound)

	mine, err := s.ListAssignments(ctx, f.professor.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	others, err := s.ListAssignments(ctx, "someone-else")
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestUpdateAssignmentDeactivatesJoinCode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s, 5)

	f.assignment.Active = false
	f.assignment.Credits = 8
	require.NoError(t, s.UpdateAssignment(ctx, f.assignment))

	got, err := s.GetAssignment(ctx, f.assignment.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, 8, got.Credits)

	_, err = s.GetAssignmentByJoinCode(ctx, f.assignment.JoinCode)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.UpdateAssignment(ctx, &domain.Assignment{ID: "missing"}), ErrNotFound)
}

func TestDirectivesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s, 5)

	older := &domain.Directive{AssignmentID: f.assignment.ID, Content: "Focus on year one."}
	newer := &domain.Directive{AssignmentID: f.assignment.ID, Content: "Push on provider trust."}
	require.NoError(t, s.CreateDirective(ctx, older))
	require.NoError(t, s.CreateDirective(ctx, newer))

	active, err := s.ListDirectives(ctx, f.assignment.ID, true)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, newer.ID, active[0].ID)

	require.NoError(t, s.DeactivateDirective(ctx, newer.ID))
	active, err = s.ListDirectives(ctx, f.assignment.ID, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, older.ID, active[0].ID)

	all, err := s.ListDirectives(ctx, f.assignment.ID, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.ErrorIs(t, s.DeactivateDirective(ctx, "missing"), ErrNotFound)
}

func TestCommitTurnAppendsAndConsumesBudget(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s, 2)

	trace := &domain.AgentTrace{
		Intent:              domain.IntentFinancial,
		AgentsActivated:     []domain.Role{domain.RoleEmployee, domain.RoleCFO},
		AgentResponses:      []domain.AgentResponse{{Role: domain.RoleCFO, Text: "hold", Recommendation: domain.RecommendHold}},
		FinalRecommendation: domain.RecommendHold,
		EscalationPath:      []string{"Employee → CFO"},
	}
	l1, s1 := turnPair(f.session.ID, "first", domain.PhaseClarify, nil)
	require.NoError(t, s.CommitTurn(ctx, l1, s1))
	l2, s2 := turnPair(f.session.ID, "second", domain.PhaseDirection, trace)
	require.NoError(t, s.CommitTurn(ctx, l2, s2))

	l3, s3 := turnPair(f.session.ID, "third", domain.PhaseDirection, nil)
	assert.ErrorIs(t, s.CommitTurn(ctx, l3, s3), ErrBudgetExhausted)

	turns, err := s.ListTurns(ctx, f.session.ID)
	require.NoError(t, err)
	require.Len(t, turns, 4)
	assert.Equal(t, []string{"first", "reply to first", "second", "reply to second"},
		[]string{turns[0].Content, turns[1].Content, turns[2].Content, turns[3].Content})
	assert.Equal(t, domain.SpeakerStudent, turns[0].Speaker)
	assert.Equal(t, domain.SpeakerSystem, turns[1].Speaker)
	assert.Equal(t, domain.PhaseClarify, turns[1].Phase)
	assert.Nil(t, turns[1].Trace)
	require.NotNil(t, turns[3].Trace)
	assert.Equal(t, *trace, *turns[3].Trace)

	sess, err := s.GetSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, sess.CreditsUsed)
	assert.Equal(t, 0, sess.Remaining(f.assignment.Credits))
}

func TestCommitTurnUnknownSession(t *testing.T) {
	s := newTestStore(t)
	l, sys := turnPair("missing", "hi", domain.PhaseClarify, nil)
	assert.ErrorIs(t, s.CommitTurn(context.Background(), l, sys), ErrNotFound)
}

func TestCommitTurnConcurrentNeverOvershoots(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s, 3)

	var (
		wg        sync.WaitGroup
		committed atomic.Int32
		exhausted atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, sys := turnPair(f.session.ID, "msg", domain.PhaseClarify, nil)
			err := s.CommitTurn(ctx, l, sys)
			switch {
			case err == nil:
				committed.Add(1)
			case errors.Is(err, ErrBudgetExhausted):
				exhausted.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 3, committed.Load())
	assert.EqualValues(t, 5, exhausted.Load())

	sess, err := s.GetSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, sess.CreditsUsed)
}

func TestResetSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s, 2)

	l, sys := turnPair(f.session.ID, "first", domain.PhaseClarify, nil)
	require.NoError(t, s.CommitTurn(ctx, l, sys))
	require.NoError(t, s.ResetSession(ctx, f.session.ID))

	turns, err := s.ListTurns(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Empty(t, turns)
	sess, err := s.GetSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Zero(t, sess.CreditsUsed)

	assert.ErrorIs(t, s.ResetSession(ctx, "missing"), ErrNotFound)
}

func TestAssignmentAnalytics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s, 10)

	critique := "Your reasoning needs strengthening before the executive team can weigh in. " +
		"**Problem Framing**: Weak · **Evidence Use**: Adequate · **Tradeoff Quality**: Adequate · **Risk Compliance**: Developing"
	commit := func(text string, phase domain.Phase, content string, trace *domain.AgentTrace) {
		l := &domain.Turn{SessionID: f.session.ID, Content: text}
		sys := &domain.Turn{SessionID: f.session.ID, Content: content, Phase: phase, Trace: trace}
		require.NoError(t, s.CommitTurn(ctx, l, sys))
	}
	commit("a", domain.PhaseClarify, "clarify please", nil)
	commit("b", domain.PhaseCritique, critique, nil)
	commit("c", domain.PhaseDirection, "summary", &domain.AgentTrace{Intent: domain.IntentFinancial, FinalRecommendation: domain.RecommendProceed})
	commit("d", domain.PhaseSafety, "anonymize", nil)

	other := &domain.Session{UserID: f.student.ID, AssignmentID: f.assignment.ID}
	require.NoError(t, s.CreateSession(ctx, other))

	a, err := s.AssignmentAnalytics(ctx, f.assignment.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, a.Sessions)
	assert.Equal(t, 4, a.StudentMessages)
	assert.Equal(t, 1, a.SessionsReachDirection)
	assert.Equal(t, map[domain.Phase]int{
		domain.PhaseClarify: 1, domain.PhaseCritique: 1, domain.PhaseDirection: 1, domain.PhaseSafety: 1,
	}, a.PhaseDistribution)
	assert.Equal(t, map[domain.Intent]int{domain.IntentFinancial: 1}, a.IntentDistribution)
	assert.Equal(t, map[domain.Recommendation]int{domain.RecommendProceed: 1}, a.Recommendations)

	require.Len(t, a.Rubric, 4)
	assert.Equal(t, domain.DimensionProblemFraming, a.Rubric[0].Dimension)
	assert.Equal(t, 1, a.Rubric[0].Evaluations)
	assert.Equal(t, 100, a.Rubric[0].WeakPercent)
	assert.Equal(t, 2.0, a.Rubric[1].Average)
	assert.Equal(t, 1.0, a.Rubric[3].Average)

	byID := map[string]domain.SessionStats{}
	for _, st := range a.PerSession {
		byID[st.SessionID] = st
	}
	assert.Equal(t, 8, byID[f.session.ID].MessageCount)
	assert.Equal(t, domain.PhaseDirection, byID[f.session.ID].ReachedPhase)
	assert.Equal(t, 1, byID[f.session.ID].DirectionTurns)
	assert.Equal(t, "Sam", byID[f.session.ID].StudentName)
	assert.Equal(t, domain.PhaseClarify, byID[other.ID].ReachedPhase)
}
