package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/casecoach/internal/domain"
	"github.com/ashureev/casecoach/internal/shared"
)

// CreateSession starts a conversation for a user within an assignment.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *domain.Session) error {
	sess.ID = newID()
	sess.CreditsUsed = 0
	sess.CreatedAt = s.now()
	_, err := s.exec(ctx, "insert session", `
		INSERT INTO sessions (id, user_id, assignment_id, credits_used, created_at)
		VALUES (?, ?, ?, 0, ?)`,
		sess.ID, sess.UserID, sess.AssignmentID, sess.CreatedAt.UnixMilli())
	return err
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	var (
		sess      domain.Session
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, assignment_id, credits_used, created_at
		FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.UserID, &sess.AssignmentID, &sess.CreditsUsed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	sess.CreatedAt = time.UnixMilli(createdAt)
	return &sess, nil
}

// ResetSession deletes a session's turns and restores its full budget.
func (s *SQLiteStore) ResetSession(ctx context.Context, id string) error {
	return s.inTx(ctx, "reset session", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		res, err := tx.ExecContext(ctx, `UPDATE sessions SET credits_used = 0 WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("reset credits: %w", err)
		}
		return mustAffect(res, "reset credits")
	})
}

// ListTurns returns a session's turns in append order.
func (s *SQLiteStore) ListTurns(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, agent_trace, phase, created_at
		FROM messages WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	var turns []domain.Turn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return turns, nil
}

func scanTurn(row scanner) (domain.Turn, error) {
	var (
		t            domain.Turn
		speaker      string
		trace, phase sql.NullString
		createdAt    int64
	)
	if err := row.Scan(&t.ID, &t.SessionID, &speaker, &t.Content, &trace, &phase, &createdAt); err != nil {
		return t, fmt.Errorf("scan message row: %w", err)
	}
	t.Speaker = domain.Speaker(speaker)
	t.Phase = domain.Phase(phase.String)
	t.CreatedAt = time.UnixMilli(createdAt)
	if trace.Valid && trace.String != "" {
		t.Trace = &domain.AgentTrace{}
		if err := json.Unmarshal([]byte(trace.String), t.Trace); err != nil {
			return t, fmt.Errorf("decode agent trace: %w", err)
		}
	}
	return t, nil
}

// CommitTurn appends the learner turn and its system response and consumes
// one unit of budget in a single immediate transaction. The budget is
// re-read under the write lock, so concurrent commits cannot overshoot it.
func (s *SQLiteStore) CommitTurn(ctx context.Context, learner, system *domain.Turn) error {
	if learner.SessionID == "" || learner.SessionID != system.SessionID {
		return fmt.Errorf("commit turn: turns must share a session")
	}

	var trace any
	if system.Trace != nil {
		b, err := json.Marshal(system.Trace)
		if err != nil {
			return fmt.Errorf("encode agent trace: %w", err)
		}
		trace = string(b)
	}

	return s.inTx(ctx, "commit turn", func(tx *sql.Tx) error {
		var used, credits int
		err := tx.QueryRowContext(ctx, `
			SELECT s.credits_used, a.credits
			FROM sessions s JOIN assignments a ON s.assignment_id = a.id
			WHERE s.id = ?`, learner.SessionID).Scan(&used, &credits)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read budget: %w", err)
		}
		if used >= credits {
			return ErrBudgetExhausted
		}

		now := s.now()
		for _, t := range []*domain.Turn{learner, system} {
			t.ID = newID()
			t.CreatedAt = now
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, session_id, role, content, agent_trace, phase, created_at)
			VALUES (?, ?, ?, ?, NULL, NULL, ?)`,
			learner.ID, learner.SessionID, string(domain.SpeakerStudent), learner.Content, now.UnixMilli()); err != nil {
			return fmt.Errorf("insert learner turn: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, session_id, role, content, agent_trace, phase, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			system.ID, system.SessionID, string(domain.SpeakerSystem), system.Content, trace,
			nullString(string(system.Phase)), now.UnixMilli()); err != nil {
			return fmt.Errorf("insert system turn: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET credits_used = credits_used + 1 WHERE id = ?`, learner.SessionID); err != nil {
			return fmt.Errorf("consume budget: %w", err)
		}
		learner.Speaker = domain.SpeakerStudent
		system.Speaker = domain.SpeakerSystem
		return nil
	})
}

// inTx runs fn in a transaction, retrying the whole transaction on SQLite
// contention. fn must be safe to re-run.
func (s *SQLiteStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	err := shared.RetryOnConflict(ctx, op, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrBudgetExhausted) || errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
