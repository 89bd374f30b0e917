package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/casecoach/internal/domain"
)

// DefaultCredits is the per-session turn budget when none is given.
const DefaultCredits = 25

const assignmentColumns = `a.id, a.case_id, COALESCE(c.title, ''), a.title, a.join_code, a.credits,
	a.created_by, a.active, a.created_at`

// CreateAssignment stores an assignment, assigning its ID and join code.
// Join-code collisions are retried with a fresh code.
func (s *SQLiteStore) CreateAssignment(ctx context.Context, a *domain.Assignment) error {
	if a.Credits <= 0 {
		a.Credits = DefaultCredits
	}
	a.ID = newID()
	a.Active = true
	a.CreatedAt = s.now()

	for i := 0; i < joinCodeAttempts; i++ {
		code, err := newJoinCode()
		if err != nil {
			return fmt.Errorf("generate join code: %w", err)
		}
		_, err = s.exec(ctx, "insert assignment", `
			INSERT INTO assignments (id, case_id, title, join_code, credits, created_by, active, created_at)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
			a.ID, a.CaseID, a.Title, code, a.Credits, nullString(a.CreatedBy), a.CreatedAt.UnixMilli())
		if isUniqueViolation(err) {
			slog.Debug("join code collision, retrying", "attempt", i+1)
			continue
		}
		if err != nil {
			return err
		}
		a.JoinCode = code
		return nil
	}
	return fmt.Errorf("insert assignment: %w", ErrConflict)
}

// GetAssignment retrieves an assignment by ID.
func (s *SQLiteStore) GetAssignment(ctx context.Context, id string) (*domain.Assignment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assignmentColumns+`
		FROM assignments a LEFT JOIN cases c ON a.case_id = c.id
		WHERE a.id = ?`, id)
	return scanAssignment(row)
}

// GetAssignmentByJoinCode retrieves an active assignment by join code.
// Codes are matched case-insensitively.
func (s *SQLiteStore) GetAssignmentByJoinCode(ctx context.Context, code string) (*domain.Assignment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assignmentColumns+`
		FROM assignments a LEFT JOIN cases c ON a.case_id = c.id
		WHERE a.join_code = ? AND a.active = 1`, strings.ToUpper(strings.TrimSpace(code)))
	return scanAssignment(row)
}

// ListAssignments returns assignments newest first. An empty createdBy lists all.
func (s *SQLiteStore) ListAssignments(ctx context.Context, createdBy string) ([]*domain.Assignment, error) {
	query := `SELECT ` + assignmentColumns + `
		FROM assignments a LEFT JOIN cases c ON a.case_id = c.id`
	var args []any
	if createdBy != "" {
		query += ` WHERE a.created_by = ?`
		args = append(args, createdBy)
	}
	query += ` ORDER BY a.created_at DESC, a.rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close assignment rows", "error", closeErr)
		}
	}()

	var out []*domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return out, nil
}

// UpdateAssignment replaces an assignment's title, credits and active flag.
func (s *SQLiteStore) UpdateAssignment(ctx context.Context, a *domain.Assignment) error {
	active := 0
	if a.Active {
		active = 1
	}
	res, err := s.exec(ctx, "update assignment", `
		UPDATE assignments SET title = ?, credits = ?, active = ? WHERE id = ?`,
		a.Title, a.Credits, active, a.ID)
	if err != nil {
		return err
	}
	return mustAffect(res, "update assignment")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row scanner) (*domain.Assignment, error) {
	var (
		a         domain.Assignment
		createdBy sql.NullString
		active    int
		createdAt int64
	)
	err := row.Scan(&a.ID, &a.CaseID, &a.CaseTitle, &a.Title, &a.JoinCode, &a.Credits,
		&createdBy, &active, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan assignment row: %w", err)
	}
	a.CreatedBy = createdBy.String
	a.Active = active == 1
	a.CreatedAt = time.UnixMilli(createdAt)
	return &a, nil
}

// CreateDirective stores a new active directive.
func (s *SQLiteStore) CreateDirective(ctx context.Context, d *domain.Directive) error {
	d.ID = newID()
	d.Active = true
	d.CreatedAt = s.now()
	_, err := s.exec(ctx, "insert directive", `
		INSERT INTO directives (id, assignment_id, content, active, created_by, created_at)
		VALUES (?, ?, ?, 1, ?, ?)`,
		d.ID, d.AssignmentID, d.Content, nullString(d.CreatedBy), d.CreatedAt.UnixMilli())
	return err
}

// ListDirectives returns an assignment's directives, newest first.
func (s *SQLiteStore) ListDirectives(ctx context.Context, assignmentID string, activeOnly bool) ([]domain.Directive, error) {
	query := `SELECT id, assignment_id, content, active, created_by, created_at
		FROM directives WHERE assignment_id = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("query directives: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close directive rows", "error", closeErr)
		}
	}()

	var out []domain.Directive
	for rows.Next() {
		var (
			d         domain.Directive
			active    int
			createdBy sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&d.ID, &d.AssignmentID, &d.Content, &active, &createdBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan directive row: %w", err)
		}
		d.Active = active == 1
		d.CreatedBy = createdBy.String
		d.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate directives: %w", err)
	}
	return out, nil
}

// DeactivateDirective marks a directive inactive. Directives are never deleted.
func (s *SQLiteStore) DeactivateDirective(ctx context.Context, id string) error {
	res, err := s.exec(ctx, "deactivate directive", `UPDATE directives SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "deactivate directive")
}
