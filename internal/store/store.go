// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/ashureev/casecoach/internal/domain"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrBudgetExhausted is returned by CommitTurn when the session has no
	// turns left. Nothing is written.
	ErrBudgetExhausted = errors.New("store: turn budget exhausted")

	// ErrConflict is returned when a unique constraint cannot be satisfied.
	ErrConflict = errors.New("store: conflict")
)

// Repository defines the persistence collaborator of the coaching core.
type Repository interface {
	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id string) (*domain.User, error)

	// CreateCase stores a new case and assigns its ID.
	CreateCase(ctx context.Context, c *domain.Case) error

	// GetCase retrieves a case by ID.
	GetCase(ctx context.Context, id string) (*domain.Case, error)

	// ListCases returns all cases, newest first, without background text.
	ListCases(ctx context.Context) ([]*domain.Case, error)

	// UpdateCase replaces a case's editable fields.
	UpdateCase(ctx context.Context, c *domain.Case) error

	// SetAgentOverride upserts the override for (case, role). Last write wins.
	SetAgentOverride(ctx context.Context, o *domain.AgentOverride) error

	// ListAgentOverrides returns the overrides of a case.
	ListAgentOverrides(ctx context.Context, caseID string) ([]domain.AgentOverride, error)

	// CreateAssignment stores an assignment, assigning its ID and join code.
	CreateAssignment(ctx context.Context, a *domain.Assignment) error

	// GetAssignment retrieves an assignment by ID.
	GetAssignment(ctx context.Context, id string) (*domain.Assignment, error)

	// GetAssignmentByJoinCode retrieves an active assignment by join code.
	GetAssignmentByJoinCode(ctx context.Context, code string) (*domain.Assignment, error)

	// ListAssignments returns assignments, optionally filtered by author.
	ListAssignments(ctx context.Context, createdBy string) ([]*domain.Assignment, error)

	// UpdateAssignment replaces an assignment's title, credits and active flag.
	UpdateAssignment(ctx context.Context, a *domain.Assignment) error

	// CreateSession starts a conversation for a user within an assignment.
	CreateSession(ctx context.Context, s *domain.Session) error

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, id string) (*domain.Session, error)

	// ResetSession deletes a session's turns and restores its full budget.
	ResetSession(ctx context.Context, id string) error

	// ListTurns returns a session's turns in append order.
	ListTurns(ctx context.Context, sessionID string) ([]domain.Turn, error)

	// CommitTurn appends the learner turn and its system response and
	// consumes one unit of budget, atomically. It fails with
	// ErrBudgetExhausted when no budget remains.
	CommitTurn(ctx context.Context, learner, system *domain.Turn) error

	// CreateDirective stores a new active directive.
	CreateDirective(ctx context.Context, d *domain.Directive) error

	// ListDirectives returns an assignment's directives, newest first.
	ListDirectives(ctx context.Context, assignmentID string, activeOnly bool) ([]domain.Directive, error)

	// DeactivateDirective marks a directive inactive.
	DeactivateDirective(ctx context.Context, id string) error

	// AssignmentAnalytics summarizes coaching performance for an assignment.
	AssignmentAnalytics(ctx context.Context, assignmentID string) (*domain.Analytics, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
