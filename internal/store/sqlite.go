package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ashureev/casecoach/internal/domain"
	"github.com/ashureev/casecoach/internal/shared"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrent readers; immediate transactions take the write lock
	// up front so the budget check in CommitTurn cannot race.
	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		email      TEXT,
		role       TEXT NOT NULL CHECK(role IN ('professor','student')),
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cases (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		pdf_text   TEXT,
		kpis       TEXT NOT NULL DEFAULT '{}',
		red_lines  TEXT NOT NULL DEFAULT '[]',
		goals      TEXT NOT NULL DEFAULT '{}',
		created_by TEXT REFERENCES users(id),
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS assignments (
		id         TEXT PRIMARY KEY,
		case_id    TEXT NOT NULL REFERENCES cases(id),
		title      TEXT NOT NULL,
		join_code  TEXT NOT NULL UNIQUE,
		credits    INTEGER NOT NULL DEFAULT 25,
		created_by TEXT REFERENCES users(id),
		active     INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL REFERENCES users(id),
		assignment_id TEXT NOT NULL REFERENCES assignments(id),
		credits_used  INTEGER NOT NULL DEFAULT 0,
		created_at    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_assignment ON sessions(assignment_id);

	CREATE TABLE IF NOT EXISTS messages (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		id          TEXT NOT NULL UNIQUE,
		session_id  TEXT NOT NULL REFERENCES sessions(id),
		role        TEXT NOT NULL CHECK(role IN ('student','system')),
		content     TEXT NOT NULL,
		agent_trace TEXT,
		phase       TEXT,
		created_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);

	CREATE TABLE IF NOT EXISTS directives (
		id            TEXT PRIMARY KEY,
		assignment_id TEXT NOT NULL REFERENCES assignments(id),
		content       TEXT NOT NULL,
		active        INTEGER NOT NULL DEFAULT 1,
		created_by    TEXT REFERENCES users(id),
		created_at    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_directives_assignment ON directives(assignment_id, active);

	CREATE TABLE IF NOT EXISTS agent_overrides (
		id              TEXT PRIMARY KEY,
		case_id         TEXT NOT NULL REFERENCES cases(id),
		agent_name      TEXT NOT NULL,
		prompt_addition TEXT NOT NULL,
		created_by      TEXT REFERENCES users(id),
		UNIQUE(case_id, agent_name)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// exec runs a write statement with SQLite contention retries.
func (s *SQLiteStore) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := shared.RetryOnConflict(ctx, op, func() error {
		var err error
		res, err = s.db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// mustAffect converts a zero-row update into ErrNotFound.
func mustAffect(res sql.Result, op string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func newID() string {
	return uuid.NewString()
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = newID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	query := `
	INSERT INTO users (id, name, email, role, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		email = COALESCE(excluded.email, users.email)`

	_, err := s.exec(ctx, "upsert user", query,
		user.ID, user.Name, nullString(user.Email), string(user.Kind), user.CreatedAt.UnixMilli())
	return err
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, role, created_at FROM users WHERE id = ?`, id)

	var (
		user      domain.User
		email     sql.NullString
		kind      string
		createdAt int64
	)
	err := row.Scan(&user.ID, &user.Name, &email, &kind, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	user.Email = email.String
	user.Kind = domain.UserKind(kind)
	user.CreatedAt = time.UnixMilli(createdAt)
	return &user, nil
}

// CreateCase stores a new case and assigns its ID.
func (s *SQLiteStore) CreateCase(ctx context.Context, c *domain.Case) error {
	kpis, goals, redLines, err := encodeCase(c)
	if err != nil {
		return err
	}
	c.ID = newID()
	c.CreatedAt = s.now()

	_, err = s.exec(ctx, "insert case",
		`INSERT INTO cases (id, title, pdf_text, kpis, red_lines, goals, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Title, nullString(c.Background), kpis, redLines, goals, nullString(c.CreatedBy), c.CreatedAt.UnixMilli())
	return err
}

// GetCase retrieves a case by ID.
func (s *SQLiteStore) GetCase(ctx context.Context, id string) (*domain.Case, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, pdf_text, kpis, red_lines, goals, created_by, created_at
		FROM cases WHERE id = ?`, id)

	var (
		c                     domain.Case
		background, createdBy sql.NullString
		kpis, redLines, goals string
		createdAt             int64
	)
	err := row.Scan(&c.ID, &c.Title, &background, &kpis, &redLines, &goals, &createdBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan case row: %w", err)
	}
	c.Background = background.String
	c.CreatedBy = createdBy.String
	c.CreatedAt = time.UnixMilli(createdAt)
	if err := decodeCase(&c, kpis, goals, redLines); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCases returns all cases, newest first, without background text.
func (s *SQLiteStore) ListCases(ctx context.Context) ([]*domain.Case, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, kpis, red_lines, goals, created_by, created_at
		FROM cases ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query cases: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close case rows", "error", closeErr)
		}
	}()

	var cases []*domain.Case
	for rows.Next() {
		var (
			c                     domain.Case
			createdBy             sql.NullString
			kpis, redLines, goals string
			createdAt             int64
		)
		if err := rows.Scan(&c.ID, &c.Title, &kpis, &redLines, &goals, &createdBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan case row: %w", err)
		}
		c.CreatedBy = createdBy.String
		c.CreatedAt = time.UnixMilli(createdAt)
		if err := decodeCase(&c, kpis, goals, redLines); err != nil {
			return nil, err
		}
		cases = append(cases, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cases: %w", err)
	}
	return cases, nil
}

// UpdateCase replaces a case's editable fields.
func (s *SQLiteStore) UpdateCase(ctx context.Context, c *domain.Case) error {
	kpis, goals, redLines, err := encodeCase(c)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, "update case",
		`UPDATE cases SET title = ?, pdf_text = ?, kpis = ?, red_lines = ?, goals = ? WHERE id = ?`,
		c.Title, nullString(c.Background), kpis, redLines, goals, c.ID)
	if err != nil {
		return err
	}
	return mustAffect(res, "update case")
}

func encodeCase(c *domain.Case) (kpis, goals, redLines string, err error) {
	marshal := func(v any, empty string) (string, error) {
		if v == nil {
			return empty, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode case: %w", err)
		}
		return string(b), nil
	}
	if kpis, err = marshal(c.KeyMetrics, "{}"); err != nil {
		return
	}
	if goals, err = marshal(c.Goals, "{}"); err != nil {
		return
	}
	if c.RedLines == nil {
		redLines = "[]"
		return
	}
	redLines, err = marshal(c.RedLines, "[]")
	return
}

func decodeCase(c *domain.Case, kpis, goals, redLines string) error {
	if err := json.Unmarshal([]byte(kpis), &c.KeyMetrics); err != nil {
		return fmt.Errorf("decode case kpis: %w", err)
	}
	if err := json.Unmarshal([]byte(goals), &c.Goals); err != nil {
		return fmt.Errorf("decode case goals: %w", err)
	}
	if err := json.Unmarshal([]byte(redLines), &c.RedLines); err != nil {
		return fmt.Errorf("decode case red lines: %w", err)
	}
	return nil
}

// SetAgentOverride upserts the override for (case, role).
func (s *SQLiteStore) SetAgentOverride(ctx context.Context, o *domain.AgentOverride) error {
	if o.ID == "" {
		o.ID = newID()
	}
	_, err := s.exec(ctx, "upsert agent override", `
		INSERT INTO agent_overrides (id, case_id, agent_name, prompt_addition, created_by)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(case_id, agent_name) DO UPDATE SET
			prompt_addition = excluded.prompt_addition`,
		o.ID, o.CaseID, string(o.Role), o.PromptAddition, nullString(o.CreatedBy))
	if err != nil {
		return err
	}
	// The surviving row keeps its original ID.
	return s.db.QueryRowContext(ctx,
		`SELECT id FROM agent_overrides WHERE case_id = ? AND agent_name = ?`,
		o.CaseID, string(o.Role)).Scan(&o.ID)
}

// ListAgentOverrides returns the overrides of a case.
func (s *SQLiteStore) ListAgentOverrides(ctx context.Context, caseID string) ([]domain.AgentOverride, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_id, agent_name, prompt_addition, created_by
		FROM agent_overrides WHERE case_id = ? ORDER BY agent_name`, caseID)
	if err != nil {
		return nil, fmt.Errorf("query agent overrides: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close override rows", "error", closeErr)
		}
	}()

	var overrides []domain.AgentOverride
	for rows.Next() {
		var (
			o         domain.AgentOverride
			role      string
			createdBy sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.CaseID, &role, &o.PromptAddition, &createdBy); err != nil {
			return nil, fmt.Errorf("scan agent override: %w", err)
		}
		o.Role = domain.Role(role)
		o.CreatedBy = createdBy.String
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent overrides: %w", err)
	}
	return overrides, nil
}
