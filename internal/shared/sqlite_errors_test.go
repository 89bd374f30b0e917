package shared

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

func TestIsSQLiteConflictError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("constraint failed"), false},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{errors.New("commit: database is locked"), true},
	}
	for _, tt := range tests {
		if got := IsSQLiteConflictError(tt.err); got != tt.want {
			t.Errorf("IsSQLiteConflictError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRetryOnConflict(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), "test", func() error {
		calls++
		if calls < 2 {
			return errors.New("SQLITE_BUSY")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("err=%v calls=%d, want nil and 2", err, calls)
	}
}

func TestRetryOnConflictGivesUp(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), "test", func() error {
		calls++
		return errors.New("database is locked")
	})
	if err == nil || calls != RetryAttempts {
		t.Fatalf("err=%v calls=%d, want error after %d attempts", err, calls, RetryAttempts)
	}
}

func TestRetryOnConflictStopsOnOtherErrors(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := RetryOnConflict(context.Background(), "test", func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestIsSQLiteConflictErrorFromDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "busy.db")
	open := func() *sql.DB {
		db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(0)&_txlock=immediate")
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		db.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = db.Close() })
		return db
	}

	writer := open()
	if _, err := writer.Exec(`CREATE TABLE t (v INTEGER)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	tx, err := writer.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(`INSERT INTO t (v) VALUES (1)`); err != nil {
		t.Fatalf("insert in tx: %v", err)
	}

	_, err = open().Exec(`INSERT INTO t (v) VALUES (2)`)
	if err == nil {
		t.Fatal("expected contention error while another connection holds the write lock")
	}

	var se *sqlite.Error
	if !errors.As(err, &se) {
		t.Fatalf("error %T is not a driver error: %v", err, err)
	}
	if code, _ := sqliteCode(err); code != sqlite3.SQLITE_BUSY {
		t.Errorf("primary code = %d, want SQLITE_BUSY", code)
	}
	wrapped := fmt.Errorf("insert row: %w", err)
	if !IsSQLiteBusyError(wrapped) || !IsSQLiteConflictError(wrapped) {
		t.Errorf("wrapped driver error not classified as conflict: %v", wrapped)
	}
}
