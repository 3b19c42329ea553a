/*
Package sqlite provides the SQLite-backed Entity Store.

PURPOSE:
  Persists the roster (students, courses, enrollments, legacy faces), the
  sessions, and the two attendance fact tables. Implements the interfaces
  declared in entity/store.go and the dataset loaders the statistics engine
  reads from.

INTERFACES IMPLEMENTED:
  entity.SessionStore:  session create/close/read
  entity.RecorderStore: session lookup, legacy fallback, transactional facts
  stats.Source:         whole-table loaders for aggregation

KEY TABLES:
  students:          roster, keyed by student_number
  courses:           catalogue, keyed by course_code
  course_students:   enrollments, UNIQUE(student_number, course_code)
  faces:             legacy descriptor gallery
  sessions:          composite text id + surrogate uid
  session_attendees: UNIQUE(session_id, student_number, course_name)
  attendance:        legacy per-event rows (face_id, session_id, timestamp)

DE-DUPLICATION:
  Attendance de-duplication is constraint-level: INSERT OR IGNORE on the
  session_attendees unique triple, and a single INSERT ... WHERE NOT EXISTS
  for the legacy (face_id, session_id) pair. No read-then-write checks.

CONCURRENCY:
  sync.RWMutex serialises writers in-process. The connection pool is capped
  at one connection so ":memory:" databases are shared and transactions
  take the write lock immediately (_txlock=immediate).

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./attendance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - entity/store.go: Interface definitions
  - admin.go: Transactional wipe
  - stats.go: Dataset loaders
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/attendance-engine/entity"
)

// Store implements the entity storage interfaces using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now entity.Clock
}

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, now: entity.SystemClock}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// SetClock replaces the clock used for created_at columns.
func (s *Store) SetClock(c entity.Clock) {
	s.now = c
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Legacy descriptor gallery
	CREATE TABLE IF NOT EXISTS faces (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		label TEXT NOT NULL,
		descriptors TEXT NOT NULL,
		class TEXT,
		name TEXT,
		course TEXT,
		created_at TEXT
	);

	-- Legacy per-event attendance (not unique)
	CREATE TABLE IF NOT EXISTS attendance (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		face_id INTEGER,
		session_id TEXT,
		timestamp TEXT,
		FOREIGN KEY (face_id) REFERENCES faces (id)
	);

	-- Sessions: id is the composite business key and never changes
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		uid TEXT UNIQUE,
		class_name TEXT NOT NULL,
		course_name TEXT NOT NULL,
		start_time TEXT,
		end_time TEXT,
		status TEXT NOT NULL DEFAULT 'active'
	);

	CREATE TABLE IF NOT EXISTS students (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student_number TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		gender TEXT,
		class_name TEXT,
		face_descriptors TEXT,
		photo_path TEXT,
		created_at TEXT
	);

	CREATE TABLE IF NOT EXISTS courses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_code TEXT NOT NULL UNIQUE,
		course_name TEXT NOT NULL,
		course_hours INTEGER,
		created_at TEXT
	);

	CREATE TABLE IF NOT EXISTS course_students (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student_number TEXT NOT NULL,
		name TEXT NOT NULL,
		course_name TEXT NOT NULL,
		course_code TEXT NOT NULL,
		created_at TEXT,
		UNIQUE (student_number, course_code),
		FOREIGN KEY (student_number) REFERENCES students (student_number) ON DELETE CASCADE,
		FOREIGN KEY (course_code) REFERENCES courses (course_code) ON DELETE CASCADE
	);

	-- CRITICAL: one row per (session, student, course)
	CREATE TABLE IF NOT EXISTS session_attendees (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		student_number TEXT NOT NULL,
		course_name TEXT NOT NULL,
		first_seen TEXT,
		UNIQUE (session_id, student_number, course_name),
		FOREIGN KEY (session_id) REFERENCES sessions (id) ON DELETE CASCADE,
		FOREIGN KEY (student_number) REFERENCES students (student_number) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_attendance_session ON attendance(session_id);
	CREATE INDEX IF NOT EXISTS idx_attendance_face ON attendance(face_id);
	CREATE INDEX IF NOT EXISTS idx_course_students_student ON course_students(student_number);
	CREATE INDEX IF NOT EXISTS idx_course_students_course ON course_students(course_code);
	CREATE INDEX IF NOT EXISTS idx_session_attendees_session ON session_attendees(session_id);
	CREATE INDEX IF NOT EXISTS idx_session_attendees_student ON session_attendees(student_number);
	CREATE INDEX IF NOT EXISTS idx_sessions_class_course ON sessions(class_name, course_name);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (entity.RecorderStore.WithTx)
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(entity.FactStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return entity.NewStorageError("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return classify("commit", sqlTx.Commit())
}

// txStore is the FactStore handed to WithTx callbacks. Every statement
// runs on the open transaction.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) StudentExists(ctx context.Context, studentNumber string) (bool, error) {
	return studentExists(ctx, ts.tx, studentNumber)
}

func (ts *txStore) InsertAttendee(ctx context.Context, a entity.Attendee) (bool, error) {
	return insertAttendee(ctx, ts.tx, a)
}

func (ts *txStore) FaceForStudent(ctx context.Context, studentNumber string) (int64, bool, error) {
	return faceForStudent(ctx, ts.tx, studentNumber)
}

func (ts *txStore) InsertAttendance(ctx context.Context, faceID int64, sessionID, timestamp string) (int64, error) {
	return insertAttendance(ctx, ts.tx, faceID, sessionID, timestamp)
}

// =============================================================================
// HELPERS
// =============================================================================

// classify maps driver errors onto the entity taxonomy: unique, primary-key
// and foreign-key violations become ErrConflict, everything else a
// *StorageError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%s: %w", op, entity.ErrConflict)
		}
	}
	return entity.NewStorageError(op, err)
}

func isForeignKey(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

func (s *Store) createdAt() string {
	return entity.FormatCivil(s.now())
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// patch accumulates "col = ?" fragments for partial updates.
type patch struct {
	sets []string
	args []any
}

func (p *patch) set(col string, v any) {
	p.sets = append(p.sets, col+" = ?")
	p.args = append(p.args, v)
}

func (p *patch) empty() bool { return len(p.sets) == 0 }

func (p *patch) clause() string {
	return strings.Join(p.sets, ", ")
}
