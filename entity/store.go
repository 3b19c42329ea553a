/*
store.go - Persistence interfaces for sessions and attendance facts

PURPOSE:
  Defines the contract between the attendance domain (recorder, session
  manager) and the database. Only the operations those two components need
  live here; roster CRUD is used directly from the concrete store.

KEY INTERFACES:
  SessionStore:  create/close/read sessions
  FactStore:     attendance fact writes that must share one transaction
  RecorderStore: session lookup, legacy fallback, and WithTx over FactStore

DE-DUPLICATION CONTRACT:
  InsertAttendee is an atomic conditional insert. It reports false when the
  (session, student, course) row already exists; it never reads first.
  InsertLegacyOnce does the same for (face_id, session_id) on the legacy
  table in a single statement.

IMPLEMENTATIONS:
  - store/sqlite: SQLite via mattn/go-sqlite3

SEE ALSO:
  - attendance/recorder.go: uses RecorderStore
  - attendance/sessions.go: uses SessionStore
*/
package entity

import "context"

// =============================================================================
// SESSIONS
// =============================================================================

type SessionStore interface {
	// CreateSession inserts s. Returns ErrConflict if s.ID is taken.
	CreateSession(ctx context.Context, s Session) error

	// CloseSession sets end_time and status=completed.
	// Returns ErrSessionNotFound if no row has that id.
	CloseSession(ctx context.Context, id, endTime string) error

	// GetSession returns ErrSessionNotFound if absent.
	GetSession(ctx context.Context, id string) (*Session, error)
}

// =============================================================================
// ATTENDANCE FACTS
// =============================================================================

// FactStore is the write surface used inside one recorder transaction.
type FactStore interface {
	// StudentExists reports whether studentNumber is on the roster.
	StudentExists(ctx context.Context, studentNumber string) (bool, error)

	// InsertAttendee inserts-or-ignores. inserted is false on a duplicate.
	InsertAttendee(ctx context.Context, a Attendee) (inserted bool, err error)

	// FaceForStudent finds a legacy face whose (name, class) matches the
	// student's (name, class_name). ok is false when none matches.
	FaceForStudent(ctx context.Context, studentNumber string) (faceID int64, ok bool, err error)

	// InsertAttendance appends one legacy row and returns its id.
	InsertAttendance(ctx context.Context, faceID int64, sessionID, timestamp string) (int64, error)
}

type RecorderStore interface {
	GetSession(ctx context.Context, id string) (*Session, error)

	// StudentForFace resolves a legacy face to a roster student by
	// matching (name, class). ok is false when nothing matches.
	StudentForFace(ctx context.Context, faceID int64) (studentNumber string, ok bool, err error)

	// InsertLegacyOnce appends a legacy row unless one already exists for
	// (faceID, sessionID). inserted is false on a duplicate.
	InsertLegacyOnce(ctx context.Context, faceID int64, sessionID, timestamp string) (id int64, inserted bool, err error)

	// WithTx runs fn in a transaction. fn returning an error rolls back.
	WithTx(ctx context.Context, fn func(FactStore) error) error
}
