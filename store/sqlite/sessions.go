package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/warp/attendance-engine/entity"
)

// =============================================================================
// SESSION STORE (entity.SessionStore interface)
// =============================================================================

const sessionColumns = `id, uid, class_name, course_name, start_time, end_time, status`

// CreateSession inserts a new session. A taken id yields ErrConflict.
func (s *Store) CreateSession(ctx context.Context, sess entity.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := sess.Status
	if status == "" {
		status = entity.SessionActive
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, uid, class_name, course_name, start_time, end_time, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, nullString(sess.UID), sess.ClassName, sess.CourseName,
		nullString(sess.StartTime), nullString(sess.EndTime), string(status),
	)
	return classify("create session", err)
}

// CloseSession sets end_time and moves the session to completed. The id is
// never touched; re-closing overwrites end_time.
func (s *Store) CloseSession(ctx context.Context, id, endTime string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET end_time = ?, status = ? WHERE id = ?",
		endTime, string(entity.SessionCompleted), id,
	)
	if err != nil {
		return classify("close session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entity.ErrSessionNotFound
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*entity.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := scanSession(s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrSessionNotFound
	}
	if err != nil {
		return nil, classify("get session", err)
	}
	return &sess, nil
}

// ListSessions returns every session, latest start first.
func (s *Store) ListSessions(ctx context.Context) ([]entity.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listSessions(ctx, s.db)
}

// DeleteSession removes a session with its legacy attendance rows; its
// session_attendees rows go by cascade. All in one transaction.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return entity.NewStorageError("begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM attendance WHERE session_id = ?", id); err != nil {
		return classify("delete session attendance", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return classify("delete session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entity.ErrSessionNotFound
	}
	return classify("commit", tx.Commit())
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listSessions(ctx context.Context, q querier) ([]entity.Session, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions ORDER BY start_time DESC, id DESC",
	)
	if err != nil {
		return nil, classify("list sessions", err)
	}
	defer rows.Close()

	var out []entity.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, classify("scan session", err)
		}
		out = append(out, sess)
	}
	return out, classify("list sessions", rows.Err())
}

func scanSession(sc scanner) (entity.Session, error) {
	var sess entity.Session
	var uid, start, end sql.NullString
	var status string
	err := sc.Scan(&sess.ID, &uid, &sess.ClassName, &sess.CourseName, &start, &end, &status)
	sess.UID = uid.String
	sess.StartTime = start.String
	sess.EndTime = end.String
	sess.Status = entity.SessionStatus(status)
	return sess, err
}
