package sqlite

import (
	"context"
	"database/sql"

	"github.com/warp/attendance-engine/entity"
)

// =============================================================================
// ATTENDANCE FACTS (entity.RecorderStore / entity.FactStore)
// =============================================================================

// InsertLegacyOnce appends a legacy row unless (face_id, session_id) is
// already present. One statement, so two racing callers cannot both insert.
func (s *Store) InsertLegacyOnce(ctx context.Context, faceID int64, sessionID, timestamp string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance (face_id, session_id, timestamp)
		SELECT ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM attendance WHERE face_id = ? AND session_id = ?
		)`,
		faceID, sessionID, timestamp, faceID, sessionID,
	)
	if isForeignKey(err) {
		return 0, false, entity.ErrFaceNotFound
	}
	if err != nil {
		return 0, false, classify("insert legacy attendance", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, false, nil
	}
	id, err := res.LastInsertId()
	return id, true, err
}

func insertAttendee(ctx context.Context, q execer, a entity.Attendee) (bool, error) {
	res, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO session_attendees (session_id, student_number, course_name, first_seen)
		VALUES (?, ?, ?, ?)`,
		a.SessionID, a.StudentNumber, a.CourseName, a.FirstSeen,
	)
	if err != nil {
		return false, classify("insert attendee", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify("insert attendee", err)
	}
	return n > 0, nil
}

func insertAttendance(ctx context.Context, q execer, faceID int64, sessionID, timestamp string) (int64, error) {
	res, err := q.ExecContext(ctx,
		"INSERT INTO attendance (face_id, session_id, timestamp) VALUES (?, ?, ?)",
		faceID, sessionID, timestamp,
	)
	if isForeignKey(err) {
		return 0, entity.ErrFaceNotFound
	}
	if err != nil {
		return 0, classify("insert attendance", err)
	}
	return res.LastInsertId()
}

// =============================================================================
// ATTENDANCE READS
// =============================================================================

// AttendanceFilter narrows ListAttendance. Zero values match everything.
type AttendanceFilter struct {
	SessionID string
	FaceID    *int64
}

// ListAttendance returns legacy rows joined with their face, newest first.
func (s *Store) ListAttendance(ctx context.Context, f AttendanceFilter) ([]entity.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT a.id, a.face_id, a.session_id, a.timestamp, f.label, f.class, f.name, f.course
		FROM attendance a
		LEFT JOIN faces f ON a.face_id = f.id
		WHERE 1 = 1`
	var args []any
	if f.SessionID != "" {
		query += " AND a.session_id = ?"
		args = append(args, f.SessionID)
	}
	if f.FaceID != nil {
		query += " AND a.face_id = ?"
		args = append(args, *f.FaceID)
	}
	query += " ORDER BY a.timestamp DESC, a.id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list attendance", err)
	}
	defer rows.Close()

	var out []entity.AttendanceRecord
	for rows.Next() {
		var r entity.AttendanceRecord
		var faceID sql.NullInt64
		var sessionID, ts, label, class, name, course sql.NullString
		if err := rows.Scan(&r.ID, &faceID, &sessionID, &ts, &label, &class, &name, &course); err != nil {
			return nil, classify("scan attendance", err)
		}
		r.FaceID = int64Ptr(faceID)
		r.SessionID = sessionID.String
		r.Timestamp = ts.String
		r.Label, r.Class, r.Name, r.Course = label.String, class.String, name.String, course.String
		out = append(out, r)
	}
	return out, classify("list attendance", rows.Err())
}

// SessionSummary counts legacy rows per face for one session.
func (s *Store) SessionSummary(ctx context.Context, sessionID string) ([]entity.FaceCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.label, f.class, f.name, f.course, COUNT(a.id) AS count
		FROM attendance a
		JOIN faces f ON a.face_id = f.id
		WHERE a.session_id = ?
		GROUP BY f.id
		ORDER BY count DESC, f.id`, sessionID)
	if err != nil {
		return nil, classify("session summary", err)
	}
	defer rows.Close()

	var out []entity.FaceCount
	for rows.Next() {
		var fc entity.FaceCount
		var class, name, course sql.NullString
		if err := rows.Scan(&fc.Label, &class, &name, &course, &fc.Count); err != nil {
			return nil, classify("scan summary", err)
		}
		fc.Class, fc.Name, fc.Course = class.String, name.String, course.String
		out = append(out, fc)
	}
	return out, classify("session summary", rows.Err())
}

// SessionAttendees lists the de-duplicated attendees of one session.
func (s *Store) SessionAttendees(ctx context.Context, sessionID string) ([]entity.AttendeeView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT sa.session_id, sa.student_number, sa.course_name, sa.first_seen,
		       st.name, st.class_name, st.photo_path
		FROM session_attendees sa
		LEFT JOIN students st ON st.student_number = sa.student_number
		WHERE sa.session_id = ?
		ORDER BY COALESCE(st.class_name, ''), COALESCE(st.name, ''), sa.student_number`, sessionID)
	if err != nil {
		return nil, classify("session attendees", err)
	}
	defer rows.Close()

	out := []entity.AttendeeView{}
	for rows.Next() {
		var v entity.AttendeeView
		var firstSeen, name, class, photo sql.NullString
		if err := rows.Scan(&v.SessionID, &v.StudentNumber, &v.CourseName, &firstSeen, &name, &class, &photo); err != nil {
			return nil, classify("scan attendee", err)
		}
		v.FirstSeen = firstSeen.String
		v.Name, v.ClassName, v.PhotoPath = name.String, class.String, photo.String
		out = append(out, v)
	}
	return out, classify("session attendees", rows.Err())
}

// CountAttendance returns the legacy row count for a face.
func (s *Store) CountAttendance(ctx context.Context, faceID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM attendance WHERE face_id = ?", faceID).Scan(&n)
	return n, classify("count attendance", err)
}

// DeleteAttendance removes one legacy row and returns rows removed.
func (s *Store) DeleteAttendance(ctx context.Context, id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM attendance WHERE id = ?", id)
	if err != nil {
		return 0, classify("delete attendance", err)
	}
	return res.RowsAffected()
}
