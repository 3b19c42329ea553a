package sqlite

import (
	"context"
	"database/sql"

	"github.com/warp/attendance-engine/entity"
)

// =============================================================================
// DATASET LOADERS (stats.Source interface)
// =============================================================================
//
// Each loader reads one whole table with only the columns aggregation needs.
// The statistics engine runs them concurrently; every loader is internally
// consistent but they do not share a snapshot.

func (s *Store) LoadStudents(ctx context.Context) ([]entity.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, student_number, name, class_name FROM students ORDER BY id",
	)
	if err != nil {
		return nil, classify("load students", err)
	}
	defer rows.Close()

	var out []entity.Student
	for rows.Next() {
		var st entity.Student
		var class sql.NullString
		if err := rows.Scan(&st.ID, &st.StudentNumber, &st.Name, &class); err != nil {
			return nil, classify("load students", err)
		}
		st.ClassName = class.String
		out = append(out, st)
	}
	return out, classify("load students", rows.Err())
}

func (s *Store) LoadEnrollments(ctx context.Context) ([]entity.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, student_number, name, course_name, course_code FROM course_students ORDER BY id",
	)
	if err != nil {
		return nil, classify("load enrollments", err)
	}
	defer rows.Close()

	var out []entity.Enrollment
	for rows.Next() {
		var e entity.Enrollment
		if err := rows.Scan(&e.ID, &e.StudentNumber, &e.Name, &e.CourseName, &e.CourseCode); err != nil {
			return nil, classify("load enrollments", err)
		}
		out = append(out, e)
	}
	return out, classify("load enrollments", rows.Err())
}

func (s *Store) LoadCourses(ctx context.Context) ([]entity.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, course_code, course_name FROM courses ORDER BY id")
	if err != nil {
		return nil, classify("load courses", err)
	}
	defer rows.Close()

	var out []entity.Course
	for rows.Next() {
		var c entity.Course
		if err := rows.Scan(&c.ID, &c.Code, &c.Name); err != nil {
			return nil, classify("load courses", err)
		}
		out = append(out, c)
	}
	return out, classify("load courses", rows.Err())
}

func (s *Store) LoadSessions(ctx context.Context) ([]entity.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listSessions(ctx, s.db)
}

func (s *Store) LoadAttendees(ctx context.Context) ([]entity.Attendee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT session_id, student_number, course_name, first_seen FROM session_attendees ORDER BY id",
	)
	if err != nil {
		return nil, classify("load attendees", err)
	}
	defer rows.Close()

	var out []entity.Attendee
	for rows.Next() {
		var a entity.Attendee
		var firstSeen sql.NullString
		if err := rows.Scan(&a.SessionID, &a.StudentNumber, &a.CourseName, &firstSeen); err != nil {
			return nil, classify("load attendees", err)
		}
		a.FirstSeen = firstSeen.String
		out = append(out, a)
	}
	return out, classify("load attendees", rows.Err())
}
