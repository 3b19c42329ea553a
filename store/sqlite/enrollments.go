package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/warp/attendance-engine/entity"
)

// =============================================================================
// ENROLLMENT STORE (course_students)
// =============================================================================

const enrollmentColumns = `id, student_number, name, course_name, course_code, created_at`

// EnrollmentFilter narrows ListEnrollments. Empty fields match everything.
type EnrollmentFilter struct {
	StudentNumber string
	CourseCode    string
}

func (s *Store) ListEnrollments(ctx context.Context, f EnrollmentFilter) ([]entity.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + enrollmentColumns + " FROM course_students WHERE 1 = 1"
	var args []any
	if f.StudentNumber != "" {
		query += " AND student_number = ?"
		args = append(args, f.StudentNumber)
	}
	if f.CourseCode != "" {
		query += " AND course_code = ?"
		args = append(args, f.CourseCode)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list enrollments", err)
	}
	defer rows.Close()

	var out []entity.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, classify("scan enrollment", err)
		}
		out = append(out, e)
	}
	return out, classify("list enrollments", rows.Err())
}

func (s *Store) GetEnrollment(ctx context.Context, id int64) (*entity.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, err := scanEnrollment(s.db.QueryRowContext(ctx,
		"SELECT "+enrollmentColumns+" FROM course_students WHERE id = ?", id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrMappingNotFound
	}
	if err != nil {
		return nil, classify("get enrollment", err)
	}
	return &e, nil
}

// UpsertEnrollment links a student to a course. Missing Name / CourseName
// are resolved from the roster; both the student and the course must exist.
// An existing link gets its denormalised fields refreshed.
func (s *Store) UpsertEnrollment(ctx context.Context, e entity.Enrollment) (*entity.Enrollment, entity.UpsertResult, error) {
	if e.StudentNumber == "" || e.CourseCode == "" {
		return nil, entity.Unchanged, entity.Invalid("", "student_number and course_code are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := getStudent(ctx, s.db, "student_number", e.StudentNumber)
	if err != nil {
		return nil, entity.Unchanged, err
	}
	c, err := getCourse(ctx, s.db, "course_code", e.CourseCode)
	if err != nil {
		return nil, entity.Unchanged, err
	}
	if e.Name == "" {
		e.Name = st.Name
	}
	if e.CourseName == "" {
		e.CourseName = c.Name
	}

	result := entity.Inserted
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO course_students (student_number, name, course_name, course_code, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.StudentNumber, e.Name, e.CourseName, e.CourseCode, s.createdAt(),
	)
	if err != nil {
		return nil, entity.Unchanged, classify("upsert enrollment", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		result = entity.Updated
		if _, err := s.db.ExecContext(ctx,
			"UPDATE course_students SET name = ?, course_name = ? WHERE student_number = ? AND course_code = ?",
			e.Name, e.CourseName, e.StudentNumber, e.CourseCode,
		); err != nil {
			return nil, entity.Unchanged, classify("upsert enrollment", err)
		}
	}

	out, err := scanEnrollment(s.db.QueryRowContext(ctx,
		"SELECT "+enrollmentColumns+" FROM course_students WHERE student_number = ? AND course_code = ?",
		e.StudentNumber, e.CourseCode,
	))
	if err != nil {
		return nil, entity.Unchanged, classify("get enrollment", err)
	}
	return &out, result, nil
}

func (s *Store) UpdateEnrollment(ctx context.Context, id int64, p entity.EnrollmentPatch) (*entity.Enrollment, error) {
	if p.Empty() {
		return nil, entity.Invalid("", "no fields to update")
	}

	var up patch
	if p.StudentNumber != nil {
		up.set("student_number", *p.StudentNumber)
	}
	if p.Name != nil {
		up.set("name", *p.Name)
	}
	if p.CourseCode != nil {
		up.set("course_code", *p.CourseCode)
	}
	if p.CourseName != nil {
		up.set("course_name", *p.CourseName)
	}

	s.mu.Lock()
	res, err := s.db.ExecContext(ctx, "UPDATE course_students SET "+up.clause()+" WHERE id = ?", append(up.args, id)...)
	s.mu.Unlock()
	if err != nil {
		return nil, classify("update enrollment", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, entity.ErrMappingNotFound
	}
	return s.GetEnrollment(ctx, id)
}

func (s *Store) DeleteEnrollment(ctx context.Context, id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM course_students WHERE id = ?", id)
	if err != nil {
		return 0, classify("delete enrollment", err)
	}
	return res.RowsAffected()
}

func scanEnrollment(sc scanner) (entity.Enrollment, error) {
	var e entity.Enrollment
	var created sql.NullString
	err := sc.Scan(&e.ID, &e.StudentNumber, &e.Name, &e.CourseName, &e.CourseCode, &created)
	e.CreatedAt = created.String
	return e, err
}
