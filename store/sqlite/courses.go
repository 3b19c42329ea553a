package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/warp/attendance-engine/entity"
)

// =============================================================================
// COURSE STORE
// =============================================================================

const courseColumns = `id, course_code, course_name, course_hours, created_at`

// ListCourses returns all courses, newest first.
func (s *Store) ListCourses(ctx context.Context) ([]entity.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+courseColumns+" FROM courses ORDER BY created_at DESC, id DESC",
	)
	if err != nil {
		return nil, classify("list courses", err)
	}
	defer rows.Close()

	var courses []entity.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, classify("scan course", err)
		}
		courses = append(courses, c)
	}
	return courses, classify("list courses", rows.Err())
}

func (s *Store) GetCourse(ctx context.Context, id int64) (*entity.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCourse(ctx, s.db, "id", id)
}

func (s *Store) GetCourseByCode(ctx context.Context, code string) (*entity.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCourse(ctx, s.db, "course_code", code)
}

// CreateCourse inserts a course. Returns ErrConflict on a duplicate code.
func (s *Store) CreateCourse(ctx context.Context, c entity.Course) (*entity.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO courses (course_code, course_name, course_hours, created_at) VALUES (?, ?, ?, ?)",
		c.Code, c.Name, nullInt(c.Hours), s.createdAt(),
	)
	if err != nil {
		return nil, classify("create course", err)
	}
	return getCourse(ctx, s.db, "course_code", c.Code)
}

func (s *Store) UpdateCourse(ctx context.Context, id int64, p entity.CoursePatch) (*entity.Course, error) {
	if p.Empty() {
		return nil, entity.Invalid("", "no fields to update")
	}

	var up patch
	if p.Code != nil {
		up.set("course_code", *p.Code)
	}
	if p.Name != nil {
		up.set("course_name", *p.Name)
	}
	if p.SetHours {
		up.set("course_hours", nullInt(p.Hours))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE courses SET "+up.clause()+" WHERE id = ?", append(up.args, id)...)
	if err != nil {
		return nil, classify("update course", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, entity.ErrCourseNotFound
	}
	return getCourse(ctx, s.db, "id", id)
}

// DeleteCourse removes a course and (by cascade) its enrollments.
func (s *Store) DeleteCourse(ctx context.Context, id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM courses WHERE id = ?", id)
	if err != nil {
		return 0, classify("delete course", err)
	}
	return res.RowsAffected()
}

// UpsertCourse inserts a new code or overwrites name and hours of an
// existing one.
func (s *Store) UpsertCourse(ctx context.Context, c entity.Course) (entity.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO courses (course_code, course_name, course_hours, created_at) VALUES (?, ?, ?, ?)",
		c.Code, c.Name, nullInt(c.Hours), s.createdAt(),
	)
	if err != nil {
		return entity.Unchanged, classify("upsert course", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return entity.Inserted, nil
	}

	res, err = s.db.ExecContext(ctx,
		"UPDATE courses SET course_name = ?, course_hours = ? WHERE course_code = ?",
		c.Name, nullInt(c.Hours), c.Code,
	)
	if err != nil {
		return entity.Unchanged, classify("upsert course", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entity.Unchanged, nil
	}
	return entity.Updated, nil
}

func getCourse(ctx context.Context, q execer, col string, val any) (*entity.Course, error) {
	row := q.QueryRowContext(ctx, "SELECT "+courseColumns+" FROM courses WHERE "+col+" = ?", val)
	c, err := scanCourse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrCourseNotFound
	}
	if err != nil {
		return nil, classify("get course", err)
	}
	return &c, nil
}

func scanCourse(sc scanner) (entity.Course, error) {
	var c entity.Course
	var hours sql.NullInt64
	var created sql.NullString
	err := sc.Scan(&c.ID, &c.Code, &c.Name, &hours, &created)
	c.Hours = intPtr(hours)
	c.CreatedAt = created.String
	return c, err
}
