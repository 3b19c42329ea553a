package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/warp/attendance-engine/entity"
)

// =============================================================================
// STUDENT STORE
// =============================================================================

const studentColumns = `id, student_number, name, gender, class_name, face_descriptors, photo_path, created_at`

// ListStudents returns all students, newest first.
func (s *Store) ListStudents(ctx context.Context) ([]entity.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+studentColumns+" FROM students ORDER BY created_at DESC, id DESC",
	)
	if err != nil {
		return nil, classify("list students", err)
	}
	defer rows.Close()

	var students []entity.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, classify("scan student", err)
		}
		students = append(students, st)
	}
	return students, classify("list students", rows.Err())
}

// GetStudent retrieves a student by row id.
func (s *Store) GetStudent(ctx context.Context, id int64) (*entity.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getStudent(ctx, s.db, "id", id)
}

// GetStudentByNumber retrieves a student by business key.
func (s *Store) GetStudentByNumber(ctx context.Context, studentNumber string) (*entity.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getStudent(ctx, s.db, "student_number", studentNumber)
}

// CreateStudent inserts a new student. Returns ErrConflict if the
// student_number is taken.
func (s *Store) CreateStudent(ctx context.Context, st entity.Student) (*entity.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO students (student_number, name, gender, class_name, face_descriptors, photo_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.StudentNumber, st.Name,
		nullString(st.Gender), nullString(st.ClassName),
		nullString(st.FaceDescriptors), nullString(st.PhotoPath),
		s.createdAt(),
	)
	if err != nil {
		return nil, classify("create student", err)
	}
	return getStudent(ctx, s.db, "student_number", st.StudentNumber)
}

// UpdateStudent applies a partial update. Empty strings clear optional fields.
func (s *Store) UpdateStudent(ctx context.Context, id int64, p entity.StudentPatch) (*entity.Student, error) {
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
	if p.Gender != nil {
		up.set("gender", nullString(*p.Gender))
	}
	if p.ClassName != nil {
		up.set("class_name", nullString(*p.ClassName))
	}
	if p.FaceDescriptors != nil {
		up.set("face_descriptors", nullString(*p.FaceDescriptors))
	}
	if p.PhotoPath != nil {
		up.set("photo_path", nullString(*p.PhotoPath))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE students SET "+up.clause()+" WHERE id = ?", append(up.args, id)...)
	if err != nil {
		return nil, classify("update student", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, entity.ErrStudentNotFound
	}
	return getStudent(ctx, s.db, "id", id)
}

// SetFaceDescriptors replaces the stored descriptor array (raw JSON).
func (s *Store) SetFaceDescriptors(ctx context.Context, id int64, descriptors string) (*entity.Student, error) {
	return s.UpdateStudent(ctx, id, entity.StudentPatch{FaceDescriptors: &descriptors})
}

// DeleteStudent removes a student. Enrollments and session_attendees rows
// go with it (ON DELETE CASCADE). Returns the number of rows removed.
func (s *Store) DeleteStudent(ctx context.Context, id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM students WHERE id = ?", id)
	if err != nil {
		return 0, classify("delete student", err)
	}
	return res.RowsAffected()
}

// MergeStudent inserts the student if the number is new; otherwise
// non-empty fields overwrite and empty fields leave the stored value alone.
func (s *Store) MergeStudent(ctx context.Context, st entity.Student) (entity.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.Name != "" {
		res, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO students (student_number, name, gender, class_name, face_descriptors, photo_path, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			st.StudentNumber, st.Name,
			nullString(st.Gender), nullString(st.ClassName),
			nullString(st.FaceDescriptors), nullString(st.PhotoPath),
			s.createdAt(),
		)
		if err != nil {
			return entity.Unchanged, classify("merge student", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return entity.Inserted, nil
		}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE students SET
			name = COALESCE(?, name),
			gender = COALESCE(?, gender),
			class_name = COALESCE(?, class_name),
			face_descriptors = COALESCE(?, face_descriptors),
			photo_path = COALESCE(?, photo_path)
		WHERE student_number = ?`,
		nullString(st.Name), nullString(st.Gender), nullString(st.ClassName),
		nullString(st.FaceDescriptors), nullString(st.PhotoPath),
		st.StudentNumber,
	)
	if err != nil {
		return entity.Unchanged, classify("merge student", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entity.Unchanged, entity.Invalid("name", "required for a new student")
	}
	return entity.Updated, nil
}

// =============================================================================
// SHARED QUERIES (usable on *sql.DB or *sql.Tx)
// =============================================================================

func getStudent(ctx context.Context, q execer, col string, val any) (*entity.Student, error) {
	row := q.QueryRowContext(ctx, "SELECT "+studentColumns+" FROM students WHERE "+col+" = ?", val)
	st, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrStudentNotFound
	}
	if err != nil {
		return nil, classify("get student", err)
	}
	return &st, nil
}

func studentExists(ctx context.Context, q execer, studentNumber string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx,
		"SELECT 1 FROM students WHERE student_number = ?", studentNumber,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify("lookup student", err)
	}
	return true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(sc scanner) (entity.Student, error) {
	var st entity.Student
	var gender, class, fd, photo, created sql.NullString
	err := sc.Scan(&st.ID, &st.StudentNumber, &st.Name, &gender, &class, &fd, &photo, &created)
	st.Gender = gender.String
	st.ClassName = class.String
	st.FaceDescriptors = fd.String
	st.PhotoPath = photo.String
	st.CreatedAt = created.String
	return st, err
}
