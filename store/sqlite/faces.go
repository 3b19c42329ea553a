package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/warp/attendance-engine/entity"
)

// =============================================================================
// LEGACY FACE GALLERY
// =============================================================================

const faceColumns = `id, label, descriptors, class, name, course, created_at`

func (s *Store) ListFaces(ctx context.Context) ([]entity.Face, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+faceColumns+" FROM faces ORDER BY id")
	if err != nil {
		return nil, classify("list faces", err)
	}
	defer rows.Close()

	var faces []entity.Face
	for rows.Next() {
		f, err := scanFace(rows)
		if err != nil {
			return nil, classify("scan face", err)
		}
		faces = append(faces, f)
	}
	return faces, classify("list faces", rows.Err())
}

func (s *Store) GetFace(ctx context.Context, id int64) (*entity.Face, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := scanFace(s.db.QueryRowContext(ctx, "SELECT "+faceColumns+" FROM faces WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrFaceNotFound
	}
	if err != nil {
		return nil, classify("get face", err)
	}
	return &f, nil
}

// CreateFace stores a gallery record and returns its id.
func (s *Store) CreateFace(ctx context.Context, f entity.Face) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO faces (label, descriptors, class, name, course, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		f.Label, f.Descriptors, nullString(f.Class), nullString(f.Name), nullString(f.Course), s.createdAt(),
	)
	if err != nil {
		return 0, classify("create face", err)
	}
	return res.LastInsertId()
}

// UpdateFace overwrites every field of the record. Returns rows changed.
func (s *Store) UpdateFace(ctx context.Context, f entity.Face) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE faces SET label = ?, descriptors = ?, class = ?, name = ?, course = ? WHERE id = ?",
		f.Label, f.Descriptors, nullString(f.Class), nullString(f.Name), nullString(f.Course), f.ID,
	)
	if err != nil {
		return 0, classify("update face", err)
	}
	return res.RowsAffected()
}

// DeleteFace removes a record. Returns ErrConflict while legacy attendance
// rows still reference it.
func (s *Store) DeleteFace(ctx context.Context, id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM faces WHERE id = ?", id)
	if err != nil {
		return 0, classify("delete face", err)
	}
	return res.RowsAffected()
}

// ClassCourses lists distinct (class, course) pairs present in the gallery.
func (s *Store) ClassCourses(ctx context.Context) ([]entity.ClassCourse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT class, course FROM faces
		WHERE class IS NOT NULL AND course IS NOT NULL
		ORDER BY class, course`)
	if err != nil {
		return nil, classify("class courses", err)
	}
	defer rows.Close()

	var out []entity.ClassCourse
	for rows.Next() {
		var cc entity.ClassCourse
		if err := rows.Scan(&cc.ClassName, &cc.CourseName); err != nil {
			return nil, classify("scan class course", err)
		}
		out = append(out, cc)
	}
	return out, classify("class courses", rows.Err())
}

// =============================================================================
// FACE <-> STUDENT RESOLUTION (name + class join)
// =============================================================================

// StudentForFace resolves a legacy face id to a roster student number.
func (s *Store) StudentForFace(ctx context.Context, faceID int64) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sn string
	err := s.db.QueryRowContext(ctx, `
		SELECT st.student_number
		FROM faces f
		JOIN students st ON st.name = f.name AND st.class_name = f.class
		WHERE f.id = ?
		ORDER BY st.id
		LIMIT 1`, faceID,
	).Scan(&sn)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify("resolve face", err)
	}
	return sn, true, nil
}

func faceForStudent(ctx context.Context, q execer, studentNumber string) (int64, bool, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		SELECT f.id
		FROM faces f
		JOIN students st ON st.name = f.name AND st.class_name = f.class
		WHERE st.student_number = ?
		ORDER BY f.id
		LIMIT 1`, studentNumber,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, classify("derive face", err)
	}
	return id, true, nil
}

func scanFace(sc scanner) (entity.Face, error) {
	var f entity.Face
	var class, name, course, created sql.NullString
	err := sc.Scan(&f.ID, &f.Label, &f.Descriptors, &class, &name, &course, &created)
	f.Class = class.String
	f.Name = name.String
	f.Course = course.String
	f.CreatedAt = created.String
	return f, err
}
