package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/entity"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *Store {
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	store.SetClock(func() time.Time { return time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC) })
	return store
}

// seedRoster creates two students, one course, one enrollment, one session
// and one matching legacy face.
func seedRoster(t *testing.T, s *Store) {
	ctx := context.Background()
	_, err := s.CreateStudent(ctx, entity.Student{StudentNumber: "20230001", Name: "Alice", ClassName: "CS101-A"})
	require.NoError(t, err)
	_, err = s.CreateStudent(ctx, entity.Student{StudentNumber: "20230002", Name: "Bob", ClassName: "CS101-A"})
	require.NoError(t, err)
	_, err = s.CreateCourse(ctx, entity.Course{Code: "ALG", Name: "Algorithms"})
	require.NoError(t, err)
	_, _, err = s.UpsertEnrollment(ctx, entity.Enrollment{StudentNumber: "20230001", CourseCode: "ALG"})
	require.NoError(t, err)
	require.NoError(t, s.CreateSession(ctx, entity.Session{
		ID: "CS101-A-Algorithms(2024-03-01 17:00:00)", ClassName: "CS101-A", CourseName: "Algorithms",
		StartTime: "2024-03-01 17:00:00",
	}))
	_, err = s.CreateFace(ctx, entity.Face{Label: "Alice", Descriptors: "[]", Name: "Alice", Class: "CS101-A", Course: "Algorithms"})
	require.NoError(t, err)
}

// =============================================================================
// STUDENTS
// =============================================================================

func TestCreateStudent_DuplicateNumberIsConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateStudent(ctx, entity.Student{StudentNumber: "1", Name: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01 09:00:00", created.CreatedAt)

	_, err = s.CreateStudent(ctx, entity.Student{StudentNumber: "1", Name: "Other"})
	assert.ErrorIs(t, err, entity.ErrConflict)
}

func TestMergeStudent_NonDestructive(t *testing.T) {
	// GIVEN: a student with gender and class
	// WHEN: a later import only carries the name and a new photo
	// THEN: gender and class survive, name and photo are replaced

	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.MergeStudent(ctx, entity.Student{StudentNumber: "1", Name: "Alice", Gender: "F", ClassName: "A"})
	require.NoError(t, err)
	assert.Equal(t, entity.Inserted, res)

	res, err = s.MergeStudent(ctx, entity.Student{StudentNumber: "1", Name: "Alice L.", PhotoPath: "/uploads/students/a.jpg"})
	require.NoError(t, err)
	assert.Equal(t, entity.Updated, res)

	st, err := s.GetStudentByNumber(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Alice L.", st.Name)
	assert.Equal(t, "F", st.Gender)
	assert.Equal(t, "A", st.ClassName)
	assert.Equal(t, "/uploads/students/a.jpg", st.PhotoPath)
}

func TestMergeStudent_NewStudentNeedsName(t *testing.T) {
	s := newTestStore(t)
	_, err := s.MergeStudent(context.Background(), entity.Student{StudentNumber: "9", PhotoPath: "/p.jpg"})
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
}

func TestUpdateStudent_NotFoundAndEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	name := "X"
	_, err := s.UpdateStudent(ctx, 42, entity.StudentPatch{Name: &name})
	assert.ErrorIs(t, err, entity.ErrStudentNotFound)

	_, err = s.UpdateStudent(ctx, 42, entity.StudentPatch{})
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
}

func TestDeleteStudent_CascadesFacts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoster(t, s)

	require.NoError(t, s.WithTx(ctx, func(fs entity.FactStore) error {
		_, err := fs.InsertAttendee(ctx, entity.Attendee{
			SessionID: "CS101-A-Algorithms(2024-03-01 17:00:00)", StudentNumber: "20230001", CourseName: "Algorithms",
		})
		return err
	}))

	st, err := s.GetStudentByNumber(ctx, "20230001")
	require.NoError(t, err)
	n, err := s.DeleteStudent(ctx, st.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	counts, err := s.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, counts["course_students"])
	assert.Equal(t, 0, counts["session_attendees"])
}

// =============================================================================
// COURSES & ENROLLMENTS
// =============================================================================

func TestUpsertCourse_InsertThenUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	hours := 32

	res, err := s.UpsertCourse(ctx, entity.Course{Code: "ALG", Name: "Algorithms"})
	require.NoError(t, err)
	assert.Equal(t, entity.Inserted, res)

	res, err = s.UpsertCourse(ctx, entity.Course{Code: "ALG", Name: "Algorithms II", Hours: &hours})
	require.NoError(t, err)
	assert.Equal(t, entity.Updated, res)

	c, err := s.GetCourseByCode(ctx, "ALG")
	require.NoError(t, err)
	assert.Equal(t, "Algorithms II", c.Name)
	require.NotNil(t, c.Hours)
	assert.Equal(t, 32, *c.Hours)
}

func TestUpsertEnrollment_ResolvesNamesAndRefreshes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoster(t, s)

	e, res, err := s.UpsertEnrollment(ctx, entity.Enrollment{StudentNumber: "20230002", CourseCode: "ALG"})
	require.NoError(t, err)
	assert.Equal(t, entity.Inserted, res)
	assert.Equal(t, "Bob", e.Name)
	assert.Equal(t, "Algorithms", e.CourseName)

	e, res, err = s.UpsertEnrollment(ctx, entity.Enrollment{StudentNumber: "20230002", CourseCode: "ALG", Name: "Robert"})
	require.NoError(t, err)
	assert.Equal(t, entity.Updated, res)
	assert.Equal(t, "Robert", e.Name)

	list, err := s.ListEnrollments(ctx, EnrollmentFilter{StudentNumber: "20230002"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUpsertEnrollment_UnknownStudentOrCourse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoster(t, s)

	_, _, err := s.UpsertEnrollment(ctx, entity.Enrollment{StudentNumber: "nobody", CourseCode: "ALG"})
	assert.ErrorIs(t, err, entity.ErrStudentNotFound)

	_, _, err = s.UpsertEnrollment(ctx, entity.Enrollment{StudentNumber: "20230001", CourseCode: "NOPE"})
	assert.ErrorIs(t, err, entity.ErrCourseNotFound)
}

// =============================================================================
// SESSIONS & FACTS
// =============================================================================

func TestCreateSession_DuplicateIDIsConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := entity.Session{ID: "A-Math(2024-01-01 09:00:00)", ClassName: "A", CourseName: "Math", StartTime: "2024-01-01 09:00:00"}
	require.NoError(t, s.CreateSession(ctx, sess))
	assert.ErrorIs(t, s.CreateSession(ctx, sess), entity.ErrConflict)
}

func TestCloseSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoster(t, s)
	id := "CS101-A-Algorithms(2024-03-01 17:00:00)"

	require.NoError(t, s.CloseSession(ctx, id, "2024-03-01 18:00:00"))
	require.NoError(t, s.CloseSession(ctx, id, "2024-03-01 18:30:00"))

	got, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, entity.SessionCompleted, got.Status)
	assert.Equal(t, "2024-03-01 18:30:00", got.EndTime)

	assert.ErrorIs(t, s.CloseSession(ctx, "missing", "2024-03-01 18:00:00"), entity.ErrSessionNotFound)
}

func TestInsertAttendee_IgnoresDuplicateTriple(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoster(t, s)

	a := entity.Attendee{SessionID: "CS101-A-Algorithms(2024-03-01 17:00:00)", StudentNumber: "20230001", CourseName: "Algorithms"}
	var first, second bool
	require.NoError(t, s.WithTx(ctx, func(fs entity.FactStore) error {
		var err error
		first, err = fs.InsertAttendee(ctx, a)
		return err
	}))
	require.NoError(t, s.WithTx(ctx, func(fs entity.FactStore) error {
		var err error
		second, err = fs.InsertAttendee(ctx, a)
		return err
	}))

	assert.True(t, first)
	assert.False(t, second)
	counts, err := s.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["session_attendees"])
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoster(t, s)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(fs entity.FactStore) error {
		if _, err := fs.InsertAttendee(ctx, entity.Attendee{
			SessionID: "CS101-A-Algorithms(2024-03-01 17:00:00)", StudentNumber: "20230001", CourseName: "Algorithms",
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	counts, err := s.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, counts["session_attendees"])
}

func TestInsertLegacyOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoster(t, s)

	id, inserted, err := s.InsertLegacyOnce(ctx, 1, "legacy-session", "2024-03-01 17:05:00")
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotZero(t, id)

	_, inserted, err = s.InsertLegacyOnce(ctx, 1, "legacy-session", "2024-03-01 17:06:00")
	require.NoError(t, err)
	assert.False(t, inserted)

	_, _, err = s.InsertLegacyOnce(ctx, 999, "legacy-session", "2024-03-01 17:06:00")
	assert.ErrorIs(t, err, entity.ErrFaceNotFound)

	n, err := s.CountAttendance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDeleteFace_ReferencedByAttendanceIsConflict(t *testing.T) {
	// GIVEN: a face with a legacy attendance row
	// WHEN: the face is deleted while the row still points at it
	// THEN: the foreign key failure surfaces as a conflict, not a missing face

	s := newTestStore(t)
	ctx := context.Background()
	seedRoster(t, s)

	_, _, err := s.InsertLegacyOnce(ctx, 1, "legacy-session", "2024-03-01 17:05:00")
	require.NoError(t, err)

	_, err = s.DeleteFace(ctx, 1)
	assert.ErrorIs(t, err, entity.ErrConflict)
	assert.NotErrorIs(t, err, entity.ErrFaceNotFound)

	face, err := s.GetFace(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Alice", face.Label)
}

func TestFaceStudentResolution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoster(t, s)

	sn, ok, err := s.StudentForFace(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "20230001", sn)

	faceID, ok, err := faceForStudent(ctx, s.db, "20230001")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 1, faceID)

	_, ok, err = faceForStudent(ctx, s.db, "20230002")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteSession_RemovesFacts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoster(t, s)
	id := "CS101-A-Algorithms(2024-03-01 17:00:00)"

	require.NoError(t, s.WithTx(ctx, func(fs entity.FactStore) error {
		if _, err := fs.InsertAttendee(ctx, entity.Attendee{SessionID: id, StudentNumber: "20230001", CourseName: "Algorithms"}); err != nil {
			return err
		}
		_, err := fs.InsertAttendance(ctx, 1, id, "2024-03-01 17:01:00")
		return err
	}))

	require.NoError(t, s.DeleteSession(ctx, id))
	assert.ErrorIs(t, s.DeleteSession(ctx, id), entity.ErrSessionNotFound)

	counts, err := s.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, counts["attendance"])
	assert.Equal(t, 0, counts["session_attendees"])
	assert.Equal(t, 0, counts["sessions"])
}

// =============================================================================
// ADMIN WIPE
// =============================================================================

func TestWipe_EmptiesEveryTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoster(t, s)

	res, err := s.Wipe(ctx)
	require.NoError(t, err)
	assert.Equal(t, WipeOrder, res.Tables)
	assert.NoError(t, res.VacuumErr)

	counts, err := s.TableCounts(ctx)
	require.NoError(t, err)
	for table, n := range counts {
		assert.Zero(t, n, table)
	}
}

func TestWipe_FailureRollsBackEverything(t *testing.T) {
	// GIVEN: populated tables and a trigger that aborts deleting courses
	//        (the fifth table in wipe order)
	// WHEN: wiping
	// THEN: the wipe fails and no table lost a single row

	s := newTestStore(t)
	ctx := context.Background()
	seedRoster(t, s)
	_, err := s.db.Exec(`
		CREATE TRIGGER block_course_delete BEFORE DELETE ON courses
		BEGIN SELECT RAISE(ABORT, 'simulated failure'); END`)
	require.NoError(t, err)

	before, err := s.TableCounts(ctx)
	require.NoError(t, err)

	_, err = s.Wipe(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrStorage)

	after, err := s.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
