package stats_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/entity"
	"github.com/warp/attendance-engine/stats"
	"github.com/warp/attendance-engine/store/sqlite"
)

func TestRecordThenByCourse(t *testing.T) {
	// GIVEN: Alice enrolled in Algorithms, one session open for her class
	// WHEN: she is recorded twice
	// THEN: by-course shows one student with a 100% rate

	ctx := context.Background()
	clock := func() time.Time { return time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC) }

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer store.Close()
	store.SetClock(clock)

	_, err = store.CreateStudent(ctx, entity.Student{StudentNumber: "20230001", Name: "Alice", ClassName: "CS101-A"})
	require.NoError(t, err)
	_, err = store.CreateCourse(ctx, entity.Course{Code: "ALG", Name: "Algorithms"})
	require.NoError(t, err)
	_, _, err = store.UpsertEnrollment(ctx, entity.Enrollment{StudentNumber: "20230001", CourseCode: "ALG"})
	require.NoError(t, err)

	sessions := attendance.NewSessionManager(store, attendance.WithClock(clock))
	sess, err := sessions.Open(ctx, attendance.OpenRequest{
		ClassName: "CS101-A", CourseName: "Algorithms", StartTime: "2024-03-01T09:00:00Z",
	})
	require.NoError(t, err)

	rec := attendance.NewRecorder(store, attendance.WithClock(clock))
	out, err := rec.Record(ctx, attendance.RecordRequest{SessionID: sess.ID, StudentNumber: "20230001"})
	require.NoError(t, err)
	assert.True(t, out.Inserted)
	out, err = rec.Record(ctx, attendance.RecordRequest{SessionID: sess.ID, StudentNumber: "20230001"})
	require.NoError(t, err)
	assert.True(t, out.Duplicate)

	engine := stats.NewEngine(store)
	rows, err := engine.ByCourse(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Algorithms", rows[0].Course)
	assert.Equal(t, 1, rows[0].TotalStudents)
	assert.Equal(t, 1, rows[0].TotalSessions)
	assert.Equal(t, 1, rows[0].TotalAttendance)
	assert.Equal(t, "100", rows[0].AttendanceRate.String())

	overall, err := engine.Overall(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, overall.TotalAttendance)
	assert.Equal(t, "100", overall.AvgAttendanceRate.String())

	details, err := engine.StudentDetails(ctx, "Alice", "CS101-A")
	require.NoError(t, err)
	require.Len(t, details.Details, 1)
	assert.Equal(t, "Algorithms", details.Details[0].Course)
}
