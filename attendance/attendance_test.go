package attendance_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/entity"
	"github.com/warp/attendance-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type fixture struct {
	store    *sqlite.Store
	recorder *attendance.Recorder
	sessions *attendance.SessionManager
}

func newFixture(t *testing.T) *fixture {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	_, err = store.CreateStudent(ctx, entity.Student{StudentNumber: "20230001", Name: "Alice", ClassName: "CS101-A"})
	require.NoError(t, err)
	_, err = store.CreateStudent(ctx, entity.Student{StudentNumber: "20230002", Name: "Bob", ClassName: "CS101-A"})
	require.NoError(t, err)
	// face 1 resolves to Alice; face 2 matches nobody
	_, err = store.CreateFace(ctx, entity.Face{Label: "Alice", Descriptors: "[]", Name: "Alice", Class: "CS101-A"})
	require.NoError(t, err)
	_, err = store.CreateFace(ctx, entity.Face{Label: "Visitor", Descriptors: "[]", Name: "Visitor", Class: "Guests"})
	require.NoError(t, err)

	return &fixture{
		store:    store,
		recorder: attendance.NewRecorder(store, attendance.WithClock(fixedClock)),
		sessions: attendance.NewSessionManager(store, attendance.WithClock(fixedClock)),
	}
}

func (f *fixture) open(t *testing.T, class, course, start string) string {
	sess, err := f.sessions.Open(context.Background(), attendance.OpenRequest{
		ClassName: class, CourseName: course, StartTime: start,
	})
	require.NoError(t, err)
	return sess.ID
}

func (f *fixture) counts(t *testing.T) map[string]int {
	c, err := f.store.TableCounts(context.Background())
	require.NoError(t, err)
	return c
}

func faceID(id int64) *int64 { return &id }

// =============================================================================
// RECORDER
// =============================================================================

func TestRecord_FirstSeenThenDuplicate(t *testing.T) {
	// GIVEN: an open session and an enrolled student with a matching face
	// WHEN: the same student is recognised twice
	// THEN: one attendee row, one legacy row; the second call is a duplicate

	f := newFixture(t)
	ctx := context.Background()
	sid := f.open(t, "CS101-A", "Algorithms", "2024-03-01T09:00:00Z")

	out, err := f.recorder.Record(ctx, attendance.RecordRequest{SessionID: sid, StudentNumber: "20230001"})
	require.NoError(t, err)
	assert.True(t, out.Inserted)
	assert.False(t, out.Duplicate)
	require.NotNil(t, out.FaceID)
	assert.EqualValues(t, 1, *out.FaceID)
	require.NotNil(t, out.AttendanceID)

	out, err = f.recorder.Record(ctx, attendance.RecordRequest{SessionID: sid, StudentNumber: "20230001"})
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
	assert.False(t, out.Inserted)
	assert.Equal(t, "Algorithms", out.CourseName)
	assert.Nil(t, out.AttendanceID)

	c := f.counts(t)
	assert.Equal(t, 1, c["session_attendees"])
	assert.Equal(t, 1, c["attendance"])
}

func TestRecord_TimestampsAreCivil(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sid := f.open(t, "CS101-A", "Algorithms", "2024-03-01T09:00:00Z")

	_, err := f.recorder.Record(ctx, attendance.RecordRequest{SessionID: sid, StudentNumber: "20230001"})
	require.NoError(t, err)

	attendees, err := f.store.SessionAttendees(ctx, sid)
	require.NoError(t, err)
	require.Len(t, attendees, 1)
	assert.Equal(t, "2024-03-01 17:30:00", attendees[0].FirstSeen)
	assert.Equal(t, "Alice", attendees[0].Name)
}

func TestRecord_NoFaceStillInserts(t *testing.T) {
	f := newFixture(t)
	sid := f.open(t, "CS101-A", "Algorithms", "2024-03-01 09:00:00")

	out, err := f.recorder.Record(context.Background(), attendance.RecordRequest{SessionID: sid, StudentNumber: "20230002"})
	require.NoError(t, err)
	assert.True(t, out.Inserted)
	assert.Nil(t, out.FaceID)
	assert.Nil(t, out.AttendanceID)

	c := f.counts(t)
	assert.Equal(t, 1, c["session_attendees"])
	assert.Equal(t, 0, c["attendance"])
}

func TestRecord_CrossCourseIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	algo := f.open(t, "CS101-A", "Algorithms", "2024-03-01 09:00:00")
	math := f.open(t, "CS101-A", "Math", "2024-03-01 09:00:00")

	for _, sid := range []string{algo, math} {
		out, err := f.recorder.Record(ctx, attendance.RecordRequest{SessionID: sid, StudentNumber: "20230001"})
		require.NoError(t, err)
		assert.True(t, out.Inserted, sid)
	}
	assert.Equal(t, 2, f.counts(t)["session_attendees"])
}

func TestRecord_ResolvedFaceTakesStudentPath(t *testing.T) {
	// GIVEN: face 1 resolves to Alice by (name, class)
	// WHEN: recording by face id twice
	// THEN: the attendee path is used both times, never legacy dedup

	f := newFixture(t)
	ctx := context.Background()
	sid := f.open(t, "CS101-A", "Algorithms", "2024-03-01 09:00:00")

	out, err := f.recorder.Record(ctx, attendance.RecordRequest{SessionID: sid, FaceID: faceID(1)})
	require.NoError(t, err)
	assert.True(t, out.Inserted)
	assert.False(t, out.Legacy)
	assert.Equal(t, "20230001", out.StudentNumber)

	out, err = f.recorder.Record(ctx, attendance.RecordRequest{SessionID: sid, FaceID: faceID(1)})
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
	assert.False(t, out.Legacy)

	// a later call by student number is still the same attendee
	out, err = f.recorder.Record(ctx, attendance.RecordRequest{SessionID: sid, StudentNumber: "20230001"})
	require.NoError(t, err)
	assert.True(t, out.Duplicate)

	c := f.counts(t)
	assert.Equal(t, 1, c["session_attendees"])
	assert.Equal(t, 1, c["attendance"])
}

func TestRecord_UnresolvedFaceUsesLegacyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sid := f.open(t, "CS101-A", "Algorithms", "2024-03-01 09:00:00")

	out, err := f.recorder.Record(ctx, attendance.RecordRequest{SessionID: sid, FaceID: faceID(2)})
	require.NoError(t, err)
	assert.True(t, out.Legacy)
	assert.False(t, out.Duplicate)
	require.NotNil(t, out.AttendanceID)

	out, err = f.recorder.Record(ctx, attendance.RecordRequest{SessionID: sid, FaceID: faceID(2)})
	require.NoError(t, err)
	assert.True(t, out.Legacy)
	assert.True(t, out.Duplicate)

	c := f.counts(t)
	assert.Equal(t, 0, c["session_attendees"])
	assert.Equal(t, 1, c["attendance"])
}

func TestRecord_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sid := f.open(t, "CS101-A", "Algorithms", "2024-03-01 09:00:00")

	_, err := f.recorder.Record(ctx, attendance.RecordRequest{StudentNumber: "20230001"})
	assert.ErrorIs(t, err, entity.ErrMissingIdentity)

	_, err = f.recorder.Record(ctx, attendance.RecordRequest{SessionID: sid})
	assert.ErrorIs(t, err, entity.ErrMissingIdentity)

	_, err = f.recorder.Record(ctx, attendance.RecordRequest{SessionID: "nope", StudentNumber: "20230001"})
	assert.ErrorIs(t, err, entity.ErrSessionNotFound)

	_, err = f.recorder.Record(ctx, attendance.RecordRequest{SessionID: sid, StudentNumber: "ghost"})
	assert.ErrorIs(t, err, entity.ErrStudentNotFound)

	_, err = f.recorder.Record(ctx, attendance.RecordRequest{SessionID: sid, FaceID: faceID(404)})
	assert.ErrorIs(t, err, entity.ErrFaceNotFound)

	assert.Equal(t, 0, f.counts(t)["session_attendees"])
}

func TestRecord_SuppliedUnknownFaceKeepsAttendee(t *testing.T) {
	// GIVEN: a known student and a face id with no faces row
	// WHEN: the sighting is recorded
	// THEN: the attendee row is kept and no legacy row is written

	f := newFixture(t)
	sid := f.open(t, "CS101-A", "Algorithms", "2024-03-01 09:00:00")

	out, err := f.recorder.Record(context.Background(), attendance.RecordRequest{
		SessionID: sid, StudentNumber: "20230002", FaceID: faceID(404),
	})
	require.NoError(t, err)
	assert.True(t, out.Inserted)
	assert.Nil(t, out.FaceID)
	assert.Nil(t, out.AttendanceID)

	c := f.counts(t)
	assert.Equal(t, 1, c["session_attendees"])
	assert.Equal(t, 0, c["attendance"])
}

func TestRecord_SuppliedUnknownFaceFallsBackToStudentFace(t *testing.T) {
	// GIVEN: Alice, whose own face is face 1, and a stale face id
	// WHEN: the sighting is recorded
	// THEN: the legacy row uses Alice's face

	f := newFixture(t)
	sid := f.open(t, "CS101-A", "Algorithms", "2024-03-01 09:00:00")

	out, err := f.recorder.Record(context.Background(), attendance.RecordRequest{
		SessionID: sid, StudentNumber: "20230001", FaceID: faceID(404),
	})
	require.NoError(t, err)
	assert.True(t, out.Inserted)
	require.NotNil(t, out.FaceID)
	assert.Equal(t, int64(1), *out.FaceID)

	c := f.counts(t)
	assert.Equal(t, 1, c["session_attendees"])
	assert.Equal(t, 1, c["attendance"])
}

func TestRecord_ClosedSessionStillAccepted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sid := f.open(t, "CS101-A", "Algorithms", "2024-03-01 09:00:00")
	_, err := f.sessions.Close(ctx, sid, "2024-03-01 10:00:00")
	require.NoError(t, err)

	out, err := f.recorder.Record(ctx, attendance.RecordRequest{SessionID: sid, StudentNumber: "20230002"})
	require.NoError(t, err)
	assert.True(t, out.Inserted)
}

func TestRecord_ConcurrentSightingsInsertOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sid := f.open(t, "CS101-A", "Algorithms", "2024-03-01 09:00:00")

	const n = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	inserted := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.recorder.Record(ctx, attendance.RecordRequest{SessionID: sid, StudentNumber: "20230001"})
			if assert.NoError(t, err) && out.Inserted {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserted)
	c := f.counts(t)
	assert.Equal(t, 1, c["session_attendees"])
	assert.Equal(t, 1, c["attendance"])
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

func TestOpen_ComposesCivilID(t *testing.T) {
	f := newFixture(t)
	sess, err := f.sessions.Open(context.Background(), attendance.OpenRequest{
		ClassName: "CS101-A", CourseName: "Algorithms", StartTime: "2024-03-01T09:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, "CS101-A-Algorithms(2024-03-01 17:00:00)", sess.ID)
	assert.Equal(t, "2024-03-01 17:00:00", sess.StartTime)
	assert.Equal(t, entity.SessionActive, sess.Status)
	assert.NotEmpty(t, sess.UID)
}

func TestOpen_EmptyStartMeansNow(t *testing.T) {
	f := newFixture(t)
	sess, err := f.sessions.Open(context.Background(), attendance.OpenRequest{ClassName: "A", CourseName: "Math"})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01 17:30:00", sess.StartTime)
}

func TestOpen_CollisionRetriesWithSuffix(t *testing.T) {
	// GIVEN: a session for ClassA / Math at 2024-01-01 09:00:00
	// WHEN: opening the identical session again
	// THEN: both succeed with distinct ids, the second one suffixed

	f := newFixture(t)
	first := f.open(t, "ClassA", "Math", "2024-01-01 09:00:00")
	second := f.open(t, "ClassA", "Math", "2024-01-01 09:00:00")

	assert.Equal(t, "ClassA-Math(2024-01-01 09:00:00)", first)
	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasPrefix(second, first+"#"))
	assert.Equal(t, 2, f.counts(t)["sessions"])
}

func TestOpen_SecondCollisionIsStorageError(t *testing.T) {
	// the clock never moves, so a third identical open reuses the suffix
	f := newFixture(t)
	f.open(t, "ClassA", "Math", "2024-01-01 09:00:00")
	f.open(t, "ClassA", "Math", "2024-01-01 09:00:00")

	_, err := f.sessions.Open(context.Background(), attendance.OpenRequest{
		ClassName: "ClassA", CourseName: "Math", StartTime: "2024-01-01 09:00:00",
	})
	assert.ErrorIs(t, err, entity.ErrStorage)
}

func TestOpen_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sessions.Open(ctx, attendance.OpenRequest{CourseName: "Math"})
	assert.ErrorIs(t, err, entity.ErrInvalidInput)

	_, err = f.sessions.Open(ctx, attendance.OpenRequest{ClassName: "A", CourseName: "Math", StartTime: "soon"})
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sid := f.open(t, "CS101-A", "Algorithms", "2024-03-01 09:00:00")

	end, err := f.sessions.Close(ctx, sid, "2024-03-01T02:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01 10:00:00", end)

	// re-closing overwrites end_time and keeps the id
	end, err = f.sessions.Close(ctx, sid, "")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01 17:30:00", end)

	got, err := f.store.GetSession(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, sid, got.ID)
	assert.Equal(t, entity.SessionCompleted, got.Status)
	assert.Equal(t, end, got.EndTime)

	_, err = f.sessions.Close(ctx, "missing", "")
	assert.ErrorIs(t, err, entity.ErrSessionNotFound)
}

func TestOverrideIsDisabled(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.sessions.Override(context.Background()), attendance.ErrOverrideDisabled)
}
