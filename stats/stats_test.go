package stats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/entity"
	"github.com/warp/attendance-engine/metrics"
)

// =============================================================================
// FIXTURE
// =============================================================================
//
// Class A: Alice, Bob.  Class B: Carol.  Dan has no class.
// Sessions: A/Math x2, A/Physics x1, B/Math x1. Chemistry never held.
// Alice attended both A/Math sessions, Bob the first one. Nobody else.

func fixture() *Dataset {
	return &Dataset{
		Students: []entity.Student{
			{ID: 1, StudentNumber: "S1", Name: "Alice", ClassName: "A"},
			{ID: 2, StudentNumber: "S2", Name: "Bob", ClassName: "A"},
			{ID: 3, StudentNumber: "S3", Name: "Carol", ClassName: "B"},
			{ID: 4, StudentNumber: "S4", Name: "Dan"},
		},
		Courses: []entity.Course{
			{ID: 1, Code: "M", Name: "Math"},
			{ID: 2, Code: "P", Name: "Physics"},
			{ID: 3, Code: "C", Name: "Chemistry"},
		},
		Enrollments: []entity.Enrollment{
			{StudentNumber: "S1", CourseCode: "M", CourseName: "Math"},
			{StudentNumber: "S2", CourseCode: "M", CourseName: "Math"},
			{StudentNumber: "S1", CourseCode: "P", CourseName: "Physics"},
			{StudentNumber: "S3", CourseCode: "M", CourseName: "Math"},
			{StudentNumber: "S1", CourseCode: "C", CourseName: "Chemistry"},
			{StudentNumber: "S9", CourseCode: "M", CourseName: "Math"},
		},
		Sessions: []entity.Session{
			{ID: "A-Math-1", ClassName: "A", CourseName: "Math"},
			{ID: "A-Math-2", ClassName: "A", CourseName: "Math"},
			{ID: "A-Physics-1", ClassName: "A", CourseName: "Physics"},
			{ID: "B-Math-1", ClassName: "B", CourseName: "Math"},
		},
		Attendees: []entity.Attendee{
			{SessionID: "A-Math-1", StudentNumber: "S1", CourseName: "Math"},
			{SessionID: "A-Math-2", StudentNumber: "S1", CourseName: "Math"},
			{SessionID: "A-Math-1", StudentNumber: "S2", CourseName: "Math"},
		},
	}
}

// =============================================================================
// RATES
// =============================================================================

func TestPercent(t *testing.T) {
	assert.Equal(t, "33.33", Percent(1, 3).String())
	assert.Equal(t, "66.67", Percent(2, 3).String())
	assert.Equal(t, "100", Percent(4, 4).String())
	assert.Equal(t, "0", Percent(5, 0).String())
}

func TestRate_MarshalsAsNumber(t *testing.T) {
	b, err := json.Marshal(struct {
		Rate Rate `json:"rate"`
	}{Percent(1, 3)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"rate": 33.33}`, string(b))

	b, err = json.Marshal(Overall{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_students":0,"total_sessions":0,"total_attendance":0,"avg_attendance_rate":0}`, string(b))
}

func TestMeanRate(t *testing.T) {
	assert.Equal(t, "0", MeanRate(nil).String())
	assert.Equal(t, "50", MeanRate([]Rate{Percent(1, 1), Percent(0, 1)}).String())
}

// =============================================================================
// VIEWS
// =============================================================================

func TestByCourse(t *testing.T) {
	rows := fixture().ByCourse()
	require.Len(t, rows, 3)

	math := rows[0]
	assert.Equal(t, "Math", math.Course)
	assert.Equal(t, 3, math.TotalStudents)
	assert.Equal(t, 3, math.TotalSessions)
	assert.Equal(t, 3, math.TotalAttendance)
	// avg(2/2, 1/2, 0/1)
	assert.Equal(t, "50", math.AttendanceRate.String())

	// ties on 0 sort by name
	assert.Equal(t, "Chemistry", rows[1].Course)
	assert.Equal(t, 0, rows[1].TotalSessions)
	assert.Equal(t, 1, rows[1].TotalStudents)
	assert.Equal(t, "0", rows[1].AttendanceRate.String())

	assert.Equal(t, "Physics", rows[2].Course)
	assert.Equal(t, 1, rows[2].TotalSessions)
}

func TestByCourse_DuplicateEnrollmentCountsOnce(t *testing.T) {
	ds := fixture()
	ds.Enrollments = append(ds.Enrollments, entity.Enrollment{StudentNumber: "S1", CourseCode: "M2", CourseName: "Math"})

	rows := ds.ByCourse()
	assert.Equal(t, "Math", rows[0].Course)
	assert.Equal(t, 3, rows[0].TotalStudents)
}

func TestByClass(t *testing.T) {
	rows := fixture().ByClass()
	require.Len(t, rows, 2)

	assert.Equal(t, "A", rows[0].Class)
	assert.Equal(t, 2, rows[0].TotalStudents)
	assert.Equal(t, 3, rows[0].TotalSessions)
	assert.Equal(t, 3, rows[0].TotalAttendance)
	// avg(2/3, 1/3)
	assert.Equal(t, "50", rows[0].AttendanceRate.String())

	assert.Equal(t, "B", rows[1].Class)
	assert.Equal(t, 1, rows[1].TotalStudents)
	assert.Equal(t, "0", rows[1].AttendanceRate.String())
}

func TestByClass_ClassWithoutStudents(t *testing.T) {
	ds := fixture()
	ds.Sessions = append(ds.Sessions, entity.Session{ID: "Z-Art-1", ClassName: "Z", CourseName: "Art"})

	rows := ds.ByClass()
	require.Len(t, rows, 3)
	last := rows[2]
	assert.Equal(t, "Z", last.Class)
	assert.Equal(t, 0, last.TotalStudents)
	assert.Equal(t, 1, last.TotalSessions)
	assert.Equal(t, "0", last.AttendanceRate.String())
}

func TestOverall(t *testing.T) {
	o := fixture().Overall()
	assert.Equal(t, 4, o.TotalStudents)
	assert.Equal(t, 4, o.TotalSessions)
	assert.Equal(t, 3, o.TotalAttendance)
	// Alice 2/2, Bob 1/2 (Math only, Physics not attended), Carol 0/0
	assert.Equal(t, "50", o.AvgAttendanceRate.String())
}

func TestOverall_AttendedCourseDenominator(t *testing.T) {
	// GIVEN: Alice also attends the single Physics session
	// WHEN: computing her overview
	// THEN: Physics joins her denominator only once she attended it

	ds := fixture()
	before := ds.StudentsOverview()
	assert.Equal(t, 2, before[0].TotalSessions)

	ds.Attendees = append(ds.Attendees, entity.Attendee{SessionID: "A-Physics-1", StudentNumber: "S1", CourseName: "Physics"})
	after := ds.StudentsOverview()
	assert.Equal(t, "Alice", after[0].Name)
	assert.Equal(t, 2, after[0].CoursesCount)
	assert.Equal(t, 3, after[0].TotalSessions)
	assert.Equal(t, 3, after[0].AttendanceCount)
	assert.Equal(t, "100", after[0].AttendanceRate.String())
}

func TestStudentsOverview(t *testing.T) {
	rows := fixture().StudentsOverview()
	require.Len(t, rows, 3, "Dan has no class")

	assert.Equal(t, "Alice", rows[0].Name)
	assert.Equal(t, "100", rows[0].AttendanceRate.String())
	assert.Equal(t, 1, rows[0].CoursesCount)

	assert.Equal(t, "Bob", rows[1].Name)
	assert.Equal(t, "50", rows[1].AttendanceRate.String())

	assert.Equal(t, "Carol", rows[2].Name)
	assert.Equal(t, 0, rows[2].TotalSessions)
	assert.Equal(t, "0", rows[2].AttendanceRate.String())
}

func TestCourseDetails(t *testing.T) {
	rows := fixture().CourseDetails("Math")
	require.Len(t, rows, 3, "unknown student S9 is dropped")

	assert.Equal(t, "S1", rows[0].StudentNumber)
	assert.Equal(t, 2, rows[0].AttendanceCount)
	assert.Equal(t, 2, rows[0].TotalSessions)
	assert.Equal(t, "100", rows[0].AttendanceRate.String())

	assert.Equal(t, "S2", rows[1].StudentNumber)
	assert.Equal(t, "50", rows[1].AttendanceRate.String())

	assert.Equal(t, "S3", rows[2].StudentNumber)
	assert.Equal(t, "B", rows[2].Class)
	assert.Equal(t, 1, rows[2].TotalSessions)
}

func TestCourseDetails_ZeroSessions(t *testing.T) {
	// a course with enrolled students but zero sessions rates 0
	rows := fixture().CourseDetails("Chemistry")
	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0].TotalSessions)
	assert.Equal(t, "0", rows[0].AttendanceRate.String())

	assert.Empty(t, fixture().CourseDetails("Unknown"))
}

func TestClassDetails(t *testing.T) {
	rows := fixture().ClassDetails("A")
	require.Len(t, rows, 2)

	// Alice is enrolled in Math, Physics, Chemistry: 3 class-A sessions
	assert.Equal(t, "Alice", rows[0].Name)
	assert.Equal(t, 3, rows[0].TotalSessions)
	assert.Equal(t, 2, rows[0].AttendanceCount)
	assert.Equal(t, "66.67", rows[0].AttendanceRate.String())

	assert.Equal(t, "Bob", rows[1].Name)
	assert.Equal(t, 2, rows[1].TotalSessions)
	assert.Equal(t, "50", rows[1].AttendanceRate.String())

	assert.Empty(t, fixture().ClassDetails(""))
}

func TestStudentDetails(t *testing.T) {
	ds := fixture()

	got, err := ds.StudentDetails("Alice", "A")
	require.NoError(t, err)
	require.Len(t, got.Details, 1)
	assert.Equal(t, CourseRow{Course: "Math", AttendanceCount: 2, TotalSessions: 2, AttendanceRate: Percent(2, 2)}, got.Details[0])
	assert.Equal(t, 1, got.Totals.Courses)
	assert.Equal(t, 2, got.Totals.TotalSessions)
	assert.Equal(t, 2, got.Totals.AttendanceCount)
	assert.Equal(t, "100", got.Totals.AvgAttendanceRate.String())

	got, err = ds.StudentDetails("Nobody", "A")
	require.NoError(t, err)
	assert.Empty(t, got.Details)
	assert.Equal(t, 0, got.Totals.Courses)

	_, err = ds.StudentDetails("Alice", " ")
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
}

func TestViews_EmptyDataset(t *testing.T) {
	ds := &Dataset{}

	assert.NotNil(t, ds.ByCourse())
	assert.Empty(t, ds.ByCourse())
	assert.Empty(t, ds.ByClass())
	assert.Empty(t, ds.StudentsOverview())
	assert.Empty(t, ds.CourseDetails("Math"))
	assert.Equal(t, Overall{}.TotalStudents, ds.Overall().TotalStudents)
	assert.Equal(t, "0", ds.Overall().AvgAttendanceRate.String())
}

// =============================================================================
// ENGINE
// =============================================================================

type fakeSource struct {
	ds  *Dataset
	err error
}

func (f fakeSource) LoadStudents(context.Context) ([]entity.Student, error) {
	return f.ds.Students, f.err
}

func (f fakeSource) LoadEnrollments(context.Context) ([]entity.Enrollment, error) {
	return f.ds.Enrollments, nil
}

func (f fakeSource) LoadCourses(context.Context) ([]entity.Course, error) {
	return f.ds.Courses, nil
}

func (f fakeSource) LoadSessions(context.Context) ([]entity.Session, error) {
	return f.ds.Sessions, nil
}

func (f fakeSource) LoadAttendees(context.Context) ([]entity.Attendee, error) {
	return f.ds.Attendees, nil
}

func TestEngine_ObservesDuration(t *testing.T) {
	m, err := metrics.New()
	require.NoError(t, err)
	e := NewEngine(fakeSource{ds: fixture()}, WithMetrics(m))

	rows, err := e.ByCourse(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	assert.Equal(t, 1, testutil.CollectAndCount(m, "attendance_stats_duration_seconds"))
}

func TestEngine_LoadError(t *testing.T) {
	boom := entity.NewStorageError("load students", errors.New("disk gone"))
	e := NewEngine(fakeSource{ds: fixture(), err: boom})

	_, err := e.Overall(context.Background())
	assert.ErrorIs(t, err, entity.ErrStorage)
}

func TestEngine_StudentDetailsValidatesFirst(t *testing.T) {
	e := NewEngine(fakeSource{ds: fixture(), err: errors.New("must not load")})

	_, err := e.StudentDetails(context.Background(), "", "A")
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
}
