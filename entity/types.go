/*
Package entity provides the domain types shared by the attendance engine.

PURPOSE:
  Storage-agnostic records for everything the tracker persists: students,
  courses, enrollments, legacy face records, sessions and the two attendance
  fact tables. Packages above (attendance, stats, importer, api) speak in
  these types; store/sqlite maps them to rows.

KEY CONCEPTS IN THIS FILE (types.go):
  - Student / Course / Enrollment: roster entities keyed by business codes
  - Face: legacy gallery record (label + descriptors + name/class)
  - Session: one class+course occurrence, id fixed at creation
  - Attendee: de-duplicating fact (session, student, course)
  - AttendanceRecord: legacy per-event fact (face, session, timestamp)

OPTIONAL FIELDS:
  Optional text columns are plain strings; the empty string is stored as
  NULL. Merges never overwrite a stored value with an empty one.

SEE ALSO:
  - store.go: Interfaces the recorder and session manager depend on
  - time.go: Civil UTC+8 timestamps
*/
package entity

import "fmt"

// =============================================================================
// ROSTER
// =============================================================================

// Student is keyed by StudentNumber. FaceDescriptors holds the raw JSON array.
type Student struct {
	ID              int64
	StudentNumber   string
	Name            string
	Gender          string
	ClassName       string
	FaceDescriptors string
	PhotoPath       string
	CreatedAt       string
}

// StudentPatch lists the fields a partial update touches. Nil means untouched.
type StudentPatch struct {
	StudentNumber   *string
	Name            *string
	Gender          *string
	ClassName       *string
	FaceDescriptors *string
	PhotoPath       *string
}

func (p StudentPatch) Empty() bool {
	return p.StudentNumber == nil && p.Name == nil && p.Gender == nil &&
		p.ClassName == nil && p.FaceDescriptors == nil && p.PhotoPath == nil
}

// Course is keyed by Code.
type Course struct {
	ID        int64
	Code      string
	Name      string
	Hours     *int
	CreatedAt string
}

type CoursePatch struct {
	Code *string
	Name *string
	// SetHours distinguishes "clear hours" (SetHours, Hours == nil) from
	// "leave hours alone".
	SetHours bool
	Hours    *int
}

func (p CoursePatch) Empty() bool {
	return p.Code == nil && p.Name == nil && !p.SetHours
}

// Enrollment links a student to a course. Name and CourseName are
// denormalised copies taken at write time.
type Enrollment struct {
	ID            int64
	StudentNumber string
	Name          string
	CourseName    string
	CourseCode    string
	CreatedAt     string
}

type EnrollmentPatch struct {
	StudentNumber *string
	Name          *string
	CourseCode    *string
	CourseName    *string
}

func (p EnrollmentPatch) Empty() bool {
	return p.StudentNumber == nil && p.Name == nil && p.CourseCode == nil && p.CourseName == nil
}

// Face is a legacy gallery record. Descriptors holds the raw JSON.
type Face struct {
	ID          int64
	Label       string
	Descriptors string
	Class       string
	Name        string
	Course      string
	CreatedAt   string
}

// =============================================================================
// SESSIONS
// =============================================================================

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// Session is one occurrence of a class+course pairing. ID is the
// human-readable composite key and never changes; UID is a surrogate.
type Session struct {
	ID         string
	UID        string
	ClassName  string
	CourseName string
	StartTime  string
	EndTime    string
	Status     SessionStatus
}

// SessionKey composes the business id "{class}-{course}({start})".
func SessionKey(className, courseName, start string) string {
	return fmt.Sprintf("%s-%s(%s)", className, courseName, start)
}

func (s Session) DisplayName() string {
	return s.ClassName + "-" + s.CourseName
}

// InProgressMarker stands in for the end time of an open session.
const InProgressMarker = "进行中"

// FullName renders "{class}-{course}({start} - {end})", with an in-progress
// marker while the session is open.
func (s Session) FullName() string {
	end := s.EndTime
	if end == "" {
		end = InProgressMarker
	}
	return fmt.Sprintf("%s(%s - %s)", s.DisplayName(), s.StartTime, end)
}

// =============================================================================
// ATTENDANCE FACTS
// =============================================================================

// Attendee is the de-duplicating fact: one row per (session, student, course).
type Attendee struct {
	SessionID     string
	StudentNumber string
	CourseName    string
	FirstSeen     string
}

// AttendeeView joins an attendee with the student's roster fields.
type AttendeeView struct {
	Attendee
	Name      string
	ClassName string
	PhotoPath string
}

// AttendanceRecord is the legacy per-event fact. Face fields are filled
// when read back joined with faces.
type AttendanceRecord struct {
	ID        int64
	FaceID    *int64
	SessionID string
	Timestamp string

	Label  string
	Class  string
	Name   string
	Course string
}

// FaceCount is one line of a per-session legacy summary.
type FaceCount struct {
	Label  string
	Class  string
	Name   string
	Course string
	Count  int
}

// ClassCourse is a distinct class/course pairing found in the face gallery.
type ClassCourse struct {
	ClassName  string
	CourseName string
}

// =============================================================================
// BULK OPERATIONS
// =============================================================================

// UpsertResult tells an import loop which counter to bump.
type UpsertResult int

const (
	Unchanged UpsertResult = iota
	Inserted
	Updated
)

// ImportError records a single failed item of a bulk operation.
type ImportError struct {
	Item  string
	Error string
}

// ImportSummary is returned by every bulk import.
type ImportSummary struct {
	Processed int
	Inserted  int
	Updated   int
	Skipped   int
	Errors    []ImportError
}

// Count bumps the counter matching r.
func (s *ImportSummary) Count(r UpsertResult) {
	switch r {
	case Inserted:
		s.Inserted++
	case Updated:
		s.Updated++
	default:
		s.Skipped++
	}
}

func (s *ImportSummary) Fail(item string, err error) {
	s.Errors = append(s.Errors, ImportError{Item: item, Error: err.Error()})
}
