/*
Package stats computes the read-side attendance views.

PURPOSE:
  Turns the roster, the sessions and the de-duplicated attendee facts into
  per-course, per-class, per-student and overall attendance rates.

HOW IT WORKS:
  1. Load every table the views need, concurrently (errgroup)
  2. Build an in-memory index (sessions by class/course, attendee keys)
  3. Aggregate in Go

  The loaders do not share a snapshot. Each table is internally consistent;
  a write landing between two loads may show up in one and not the other.

RATES:
  Percentages with 2 decimal places, computed with shopspring/decimal.
  A zero denominator yields 0.

ATTENDED-COURSE DENOMINATOR:
  Overall, the students overview and student details only count, for each
  student, the sessions of courses the student attended at least once in
  their own class. A student is not penalised for courses they never
  engaged with. By-course, by-class, course details and class details use
  their own denominators, documented on each view.

SEE ALSO:
  - views.go: The seven views
  - rate.go: Rate arithmetic
  - store/sqlite/stats.go: The Source implementation
*/
package stats

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/warp/attendance-engine/entity"
)

// Source supplies whole tables for aggregation.
type Source interface {
	LoadStudents(ctx context.Context) ([]entity.Student, error)
	LoadEnrollments(ctx context.Context) ([]entity.Enrollment, error)
	LoadCourses(ctx context.Context) ([]entity.Course, error)
	LoadSessions(ctx context.Context) ([]entity.Session, error)
	LoadAttendees(ctx context.Context) ([]entity.Attendee, error)
}

// Dataset is everything the views read. Students are expected in id order.
type Dataset struct {
	Students    []entity.Student
	Enrollments []entity.Enrollment
	Courses     []entity.Course
	Sessions    []entity.Session
	Attendees   []entity.Attendee
}

// Load reads all tables from src concurrently.
func Load(ctx context.Context, src Source) (*Dataset, error) {
	var ds Dataset
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		ds.Students, err = src.LoadStudents(ctx)
		return err
	})
	g.Go(func() (err error) {
		ds.Enrollments, err = src.LoadEnrollments(ctx)
		return err
	})
	g.Go(func() (err error) {
		ds.Courses, err = src.LoadCourses(ctx)
		return err
	})
	g.Go(func() (err error) {
		ds.Sessions, err = src.LoadSessions(ctx)
		return err
	})
	g.Go(func() (err error) {
		ds.Attendees, err = src.LoadAttendees(ctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// =============================================================================
// INDEX
// =============================================================================

type factKey struct {
	session, student, course string
}

type seenKey struct {
	session, student string
}

type classCourse struct {
	class, course string
}

type index struct {
	students      map[string]entity.Student
	sessions      map[string]entity.Session
	byClass       map[string][]entity.Session
	byClassCourse map[classCourse][]entity.Session
	byCourse      map[string]int
	courseNames   map[string]string // course_code -> course_name
	enrolledCodes map[string][]string
	attendeesOf   map[string][]entity.Attendee
	facts         map[factKey]struct{}
	seen          map[seenKey]struct{}
}

func (d *Dataset) index() *index {
	ix := &index{
		students:      make(map[string]entity.Student, len(d.Students)),
		sessions:      make(map[string]entity.Session, len(d.Sessions)),
		byClass:       make(map[string][]entity.Session),
		byClassCourse: make(map[classCourse][]entity.Session),
		byCourse:      make(map[string]int),
		courseNames:   make(map[string]string, len(d.Courses)),
		enrolledCodes: make(map[string][]string),
		attendeesOf:   make(map[string][]entity.Attendee),
		facts:         make(map[factKey]struct{}, len(d.Attendees)),
		seen:          make(map[seenKey]struct{}, len(d.Attendees)),
	}

	for _, st := range d.Students {
		if _, dup := ix.students[st.StudentNumber]; !dup {
			ix.students[st.StudentNumber] = st
		}
	}
	for _, s := range d.Sessions {
		ix.sessions[s.ID] = s
		ix.byClass[s.ClassName] = append(ix.byClass[s.ClassName], s)
		k := classCourse{s.ClassName, s.CourseName}
		ix.byClassCourse[k] = append(ix.byClassCourse[k], s)
		ix.byCourse[s.CourseName]++
	}
	for _, c := range d.Courses {
		ix.courseNames[c.Code] = c.Name
	}
	for _, e := range d.Enrollments {
		ix.enrolledCodes[e.StudentNumber] = append(ix.enrolledCodes[e.StudentNumber], e.CourseCode)
	}
	for _, a := range d.Attendees {
		ix.attendeesOf[a.StudentNumber] = append(ix.attendeesOf[a.StudentNumber], a)
		ix.facts[factKey{a.SessionID, a.StudentNumber, a.CourseName}] = struct{}{}
		ix.seen[seenKey{a.SessionID, a.StudentNumber}] = struct{}{}
	}
	return ix
}

// classSessions returns the sessions of one class, optionally narrowed to a
// course. A student without a class has none.
func (ix *index) classSessions(class, course string) []entity.Session {
	if class == "" {
		return nil
	}
	if course == "" {
		return ix.byClass[class]
	}
	return ix.byClassCourse[classCourse{class, course}]
}

// attendedFact counts sessions where the student has an attendee row whose
// course matches the session's course.
func (ix *index) attendedFact(sessions []entity.Session, sn string) int {
	n := 0
	for _, s := range sessions {
		if _, ok := ix.facts[factKey{s.ID, sn, s.CourseName}]; ok {
			n++
		}
	}
	return n
}

// attendedAny counts sessions where the student has any attendee row.
func (ix *index) attendedAny(sessions []entity.Session, sn string) int {
	n := 0
	for _, s := range sessions {
		if _, ok := ix.seen[seenKey{s.ID, sn}]; ok {
			n++
		}
	}
	return n
}

// attendedCourses lists the distinct courses the student attended in
// sessions of their own class, in first-seen order.
func (ix *index) attendedCourses(st entity.Student) []string {
	var courses []string
	seen := make(map[string]bool)
	for _, a := range ix.attendeesOf[st.StudentNumber] {
		sess, ok := ix.sessions[a.SessionID]
		if !ok || st.ClassName == "" || sess.ClassName != st.ClassName || seen[a.CourseName] {
			continue
		}
		seen[a.CourseName] = true
		courses = append(courses, a.CourseName)
	}
	return courses
}

// profile is the attended-course denominator view of one student.
type profile struct {
	courses  int
	total    int
	attended int
}

func (ix *index) profile(st entity.Student) profile {
	courses := ix.attendedCourses(st)
	p := profile{courses: len(courses)}
	for _, c := range courses {
		p.total += len(ix.classSessions(st.ClassName, c))
	}
	p.attended = ix.attendedAny(ix.classSessions(st.ClassName, ""), st.StudentNumber)
	return p
}
