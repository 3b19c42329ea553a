package stats

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/attendance-engine/entity"
)

// =============================================================================
// ROW TYPES
// =============================================================================

// GroupStat is one row of the by-course or by-class views.
type GroupStat struct {
	Course          string `json:"course,omitempty"`
	Class           string `json:"class,omitempty"`
	TotalStudents   int    `json:"total_students"`
	TotalSessions   int    `json:"total_sessions"`
	TotalAttendance int    `json:"total_attendance"`
	AttendanceRate  Rate   `json:"attendance_rate"`
}

type Overall struct {
	TotalStudents     int  `json:"total_students"`
	TotalSessions     int  `json:"total_sessions"`
	TotalAttendance   int  `json:"total_attendance"`
	AvgAttendanceRate Rate `json:"avg_attendance_rate"`
}

// StudentRow is one student in a course or class drill-down.
type StudentRow struct {
	Name            string `json:"name"`
	Class           string `json:"class"`
	StudentNumber   string `json:"student_number"`
	AttendanceCount int    `json:"attendance_count"`
	TotalSessions   int    `json:"total_sessions"`
	AttendanceRate  Rate   `json:"attendance_rate"`
}

// StudentOverview is one row of the students view.
type StudentOverview struct {
	Name            string `json:"name"`
	Class           string `json:"class"`
	StudentNumber   string `json:"student_number"`
	CoursesCount    int    `json:"courses_count"`
	TotalSessions   int    `json:"total_sessions"`
	AttendanceCount int    `json:"attendance_count"`
	AttendanceRate  Rate   `json:"attendance_rate"`
}

// CourseRow is one course of a student drill-down.
type CourseRow struct {
	Course          string `json:"course"`
	AttendanceCount int    `json:"attendance_count"`
	TotalSessions   int    `json:"total_sessions"`
	AttendanceRate  Rate   `json:"attendance_rate"`
}

type StudentTotals struct {
	Courses           int  `json:"courses"`
	TotalSessions     int  `json:"total_sessions"`
	AttendanceCount   int  `json:"attendance_count"`
	AvgAttendanceRate Rate `json:"avg_attendance_rate"`
}

type StudentDetails struct {
	Name    string        `json:"name"`
	Class   string        `json:"class"`
	Details []CourseRow   `json:"details"`
	Totals  StudentTotals `json:"totals"`
}

// =============================================================================
// BY COURSE
// =============================================================================

// ByCourse lists every course named by an enrollment or a session.
//
//	total_sessions:   all sessions of the course, any class
//	total_students:   distinct enrolled students present in the roster
//	per student:      attended / sessions of the course in the student's class
//	attendance_rate:  average of the per-student ratios
func (d *Dataset) ByCourse() []GroupStat {
	ix := d.index()

	var courses []string
	known := make(map[string]bool)
	addCourse := func(c string) {
		if !known[c] {
			known[c] = true
			courses = append(courses, c)
		}
	}
	for _, e := range d.Enrollments {
		addCourse(e.CourseName)
	}
	for _, s := range d.Sessions {
		addCourse(s.CourseName)
	}

	enrolled := make(map[string][]string)
	counted := make(map[[2]string]bool)
	for _, e := range d.Enrollments {
		k := [2]string{e.CourseName, e.StudentNumber}
		if _, ok := ix.students[e.StudentNumber]; !ok || counted[k] {
			continue
		}
		counted[k] = true
		enrolled[e.CourseName] = append(enrolled[e.CourseName], e.StudentNumber)
	}

	rows := make([]GroupStat, 0, len(courses))
	for _, course := range courses {
		row := GroupStat{Course: course, TotalSessions: ix.byCourse[course]}
		ratios := make([]decimal.Decimal, 0, len(enrolled[course]))
		for _, sn := range enrolled[course] {
			sessions := ix.classSessions(ix.students[sn].ClassName, course)
			attended := ix.attendedFact(sessions, sn)
			row.TotalAttendance += attended
			ratios = append(ratios, ratio(attended, len(sessions)))
		}
		row.TotalStudents = len(ratios)
		row.AttendanceRate = AveragePercent(ratios)
		rows = append(rows, row)
	}

	sortGroups(rows, func(g GroupStat) string { return g.Course })
	return rows
}

// =============================================================================
// BY CLASS
// =============================================================================

// ByClass lists every class that has held a session.
//
//	total_sessions:   all sessions of the class, any course
//	per student:      attended / total_sessions
//	attendance_rate:  average of the per-student ratios
func (d *Dataset) ByClass() []GroupStat {
	ix := d.index()

	var classes []string
	for _, s := range d.Sessions {
		if !containsString(classes, s.ClassName) {
			classes = append(classes, s.ClassName)
		}
	}

	rows := make([]GroupStat, 0, len(classes))
	for _, class := range classes {
		sessions := ix.classSessions(class, "")
		row := GroupStat{Class: class, TotalSessions: len(sessions)}
		var ratios []decimal.Decimal
		for _, st := range d.Students {
			if st.ClassName != class {
				continue
			}
			attended := ix.attendedFact(sessions, st.StudentNumber)
			row.TotalAttendance += attended
			ratios = append(ratios, ratio(attended, len(sessions)))
		}
		row.TotalStudents = len(ratios)
		row.AttendanceRate = AveragePercent(ratios)
		rows = append(rows, row)
	}

	sortGroups(rows, func(g GroupStat) string { return g.Class })
	return rows
}

// =============================================================================
// OVERALL
// =============================================================================

// Overall counts students, sessions and distinct attendance facts, and
// averages the attended-course rate over every student with a class.
func (d *Dataset) Overall() Overall {
	ix := d.index()

	out := Overall{
		TotalStudents:   len(d.Students),
		TotalSessions:   len(ix.sessions),
		TotalAttendance: len(ix.facts),
	}

	var ratios []decimal.Decimal
	for _, st := range d.Students {
		if st.ClassName == "" {
			continue
		}
		p := ix.profile(st)
		ratios = append(ratios, ratio(p.attended, p.total))
	}
	out.AvgAttendanceRate = AveragePercent(ratios)
	return out
}

// =============================================================================
// STUDENTS OVERVIEW
// =============================================================================

// StudentsOverview lists every student with a name and a class, using the
// attended-course denominator.
func (d *Dataset) StudentsOverview() []StudentOverview {
	ix := d.index()

	rows := []StudentOverview{}
	for _, st := range d.Students {
		if st.Name == "" || st.ClassName == "" {
			continue
		}
		p := ix.profile(st)
		rows = append(rows, StudentOverview{
			Name:            st.Name,
			Class:           st.ClassName,
			StudentNumber:   st.StudentNumber,
			CoursesCount:    p.courses,
			TotalSessions:   p.total,
			AttendanceCount: p.attended,
			AttendanceRate:  Percent(p.attended, p.total),
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if c := rows[i].AttendanceRate.Cmp(rows[j].AttendanceRate); c != 0 {
			return c > 0
		}
		return rows[i].Name < rows[j].Name
	})
	return rows
}

// =============================================================================
// DRILL-DOWNS
// =============================================================================

// CourseDetails lists the students enrolled in a course, matched through
// the course catalogue by name. Total is the course's sessions in the
// student's class.
func (d *Dataset) CourseDetails(course string) []StudentRow {
	ix := d.index()

	rows := []StudentRow{}
	done := make(map[string]bool)
	for _, e := range d.Enrollments {
		name, ok := ix.courseNames[e.CourseCode]
		if !ok || name != course || done[e.StudentNumber] {
			continue
		}
		st, ok := ix.students[e.StudentNumber]
		if !ok {
			continue
		}
		done[e.StudentNumber] = true

		sessions := ix.classSessions(st.ClassName, course)
		rows = append(rows, studentRow(st, ix.attendedFact(sessions, st.StudentNumber), len(sessions)))
	}

	sortStudentRows(rows)
	return rows
}

// ClassDetails lists the students of a class. Total is the class's sessions
// of every course the student is enrolled in; attended counts any session
// of the class.
func (d *Dataset) ClassDetails(class string) []StudentRow {
	ix := d.index()
	sessions := ix.classSessions(class, "")

	rows := []StudentRow{}
	for _, st := range d.Students {
		if class == "" || st.ClassName != class {
			continue
		}

		enrolled := make(map[string]bool)
		for _, code := range ix.enrolledCodes[st.StudentNumber] {
			if name, ok := ix.courseNames[code]; ok {
				enrolled[name] = true
			}
		}
		total := 0
		for _, s := range sessions {
			if enrolled[s.CourseName] {
				total++
			}
		}

		rows = append(rows, studentRow(st, ix.attendedFact(sessions, st.StudentNumber), total))
	}

	sortStudentRows(rows)
	return rows
}

// StudentDetails breaks one student's attendance down per attended course.
// The student is the lowest-id match on (name, class). An unknown student
// yields empty details.
func (d *Dataset) StudentDetails(name, class string) (*StudentDetails, error) {
	name, class, err := studentKey(name, class)
	if err != nil {
		return nil, err
	}
	return d.studentDetails(name, class), nil
}

func studentKey(name, class string) (string, string, error) {
	name = strings.TrimSpace(name)
	class = strings.TrimSpace(class)
	if name == "" || class == "" {
		return "", "", entity.Invalid("name", "name and class are required")
	}
	return name, class, nil
}

func (d *Dataset) studentDetails(name, class string) *StudentDetails {
	out := &StudentDetails{Name: name, Class: class, Details: []CourseRow{}}

	var target *entity.Student
	for i := range d.Students {
		if d.Students[i].Name == name && d.Students[i].ClassName == class {
			target = &d.Students[i]
			break
		}
	}
	if target == nil {
		return out
	}

	ix := d.index()
	rates := []Rate{}
	for _, course := range ix.attendedCourses(*target) {
		sessions := ix.classSessions(class, course)
		attended := ix.attendedAny(sessions, target.StudentNumber)
		row := CourseRow{
			Course:          course,
			AttendanceCount: attended,
			TotalSessions:   len(sessions),
			AttendanceRate:  Percent(attended, len(sessions)),
		}
		out.Details = append(out.Details, row)
		rates = append(rates, row.AttendanceRate)

		out.Totals.Courses++
		out.Totals.TotalSessions += row.TotalSessions
		out.Totals.AttendanceCount += row.AttendanceCount
	}
	out.Totals.AvgAttendanceRate = MeanRate(rates)

	sort.SliceStable(out.Details, func(i, j int) bool {
		if c := out.Details[i].AttendanceRate.Cmp(out.Details[j].AttendanceRate); c != 0 {
			return c > 0
		}
		return out.Details[i].Course < out.Details[j].Course
	})
	return out
}

// =============================================================================
// HELPERS
// =============================================================================

func studentRow(st entity.Student, attended, total int) StudentRow {
	return StudentRow{
		Name:            st.Name,
		Class:           st.ClassName,
		StudentNumber:   st.StudentNumber,
		AttendanceCount: attended,
		TotalSessions:   total,
		AttendanceRate:  Percent(attended, total),
	}
}

// sortGroups orders by rate descending, then key ascending.
func sortGroups(rows []GroupStat, key func(GroupStat) string) {
	sort.SliceStable(rows, func(i, j int) bool {
		if c := rows[i].AttendanceRate.Cmp(rows[j].AttendanceRate); c != 0 {
			return c > 0
		}
		return key(rows[i]) < key(rows[j])
	})
}

func sortStudentRows(rows []StudentRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if c := rows[i].AttendanceRate.Cmp(rows[j].AttendanceRate); c != 0 {
			return c > 0
		}
		if rows[i].Name != rows[j].Name {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].StudentNumber < rows[j].StudentNumber
	})
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
