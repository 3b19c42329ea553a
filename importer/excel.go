package importer

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/warp/attendance-engine/entity"
)

// =============================================================================
// HEADER ALIASES
// =============================================================================
//
// The first sheet's first row is the header. Each field accepts the Chinese
// and English headers below, first match wins.

var (
	courseCodeHeaders  = []string{"课程编号", "course_code", "代码", "code", "课程代码", "课程code"}
	courseNameHeaders  = []string{"课程名称", "course_name", "名称", "name", "课程名"}
	courseHoursHeaders = []string{"课程学时", "course_hours", "学时", "hours", "时长"}

	studentNumberHeaders = []string{"学号", "student_number"}
)

// Row is one data row keyed by header, with its 1-based sheet line.
type Row struct {
	Line   int
	Values map[string]string
}

// Get returns the first non-empty value among the header aliases.
func (r Row) Get(headers ...string) string {
	for _, h := range headers {
		if v := strings.TrimSpace(r.Values[h]); v != "" {
			return v
		}
	}
	return ""
}

func (r Row) String() string {
	return fmt.Sprintf("row %d", r.Line)
}

// ReadSheet reads the first sheet of an xlsx workbook. Blank rows are
// dropped; short rows read as empty strings.
func ReadSheet(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, entity.Invalid("file", "not a readable xlsx workbook: "+err.Error())
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, entity.Invalid("file", "empty workbook")
	}

	lines, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, entity.Invalid("file", "read sheet: "+err.Error())
	}
	if len(lines) == 0 {
		return []Row{}, nil
	}

	headers := make([]string, len(lines[0]))
	for i, h := range lines[0] {
		headers[i] = strings.TrimSpace(h)
	}

	rows := make([]Row, 0, len(lines)-1)
	for i, line := range lines[1:] {
		row := Row{Line: i + 2, Values: make(map[string]string, len(headers))}
		blank := true
		for j, h := range headers {
			if h == "" || j >= len(line) {
				continue
			}
			row.Values[h] = line[j]
			if strings.TrimSpace(line[j]) != "" {
				blank = false
			}
		}
		if !blank {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// =============================================================================
// COURSES
// =============================================================================

// CourseFromRow extracts a course. ok is false when code or name is missing.
// Unparsable hours read as unset.
func CourseFromRow(r Row) (entity.Course, bool) {
	c := entity.Course{
		Code: r.Get(courseCodeHeaders...),
		Name: r.Get(courseNameHeaders...),
	}
	if c.Code == "" || c.Name == "" {
		return entity.Course{}, false
	}
	c.Hours = parseHours(r.Get(courseHoursHeaders...))
	return c, true
}

func parseHours(s string) *int {
	if s == "" {
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return &n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		n := int(f)
		return &n
	}
	return nil
}

type CourseUpserter interface {
	UpsertCourse(ctx context.Context, c entity.Course) (entity.UpsertResult, error)
}

// ImportCourses inserts new course codes and refreshes name and hours of
// existing ones.
func ImportCourses(ctx context.Context, store CourseUpserter, r io.Reader) (*entity.ImportSummary, error) {
	rows, err := ReadSheet(r)
	if err != nil {
		return nil, err
	}

	sum := &entity.ImportSummary{Errors: []entity.ImportError{}}
	for _, row := range rows {
		sum.Processed++
		c, ok := CourseFromRow(row)
		if !ok {
			sum.Skipped++
			continue
		}
		res, err := store.UpsertCourse(ctx, c)
		if err != nil {
			sum.Fail(row.String(), err)
			continue
		}
		sum.Count(res)
	}
	return sum, nil
}

// =============================================================================
// ENROLLMENTS
// =============================================================================

type EnrollmentUpserter interface {
	UpsertEnrollment(ctx context.Context, e entity.Enrollment) (*entity.Enrollment, entity.UpsertResult, error)
}

// ImportEnrollments links existing students to existing courses. Rows
// naming an unknown student or course are reported as errors.
func ImportEnrollments(ctx context.Context, store EnrollmentUpserter, r io.Reader) (*entity.ImportSummary, error) {
	rows, err := ReadSheet(r)
	if err != nil {
		return nil, err
	}

	sum := &entity.ImportSummary{Errors: []entity.ImportError{}}
	for _, row := range rows {
		sum.Processed++
		e := entity.Enrollment{
			StudentNumber: row.Get(studentNumberHeaders...),
			CourseCode:    row.Get(courseCodeHeaders[:2]...),
		}
		if e.StudentNumber == "" || e.CourseCode == "" {
			sum.Skipped++
			continue
		}
		_, res, err := store.UpsertEnrollment(ctx, e)
		if err != nil {
			sum.Fail(row.String(), err)
			continue
		}
		sum.Count(res)
	}
	return sum, nil
}
