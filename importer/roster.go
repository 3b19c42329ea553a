package importer

import (
	"bytes"
	"context"
	_ "embed" // demo roster
	"fmt"
	"io"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/warp/attendance-engine/entity"
)

// =============================================================================
// PHOTO FOLDER IMPORT
// =============================================================================

type StudentMerger interface {
	MergeStudent(ctx context.Context, st entity.Student) (entity.UpsertResult, error)
}

// PhotoFile is one uploaded photo already written to disk.
type PhotoFile struct {
	OriginalName string
	StoredPath   string // public path, e.g. /uploads/students/1700000000000_x.jpg
}

// PhotoMeta overrides the form defaults for one file.
type PhotoMeta struct {
	Gender    *string `json:"gender"`
	ClassName *string `json:"class_name"`
}

// PhotoDefaults apply to every file without its own meta entry.
type PhotoDefaults struct {
	Gender    string
	ClassName string
}

// ImportPhotos creates or merges one student per photo. Files whose names
// do not carry "number-name" are skipped. Meta entries are matched on the
// raw name, the decoded name, their base names, or the stored base name.
func ImportPhotos(ctx context.Context, store StudentMerger, files []PhotoFile, defaults PhotoDefaults, meta map[string]PhotoMeta) *entity.ImportSummary {
	sum := &entity.ImportSummary{Errors: []entity.ImportError{}}

	for _, file := range files {
		sum.Processed++
		sf, ok := ParseStudentFilename(file.OriginalName)
		if !ok {
			sum.Skipped++
			continue
		}

		st := entity.Student{
			StudentNumber: sf.StudentNumber,
			Name:          sf.Name,
			Gender:        defaults.Gender,
			ClassName:     defaults.ClassName,
			PhotoPath:     file.StoredPath,
		}
		if m, ok := lookupMeta(meta, file); ok {
			if m.Gender != nil {
				st.Gender = *m.Gender
			}
			if m.ClassName != nil {
				st.ClassName = *m.ClassName
			}
		}

		res, err := store.MergeStudent(ctx, st)
		if err != nil {
			sum.Fail(file.OriginalName, err)
			continue
		}
		sum.Count(res)
	}
	return sum
}

func lookupMeta(meta map[string]PhotoMeta, file PhotoFile) (PhotoMeta, bool) {
	if len(meta) == 0 {
		return PhotoMeta{}, false
	}
	decoded := DecodeFilename(file.OriginalName)
	for _, k := range []string{
		file.OriginalName,
		decoded,
		filepath.Base(file.OriginalName),
		filepath.Base(decoded),
		filepath.Base(file.StoredPath),
	} {
		if m, ok := meta[k]; ok {
			return m, true
		}
	}
	return PhotoMeta{}, false
}

// =============================================================================
// DEMO ROSTER
// =============================================================================

//go:embed demo_roster.yaml
var demoRoster []byte

type Roster struct {
	Students []struct {
		StudentNumber string `yaml:"student_number"`
		Name          string `yaml:"name"`
		Gender        string `yaml:"gender"`
		ClassName     string `yaml:"class_name"`
	} `yaml:"students"`
	Courses []struct {
		Code  string `yaml:"course_code"`
		Name  string `yaml:"course_name"`
		Hours *int   `yaml:"course_hours"`
	} `yaml:"courses"`
	Enrollments []struct {
		StudentNumber string `yaml:"student_number"`
		CourseCode    string `yaml:"course_code"`
	} `yaml:"enrollments"`
}

// LoadRoster decodes a roster document.
func LoadRoster(r io.Reader) (*Roster, error) {
	var roster Roster
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&roster); err != nil {
		return nil, entity.Invalid("roster", err.Error())
	}
	return &roster, nil
}

// DemoRoster returns the embedded demo roster.
func DemoRoster() (*Roster, error) {
	return LoadRoster(bytes.NewReader(demoRoster))
}

type RosterStore interface {
	StudentMerger
	CourseUpserter
	EnrollmentUpserter
}

type SeedSummary struct {
	Students    entity.ImportSummary
	Courses     entity.ImportSummary
	Enrollments entity.ImportSummary
}

// Seed writes a roster through the same upsert paths as the imports.
// Students and courses go first so enrollments can resolve them.
func Seed(ctx context.Context, store RosterStore, roster *Roster) *SeedSummary {
	sum := &SeedSummary{}

	for _, s := range roster.Students {
		sum.Students.Processed++
		res, err := store.MergeStudent(ctx, entity.Student{
			StudentNumber: s.StudentNumber, Name: s.Name, Gender: s.Gender, ClassName: s.ClassName,
		})
		if err != nil {
			sum.Students.Fail(s.StudentNumber, err)
			continue
		}
		sum.Students.Count(res)
	}

	for _, c := range roster.Courses {
		sum.Courses.Processed++
		res, err := store.UpsertCourse(ctx, entity.Course{Code: c.Code, Name: c.Name, Hours: c.Hours})
		if err != nil {
			sum.Courses.Fail(c.Code, err)
			continue
		}
		sum.Courses.Count(res)
	}

	for _, e := range roster.Enrollments {
		sum.Enrollments.Processed++
		_, res, err := store.UpsertEnrollment(ctx, entity.Enrollment{StudentNumber: e.StudentNumber, CourseCode: e.CourseCode})
		if err != nil {
			sum.Enrollments.Fail(fmt.Sprintf("%s/%s", e.StudentNumber, e.CourseCode), err)
			continue
		}
		sum.Enrollments.Count(res)
	}
	return sum
}
