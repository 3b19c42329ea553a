/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the entity model from the wire contract the browser front end already
  speaks (snake_case keys, list payloads wrapped in a named field).

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Response wrappers

TYPES:
  Roster:
    StudentDTO, CourseDTO, EnrollmentDTO, FaceDTO, GalleryEntryDTO

  Attendance:
    RecordAttendanceRequest, RecordResponse, AttendanceDTO, FaceCountDTO,
    AttendeeDTO, ClassCourseDTO

  Sessions:
    SessionDTO, OpenSessionRequest, CloseSessionRequest

  Bulk:
    ImportSummaryDTO, BulkEnrollmentRequest

  Admin:
    ClearRequest, ClearResponse, HealthResponse, SeedResponse

VALIDATION:
  Request types carry go-playground/validator tags. Field names in
  validation errors are the json names.

OPTIONAL FIELDS:
  Update requests use pointers: nil means "leave alone". Descriptor arrays
  travel as raw JSON and are stored verbatim.
*/
package api

import (
	"encoding/json"

	"github.com/warp/attendance-engine/entity"
	"github.com/warp/attendance-engine/importer"
)

// =============================================================================
// STUDENTS
// =============================================================================

type StudentDTO struct {
	ID              int64           `json:"id"`
	StudentNumber   string          `json:"student_number"`
	Name            string          `json:"name"`
	Gender          string          `json:"gender"`
	ClassName       string          `json:"class_name"`
	FaceDescriptors json.RawMessage `json:"face_descriptors"`
	PhotoPath       string          `json:"photo_path"`
	CreatedAt       string          `json:"created_at"`
}

type CreateStudentRequest struct {
	StudentNumber   string          `json:"student_number" validate:"required"`
	Name            string          `json:"name" validate:"required"`
	Gender          string          `json:"gender"`
	ClassName       string          `json:"class_name"`
	FaceDescriptors json.RawMessage `json:"face_descriptors"`
	PhotoPath       string          `json:"photo_path"`
}

type UpdateStudentRequest struct {
	StudentNumber   *string         `json:"student_number" validate:"omitempty,min=1"`
	Name            *string         `json:"name" validate:"omitempty,min=1"`
	Gender          *string         `json:"gender"`
	ClassName       *string         `json:"class_name"`
	FaceDescriptors json.RawMessage `json:"face_descriptors"`
	PhotoPath       *string         `json:"photo_path"`
}

type FaceDescriptorsRequest struct {
	FaceDescriptors json.RawMessage `json:"face_descriptors"`
}

// =============================================================================
// COURSES
// =============================================================================

type CourseDTO struct {
	ID          int64  `json:"id"`
	CourseCode  string `json:"course_code"`
	CourseName  string `json:"course_name"`
	CourseHours *int   `json:"course_hours"`
	CreatedAt   string `json:"created_at"`
}

type CreateCourseRequest struct {
	CourseCode  string `json:"course_code" validate:"required"`
	CourseName  string `json:"course_name" validate:"required"`
	CourseHours *int   `json:"course_hours" validate:"omitempty,gte=0"`
}

// UpdateCourseRequest keeps course_hours raw so an explicit null (clear)
// can be told apart from an absent key (leave alone).
type UpdateCourseRequest struct {
	CourseCode  *string         `json:"course_code" validate:"omitempty,min=1"`
	CourseName  *string         `json:"course_name" validate:"omitempty,min=1"`
	CourseHours json.RawMessage `json:"course_hours"`
}

// =============================================================================
// ENROLLMENTS (course-students)
// =============================================================================

type EnrollmentDTO struct {
	ID            int64  `json:"id"`
	StudentNumber string `json:"student_number"`
	Name          string `json:"name"`
	CourseName    string `json:"course_name"`
	CourseCode    string `json:"course_code"`
	CreatedAt     string `json:"created_at"`
}

type EnrollmentRequest struct {
	StudentNumber string `json:"student_number" validate:"required"`
	Name          string `json:"name"`
	CourseCode    string `json:"course_code" validate:"required"`
	CourseName    string `json:"course_name"`
}

type UpdateEnrollmentRequest struct {
	StudentNumber *string `json:"student_number" validate:"omitempty,min=1"`
	Name          *string `json:"name"`
	CourseCode    *string `json:"course_code" validate:"omitempty,min=1"`
	CourseName    *string `json:"course_name"`
}

// BulkEnrollmentRequest items are validated one by one; a bad item is
// reported in the summary instead of failing the batch.
type BulkEnrollmentRequest struct {
	Mappings []EnrollmentRequest `json:"mappings" validate:"required"`
}

// =============================================================================
// FACES (legacy gallery records)
// =============================================================================

type FaceDTO struct {
	ID          int64           `json:"id"`
	Label       string          `json:"label"`
	Descriptors json.RawMessage `json:"descriptors"`
	Class       string          `json:"class"`
	Name        string          `json:"name"`
	Course      string          `json:"course"`
	CreatedAt   string          `json:"created_at"`
}

type FaceRequest struct {
	Label       string          `json:"label" validate:"required"`
	Descriptors json.RawMessage `json:"descriptors" validate:"required"`
	Class       string          `json:"class"`
	Name        string          `json:"name"`
	Course      string          `json:"course"`
}

// GalleryEntryDTO is one labelled descriptor set for the client matcher.
// Source is "student" or "face".
type GalleryEntryDTO struct {
	Source        string          `json:"source"`
	Label         string          `json:"label"`
	StudentNumber string          `json:"student_number,omitempty"`
	FaceID        int64           `json:"face_id,omitempty"`
	Name          string          `json:"name"`
	Class         string          `json:"class"`
	Descriptors   json.RawMessage `json:"descriptors"`
}

// =============================================================================
// ATTENDANCE
// =============================================================================

// RecordAttendanceRequest needs session_id plus student_number or face_id.
// The recorder enforces that so the error text is the same for every caller.
type RecordAttendanceRequest struct {
	SessionID     string `json:"session_id"`
	StudentNumber string `json:"student_number"`
	FaceID        *int64 `json:"face_id" validate:"omitempty,gt=0"`
}

type RecordResponse struct {
	OK            bool   `json:"ok"`
	Inserted      bool   `json:"inserted,omitempty"`
	Duplicate     bool   `json:"duplicate,omitempty"`
	Legacy        bool   `json:"legacy,omitempty"`
	ID            *int64 `json:"id,omitempty"`
	StudentNumber string `json:"student_number,omitempty"`
	FaceID        *int64 `json:"face_id,omitempty"`
	CourseName    string `json:"course_name,omitempty"`
}

type AttendanceDTO struct {
	ID        int64  `json:"id"`
	FaceID    *int64 `json:"face_id"`
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
	Label     string `json:"label"`
	Class     string `json:"class"`
	Name      string `json:"name"`
	Course    string `json:"course"`
}

type FaceCountDTO struct {
	Label  string `json:"label"`
	Class  string `json:"class"`
	Name   string `json:"name"`
	Course string `json:"course"`
	Count  int    `json:"count"`
}

type AttendeeDTO struct {
	SessionID     string `json:"session_id"`
	StudentNumber string `json:"student_number"`
	CourseName    string `json:"course_name"`
	FirstSeen     string `json:"first_seen"`
	Name          string `json:"name"`
	ClassName     string `json:"class_name"`
	PhotoPath     string `json:"photo_path"`
}

type ClassCourseDTO struct {
	Class  string `json:"class"`
	Course string `json:"course"`
}

// =============================================================================
// SESSIONS
// =============================================================================

type SessionDTO struct {
	ID            string  `json:"id"`
	UID           string  `json:"uid"`
	ClassName     string  `json:"class_name"`
	CourseName    string  `json:"course_name"`
	StartTime     string  `json:"start_time"`
	EndTime       *string `json:"end_time"`
	Status        string  `json:"status"`
	DisplayName   string  `json:"display_name"`
	FullSessionID string  `json:"full_session_id"`
}

type OpenSessionRequest struct {
	ClassName  string `json:"class_name" validate:"required"`
	CourseName string `json:"course_name" validate:"required"`
	StartTime  string `json:"start_time"`
}

type OpenSessionResponse struct {
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}

type CloseSessionRequest struct {
	EndTime string `json:"end_time"`
}

type CloseSessionResponse struct {
	OK      bool   `json:"ok"`
	ID      string `json:"id"`
	EndTime string `json:"end_time"`
}

// =============================================================================
// BULK RESULTS
// =============================================================================

type ImportErrorDTO struct {
	Item  string `json:"item"`
	Error string `json:"error"`
}

type ImportSummaryDTO struct {
	Processed int              `json:"processed"`
	Inserted  int              `json:"inserted"`
	Updated   int              `json:"updated"`
	Skipped   int              `json:"skipped"`
	Errors    []ImportErrorDTO `json:"errors"`
}

// =============================================================================
// ADMIN
// =============================================================================

type ClearRequest struct {
	Password string `json:"password"`
}

type ClearResponse struct {
	OK     bool     `json:"ok"`
	Tables []string `json:"tables"`
	Vacuum string   `json:"vacuum"`
}

type HealthResponse struct {
	OK     bool    `json:"ok"`
	Time   string  `json:"time"`
	Uptime float64 `json:"uptime"`
}

type SeedResponse struct {
	Students    ImportSummaryDTO `json:"students"`
	Courses     ImportSummaryDTO `json:"courses"`
	Enrollments ImportSummaryDTO `json:"enrollments"`
}

type ChangesResponse struct {
	Changes int64 `json:"changes"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

// rawJSON turns a stored descriptor string into raw JSON; empty is null.
func rawJSON(s string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return json.RawMessage("null")
	}
	return json.RawMessage(s)
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func toStudentDTO(s entity.Student) StudentDTO {
	return StudentDTO{
		ID:              s.ID,
		StudentNumber:   s.StudentNumber,
		Name:            s.Name,
		Gender:          s.Gender,
		ClassName:       s.ClassName,
		FaceDescriptors: rawJSON(s.FaceDescriptors),
		PhotoPath:       s.PhotoPath,
		CreatedAt:       s.CreatedAt,
	}
}

func toCourseDTO(c entity.Course) CourseDTO {
	return CourseDTO{ID: c.ID, CourseCode: c.Code, CourseName: c.Name, CourseHours: c.Hours, CreatedAt: c.CreatedAt}
}

func toEnrollmentDTO(e entity.Enrollment) EnrollmentDTO {
	return EnrollmentDTO{
		ID:            e.ID,
		StudentNumber: e.StudentNumber,
		Name:          e.Name,
		CourseName:    e.CourseName,
		CourseCode:    e.CourseCode,
		CreatedAt:     e.CreatedAt,
	}
}

func toFaceDTO(f entity.Face) FaceDTO {
	return FaceDTO{
		ID:          f.ID,
		Label:       f.Label,
		Descriptors: rawJSON(f.Descriptors),
		Class:       f.Class,
		Name:        f.Name,
		Course:      f.Course,
		CreatedAt:   f.CreatedAt,
	}
}

func toSessionDTO(s entity.Session) SessionDTO {
	return SessionDTO{
		ID:            s.ID,
		UID:           s.UID,
		ClassName:     s.ClassName,
		CourseName:    s.CourseName,
		StartTime:     s.StartTime,
		EndTime:       optString(s.EndTime),
		Status:        string(s.Status),
		DisplayName:   s.DisplayName(),
		FullSessionID: s.FullName(),
	}
}

func toSummaryDTO(s *entity.ImportSummary) ImportSummaryDTO {
	out := ImportSummaryDTO{
		Processed: s.Processed,
		Inserted:  s.Inserted,
		Updated:   s.Updated,
		Skipped:   s.Skipped,
		Errors:    make([]ImportErrorDTO, len(s.Errors)),
	}
	for i, e := range s.Errors {
		out.Errors[i] = ImportErrorDTO{Item: e.Item, Error: e.Error}
	}
	return out
}

func toSeedResponse(s *importer.SeedSummary) SeedResponse {
	return SeedResponse{
		Students:    toSummaryDTO(&s.Students),
		Courses:     toSummaryDTO(&s.Courses),
		Enrollments: toSummaryDTO(&s.Enrollments),
	}
}

// mapSlice converts a slice, never returning nil so lists encode as [].
func mapSlice[T, U any](in []T, fn func(T) U) []U {
	out := make([]U, len(in))
	for i, v := range in {
		out[i] = fn(v)
	}
	return out
}
