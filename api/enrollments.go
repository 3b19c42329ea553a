package api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/warp/attendance-engine/entity"
	"github.com/warp/attendance-engine/importer"
	"github.com/warp/attendance-engine/store/sqlite"
)

// =============================================================================
// ENROLLMENT HANDLERS (/course-students)
// =============================================================================

// ListEnrollments accepts optional student_number and course_code filters.
func (h *Handler) ListEnrollments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.Store.ListEnrollments(r.Context(), sqlite.EnrollmentFilter{
		StudentNumber: q.Get("student_number"),
		CourseCode:    q.Get("course_code"),
	})
	if err != nil {
		h.fail(w, r, "Failed to list enrollments", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mappings": mapSlice(list, toEnrollmentDTO)})
}

func (h *Handler) GetEnrollment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, r, "Invalid mapping id", err)
		return
	}
	e, err := h.Store.GetEnrollment(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to get mapping", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mapping": toEnrollmentDTO(*e)})
}

// CreateEnrollment upserts one link. Name and course name are resolved from
// the roster when omitted.
func (h *Handler) CreateEnrollment(w http.ResponseWriter, r *http.Request) {
	var req EnrollmentRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	e, _, err := h.Store.UpsertEnrollment(r.Context(), req.toEntity())
	if err != nil {
		h.fail(w, r, "Failed to save mapping", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mapping": toEnrollmentDTO(*e)})
}

func (h *Handler) UpdateEnrollment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, r, "Invalid mapping id", err)
		return
	}
	var req UpdateEnrollmentRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	e, err := h.Store.UpdateEnrollment(r.Context(), id, entity.EnrollmentPatch{
		StudentNumber: req.StudentNumber,
		Name:          req.Name,
		CourseCode:    req.CourseCode,
		CourseName:    req.CourseName,
	})
	if err != nil {
		h.fail(w, r, "Failed to update mapping", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mapping": toEnrollmentDTO(*e)})
}

func (h *Handler) DeleteEnrollment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, r, "Invalid mapping id", err)
		return
	}
	n, err := h.Store.DeleteEnrollment(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to delete mapping", err)
		return
	}
	writeJSON(w, http.StatusOK, ChangesResponse{Changes: n})
}

// BulkEnrollments upserts every item of {mappings: [...]}; failures are
// collected per item.
func (h *Handler) BulkEnrollments(w http.ResponseWriter, r *http.Request) {
	var req BulkEnrollmentRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}

	sum := &entity.ImportSummary{Errors: []entity.ImportError{}}
	for i, m := range req.Mappings {
		sum.Processed++
		item := fmt.Sprintf("mappings[%d]", i)
		if err := h.check(&m); err != nil {
			sum.Fail(item, err)
			continue
		}
		_, res, err := h.Store.UpsertEnrollment(r.Context(), m.toEntity())
		if err != nil {
			sum.Fail(item, err)
			continue
		}
		sum.Count(res)
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(sum))
}

// ImportEnrollmentsExcel links students to courses from an uploaded
// workbook. Both the student and the course must already exist.
func (h *Handler) ImportEnrollmentsExcel(w http.ResponseWriter, r *http.Request) {
	h.importSheet(w, r, "enrollments", func(ctx context.Context, f io.Reader) (*entity.ImportSummary, error) {
		return importer.ImportEnrollments(ctx, h.Store, f)
	})
}

func (req EnrollmentRequest) toEntity() entity.Enrollment {
	return entity.Enrollment{
		StudentNumber: req.StudentNumber,
		Name:          req.Name,
		CourseCode:    req.CourseCode,
		CourseName:    req.CourseName,
	}
}
