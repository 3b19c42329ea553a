package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/warp/attendance-engine/entity"
	"github.com/warp/attendance-engine/importer"
)

// =============================================================================
// COURSE HANDLERS
// =============================================================================

func (h *Handler) ListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.Store.ListCourses(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list courses", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": mapSlice(courses, toCourseDTO)})
}

func (h *Handler) GetCourse(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, r, "Invalid course id", err)
		return
	}
	c, err := h.Store.GetCourse(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to get course", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"course": toCourseDTO(*c)})
}

func (h *Handler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var req CreateCourseRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	c, err := h.Store.CreateCourse(r.Context(), entity.Course{
		Code:  req.CourseCode,
		Name:  req.CourseName,
		Hours: req.CourseHours,
	})
	if err != nil {
		h.fail(w, r, "Failed to create course", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"course": toCourseDTO(*c)})
}

func (h *Handler) UpdateCourse(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, r, "Invalid course id", err)
		return
	}
	var req UpdateCourseRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}

	p := entity.CoursePatch{Code: req.CourseCode, Name: req.CourseName}
	if req.CourseHours != nil {
		p.SetHours = true
		if string(req.CourseHours) != "null" {
			var hours int
			if err := json.Unmarshal(req.CourseHours, &hours); err != nil || hours < 0 {
				h.fail(w, r, "Invalid request body", entity.Invalid("course_hours", "must be a non-negative integer or null"))
				return
			}
			p.Hours = &hours
		}
	}

	c, err := h.Store.UpdateCourse(r.Context(), id, p)
	if err != nil {
		h.fail(w, r, "Failed to update course", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"course": toCourseDTO(*c)})
}

func (h *Handler) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, r, "Invalid course id", err)
		return
	}
	n, err := h.Store.DeleteCourse(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to delete course", err)
		return
	}
	writeJSON(w, http.StatusOK, ChangesResponse{Changes: n})
}

// ImportCoursesExcel upserts courses from the first sheet of an uploaded
// workbook ("file" field).
func (h *Handler) ImportCoursesExcel(w http.ResponseWriter, r *http.Request) {
	h.importSheet(w, r, "courses", func(ctx context.Context, f io.Reader) (*entity.ImportSummary, error) {
		return importer.ImportCourses(ctx, h.Store, f)
	})
}

// importSheet opens the uploaded "file" and runs one spreadsheet import.
func (h *Handler) importSheet(w http.ResponseWriter, r *http.Request, kind string,
	run func(context.Context, io.Reader) (*entity.ImportSummary, error)) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.fail(w, r, "Invalid upload", entity.Invalid("body", err.Error()))
		return
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, "Invalid upload", entity.Invalid("file", "no file uploaded"))
		return
	}
	defer f.Close()

	sum, err := run(r.Context(), f)
	if err != nil {
		h.fail(w, r, "Failed to import "+kind, err)
		return
	}
	h.logger.Info("spreadsheet import finished", "kind", kind, "processed", sum.Processed,
		"inserted", sum.Inserted, "updated", sum.Updated, "skipped", sum.Skipped, "errors", len(sum.Errors))
	writeJSON(w, http.StatusOK, toSummaryDTO(sum))
}
