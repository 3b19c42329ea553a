package api

import (
	"net/http"

	"github.com/warp/attendance-engine/entity"
)

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.Store.ListStudents(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list students", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": mapSlice(students, toStudentDTO)})
}

func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, r, "Invalid student id", err)
		return
	}
	st, err := h.Store.GetStudent(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to get student", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"student": toStudentDTO(*st)})
}

func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}

	st := entity.Student{
		StudentNumber: req.StudentNumber,
		Name:          req.Name,
		Gender:        req.Gender,
		ClassName:     req.ClassName,
		PhotoPath:     req.PhotoPath,
	}
	if len(req.FaceDescriptors) > 0 && string(req.FaceDescriptors) != "null" {
		st.FaceDescriptors = string(req.FaceDescriptors)
	}

	created, err := h.Store.CreateStudent(r.Context(), st)
	if err != nil {
		h.fail(w, r, "Failed to create student", err)
		return
	}
	h.gallery.Invalidate()
	writeJSON(w, http.StatusOK, map[string]any{"student": toStudentDTO(*created)})
}

func (h *Handler) UpdateStudent(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, r, "Invalid student id", err)
		return
	}
	var req UpdateStudentRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}

	p := entity.StudentPatch{
		StudentNumber: req.StudentNumber,
		Name:          req.Name,
		Gender:        req.Gender,
		ClassName:     req.ClassName,
		PhotoPath:     req.PhotoPath,
	}
	if req.FaceDescriptors != nil {
		fd := ""
		if string(req.FaceDescriptors) != "null" {
			fd = string(req.FaceDescriptors)
		}
		p.FaceDescriptors = &fd
	}

	st, err := h.Store.UpdateStudent(r.Context(), id, p)
	if err != nil {
		h.fail(w, r, "Failed to update student", err)
		return
	}
	h.gallery.Invalidate()
	writeJSON(w, http.StatusOK, map[string]any{"student": toStudentDTO(*st)})
}

func (h *Handler) DeleteStudent(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, r, "Invalid student id", err)
		return
	}
	n, err := h.Store.DeleteStudent(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to delete student", err)
		return
	}
	h.gallery.Invalidate()
	writeJSON(w, http.StatusOK, ChangesResponse{Changes: n})
}

// SetFaceDescriptors replaces a student's descriptor array.
func (h *Handler) SetFaceDescriptors(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, r, "Invalid student id", err)
		return
	}
	var req FaceDescriptorsRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	if !isJSONArray(req.FaceDescriptors) {
		h.fail(w, r, "Invalid request body", entity.Invalid("face_descriptors", "must be an array"))
		return
	}

	st, err := h.Store.SetFaceDescriptors(r.Context(), id, string(req.FaceDescriptors))
	if err != nil {
		h.fail(w, r, "Failed to update face descriptors", err)
		return
	}
	h.gallery.Invalidate()
	writeJSON(w, http.StatusOK, map[string]any{"student": toStudentDTO(*st)})
}
