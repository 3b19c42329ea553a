package api

import (
	"net/http"
)

// =============================================================================
// STATISTICS HANDLERS (/attendance/stats)
// =============================================================================
//
// Rates are percentages rounded to two decimals and encoded as JSON numbers.

func (h *Handler) StatsByCourse(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Stats.ByCourse(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to compute course statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": rows})
}

func (h *Handler) StatsByClass(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Stats.ByClass(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to compute class statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": rows})
}

func (h *Handler) StatsOverall(w http.ResponseWriter, r *http.Request) {
	overall, err := h.Stats.Overall(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to compute overall statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": overall})
}

func (h *Handler) StatsStudents(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Stats.Students(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to compute student statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": rows})
}

func (h *Handler) StatsCourseDetails(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Stats.CourseDetails(r.Context(), pathParam(r, "course"))
	if err != nil {
		h.fail(w, r, "Failed to compute course details", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"details": rows})
}

func (h *Handler) StatsClassDetails(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Stats.ClassDetails(r.Context(), pathParam(r, "class"))
	if err != nil {
		h.fail(w, r, "Failed to compute class details", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"details": rows})
}

// StatsStudentDetails takes ?name=&class=; both are required.
func (h *Handler) StatsStudentDetails(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	details, err := h.Stats.StudentDetails(r.Context(), q.Get("name"), q.Get("class"))
	if err != nil {
		h.fail(w, r, "Failed to compute student details", err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}
