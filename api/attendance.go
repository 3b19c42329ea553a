package api

import (
	"net/http"
	"strconv"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/entity"
	"github.com/warp/attendance-engine/store/sqlite"
)

// =============================================================================
// RECORDING
// =============================================================================

// RecordAttendance applies one recognition event.
//
//	first sighting:    {ok, inserted, id?, student_number, face_id?}
//	repeat:            {ok, duplicate, student_number, course_name}
//	unresolved face:   {ok, legacy, id} or {ok, legacy, duplicate}
func (h *Handler) RecordAttendance(w http.ResponseWriter, r *http.Request) {
	var req RecordAttendanceRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}

	out, err := h.Recorder.Record(r.Context(), attendance.RecordRequest{
		SessionID:     req.SessionID,
		StudentNumber: req.StudentNumber,
		FaceID:        req.FaceID,
	})
	if err != nil {
		h.fail(w, r, "Failed to record attendance", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordResponse(out))
}

func toRecordResponse(out *attendance.Outcome) RecordResponse {
	resp := RecordResponse{OK: true, ID: out.AttendanceID}
	switch {
	case out.Legacy:
		resp.Legacy = true
		resp.Duplicate = out.Duplicate
	case out.Duplicate:
		resp.Duplicate = true
		resp.StudentNumber = out.StudentNumber
		resp.CourseName = out.CourseName
	default:
		resp.Inserted = true
		resp.StudentNumber = out.StudentNumber
		resp.FaceID = out.FaceID
	}
	return resp
}

// =============================================================================
// LEGACY READS
// =============================================================================

// ListAttendance accepts optional session_id and face_id filters.
func (h *Handler) ListAttendance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := sqlite.AttendanceFilter{SessionID: q.Get("session_id")}
	if raw := q.Get("face_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.fail(w, r, "Invalid face id", entity.Invalid("face_id", "must be an integer"))
			return
		}
		f.FaceID = &id
	}

	rows, err := h.Store.ListAttendance(r.Context(), f)
	if err != nil {
		h.fail(w, r, "Failed to list attendance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attendance": mapSlice(rows, func(a entity.AttendanceRecord) AttendanceDTO {
		return AttendanceDTO{
			ID:        a.ID,
			FaceID:    a.FaceID,
			SessionID: a.SessionID,
			Timestamp: a.Timestamp,
			Label:     a.Label,
			Class:     a.Class,
			Name:      a.Name,
			Course:    a.Course,
		}
	})})
}

// SessionSummary counts legacy rows per face for one session.
func (h *Handler) SessionSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Store.SessionSummary(r.Context(), pathParam(r, "sessionID"))
	if err != nil {
		h.fail(w, r, "Failed to summarise session", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": mapSlice(rows, func(c entity.FaceCount) FaceCountDTO {
		return FaceCountDTO{Label: c.Label, Class: c.Class, Name: c.Name, Course: c.Course, Count: c.Count}
	})})
}

// SessionAttendees lists the de-duplicated attendees of one session.
func (h *Handler) SessionAttendees(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Store.SessionAttendees(r.Context(), pathParam(r, "sessionID"))
	if err != nil {
		h.fail(w, r, "Failed to list attendees", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attendees": mapSlice(rows, func(v entity.AttendeeView) AttendeeDTO {
		return AttendeeDTO{
			SessionID:     v.SessionID,
			StudentNumber: v.StudentNumber,
			CourseName:    v.CourseName,
			FirstSeen:     v.FirstSeen,
			Name:          v.Name,
			ClassName:     v.ClassName,
			PhotoPath:     v.PhotoPath,
		}
	})})
}

func (h *Handler) CountAttendance(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "faceID")
	if err != nil {
		h.fail(w, r, "Invalid face id", err)
		return
	}
	n, err := h.Store.CountAttendance(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to count attendance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": n})
}

func (h *Handler) DeleteAttendance(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, r, "Invalid attendance id", err)
		return
	}
	n, err := h.Store.DeleteAttendance(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to delete attendance", err)
		return
	}
	writeJSON(w, http.StatusOK, ChangesResponse{Changes: n})
}

// ClassCourses lists distinct (class, course) pairs from the face gallery.
func (h *Handler) ClassCourses(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Store.ClassCourses(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list class courses", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"combinations": mapSlice(rows, func(cc entity.ClassCourse) ClassCourseDTO {
		return ClassCourseDTO{Class: cc.ClassName, Course: cc.CourseName}
	})})
}
