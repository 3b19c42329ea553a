package api

import (
	"net/http"

	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// SESSION HANDLERS
// =============================================================================
//
// Mounted twice: /api/attendance/sessions and /api/sessions.

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.Store.ListSessions(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": mapSlice(sessions, toSessionDTO)})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Store.GetSession(r.Context(), pathParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Failed to get session", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": toSessionDTO(*sess)})
}

// OpenSession answers {id, duplicate:false}; a colliding id is retried with
// a suffix by the session manager, never reported as a duplicate.
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	sess, err := h.Sessions.Open(r.Context(), req.toOpenRequest())
	if err != nil {
		h.fail(w, r, "Failed to create session", err)
		return
	}
	writeJSON(w, http.StatusOK, OpenSessionResponse{ID: sess.ID, Duplicate: false})
}

// CloseSession completes a session. An empty end_time means now.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var req CloseSessionRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	end, err := h.Sessions.Close(r.Context(), id, req.EndTime)
	if err != nil {
		h.fail(w, r, "Failed to end session", err)
		return
	}
	writeJSON(w, http.StatusOK, CloseSessionResponse{OK: true, ID: id, EndTime: end})
}

// DeleteSession removes a session with all its attendance facts.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if err := h.Store.DeleteSession(r.Context(), id); err != nil {
		h.fail(w, r, "Failed to delete session", err)
		return
	}
	h.logger.Info("session deleted", "id", id)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

// OverrideSession is kept for old clients; it always answers 410.
func (h *Handler) OverrideSession(w http.ResponseWriter, r *http.Request) {
	h.fail(w, r, "Session override disabled", h.Sessions.Override(r.Context()))
}

func (req OpenSessionRequest) toOpenRequest() attendance.OpenRequest {
	return attendance.OpenRequest{
		ClassName:  req.ClassName,
		CourseName: req.CourseName,
		StartTime:  req.StartTime,
	}
}
