package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/warp/attendance-engine/importer"
	"github.com/warp/attendance-engine/metrics"
)

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	now := h.cfg.Clock()
	if err := h.Store.Ping(r.Context()); err != nil {
		h.fail(w, r, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		OK:     true,
		Time:   now.UTC().Format(time.RFC3339Nano),
		Uptime: now.Sub(h.started).Seconds(),
	})
}

// ClearDatabase empties every table after checking the admin password.
// The wipe is all-or-nothing; a failed VACUUM afterwards is only reported.
func (h *Handler) ClearDatabase(w http.ResponseWriter, r *http.Request) {
	var req ClearRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.cfg.AdminPassword)) != 1 {
		h.Metrics.WipeResult(metrics.WipeRejected)
		h.logger.Warn("database clear rejected", "remote", r.RemoteAddr)
		writeError(w, http.StatusForbidden, "Invalid password", nil)
		return
	}

	res, err := h.Store.Wipe(r.Context())
	if err != nil {
		h.Metrics.WipeResult(metrics.WipeFailed)
		h.fail(w, r, "Failed to clear database", err)
		return
	}
	h.Metrics.WipeResult(metrics.WipeOK)
	h.gallery.Invalidate()

	vacuum := "ok"
	if res.VacuumErr != nil {
		vacuum = "failed: " + res.VacuumErr.Error()
	}
	h.logger.Warn("database cleared", "tables", res.Tables, "vacuum", vacuum, "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, ClearResponse{OK: true, Tables: res.Tables, Vacuum: vacuum})
}

// SeedDemo loads the embedded demo roster through the import upsert paths.
func (h *Handler) SeedDemo(w http.ResponseWriter, r *http.Request) {
	roster, err := importer.DemoRoster()
	if err != nil {
		h.fail(w, r, "Failed to load demo roster", err)
		return
	}
	sum := importer.Seed(r.Context(), h.Store, roster)
	h.gallery.Invalidate()
	h.logger.Info("demo roster seeded", "students", sum.Students.Processed,
		"courses", sum.Courses.Processed, "enrollments", sum.Enrollments.Processed)
	writeJSON(w, http.StatusOK, toSeedResponse(sum))
}
