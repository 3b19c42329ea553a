/*
handlers.go - HTTP API handlers for the attendance engine

PURPOSE:
  Exposes the recorder, session manager, statistics engine, roster store
  and admin maintenance via a JSON REST API. Handles HTTP request/response,
  JSON serialization and validation, and delegates to the domain packages.

ENDPOINTS (all under /api):
  Roster:
    /students, /courses, /course-students, /faces    CRUD + imports
    GET  /faces/gallery                               descriptor gallery

  Attendance:
    POST /attendance                                  record a recognition
    GET  /attendance, /attendance/summary/{sid} ...   legacy reads
    /attendance/sessions, /sessions                   session lifecycle
    GET  /attendance/stats/*                          statistics views

  Admin:
    GET  /admin/health
    POST /admin/clear                                 password-protected wipe
    POST /admin/seed                                  demo roster

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: SQLite entity store
  - Recorder / Sessions: attendance domain
  - Stats: statistics engine
  - gallery: go-cache holding the descriptor gallery

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (go-playground/validator)
  3. Call domain logic
  4. Serialize response
  5. Map errors to status codes

ERROR HANDLING:
  Errors are returned as JSON {error, details} with status:
  - 400: InvalidInput
  - 403: Rejected admin password
  - 404: NotFound
  - 409: Conflict (duplicate business key)
  - 410: Disabled session override
  - 500: Storage and everything else

SECURITY NOTE:
  Only /admin/clear is protected, by a shared password. Everything else is
  public, as the app runs on a classroom LAN.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/entity"
	"github.com/warp/attendance-engine/logging"
	"github.com/warp/attendance-engine/metrics"
	"github.com/warp/attendance-engine/stats"
	"github.com/warp/attendance-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Config carries the server settings handlers need.
type Config struct {
	// UploadsDir is the directory served at /uploads. Photos go to
	// UploadsDir/students.
	UploadsDir    string
	StaticDir     string
	CORSOrigins   []string
	AdminPassword string
	// GalleryTTL bounds how long the descriptor gallery is cached. Zero
	// caches until the next roster write.
	GalleryTTL time.Duration
	// Clock defaults to the system clock.
	Clock entity.Clock
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Recorder *attendance.Recorder
	Sessions *attendance.SessionManager
	Stats    *stats.Engine
	Metrics  *metrics.Metrics

	cfg      Config
	gallery  *galleryCache
	validate *validator.Validate
	logger   *slog.Logger
	base     *slog.Logger // unscoped, for the request logger
	started  time.Time
}

// NewHandler wires the domain services around store. m and logger may be nil.
func NewHandler(store *sqlite.Store, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if cfg.Clock == nil {
		cfg.Clock = entity.SystemClock
	}
	if cfg.UploadsDir == "" {
		cfg.UploadsDir = "uploads"
	}

	opts := []attendance.Option{
		attendance.WithClock(cfg.Clock),
		attendance.WithMetrics(m),
		attendance.WithLogger(logger),
	}
	return &Handler{
		Store:    store,
		Recorder: attendance.NewRecorder(store, opts...),
		Sessions: attendance.NewSessionManager(store, opts...),
		Stats:    stats.NewEngine(store, stats.WithMetrics(m), stats.WithLogger(logger)),
		Metrics:  m,
		cfg:      cfg,
		gallery:  newGalleryCache(cfg.GalleryTTL),
		validate: newValidator(),
		logger:   logging.Module(logger, "api"),
		base:     logger,
		started:  cfg.Clock(),
	}
}

// newValidator reports json field names instead of Go field names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// REQUEST HELPERS
// =============================================================================

// decode reads a JSON body into dst and validates it. An empty body decodes
// as an empty object.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return entity.Invalid("body", "invalid JSON: "+err.Error())
	}
	return h.check(dst)
}

// check runs struct validation and converts the first failure.
func (h *Handler) check(v any) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		msg := fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		return entity.Invalid(fe.Field(), msg)
	}
	return entity.Invalid("", err.Error())
}

func idParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, entity.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

// pathParam returns a decoded string URL parameter. chi matches on the raw
// path when the client escaped more than needed, e.g. "(" as %28.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// isJSONArray reports whether raw is a JSON array.
func isJSONArray(raw json.RawMessage) bool {
	var arr []json.RawMessage
	return len(raw) > 0 && json.Unmarshal(raw, &arr) == nil && arr != nil
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps the entity error taxonomy to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrStorage):
		return http.StatusInternalServerError
	case errors.Is(err, entity.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrOverrideDisabled):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Client errors use the error text
// as the message; server errors get message and log the cause.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), message, "error", err, "path", r.URL.Path)
		writeError(w, status, message, err)
		return
	}
	writeError(w, status, err.Error(), nil)
}
