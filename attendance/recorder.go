/*
Package attendance turns recognition events into durable attendance facts
and manages the session lifecycle.

PURPOSE:
  The face-recognition engine runs client-side and asserts "this detection
  is student X (or legacy face F) in session S". The Recorder decides
  whether that assertion becomes a new fact, applying per-session,
  per-course de-duplication.

INVARIANT:
  At most one session_attendees row per (session, student, course).
  Each first-seen attendee writes at most one legacy attendance row. The
  legacy row is best-effort: no resolvable face means no row, not an error.

  De-duplication is constraint-level (insert-or-ignore), never a read
  followed by a write, so two near-simultaneous detections of the same
  student cannot both insert.

RESOLUTION ORDER:
  1. session_id -> session (course context always comes from the session)
  2. student_number, if given, must exist
  3. face_id only: resolve via (face.name, face.class) = (student.name,
     student.class_name). A resolved face always takes the student path.
  4. unresolved face: legacy-only path, de-duplicated on (face_id, session_id)

TIMESTAMPS:
  Civil UTC+8, "YYYY-MM-DD HH:MM:SS", from the injected clock.

CLOSED SESSIONS:
  Recording against a completed session is accepted (backfill).

SEE ALSO:
  - sessions.go: Session open/close
  - entity/store.go: RecorderStore / FactStore contracts
*/
package attendance

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/warp/attendance-engine/entity"
	"github.com/warp/attendance-engine/logging"
	"github.com/warp/attendance-engine/metrics"
)

// =============================================================================
// SHARED DEPENDENCIES
// =============================================================================

type deps struct {
	now     entity.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Recorder or SessionManager.
type Option func(*deps)

func WithClock(c entity.Clock) Option { return func(d *deps) { d.now = c } }

func WithMetrics(m *metrics.Metrics) Option { return func(d *deps) { d.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(d *deps) { d.logger = l } }

func newDeps(module string, opts []Option) deps {
	d := deps{now: entity.SystemClock}
	for _, opt := range opts {
		opt(&d)
	}
	d.logger = logging.Module(d.logger, module)
	return d
}

func (d deps) stamp() string {
	return entity.FormatCivil(d.now())
}

// =============================================================================
// RECORDER
// =============================================================================

// RecordRequest is one recognition event. SessionID plus at least one of
// StudentNumber / FaceID is required.
type RecordRequest struct {
	SessionID     string
	StudentNumber string
	FaceID        *int64
}

// Outcome describes what Record did.
//
//	Inserted:          first sighting, attendee row written
//	Duplicate:         already recorded, nothing written
//	Legacy:            unresolved face, legacy table only
//	Legacy+Duplicate:  unresolved face already recorded for this session
type Outcome struct {
	Inserted  bool
	Duplicate bool
	Legacy    bool

	StudentNumber string
	CourseName    string
	FaceID        *int64

	// AttendanceID is the legacy row written, if any.
	AttendanceID *int64
}

// Label is the metrics outcome label.
func (o *Outcome) Label() string {
	switch {
	case o.Legacy && o.Duplicate:
		return metrics.OutcomeLegacyDuplicate
	case o.Legacy:
		return metrics.OutcomeLegacy
	case o.Duplicate:
		return metrics.OutcomeDuplicate
	default:
		return metrics.OutcomeInserted
	}
}

// Recorder reconciles recognition events into attendance facts.
type Recorder struct {
	store entity.RecorderStore
	deps
}

func NewRecorder(store entity.RecorderStore, opts ...Option) *Recorder {
	return &Recorder{store: store, deps: newDeps("recorder", opts)}
}

// Record applies one recognition event. Errors: ErrMissingIdentity,
// ErrSessionNotFound, ErrStudentNotFound, ErrFaceNotFound (an unknown face
// id that is the only identity), or a storage error. A stale face id sent
// with a student number only loses its legacy row.
func (r *Recorder) Record(ctx context.Context, req RecordRequest) (*Outcome, error) {
	out, err := r.record(ctx, req)
	if err != nil {
		r.metrics.RecordOutcome(metrics.OutcomeError)
		return nil, err
	}
	r.metrics.RecordOutcome(out.Label())
	return out, nil
}

func (r *Recorder) record(ctx context.Context, req RecordRequest) (*Outcome, error) {
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.StudentNumber = strings.TrimSpace(req.StudentNumber)
	if req.SessionID == "" || (req.StudentNumber == "" && req.FaceID == nil) {
		return nil, entity.ErrMissingIdentity
	}

	sess, err := r.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	sn := req.StudentNumber
	if sn == "" {
		resolved, ok, err := r.store.StudentForFace(ctx, *req.FaceID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return r.recordLegacy(ctx, sess, *req.FaceID)
		}
		sn = resolved
	}

	return r.recordStudent(ctx, sess, sn, req.FaceID)
}

// recordStudent writes the attendee row and, on first sighting, one legacy
// row, in a single transaction.
func (r *Recorder) recordStudent(ctx context.Context, sess *entity.Session, sn string, faceID *int64) (*Outcome, error) {
	ts := r.stamp()
	out := &Outcome{StudentNumber: sn, CourseName: sess.CourseName}
	var staleFace *int64

	err := r.store.WithTx(ctx, func(fs entity.FactStore) error {
		exists, err := fs.StudentExists(ctx, sn)
		if err != nil {
			return err
		}
		if !exists {
			return entity.ErrStudentNotFound
		}

		inserted, err := fs.InsertAttendee(ctx, entity.Attendee{
			SessionID:     sess.ID,
			StudentNumber: sn,
			CourseName:    sess.CourseName,
			FirstSeen:     ts,
		})
		if err != nil {
			return err
		}
		if !inserted {
			out.Duplicate = true
			return nil
		}
		out.Inserted = true

		// The legacy row is best-effort. A supplied face id with no faces
		// row fails only its own statement; the attendee row stays and the
		// student's own face is tried instead.
		if faceID != nil {
			attID, err := fs.InsertAttendance(ctx, *faceID, sess.ID, ts)
			switch {
			case err == nil:
				out.FaceID = faceID
				out.AttendanceID = &attID
				return nil
			case errors.Is(err, entity.ErrFaceNotFound):
				staleFace = faceID
			default:
				return err
			}
		}

		id, ok, err := fs.FaceForStudent(ctx, sn)
		if err != nil || !ok {
			return err
		}
		attID, err := fs.InsertAttendance(ctx, id, sess.ID, ts)
		if err != nil {
			return err
		}
		out.FaceID = &id
		out.AttendanceID = &attID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if staleFace != nil {
		r.logger.Warn("supplied face id has no face record",
			"session_id", sess.ID, "student_number", sn, "face_id", *staleFace)
	}
	if out.Duplicate {
		r.logger.Debug("duplicate sighting", "session_id", sess.ID, "student_number", sn, "course", sess.CourseName)
	} else {
		r.logger.Info("attendance recorded", "session_id", sess.ID, "student_number", sn,
			"course", sess.CourseName, "legacy_row", out.AttendanceID != nil)
	}
	return out, nil
}

// recordLegacy handles a face id that maps to no roster student.
func (r *Recorder) recordLegacy(ctx context.Context, sess *entity.Session, faceID int64) (*Outcome, error) {
	id, inserted, err := r.store.InsertLegacyOnce(ctx, faceID, sess.ID, r.stamp())
	if err != nil {
		return nil, err
	}

	out := &Outcome{Legacy: true, FaceID: &faceID, CourseName: sess.CourseName}
	if !inserted {
		out.Duplicate = true
		return out, nil
	}
	out.AttendanceID = &id
	r.logger.Warn("unresolved face recorded on legacy path", "session_id", sess.ID, "face_id", faceID)
	return out, nil
}
