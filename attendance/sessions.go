package attendance

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/warp/attendance-engine/entity"
	"github.com/warp/attendance-engine/metrics"
)

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================
//
// State machine: active -> completed (one way, via Close).
//
// Identity: the id is "{class}-{course}({civil start})" and is frozen at
// creation. A surrogate uuid is kept alongside it. If the composite id is
// taken, a "#<unix millis>" suffix is appended and the insert retried once.

// ErrOverrideDisabled is returned by Override. Merging a new session into a
// near-duplicate one is not supported.
var ErrOverrideDisabled = errors.New("duplicate session override has been disabled")

// OpenRequest opens a session. An empty StartTime means now; a zone-less
// one is read as civil UTC+8.
type OpenRequest struct {
	ClassName  string
	CourseName string
	StartTime  string
}

type SessionManager struct {
	store entity.SessionStore
	deps
}

func NewSessionManager(store entity.SessionStore, opts ...Option) *SessionManager {
	return &SessionManager{store: store, deps: newDeps("sessions", opts)}
}

// Open creates an active session and returns it with its final id.
func (m *SessionManager) Open(ctx context.Context, req OpenRequest) (*entity.Session, error) {
	class := strings.TrimSpace(req.ClassName)
	course := strings.TrimSpace(req.CourseName)
	if class == "" {
		return nil, entity.Invalid("class_name", "required")
	}
	if course == "" {
		return nil, entity.Invalid("course_name", "required")
	}

	start, err := entity.NormalizeCivil(req.StartTime, m.now)
	if err != nil {
		return nil, err
	}

	sess := entity.Session{
		ID:         entity.SessionKey(class, course, start),
		UID:        uuid.NewString(),
		ClassName:  class,
		CourseName: course,
		StartTime:  start,
		Status:     entity.SessionActive,
	}

	err = m.store.CreateSession(ctx, sess)
	if entity.IsConflict(err) {
		m.metrics.SessionEvent(metrics.SessionCollision)
		m.logger.Info("session id taken, retrying with suffix", "id", sess.ID)

		sess.ID = sess.ID + "#" + strconv.FormatInt(m.now().UnixMilli(), 10)
		sess.UID = uuid.NewString()
		err = m.store.CreateSession(ctx, sess)
		if entity.IsConflict(err) {
			err = entity.NewStorageError("create session after id retry", err)
		}
	}
	if err != nil {
		return nil, err
	}

	m.metrics.SessionEvent(metrics.SessionOpened)
	m.logger.Info("session opened", "id", sess.ID, "uid", sess.UID)
	return &sess, nil
}

// Close completes a session and returns the recorded civil end time.
// Closing an already completed session overwrites its end time.
func (m *SessionManager) Close(ctx context.Context, id, endTime string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", entity.Invalid("id", "required")
	}
	end, err := entity.NormalizeCivil(endTime, m.now)
	if err != nil {
		return "", err
	}
	if err := m.store.CloseSession(ctx, id, end); err != nil {
		return "", err
	}

	m.metrics.SessionEvent(metrics.SessionClosed)
	m.logger.Info("session closed", "id", id, "end_time", end)
	return end, nil
}

// Override always fails with ErrOverrideDisabled.
func (m *SessionManager) Override(context.Context) error {
	return ErrOverrideDisabled
}
