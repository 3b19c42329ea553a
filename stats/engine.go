package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/warp/attendance-engine/logging"
	"github.com/warp/attendance-engine/metrics"
)

// View names, used as the metrics label and in logs.
const (
	ViewByCourse       = "by_course"
	ViewByClass        = "by_class"
	ViewOverall        = "overall"
	ViewStudents       = "students"
	ViewCourseDetails  = "course_details"
	ViewClassDetails   = "class_details"
	ViewStudentDetails = "student_details"
)

// Engine loads a fresh Dataset per call and runs one view over it.
type Engine struct {
	src     Source
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

func NewEngine(src Source, opts ...Option) *Engine {
	e := &Engine{src: src}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.Module(e.logger, "stats")
	return e
}

func (e *Engine) ByCourse(ctx context.Context) ([]GroupStat, error) {
	return run(ctx, e, ViewByCourse, (*Dataset).ByCourse)
}

func (e *Engine) ByClass(ctx context.Context) ([]GroupStat, error) {
	return run(ctx, e, ViewByClass, (*Dataset).ByClass)
}

func (e *Engine) Overall(ctx context.Context) (Overall, error) {
	return run(ctx, e, ViewOverall, (*Dataset).Overall)
}

func (e *Engine) Students(ctx context.Context) ([]StudentOverview, error) {
	return run(ctx, e, ViewStudents, (*Dataset).StudentsOverview)
}

func (e *Engine) CourseDetails(ctx context.Context, course string) ([]StudentRow, error) {
	return run(ctx, e, ViewCourseDetails, func(d *Dataset) []StudentRow {
		return d.CourseDetails(course)
	})
}

func (e *Engine) ClassDetails(ctx context.Context, class string) ([]StudentRow, error) {
	return run(ctx, e, ViewClassDetails, func(d *Dataset) []StudentRow {
		return d.ClassDetails(class)
	})
}

// StudentDetails fails with an invalid-input error before touching storage
// when name or class is blank.
func (e *Engine) StudentDetails(ctx context.Context, name, class string) (*StudentDetails, error) {
	name, class, err := studentKey(name, class)
	if err != nil {
		return nil, err
	}
	return run(ctx, e, ViewStudentDetails, func(d *Dataset) *StudentDetails {
		return d.studentDetails(name, class)
	})
}

func run[T any](ctx context.Context, e *Engine, view string, compute func(*Dataset) T) (T, error) {
	start := time.Now()

	var zero T
	ds, err := Load(ctx, e.src)
	if err != nil {
		e.logger.Error("load dataset failed", "view", view, "error", err)
		return zero, err
	}
	out := compute(ds)

	elapsed := time.Since(start)
	e.metrics.ObserveStats(view, elapsed)
	e.logger.Debug("stats computed", "view", view, "duration", elapsed,
		"students", len(ds.Students), "sessions", len(ds.Sessions), "attendees", len(ds.Attendees))
	return out, nil
}
