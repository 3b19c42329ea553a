package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.RecordOutcome(OutcomeInserted)
	m.RecordOutcome(OutcomeInserted)
	m.RecordOutcome(OutcomeDuplicate)
	m.SessionEvent(SessionOpened)
	m.WipeResult(WipeOK)
	m.ObserveStats("by-course", 3*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.records.WithLabelValues(OutcomeInserted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.records.WithLabelValues(OutcomeDuplicate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions.WithLabelValues(SessionOpened)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.wipes.WithLabelValues("ok")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordOutcome(OutcomeError)
		m.SessionEvent(SessionClosed)
		m.ObserveStats("overall", time.Second)
		m.WipeResult(WipeFailed)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	m.RecordOutcome(OutcomeLegacy)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `attendance_records_total{outcome="legacy"} 1`))
}
