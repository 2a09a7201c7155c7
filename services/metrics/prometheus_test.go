package metricsvc

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheus_Counters(t *testing.T) {
	m := NewPrometheus()
	m.NotificationsDispatched("attendance", 3)
	m.NotificationsDispatched("attendance", 2)
	m.ConflictRejected()
	m.AttendanceJobRecords("sent", 4)

	assert.Equal(t, float64(5), testutil.ToFloat64(m.notifications.WithLabelValues("attendance")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.conflicts))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.jobRecords.WithLabelValues("sent")))
}

func TestPrometheus_Handler(t *testing.T) {
	m := NewPrometheus()
	m.ConflictRejected()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ratiba_schedule_conflicts_total 1")
}
