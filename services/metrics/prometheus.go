package metricsvc

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/ratiba/core"
)

const namespace = "ratiba"

// Prometheus exports the domain counters.
type Prometheus struct {
	registry      *prometheus.Registry
	notifications *prometheus.CounterVec
	conflicts     prometheus.Counter
	jobRecords    *prometheus.CounterVec
}

var _ core.Metrics = (*Prometheus)(nil)

func NewPrometheus() *Prometheus {
	m := &Prometheus{
		registry: prometheus.NewRegistry(),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dispatched_total",
			Help:      "Notifications stored, by kind.",
		}, []string{"kind"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_conflicts_total",
			Help:      "Schedule changes rejected because of a conflict.",
		}),
		jobRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attendance_job_records_total",
			Help:      "Attendance records handled by the daily job, by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.notifications,
		m.conflicts,
		m.jobRecords,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Prometheus) NotificationsDispatched(kind string, n int) {
	m.notifications.WithLabelValues(kind).Add(float64(n))
}

func (m *Prometheus) ConflictRejected() {
	m.conflicts.Inc()
}

func (m *Prometheus) AttendanceJobRecords(outcome string, n int) {
	m.jobRecords.WithLabelValues(outcome).Add(float64(n))
}

// Handler serves the registry in the exposition format.
func (m *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
