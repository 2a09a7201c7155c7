package core

// Metrics records the domain counters exposed on the debug server.
type Metrics interface {
	NotificationsDispatched(kind string, n int)
	ConflictRejected()
	AttendanceJobRecords(outcome string, n int)
}

type nopMetrics struct{}

// NopMetrics discards everything.
var NopMetrics Metrics = nopMetrics{}

func (nopMetrics) NotificationsDispatched(string, int) {}
func (nopMetrics) ConflictRejected()                    {}
func (nopMetrics) AttendanceJobRecords(string, int)     {}
