package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes counters for booking and access decisions. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	bookings       *prometheus.CounterVec
	authorizations *prometheus.CounterVec
	grants         *prometheus.CounterVec
	reconciled     *prometheus.CounterVec
	slotQueries    prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "confirmations_total",
			Help:      "Booking confirmations by outcome",
		}, []string{"outcome"}),
		authorizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "access",
			Name:      "decisions_total",
			Help:      "Record access decisions by authorization path",
		}, []string{"path", "allowed"}),
		grants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "emergency",
			Name:      "grant_operations_total",
			Help:      "Emergency access grant and revoke operations",
		}, []string{"op", "result"}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "emergency",
			Name:      "index_repairs_total",
			Help:      "Access index rows removed or restored by reconciliation",
		}, []string{"action"}),
		slotQueries: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "slot_query_seconds",
			Help:      "Latency of deriving a doctor's slots for a date",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookings, m.authorizations, m.grants, m.reconciled, m.slotQueries)
	return m
}

func (m *Metrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAuthorization(path string, allowed bool) {
	if m == nil {
		return
	}
	label := "false"
	if allowed {
		label = "true"
	}
	m.authorizations.WithLabelValues(path, label).Inc()
}

func (m *Metrics) ObserveGrant(op, result string) {
	if m == nil {
		return
	}
	m.grants.WithLabelValues(op, result).Inc()
}

func (m *Metrics) ObserveReconcile(action string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reconciled.WithLabelValues(action).Add(float64(n))
}

func (m *Metrics) ObserveSlotQuery(seconds float64) {
	if m == nil {
		return
	}
	m.slotQueries.Observe(seconds)
}
