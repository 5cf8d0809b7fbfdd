package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for availability and reservation flows.
type SchedulingMetrics struct {
	reservationOps  *prometheus.CounterVec
	availabilityOps *prometheus.CounterVec
	freeSlots       prometheus.Histogram
	opLatency       *prometheus.HistogramVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		reservationOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medpractice",
			Subsystem: "scheduling",
			Name:      "reservation_ops_total",
			Help:      "Reservation operations by operation and outcome",
		}, []string{"op", "outcome"}),
		availabilityOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medpractice",
			Subsystem: "scheduling",
			Name:      "availability_ops_total",
			Help:      "Availability operations by operation and outcome",
		}, []string{"op", "outcome"}),
		freeSlots: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "medpractice",
			Subsystem: "scheduling",
			Name:      "free_slots_returned",
			Help:      "Number of free slots returned per slot query",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medpractice",
			Subsystem: "scheduling",
			Name:      "op_latency_seconds",
			Help:      "Latency of scheduling operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reservationOps, m.availabilityOps, m.freeSlots, m.opLatency)
	return m
}

func (m *SchedulingMetrics) ObserveReservation(op, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.reservationOps.WithLabelValues(op, outcome).Inc()
	m.opLatency.WithLabelValues("reservation." + op).Observe(seconds)
}

func (m *SchedulingMetrics) ObserveAvailability(op, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.availabilityOps.WithLabelValues(op, outcome).Inc()
	m.opLatency.WithLabelValues("availability." + op).Observe(seconds)
}

func (m *SchedulingMetrics) ObserveFreeSlots(count int) {
	if m == nil {
		return
	}
	m.freeSlots.Observe(float64(count))
}
