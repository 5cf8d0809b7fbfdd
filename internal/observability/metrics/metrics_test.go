package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestSchedulingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)
	m.ObserveReservation("confirm", "ok", 0.01)
	m.ObserveReservation("confirm", "ok", 0.02)
	m.ObserveReservation("confirm", "conflict", 0.01)
	m.ObserveAvailability("create", "ok", 0.01)
	m.ObserveFreeSlots(6)

	var metric dto.Metric
	if err := m.reservationOps.WithLabelValues("confirm", "ok").Write(&metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if got := metric.GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected 2 confirmed ok, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"medpractice_scheduling_reservation_ops_total",
		"medpractice_scheduling_availability_ops_total",
		"medpractice_scheduling_free_slots_returned",
		"medpractice_scheduling_op_latency_seconds",
	} {
		if !names[want] {
			t.Fatalf("expected %s to be registered", want)
		}
	}
}

func TestSchedulingMetricsNilSafe(t *testing.T) {
	var m *SchedulingMetrics
	m.ObserveReservation("create", "ok", 0.1)
	m.ObserveAvailability("delete", "not_found", 0.1)
	m.ObserveFreeSlots(0)
}
