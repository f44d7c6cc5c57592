package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RecordSweep(t *testing.T) {
	m := NewMetrics("desk")
	m.RecordSweep("breach", "completed", 120*time.Millisecond)
	m.RecordSweep("breach", "skipped", 0)
	m.RecordSweepTickets("breach", "breached", 3)
	m.RecordSweepTickets("breach", "errored", 0)

	if got := testutil.ToFloat64(m.sweepRuns.WithLabelValues("breach", "completed")); got != 1 {
		t.Fatalf("expected 1 completed run, got %v", got)
	}
	if got := testutil.ToFloat64(m.sweepRuns.WithLabelValues("breach", "skipped")); got != 1 {
		t.Fatalf("expected 1 skipped run, got %v", got)
	}
	if got := testutil.ToFloat64(m.sweepTickets.WithLabelValues("breach", "breached")); got != 3 {
		t.Fatalf("expected 3 breached tickets, got %v", got)
	}
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/tickets/:id", "PATCH", 200, time.Millisecond)
	m.RecordSweep("warning", "completed", time.Second)
	m.RecordNotification("SLA_BREACH")
	m.RecordBroadcastDrop()
	m.SubscriberConnected(1)
	if m.Handler() == nil {
		t.Fatalf("expected a fallback handler")
	}
}

func TestMetrics_RegistryGathers(t *testing.T) {
	m := NewMetrics("desk")
	m.RecordNotification("SLA_WARNING")
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var found bool
	for _, f := range families {
		if f.GetName() == "desk_notifications_created_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("notification counter not registered")
	}
}
