package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewRegistersEveryCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.TelemetryDroppedPackets.Inc()
	r.TelemetryDecodesTotal.WithLabelValues("Slice-A").Inc()
	r.RadioBackendReconnects.Inc()
	r.RadioBackendConnected.Set(1)
	r.CATDialectDetections.WithLabelValues("A").Inc()
	r.CATCommandsTotal.WithLabelValues("0", "FA").Inc()
	r.QSOTransitionsTotal.WithLabelValues("Calling").Inc()
	r.QSOActive.Set(1)
	r.QSOCompletedTotal.Inc()
	r.QSOFailedTotal.WithLabelValues("timeout").Inc()
	r.SupervisorSpawnsTotal.Inc()
	r.SupervisorExitsTotal.WithLabelValues("true").Inc()
	r.SupervisorRunningGauge.Set(1)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("expected at least one registered metric family")
	}

	names := map[string]bool{}
	for _, fam := range families {
		names[fam.GetName()] = true
	}
	for _, want := range []string{
		"wsjtxmcpd_telemetry_dropped_packets_total",
		"wsjtxmcpd_telemetry_decodes_total",
		"wsjtxmcpd_radiobackend_reconnects_total",
		"wsjtxmcpd_radiobackend_connected",
		"wsjtxmcpd_cat_dialect_detections_total",
		"wsjtxmcpd_cat_commands_total",
		"wsjtxmcpd_qso_transitions_total",
		"wsjtxmcpd_qso_active",
		"wsjtxmcpd_qso_completed_total",
		"wsjtxmcpd_qso_failed_total",
		"wsjtxmcpd_supervisor_spawns_total",
		"wsjtxmcpd_supervisor_exits_total",
		"wsjtxmcpd_supervisor_running",
	} {
		if !names[want] {
			t.Fatalf("missing metric family %q", want)
		}
	}
}

func TestTelemetryDecodesTotalLabelsByInstance(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.TelemetryDecodesTotal.WithLabelValues("Slice-A").Inc()
	r.TelemetryDecodesTotal.WithLabelValues("Slice-A").Inc()
	r.TelemetryDecodesTotal.WithLabelValues("Slice-B").Inc()

	var metric dto.Metric
	if err := r.TelemetryDecodesTotal.WithLabelValues("Slice-A").Write(&metric); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := metric.GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected Slice-A count 2, got %v", got)
	}
}
