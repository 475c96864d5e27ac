// Package metrics registers the prometheus counters/gauges spec.md's
// surrounding collaborators expect, grounded on the teacher's
// prometheus.go promauto-registration style (one exported struct of
// collectors, built once and wired into every component's hot path).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector this control plane exports. Zero value
// is not usable; use New.
type Registry struct {
	TelemetryDroppedPackets prometheus.Counter
	TelemetryDecodesTotal   *prometheus.CounterVec

	RadioBackendReconnects prometheus.Counter
	RadioBackendConnected  prometheus.Gauge

	CATDialectDetections *prometheus.CounterVec
	CATCommandsTotal     *prometheus.CounterVec

	QSOTransitionsTotal *prometheus.CounterVec
	QSOActive           prometheus.Gauge
	QSOCompletedTotal   prometheus.Counter
	QSOFailedTotal      *prometheus.CounterVec

	SupervisorSpawnsTotal   prometheus.Counter
	SupervisorExitsTotal    *prometheus.CounterVec
	SupervisorRunningGauge  prometheus.Gauge
}

// New creates a Registry and registers every collector into reg. Pass
// prometheus.NewRegistry() for test isolation, or
// prometheus.DefaultRegisterer-backed registry for the real process.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		TelemetryDroppedPackets: factory.NewCounter(prometheus.CounterOpts{
			Name: "wsjtxmcpd_telemetry_dropped_packets_total",
			Help: "Telemetry datagrams dropped for bad magic, short read, or decode error.",
		}),
		TelemetryDecodesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wsjtxmcpd_telemetry_decodes_total",
			Help: "Decodes received from the decoder app, by instance id.",
		}, []string{"instance_id"}),

		RadioBackendReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "wsjtxmcpd_radiobackend_reconnects_total",
			Help: "Radio backend reconnect attempts.",
		}),
		RadioBackendConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wsjtxmcpd_radiobackend_connected",
			Help: "1 if the radio backend session is currently connected.",
		}),

		CATDialectDetections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wsjtxmcpd_cat_dialect_detections_total",
			Help: "CAT connections by detected dialect.",
		}, []string{"dialect"}),
		CATCommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wsjtxmcpd_cat_commands_total",
			Help: "CAT commands handled, by slice index and token.",
		}, []string{"slice", "token"}),

		QSOTransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wsjtxmcpd_qso_transitions_total",
			Help: "QSO state machine transitions, by resulting state.",
		}, []string{"state"}),
		QSOActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wsjtxmcpd_qso_active",
			Help: "Number of QSOs currently in flight across all instances.",
		}),
		QSOCompletedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wsjtxmcpd_qso_completed_total",
			Help: "QSOs that reached the Complete terminal state.",
		}),
		QSOFailedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wsjtxmcpd_qso_failed_total",
			Help: "QSOs that reached the Failed terminal state, by reason.",
		}, []string{"reason"}),

		SupervisorSpawnsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wsjtxmcpd_supervisor_spawns_total",
			Help: "Decoder-app child processes spawned.",
		}),
		SupervisorExitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wsjtxmcpd_supervisor_exits_total",
			Help: "Decoder-app child process exits, by whether they were requested.",
		}, []string{"requested"}),
		SupervisorRunningGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wsjtxmcpd_supervisor_running",
			Help: "Decoder-app child processes currently tracked as running.",
		}),
	}
}

// Handler returns the promhttp handler for reg, to be mounted on the
// dashboard's HTTP mux.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
