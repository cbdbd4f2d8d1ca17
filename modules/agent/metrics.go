package agent

import "github.com/prometheus/client_golang/prometheus"

var (
	commandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sdnctl",
		Subsystem: "agent",
		Name:      "commands_total",
		Help:      "config_<vop> commands processed, by action and ack status.",
	}, []string{"action", "status"})

	dedupeHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sdnctl",
		Subsystem: "agent",
		Name:      "dedupe_hits_total",
		Help:      "Duplicate command ids resolved from the dedupe cache without re-executing.",
	})

	hardwareFaultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sdnctl",
		Subsystem: "agent",
		Name:      "hardware_faults_total",
		Help:      "Driver errors encountered dispatching a command, by action.",
	}, []string{"action"})

	telemetrySamplesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sdnctl",
		Subsystem: "agent",
		Name:      "telemetry_samples_total",
		Help:      "Telemetry samples published on monitoring_<vop>.",
	})
)

func init() {
	prometheus.MustRegister(commandsTotal, dedupeHitsTotal, hardwareFaultsTotal, telemetrySamplesTotal)
}
