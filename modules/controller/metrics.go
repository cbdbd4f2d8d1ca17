package controller

import "github.com/prometheus/client_golang/prometheus"

var (
	connectionTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sdnctl",
		Subsystem: "controller",
		Name:      "connection_transitions_total",
		Help:      "Connection state machine transitions by target state.",
	}, []string{"state"})

	reconfigurationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sdnctl",
		Subsystem: "controller",
		Name:      "qot_reconfigurations_total",
		Help:      "Total reconfigConnection commands issued by the QoT monitor.",
	})

	commandTimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sdnctl",
		Subsystem: "controller",
		Name:      "command_timeouts_total",
		Help:      "Commands that exceeded command_timeout awaiting acks.",
	})
)

func init() {
	prometheus.MustRegister(connectionTransitionsTotal, reconfigurationsTotal, commandTimeoutsTotal)
}
