package linkdb

import "github.com/prometheus/client_golang/prometheus"

var (
	allocationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sdnctl",
		Subsystem: "linkdb",
		Name:      "allocations_total",
		Help:      "Spectrum allocation attempts by outcome.",
	}, []string{"result"})

	reservationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sdnctl",
		Subsystem: "linkdb",
		Name:      "interface_reservations_total",
		Help:      "Interface reservation attempts by outcome.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(allocationsTotal, reservationsTotal)
}
