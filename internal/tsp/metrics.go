package tsp

import "github.com/prometheus/client_golang/prometheus"

var (
	callsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "octave",
		Subsystem: "tsp",
		Name:      "calls_total",
		Help:      "Total tool calls dispatched by the proxy, by server and terminal status.",
	}, []string{"server", "status"})

	serversRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "octave",
		Subsystem: "tsp",
		Name:      "servers_running",
		Help:      "Number of tool servers currently in the running state.",
	})
)

// RegisterMetrics registers the TSP's Prometheus collectors with reg. Safe
// to call once per process; callers should use a dedicated registry in
// tests to avoid duplicate-registration panics.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{callsTotal, serversRunning} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
