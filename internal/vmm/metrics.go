package vmm

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	poolPages = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vattn",
			Subsystem: "vmm",
			Name:      "pool_pages",
			Help:      "Physical pages held by the pool",
		},
		[]string{"device"},
	)

	mappingsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vattn",
			Subsystem: "vmm",
			Name:      "mappings",
			Help:      "Live K/V page pair mappings",
		},
		[]string{"device"},
	)

	mapCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vattn",
			Subsystem: "vmm",
			Name:      "map_calls_total",
			Help:      "Map calls by outcome (mapped, skipped, fatal)",
		},
		[]string{"device", "result"},
	)

	cleanupWarnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vattn",
			Subsystem: "vmm",
			Name:      "cleanup_warnings_total",
			Help:      "Failures tolerated during cleanup, by phase",
		},
		[]string{"device", "phase"},
	)
)

func init() {
	prometheus.MustRegister(poolPages, mappingsGauge, mapCalls, cleanupWarnings)
}

// label is the device label value for m's metrics.
func (m *Manager) label() string { return strconv.Itoa(m.device) }
