package jitcache

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	usedBytes   prometheus.Gauge
	functions   prometheus.Gauge
	mapped      prometheus.Counter
	purgedBytes prometheus.Counter
	purges      prometheus.Counter
}

func newMetrics(registerer prometheus.Registerer) *metrics {
	m := &metrics{
		usedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "translator",
			Subsystem: "jitcache",
			Name:      "used_bytes",
			Help:      "Bytes of the code cache arena held by mapped functions.",
		}),
		functions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "translator",
			Subsystem: "jitcache",
			Name:      "functions",
			Help:      "Number of functions currently mapped.",
		}),
		mapped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "translator",
			Subsystem: "jitcache",
			Name:      "mapped_total",
			Help:      "Functions mapped since the cache was created.",
		}),
		purgedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "translator",
			Subsystem: "jitcache",
			Name:      "purged_bytes_total",
			Help:      "Bytes reclaimed by purges.",
		}),
		purges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "translator",
			Subsystem: "jitcache",
			Name:      "purges_total",
			Help:      "Purge passes run.",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(m.usedBytes, m.functions, m.mapped, m.purgedBytes, m.purges)
	}

	return m
}
