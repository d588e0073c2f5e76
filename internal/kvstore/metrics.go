package kvstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kv_commands_total",
			Help: "Total number of key-value store requests",
		},
		[]string{"command", "status"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kv_command_duration_seconds",
			Help:    "Duration of key-value store requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
)

// Collectors returns the store metrics so main can register them next to
// the HTTP ones.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{commandsTotal, commandDuration}
}

func observeCommand(command, status string, d time.Duration) {
	commandsTotal.WithLabelValues(command, status).Inc()
	commandDuration.WithLabelValues(command).Observe(d.Seconds())
}
