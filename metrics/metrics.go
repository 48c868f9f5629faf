// Package metrics provides Prometheus metrics for promobot. Collectors are
// registered on Registry, which the status API exposes at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace for all promobot metrics
	namespace = "promobot"
)

// Registry holds every promobot collector plus the Go and process
// collectors.
var Registry = prometheus.NewRegistry()

var (
	// TicksTotal tracks polling ticks by outcome
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total number of polling ticks",
		},
		[]string{"result"},
	)

	// TickDuration tracks how long a tick takes, sleep excluded
	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of polling ticks in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// Candidates tracks the candidate count reached by each filter stage in
	// the last tick
	Candidates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "candidates",
			Help:      "Number of candidates at each stage of the last tick",
		},
		[]string{"stage"},
	)

	// StrictCycles counts ticks that ran in strict mode
	StrictCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strict_cycles_total",
			Help:      "Total number of ticks that escalated to strict mode",
		},
	)

	// EvictionsTotal tracks evictions by reason (count, size, disk) and result
	EvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Total number of eviction attempts",
		},
		[]string{"reason", "result"},
	)

	// AcquisitionsTotal tracks acquisitions by result
	AcquisitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquisitions_total",
			Help:      "Total number of acquisition attempts",
		},
		[]string{"result"},
	)

	// LedgerSize tracks the number of ids in the dedup ledger
	LedgerSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_size",
			Help:      "Number of ids recorded in the dedup ledger",
		},
	)

	// FreeDiskBytes tracks the last free space reading from the agent
	FreeDiskBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "free_disk_bytes",
			Help:      "Free disk space reported by the download agent",
		},
	)

	// ManagedTorrents tracks the size of the agent's managed set
	ManagedTorrents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "managed_torrents",
			Help:      "Number of torrents managed by the bot in the download agent",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		TicksTotal,
		TickDuration,
		Candidates,
		StrictCycles,
		EvictionsTotal,
		AcquisitionsTotal,
		LedgerSize,
		FreeDiskBytes,
		ManagedTorrents,
	)
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// RecordTick records a finished tick
func RecordTick(result string, duration float64) {
	TicksTotal.WithLabelValues(result).Inc()
	TickDuration.Observe(duration)
}

// SetCandidates sets the candidate count for a filter stage
func SetCandidates(stage string, count int) {
	Candidates.WithLabelValues(stage).Set(float64(count))
}

// RecordStrictCycle records a tick that ran in strict mode
func RecordStrictCycle() {
	StrictCycles.Inc()
}

// RecordEviction records an eviction attempt
func RecordEviction(reason string, ok bool) {
	EvictionsTotal.WithLabelValues(reason, resultLabel(ok)).Inc()
}

// RecordAcquisition records an acquisition attempt
func RecordAcquisition(ok bool) {
	AcquisitionsTotal.WithLabelValues(resultLabel(ok)).Inc()
}

// SetLedgerSize sets the dedup ledger size
func SetLedgerSize(n int) {
	LedgerSize.Set(float64(n))
}

// SetFreeDiskBytes sets the last free space reading
func SetFreeDiskBytes(n int64) {
	FreeDiskBytes.Set(float64(n))
}

// SetManagedTorrents sets the managed set size
func SetManagedTorrents(n int) {
	ManagedTorrents.Set(float64(n))
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
