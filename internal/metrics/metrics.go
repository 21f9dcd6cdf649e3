package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	processStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pmdeck",
			Subsystem: "process",
			Name:      "starts_total",
			Help:      "Number of successful process starts.",
		}, []string{"name"},
	)
	processStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pmdeck",
			Subsystem: "process",
			Name:      "stops_total",
			Help:      "Number of requested stops.",
		}, []string{"name"},
	)
	processRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pmdeck",
			Subsystem: "process",
			Name:      "restarts_total",
			Help:      "Number of restarts performed by the supervisor.",
		}, []string{"name"},
	)
	processExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pmdeck",
			Subsystem: "process",
			Name:      "exits_total",
			Help:      "Number of unexpected exits by resulting status.",
		}, []string{"name", "status"},
	)
	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pmdeck",
			Name:      "operation_duration_seconds",
			Help:      "Duration of supervisor operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"},
	)
	processesByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pmdeck",
			Name:      "processes",
			Help:      "Registered processes by status.",
		}, []string{"status"},
	)
	processCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pmdeck",
			Subsystem: "process",
			Name:      "cpu_percent",
			Help:      "CPU usage percentage summed over instances.",
		}, []string{"id", "name"},
	)
	processMemory = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pmdeck",
			Subsystem: "process",
			Name:      "memory_bytes",
			Help:      "Resident memory summed over instances.",
		}, []string{"id", "name"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		processStarts, processStops, processRestarts, processExits,
		operationDuration, processesByStatus, processCPU, processMemory,
	}
}

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	for _, c := range collectors() {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves a specific gatherer, used when the supervisor owns its
// own registry.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// The helpers below no-op until Register has succeeded.

func IncStart(name string) {
	if regOK.Load() {
		processStarts.WithLabelValues(name).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		processStops.WithLabelValues(name).Inc()
	}
}

func IncRestart(name string) {
	if regOK.Load() {
		processRestarts.WithLabelValues(name).Inc()
	}
}

func IncExit(name, status string) {
	if regOK.Load() {
		processExits.WithLabelValues(name, status).Inc()
	}
}

func ObserveOperation(op string, seconds float64) {
	if regOK.Load() {
		operationDuration.WithLabelValues(op).Observe(seconds)
	}
}

// SetStatusCounts publishes a snapshot's per-status counts.
func SetStatusCounts(s Snapshot) {
	if !regOK.Load() {
		return
	}
	processesByStatus.WithLabelValues("running").Set(float64(s.Running))
	processesByStatus.WithLabelValues("errored").Set(float64(s.Errored))
	processesByStatus.WithLabelValues("stopped").Set(float64(s.Stopped))
}

func SetUsage(id int64, name string, cpu float64, mem uint64) {
	if regOK.Load() {
		l := strconv.FormatInt(id, 10)
		processCPU.WithLabelValues(l, name).Set(cpu)
		processMemory.WithLabelValues(l, name).Set(float64(mem))
	}
}

// ForgetUsage drops the usage series of a stopped or deleted process.
func ForgetUsage(id int64, name string) {
	if regOK.Load() {
		l := strconv.FormatInt(id, 10)
		processCPU.DeleteLabelValues(l, name)
		processMemory.DeleteLabelValues(l, name)
	}
}
