// Package metrics defines Pentagon's Prometheus counters, histograms, and
// gauges, and the Sink interface the pipeline engine and HTTP layer depend
// on so metrics are passed in as an ordinary collaborator rather than read
// from process-wide mutable state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Sink is what the pipeline engine and HTTP layer need to record
// observations. A single process-wide implementation is registered at
// startup and threaded through explicitly.
type Sink interface {
	IncRequests()
	ObserveExecution(outcome string)
	ObserveExecutionTimeMs(ms float64)
	ObserveExecutionMemoryKB(kb float64)
	ObserveExecutionWallTimeMs(ms float64)
	ObserveTotalDurationMs(ms float64)
	IncActiveWorkers()
	DecActiveWorkers()
	IncActiveExecutions()
	DecActiveExecutions()
}

// Registry is the concrete, process-wide Sink implementation.
type Registry struct {
	requestsTotal   prometheus.Counter
	executionsTotal *prometheus.CounterVec
	executionTime   prometheus.Histogram
	executionMemory prometheus.Histogram
	executionWall   prometheus.Histogram
	totalDuration   prometheus.Histogram
	activeWorkers   prometheus.Gauge
	activeExecs     prometheus.Gauge

	systemMemUsed  prometheus.Gauge
	systemMemTotal prometheus.Gauge
	systemCPUPct   prometheus.Gauge
	systemDiskFree prometheus.Gauge
	systemDiskTot  prometheus.Gauge
}

// NewRegistry constructs and registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Total number of /execute requests received.",
		}),
		executionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "executions_total",
			Help: "Total number of completed stages, labeled by outcome.",
		}, []string{"outcome"}),
		executionTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "execution_time_ms",
			Help:    "CPU time used by a stage, in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		}),
		executionMemory: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "execution_memory_kb",
			Help:    "Peak resident set size of a stage, in kilobytes.",
			Buckets: prometheus.ExponentialBuckets(64, 2, 16),
		}),
		executionWall: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "execution_wall_time_ms",
			Help:    "Wall-clock elapsed time of every spawn attempt, in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		}),
		totalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "execution_total_duration_ms",
			Help:    "Wall-clock elapsed time of a full /execute request, from file prestage through workspace cleanup, in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 20),
		}),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_workers",
			Help: "Number of /execute requests currently being served.",
		}),
		activeExecs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_executions",
			Help: "Number of stages currently spawned inside a sandboxed child.",
		}),
		systemMemUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "system_memory_used_bytes",
			Help: "Host memory currently in use, in bytes.",
		}),
		systemMemTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "system_memory_total_bytes",
			Help: "Total host memory, in bytes.",
		}),
		systemCPUPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "system_cpu_usage_percent",
			Help: "Host CPU usage, as a percentage.",
		}),
		systemDiskFree: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "system_disk_free_bytes",
			Help: "Free disk space on the workspace base filesystem, in bytes.",
		}),
		systemDiskTot: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "system_disk_total_bytes",
			Help: "Total disk space on the workspace base filesystem, in bytes.",
		}),
	}

	reg.MustRegister(
		r.requestsTotal, r.executionsTotal, r.executionTime, r.executionMemory, r.executionWall, r.totalDuration,
		r.activeWorkers, r.activeExecs,
		r.systemMemUsed, r.systemMemTotal, r.systemCPUPct, r.systemDiskFree, r.systemDiskTot,
	)
	return r
}

func (r *Registry) IncRequests() { r.requestsTotal.Inc() }

func (r *Registry) ObserveExecution(outcome string) {
	r.executionsTotal.WithLabelValues(outcome).Inc()
}

func (r *Registry) ObserveExecutionTimeMs(ms float64)     { r.executionTime.Observe(ms) }
func (r *Registry) ObserveExecutionMemoryKB(kb float64)   { r.executionMemory.Observe(kb) }
func (r *Registry) ObserveExecutionWallTimeMs(ms float64) { r.executionWall.Observe(ms) }
func (r *Registry) ObserveTotalDurationMs(ms float64)     { r.totalDuration.Observe(ms) }

func (r *Registry) IncActiveWorkers() { r.activeWorkers.Inc() }
func (r *Registry) DecActiveWorkers() { r.activeWorkers.Dec() }

func (r *Registry) IncActiveExecutions() { r.activeExecs.Inc() }
func (r *Registry) DecActiveExecutions() { r.activeExecs.Dec() }

// SetSystemMemory updates the system_memory_* gauges.
func (r *Registry) SetSystemMemory(usedBytes, totalBytes float64) {
	r.systemMemUsed.Set(usedBytes)
	r.systemMemTotal.Set(totalBytes)
}

// SetSystemCPU updates the system_cpu_usage_percent gauge.
func (r *Registry) SetSystemCPU(percent float64) {
	r.systemCPUPct.Set(percent)
}

// SetSystemDisk updates the system_disk_* gauges.
func (r *Registry) SetSystemDisk(freeBytes, totalBytes float64) {
	r.systemDiskFree.Set(freeBytes)
	r.systemDiskTot.Set(totalBytes)
}
