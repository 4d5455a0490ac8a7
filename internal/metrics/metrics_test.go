package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistryCountersAndGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.IncRequests()
	r.IncRequests()
	if got := testutil.ToFloat64(r.requestsTotal); got != 2 {
		t.Fatalf("requests_total = %v, want 2", got)
	}

	r.ObserveExecution("ok")
	r.ObserveExecution("ok")
	r.ObserveExecution("error")
	if got := testutil.ToFloat64(r.executionsTotal.WithLabelValues("ok")); got != 2 {
		t.Fatalf("executions_total{ok} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.executionsTotal.WithLabelValues("error")); got != 1 {
		t.Fatalf("executions_total{error} = %v, want 1", got)
	}

	r.IncActiveWorkers()
	r.IncActiveWorkers()
	r.DecActiveWorkers()
	if got := testutil.ToFloat64(r.activeWorkers); got != 1 {
		t.Fatalf("active_workers = %v, want 1", got)
	}

	r.IncActiveExecutions()
	r.DecActiveExecutions()
	if got := testutil.ToFloat64(r.activeExecs); got != 0 {
		t.Fatalf("active_executions = %v, want 0", got)
	}

	r.ObserveTotalDurationMs(12.5)
	r.ObserveTotalDurationMs(30)
	want := `
		# HELP execution_total_duration_ms Wall-clock elapsed time of a full /execute request, from file prestage through workspace cleanup, in milliseconds.
		# TYPE execution_total_duration_ms histogram
		execution_total_duration_ms_sum 42.5
		execution_total_duration_ms_count 2
	`
	if err := testutil.CollectAndCompare(r.totalDuration, strings.NewReader(want),
		"execution_total_duration_ms_sum", "execution_total_duration_ms_count"); err != nil {
		t.Fatalf("unexpected execution_total_duration_ms collector state: %v", err)
	}
}

func TestRegistrySystemGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.SetSystemMemory(1024, 4096)
	if got := testutil.ToFloat64(r.systemMemUsed); got != 1024 {
		t.Fatalf("system_memory_used_bytes = %v, want 1024", got)
	}
	if got := testutil.ToFloat64(r.systemMemTotal); got != 4096 {
		t.Fatalf("system_memory_total_bytes = %v, want 4096", got)
	}

	r.SetSystemDisk(500, 1000)
	if got := testutil.ToFloat64(r.systemDiskFree); got != 500 {
		t.Fatalf("system_disk_free_bytes = %v, want 500", got)
	}

	r.SetSystemCPU(42.5)
	if got := testutil.ToFloat64(r.systemCPUPct); got != 42.5 {
		t.Fatalf("system_cpu_usage_percent = %v, want 42.5", got)
	}
}
