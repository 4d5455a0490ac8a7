package sysmonitor

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeSampler struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSampler) Sample(_ string) (Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return Sample{MemUsedBytes: 1, MemTotalBytes: 2, CPUPercent: 3, DiskFreeBytes: 4, DiskTotalBytes: 5}, nil
}

func (f *fakeSampler) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeGauges struct {
	mu          sync.Mutex
	memUpdates  int
	cpuUpdates  int
	diskUpdates int
}

func (g *fakeGauges) SetSystemMemory(_, _ float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.memUpdates++
}
func (g *fakeGauges) SetSystemCPU(_ float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cpuUpdates++
}
func (g *fakeGauges) SetSystemDisk(_, _ float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.diskUpdates++
}

func TestMonitorSamplesImmediatelyAndStopsOnCancel(t *testing.T) {
	sampler := &fakeSampler{}
	gauges := &fakeGauges{}
	m := New(sampler, gauges, "/", 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Monitor.Run did not stop after context cancellation")
	}

	if sampler.Calls() < 2 {
		t.Fatalf("expected multiple samples, got %d", sampler.Calls())
	}
	gauges.mu.Lock()
	defer gauges.mu.Unlock()
	if gauges.memUpdates == 0 || gauges.cpuUpdates == 0 || gauges.diskUpdates == 0 {
		t.Fatalf("expected gauges to be updated: %+v", gauges)
	}
}
