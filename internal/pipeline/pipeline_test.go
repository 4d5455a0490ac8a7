package pipeline

import (
	"context"
	"os"
	"testing"
	"time"

	"pentagon/internal/blobstore"
	"pentagon/internal/sandbox"
	"pentagon/internal/transfer"
)

type fakeSink struct{}

func (fakeSink) IncRequests()                       {}
func (fakeSink) ObserveExecution(string)            {}
func (fakeSink) ObserveExecutionTimeMs(float64)     {}
func (fakeSink) ObserveExecutionMemoryKB(float64)   {}
func (fakeSink) ObserveExecutionWallTimeMs(float64) {}
func (fakeSink) ObserveTotalDurationMs(float64)     {}
func (fakeSink) IncActiveWorkers()                  {}
func (fakeSink) DecActiveWorkers()                  {}
func (fakeSink) IncActiveExecutions()               {}
func (fakeSink) DecActiveExecutions()               {}

type fakeSandbox struct {
	results []sandbox.RunResult
	calls   int
}

func (f *fakeSandbox) Run(_ context.Context, _ sandbox.RunSpec) (sandbox.RunResult, error) {
	r := f.results[f.calls]
	f.calls++
	return r, nil
}

func newBase(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "pentagon-pipeline-test")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func drain(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	select {
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not finish in time")
	default:
	}
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestRunSingleStageSuccess(t *testing.T) {
	sb := &fakeSandbox{results: []sandbox.RunResult{
		{ExitCode: 0, TimeUsedMs: 10, MemoryUsedKB: 512, Stdout: []byte("hi"), Stderr: nil},
	}}
	blobs := blobstore.NewMemoryStore()
	e := New(newBase(t), sb, blobs, fakeSink{})

	req := transfer.ExecutionRequest{
		Executions: []transfer.Execution{
			{
				Program: "/bin/echo",
				Args:    []string{"hi"},
				ReturnFiles: []transfer.FilePath{
					{Kind: transfer.KindStdout},
				},
			},
		},
	}

	events := drain(t, e.Run(context.Background(), req))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d: %+v", len(events), events)
	}
	if events[0].Error != "" {
		t.Fatalf("unexpected error event: %s", events[0].Error)
	}
	res := events[0].Result
	if res == nil || res.ExitCode != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.ReturnFiles) != 1 || res.ReturnFiles[0].Name != "stdout" || string(res.ReturnFiles[0].Content) != "hi" {
		t.Fatalf("unexpected return files: %+v", res.ReturnFiles)
	}
}

func TestRunDieOnErrorStopsPipeline(t *testing.T) {
	sb := &fakeSandbox{results: []sandbox.RunResult{
		{ExitCode: 1},
		{ExitCode: 0},
	}}
	blobs := blobstore.NewMemoryStore()
	e := New(newBase(t), sb, blobs, fakeSink{})

	req := transfer.ExecutionRequest{
		Executions: []transfer.Execution{
			{Program: "/bin/false", DieOnError: true},
			{Program: "/bin/true"},
		},
	}

	events := drain(t, e.Run(context.Background(), req))
	if len(events) != 1 {
		t.Fatalf("expected pipeline to stop after first failing stage, got %d events", len(events))
	}
	if sb.calls != 1 {
		t.Fatalf("expected sandbox to run exactly once, ran %d times", sb.calls)
	}
}

func TestRunContinuesWithoutDieOnError(t *testing.T) {
	sb := &fakeSandbox{results: []sandbox.RunResult{
		{ExitCode: 1},
		{ExitCode: 0},
	}}
	blobs := blobstore.NewMemoryStore()
	e := New(newBase(t), sb, blobs, fakeSink{})

	req := transfer.ExecutionRequest{
		Executions: []transfer.Execution{
			{Program: "/bin/false"},
			{Program: "/bin/true"},
		},
	}

	events := drain(t, e.Run(context.Background(), req))
	if len(events) != 2 {
		t.Fatalf("expected both stages to run, got %d events", len(events))
	}
	if sb.calls != 2 {
		t.Fatalf("expected sandbox to run twice, ran %d times", sb.calls)
	}
}

func TestRunCopyInFailureEmitsErrorAndStops(t *testing.T) {
	sb := &fakeSandbox{results: []sandbox.RunResult{{ExitCode: 0}}}
	blobs := blobstore.NewMemoryStore()
	e := New(newBase(t), sb, blobs, fakeSink{})

	req := transfer.ExecutionRequest{
		Executions: []transfer.Execution{
			{
				Program:    "/bin/true",
				DieOnError: true,
				CopyIn: []transfer.ExecutionTransfer{
					{
						From: transfer.FilePath{Kind: transfer.KindRemote, Key: "missing"},
						To:   transfer.FilePath{Kind: transfer.KindLocal, Name: "in.txt"},
					},
				},
			},
		},
	}

	events := drain(t, e.Run(context.Background(), req))
	if len(events) != 1 || events[0].Error == "" {
		t.Fatalf("expected a single error event, got %+v", events)
	}
	if sb.calls != 0 {
		t.Fatalf("sandbox should not have been invoked, calls=%d", sb.calls)
	}
}
