// Package pipeline orchestrates one request: prestage files, run stages
// sequentially against the Transfer Resolver and Sandbox, stream results,
// and guarantee workspace cleanup on every exit path.
package pipeline

import (
	"context"
	"time"

	"pentagon/internal/blobstore"
	"pentagon/internal/metrics"
	"pentagon/internal/sandbox"
	"pentagon/internal/transfer"
	"pentagon/internal/workspace"
)

// Event is one item on the engine's output sequence: exactly one of
// Result or Error is set.
type Event struct {
	Result *transfer.ExecutionResult
	Error  string
}

// Engine ties the Workspace Manager, Transfer Resolver, Sandbox, and
// metrics sink together into the per-request orchestration described in
// SPEC_FULL.md §4.4.
type Engine struct {
	baseDir string
	sandbox sandbox.Engine
	blobs   blobstore.Store
	metrics metrics.Sink
}

// New constructs an Engine. baseDir is the configured workspace base
// directory; every request gets its own collision-free subdirectory of it.
func New(baseDir string, sb sandbox.Engine, blobs blobstore.Store, sink metrics.Sink) *Engine {
	return &Engine{baseDir: baseDir, sandbox: sb, blobs: blobs, metrics: sink}
}

// Run processes req and returns a channel of Events, closed when the
// request terminates (success, a fatal prestage error, or cancellation).
// The workspace is created before the first event can be observed and is
// unconditionally destroyed before the channel closes.
func (e *Engine) Run(ctx context.Context, req transfer.ExecutionRequest) <-chan Event {
	ch := make(chan Event)
	go e.run(ctx, req, ch)
	return ch
}

func (e *Engine) run(ctx context.Context, req transfer.ExecutionRequest, ch chan<- Event) {
	defer close(ch)

	ws, err := workspace.New(e.baseDir)
	if err != nil {
		emit(ctx, ch, Event{Error: err.Error()})
		return
	}
	defer ws.Close()

	resolver := transfer.NewResolver(ws, e.blobs)

	for _, f := range req.Files {
		if err := resolver.PrestageFile(ctx, f); err != nil {
			emit(ctx, ch, Event{Error: err.Error()})
			return
		}
	}

	for _, stage := range req.Executions {
		if ctx.Err() != nil {
			return
		}
		if !e.runStage(ctx, resolver, stage, ch) {
			return
		}
	}
}

// runStage runs one stage to completion, emitting exactly one event, and
// reports whether the pipeline should continue to the next stage.
func (e *Engine) runStage(ctx context.Context, resolver *transfer.Resolver, stage transfer.Execution, ch chan<- Event) bool {
	stdin, err := resolver.ApplyCopyIn(ctx, stage.CopyIn)
	if err != nil {
		e.metrics.ObserveExecution("error")
		emit(ctx, ch, Event{Error: err.Error()})
		return !stage.DieOnError
	}

	e.metrics.IncActiveExecutions()
	spawnStart := time.Now()
	result, err := e.sandbox.Run(ctx, sandbox.RunSpec{
		Program: stage.Program,
		Args:    stage.Args,
		WorkDir: resolver.WorkspaceRoot(),
		Limits: sandbox.ResourceLimit{
			CPUSeconds:  stage.TimeLimit,
			WallSeconds: stage.WallTimeLimit,
			MemoryKB:    int64(stage.MemoryLimit),
		},
		Stdin: stdin,
	})
	wall := time.Since(spawnStart)
	e.metrics.DecActiveExecutions()
	e.metrics.ObserveExecutionWallTimeMs(float64(wall.Milliseconds()))

	if err != nil {
		e.metrics.ObserveExecution("error")
		emit(ctx, ch, Event{Error: err.Error()})
		return !stage.DieOnError
	}

	resolver.SetStageOutput(result.Stdout, result.Stderr)

	if err := resolver.ApplyCopyOut(ctx, stage.CopyOut); err != nil {
		e.metrics.ObserveExecution("error")
		emit(ctx, ch, Event{Error: err.Error()})
		return !stage.DieOnError
	}

	returnFiles, err := resolver.MaterializeReturnFiles(ctx, stage.ReturnFiles)
	if err != nil {
		e.metrics.ObserveExecution("error")
		emit(ctx, ch, Event{Error: err.Error()})
		return !stage.DieOnError
	}

	execResult := transfer.ExecutionResult{
		ExitCode:    result.ExitCode,
		TimeUsed:    result.TimeUsedMs,
		MemoryUsed:  result.MemoryUsedKB,
		ReturnFiles: returnFiles,
	}

	if result.ExitCode == 0 {
		e.metrics.ObserveExecution("ok")
		e.metrics.ObserveExecutionTimeMs(float64(result.TimeUsedMs))
		e.metrics.ObserveExecutionMemoryKB(float64(result.MemoryUsedKB))
	} else {
		e.metrics.ObserveExecution("error")
	}

	emit(ctx, ch, Event{Result: &execResult})

	if result.ExitCode != 0 && stage.DieOnError {
		return false
	}
	return true
}

// emit sends an event unless ctx is already cancelled, in which case it
// drops the event rather than blocking forever on a client that has gone
// away — cancellation is checked at every suspension point.
func emit(ctx context.Context, ch chan<- Event, ev Event) {
	select {
	case ch <- ev:
	case <-ctx.Done():
	}
}
