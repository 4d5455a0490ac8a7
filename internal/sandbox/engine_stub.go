//go:build !linux

package sandbox

import (
	"context"

	pentagonerrors "pentagon/pkg/errors"
)

// stubEngine reports every call as unsupported. Windows/macOS execution
// paths are an explicit non-goal.
type stubEngine struct{}

// NewEngine on non-Linux platforms always returns an engine that refuses
// to run anything.
func NewEngine(_ Config) (Engine, error) {
	return stubEngine{}, nil
}

func (stubEngine) Run(_ context.Context, _ RunSpec) (RunResult, error) {
	return RunResult{}, pentagonerrors.New(pentagonerrors.SandboxError, "sandbox execution is only supported on linux")
}
