// Package sandbox constructs an isolated Linux execution environment for
// one child process: namespaces, a minimal read-only root plus a
// read-write workspace bind mount, a seccomp deny-list, resource limits,
// and wall-clock-bounded lifecycle management.
package sandbox

import (
	"context"
	"time"
)

// ResourceLimit mirrors the three caller-supplied limits from §3/§4.2 of
// the specification: CPU seconds, wall-clock seconds, and memory in
// kilobytes (enforced as an RLIMIT_AS cap on address space).
type ResourceLimit struct {
	CPUSeconds  int
	WallSeconds int
	MemoryKB    int64
}

// RunSpec describes one child invocation.
type RunSpec struct {
	Program string
	Args    []string
	WorkDir string // host path bind-mounted read-write as /box
	Env     []string
	Limits  ResourceLimit
	Stdin   []byte
}

// RunResult is what the caller learns about a finished (or killed) child.
type RunResult struct {
	// ExitCode follows the convention fixed in SPEC_FULL.md §9: normal
	// exit preserves the exit code, signal termination yields 128+signo,
	// and -1 is reserved exclusively for a wall-clock timeout kill.
	ExitCode     int
	TimeUsedMs   int64
	MemoryUsedKB int64
	Stdout       []byte
	Stderr       []byte
	WallUsed     time.Duration
}

// Config controls how the Engine constructs isolation for every spawn.
type Config struct {
	// HelperPath is the path to the compiled sandbox-init binary.
	HelperPath string
	// ReadOnlyBinds are host directories bind-mounted read-only into the
	// sandbox root, by default /bin, /lib, /lib64, /usr, /etc.
	ReadOnlyBinds []string
	// ScratchRoot is the host directory under which per-spawn sandbox
	// root skeletons are built and torn down; defaults to os.TempDir().
	ScratchRoot string
	// StdoutStderrMaxBytes bounds how much of stdout/stderr is retained;
	// 0 means unbounded.
	StdoutStderrMaxBytes int64
}

// DefaultReadOnlyBinds is the minimal root the specification calls for.
func DefaultReadOnlyBinds() []string {
	return []string{"/bin", "/lib", "/lib64", "/usr", "/etc"}
}

// Engine owns exactly one child at a time per Run call; no operation
// yields the child handle outside this abstraction.
type Engine interface {
	Run(ctx context.Context, spec RunSpec) (RunResult, error)
}
