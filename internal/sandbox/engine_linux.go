//go:build linux

package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	pentagonerrors "pentagon/pkg/errors"
)

const (
	stdinName    = ".pentagon-stdin"
	stdoutName   = ".pentagon-stdout"
	stderrName   = ".pentagon-stderr"
	seccompName  = ".pentagon-seccomp.json"
	defaultStack = 64  // MB
	defaultOut   = 256 // MB
	defaultPIDs  = 64
	defaultFiles = 64
)

// LinuxEngine is the real Engine: it forks the cmd/sandbox-init helper
// into a fresh set of namespaces, waits for it with a wall-clock deadline,
// and reports exit status and resource usage. It never performs
// namespace/mount/seccomp syscalls in its own process image — those are
// entirely the privileged helper's job, run in a throwaway clone rather
// than unwound inside a long-lived daemon.
type LinuxEngine struct {
	cfg Config
}

// NewEngine constructs a LinuxEngine, filling in defaults for any unset
// Config fields.
func NewEngine(cfg Config) (*LinuxEngine, error) {
	if cfg.HelperPath == "" {
		return nil, pentagonerrors.New(pentagonerrors.SandboxError, "sandbox-init helper path is required")
	}
	if len(cfg.ReadOnlyBinds) == 0 {
		cfg.ReadOnlyBinds = DefaultReadOnlyBinds()
	}
	if cfg.ScratchRoot == "" {
		cfg.ScratchRoot = os.TempDir()
	}
	return &LinuxEngine{cfg: cfg}, nil
}

// Run spawns one child under full isolation and blocks until it exits, is
// killed on wall-clock timeout, or ctx is cancelled.
func (e *LinuxEngine) Run(ctx context.Context, spec RunSpec) (RunResult, error) {
	rootDir, err := os.MkdirTemp(e.cfg.ScratchRoot, "pentagon-root-")
	if err != nil {
		return RunResult{}, pentagonerrors.Wrap(err, pentagonerrors.SandboxError, "create sandbox root")
	}
	defer os.RemoveAll(rootDir)

	if err := e.buildRootSkeleton(rootDir); err != nil {
		return RunResult{}, err
	}

	stdinPath := filepath.Join(spec.WorkDir, stdinName)
	stdoutPath := filepath.Join(spec.WorkDir, stdoutName)
	stderrPath := filepath.Join(spec.WorkDir, stderrName)
	seccompPath := filepath.Join(spec.WorkDir, seccompName)
	defer func() {
		_ = os.Remove(stdinPath)
		_ = os.Remove(stdoutPath)
		_ = os.Remove(stderrPath)
		_ = os.Remove(seccompPath)
	}()

	if err := os.WriteFile(stdinPath, spec.Stdin, 0o600); err != nil {
		return RunResult{}, pentagonerrors.Wrap(err, pentagonerrors.SandboxError, "stage stdin")
	}
	if err := os.WriteFile(stdoutPath, nil, 0o600); err != nil {
		return RunResult{}, pentagonerrors.Wrap(err, pentagonerrors.SandboxError, "stage stdout")
	}
	if err := os.WriteFile(stderrPath, nil, 0o600); err != nil {
		return RunResult{}, pentagonerrors.Wrap(err, pentagonerrors.SandboxError, "stage stderr")
	}

	profile, err := json.Marshal(buildSeccompProfile())
	if err != nil {
		return RunResult{}, pentagonerrors.Wrap(err, pentagonerrors.SandboxError, "encode seccomp profile")
	}
	if err := os.WriteFile(seccompPath, profile, 0o600); err != nil {
		return RunResult{}, pentagonerrors.Wrap(err, pentagonerrors.SandboxError, "stage seccomp profile")
	}

	req := e.buildInitRequest(spec, rootDir)
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return RunResult{}, pentagonerrors.Wrap(err, pentagonerrors.SandboxError, "encode init request")
	}

	cmd := exec.Command(e.cfg.HelperPath)
	cmd.Stdin = bytes.NewReader(reqJSON)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: unix.CLONE_NEWUSER | unix.CLONE_NEWNS | unix.CLONE_NEWPID |
			unix.CLONE_NEWUTS | unix.CLONE_NEWIPC | unix.CLONE_NEWCGROUP | unix.CLONE_NEWNET,
		UidMappings: []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getuid(), Size: 1}},
		GidMappings: []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getgid(), Size: 1}},
		Setpgid:     true,
	}

	if err := cmd.Start(); err != nil {
		return RunResult{}, pentagonerrors.Wrap(err, pentagonerrors.SandboxError, "start sandbox-init")
	}

	wallLimit := time.Duration(spec.Limits.WallSeconds) * time.Second
	result, err := e.wait(ctx, cmd, wallLimit)
	if err != nil {
		return RunResult{}, err
	}

	result.Stdout = readCapped(stdoutPath, e.cfg.StdoutStderrMaxBytes)
	result.Stderr = readCapped(stderrPath, e.cfg.StdoutStderrMaxBytes)
	return result, nil
}

// wait blocks on the child, killing its process group if the wall-clock
// deadline fires first or the caller's context is cancelled first.
func (e *LinuxEngine) wait(ctx context.Context, cmd *exec.Cmd, wallLimit time.Duration) (RunResult, error) {
	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timeoutCh <-chan time.Time
	if wallLimit > 0 {
		timer := time.NewTimer(wallLimit)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case err := <-done:
		wall := time.Since(start)
		return processResult(cmd, err, wall, false)
	case <-timeoutCh:
		killGroup(cmd.Process.Pid)
		<-done
		return processResult(cmd, fmt.Errorf("wall time limit exceeded"), time.Since(start), true)
	case <-ctx.Done():
		killGroup(cmd.Process.Pid)
		<-done
		return processResult(cmd, ctx.Err(), time.Since(start), true)
	}
}

func killGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func processResult(cmd *exec.Cmd, waitErr error, wall time.Duration, forcedKill bool) (RunResult, error) {
	state := cmd.ProcessState
	if state == nil {
		return RunResult{}, pentagonerrors.Wrap(waitErr, pentagonerrors.SandboxError, "child did not report exit status")
	}

	var timeUsedMs, memKB int64
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok {
		timeUsedMs = rusageMillis(usage.Utime) + rusageMillis(usage.Stime)
		memKB = usage.Maxrss
	}

	exitCode := -1
	if !forcedKill {
		if ws, ok := state.Sys().(syscall.WaitStatus); ok {
			switch {
			case ws.Exited():
				exitCode = ws.ExitStatus()
			case ws.Signaled():
				exitCode = 128 + int(ws.Signal())
			}
		}
	}

	return RunResult{
		ExitCode:     exitCode,
		TimeUsedMs:   timeUsedMs,
		MemoryUsedKB: memKB,
		WallUsed:     wall,
	}, nil
}

func rusageMillis(tv syscall.Timeval) int64 {
	return tv.Sec*1000 + int64(tv.Usec)/1000
}

func readCapped(path string, max int64) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	if max > 0 && int64(len(data)) > max {
		return data[:max]
	}
	return data
}

// buildRootSkeleton creates the mount-point directories the helper will
// bind-mount the read-only host directories and the workspace onto.
func (e *LinuxEngine) buildRootSkeleton(rootDir string) error {
	for _, dir := range e.cfg.ReadOnlyBinds {
		target := filepath.Join(rootDir, dir)
		if err := os.MkdirAll(target, 0o755); err != nil {
			return pentagonerrors.Wrapf(err, pentagonerrors.SandboxError, "prepare mount point %q", dir)
		}
	}
	if err := os.MkdirAll(filepath.Join(rootDir, "box"), 0o755); err != nil {
		return pentagonerrors.Wrap(err, pentagonerrors.SandboxError, "prepare /box mount point")
	}
	return nil
}

func (e *LinuxEngine) buildInitRequest(spec RunSpec, rootDir string) initRequest {
	mounts := make([]mountSpec, 0, len(e.cfg.ReadOnlyBinds)+1)
	for _, dir := range e.cfg.ReadOnlyBinds {
		mounts = append(mounts, mountSpec{Source: dir, Target: dir, ReadOnly: true})
	}
	mounts = append(mounts, mountSpec{Source: spec.WorkDir, Target: "/box", ReadOnly: false})

	env := spec.Env
	if len(env) == 0 {
		env = []string{"PATH=/bin"}
	}

	return initRequest{
		RunSpec: initRunSpec{
			WorkDir:    "/box",
			Cmd:        append([]string{spec.Program}, spec.Args...),
			Env:        env,
			StdinPath:  "/box/" + stdinName,
			StdoutPath: "/box/" + stdoutName,
			StderrPath: "/box/" + stderrName,
			BindMounts: mounts,
			Limits: resourceLimit{
				CPUTimeMs:  int64(spec.Limits.CPUSeconds) * 1000,
				WallTimeMs: int64(spec.Limits.WallSeconds) * 1000,
				MemoryKB:   spec.Limits.MemoryKB,
				StackMB:    defaultStack,
				OutputMB:   defaultOut,
				PIDs:       defaultPIDs,
				NoFile:     defaultFiles,
			},
		},
		Isolation: isolationProfile{
			RootFS:         rootDir,
			SeccompProfile: "/box/" + seccompName,
			DisableNetwork: true,
		},
		EnableSeccomp: true,
		EnableNs:      true,
	}
}
