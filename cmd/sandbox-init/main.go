//go:build linux

// Command sandbox-init is Pentagon's privileged spawn helper. The daemon
// process never calls unshare/mount/chroot/seccomp itself — those calls are
// awkward or unsafe to unwind in a long-lived process, and several of them
// are one-way (chroot, seccomp) — so it instead forks this short-lived
// binary, hands it a JSON spawn request on stdin, and lets it perform the
// entire isolation handshake inside the freshly cloned child before
// exec'ing the user's program. Once exec succeeds this process image is
// gone; there is nothing left here to isolate the isolation from.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

func main() {
	if err := bootstrap(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// bootstrap runs the fixed isolation sequence: read the spawn request,
// isolate the mount namespace, bind the sandbox root, drop into it, apply
// resource limits, wire up stdio, install the syscall filter, and exec.
// Every step after mount-namespace isolation runs inside the child's own
// view of the filesystem, so ordering here is load-bearing: seccomp must
// come last, since it can forbid syscalls this very function still needs
// (mount, chroot, setrlimit) earlier in the sequence.
func bootstrap() error {
	spawn, err := readRequest(os.Stdin)
	if err != nil {
		return err
	}
	if err := checkRequest(spawn); err != nil {
		return err
	}

	if err := enterMountNamespace(spawn); err != nil {
		return err
	}
	if err := enforceLimits(spawn.RunSpec.Limits); err != nil {
		return err
	}
	if err := rewireStdio(spawn.RunSpec); err != nil {
		return err
	}
	if spawn.EnableSeccomp && spawn.Isolation.SeccompProfile != "" {
		if err := installSeccompFilter(spawn.Isolation.SeccompProfile); err != nil {
			return err
		}
	}

	env := resolveEnv(spawn.RunSpec.Env)
	if err := replaceEnv(env); err != nil {
		return err
	}

	target, err := exec.LookPath(spawn.RunSpec.Cmd[0])
	if err != nil {
		return fmt.Errorf("resolve program: %w", err)
	}
	return unix.Exec(target, spawn.RunSpec.Cmd, env)
}

// enterMountNamespace makes the mount table private to this process, binds
// every requested mount into the sandbox root (when namespaces are on),
// chroots into it, and lands the working directory the caller asked for.
// With namespaces off there is nothing to bind, so a rootfs or bind-mount
// request in that mode is rejected rather than silently ignored.
func enterMountNamespace(spawn initRequest) error {
	if !spawn.EnableNs {
		if spawn.Isolation.RootFS != "" || len(spawn.RunSpec.BindMounts) > 0 {
			return fmt.Errorf("namespaces disabled but rootfs or bind mounts were requested")
		}
		return os.Chdir(spawn.RunSpec.WorkDir)
	}

	if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return fmt.Errorf("make mount table private: %w", err)
	}
	if err := mountBinds(spawn.Isolation.RootFS, spawn.RunSpec.BindMounts); err != nil {
		return err
	}
	if spawn.Isolation.RootFS != "" {
		if err := unix.Chroot(spawn.Isolation.RootFS); err != nil {
			return fmt.Errorf("chroot into sandbox root: %w", err)
		}
		if err := os.Chdir("/"); err != nil {
			return fmt.Errorf("chdir to new root: %w", err)
		}
	}
	return os.Chdir(spawn.RunSpec.WorkDir)
}

func readRequest(r io.Reader) (initRequest, error) {
	var spawn initRequest
	if err := json.NewDecoder(r).Decode(&spawn); err != nil {
		return initRequest{}, fmt.Errorf("decode spawn request: %w", err)
	}
	return spawn, nil
}

func checkRequest(spawn initRequest) error {
	if len(spawn.RunSpec.Cmd) == 0 {
		return errors.New("spawn request has no command")
	}
	if spawn.RunSpec.WorkDir == "" {
		return errors.New("spawn request has no working directory")
	}
	return nil
}

// mountBinds lays down every requested bind mount under rootfs (or at its
// literal target when rootfs is empty), then mounts a fresh procfs inside
// the new root — most interpreters and runtimes expect /proc to exist.
func mountBinds(rootfs string, mounts []mountSpec) error {
	for _, m := range mounts {
		if m.Source == "" || m.Target == "" {
			return errors.New("bind mount is missing a source or target")
		}
		target := m.Target
		if rootfs != "" {
			target = filepath.Join(rootfs, m.Target)
		}
		if err := prepareMountTarget(m.Source, target); err != nil {
			return err
		}
		if err := unix.Mount(m.Source, target, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
			return fmt.Errorf("bind %s: %w", m.Source, err)
		}
		if m.ReadOnly {
			if err := unix.Mount("", target, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
				return fmt.Errorf("remount %s read-only: %w", target, err)
			}
		}
	}

	if rootfs == "" {
		return nil
	}
	procDir := filepath.Join(rootfs, "proc")
	if err := os.MkdirAll(procDir, 0o755); err != nil {
		return fmt.Errorf("create proc mountpoint: %w", err)
	}
	if err := unix.Mount("proc", procDir, "proc", 0, ""); err != nil && !errors.Is(err, unix.EBUSY) {
		return fmt.Errorf("mount proc: %w", err)
	}
	return nil
}

// prepareMountTarget creates target as a directory or an empty file,
// matching whether source is a directory or a regular file — bind mounts
// require the target to already exist and be the same kind as the source.
func prepareMountTarget(source, target string) error {
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("stat %s: %w", source, err)
	}
	if info.IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", target, err)
	}
	f, err := os.OpenFile(target, os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("create mount target %s: %w", target, err)
	}
	return f.Close()
}

// enforceLimits applies every nonzero rlimit the caller asked for. A zero
// value means "no limit requested", not "limit to zero" — the caller
// (internal/sandbox) only sets fields it actually wants enforced.
func enforceLimits(limits resourceLimit) error {
	type capping struct {
		resource int
		name     string
		value    uint64
	}
	caps := []capping{
		{unix.RLIMIT_CPU, "cpu", ceilMs(limits.CPUTimeMs)},
		{unix.RLIMIT_AS, "as", uint64(limits.MemoryKB) * 1024},
		{unix.RLIMIT_FSIZE, "fsize", uint64(limits.OutputMB) * 1024 * 1024},
		{unix.RLIMIT_STACK, "stack", uint64(limits.StackMB) * 1024 * 1024},
		{unix.RLIMIT_NPROC, "nproc", uint64(limits.PIDs)},
		{unix.RLIMIT_NOFILE, "nofile", uint64(limits.NoFile)},
	}
	for _, c := range caps {
		if c.value == 0 {
			continue
		}
		if err := unix.Setrlimit(c.resource, &unix.Rlimit{Cur: c.value, Max: c.value}); err != nil {
			return fmt.Errorf("set rlimit %s: %w", c.name, err)
		}
	}
	return nil
}

// ceilMs converts a millisecond budget to whole seconds, rounding up so a
// caller-requested 1500ms CPU limit doesn't get truncated down to 1s.
func ceilMs(ms int64) uint64 {
	if ms <= 0 {
		return 0
	}
	return uint64((ms + 999) / 1000)
}

// rewireStdio points the child's stdin/stdout/stderr at plain files rather
// than inherited pipe descriptors — the daemon writes stdin and reads
// stdout/stderr back from these same paths once the child exits, so there
// is no live pipe on either end to deadlock on.
func rewireStdio(spec runSpec) error {
	stdin, err := os.Open(orDevNull(spec.StdinPath))
	if err != nil {
		return fmt.Errorf("open stdin: %w", err)
	}
	defer stdin.Close()

	stdout, err := os.OpenFile(orDevNull(spec.StdoutPath), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open stdout: %w", err)
	}
	defer stdout.Close()

	stderr, err := os.OpenFile(orDevNull(spec.StderrPath), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open stderr: %w", err)
	}
	defer stderr.Close()

	if err := unix.Dup2(int(stdin.Fd()), int(os.Stdin.Fd())); err != nil {
		return fmt.Errorf("dup2 stdin: %w", err)
	}
	if err := unix.Dup2(int(stdout.Fd()), int(os.Stdout.Fd())); err != nil {
		return fmt.Errorf("dup2 stdout: %w", err)
	}
	if err := unix.Dup2(int(stderr.Fd()), int(os.Stderr.Fd())); err != nil {
		return fmt.Errorf("dup2 stderr: %w", err)
	}
	return nil
}

func orDevNull(path string) string {
	if path == "" {
		return "/dev/null"
	}
	return path
}

// resolveEnv falls back to a minimal PATH matching Pentagon's read-only
// root skeleton (§DefaultReadOnlyBinds only ever binds /bin, not
// /usr/local/sbin or /sbin), rather than the shell's usual broad default.
func resolveEnv(env []string) []string {
	if len(env) > 0 {
		return env
	}
	return []string{"PATH=/bin"}
}

func replaceEnv(env []string) error {
	os.Clearenv()
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("set env %s: %w", k, err)
		}
	}
	return nil
}

// installSeccompFilter reads the deny-list profile written by
// internal/sandbox and loads it via libseccomp. NO_NEW_PRIVS must be set
// immediately before Load, or the kernel refuses to install a filter for
// an unprivileged process.
func installSeccompFilter(profilePath string) error {
	data, err := os.ReadFile(profilePath)
	if err != nil {
		return fmt.Errorf("read seccomp profile: %w", err)
	}
	var cfg seccompConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse seccomp profile: %w", err)
	}

	defaultAction, err := seccompActionFor(cfg.DefaultAction)
	if err != nil {
		return err
	}
	filter, err := seccomp.NewFilter(defaultAction)
	if err != nil {
		return fmt.Errorf("create seccomp filter: %w", err)
	}
	for _, rule := range cfg.Syscalls {
		action, err := seccompActionFor(rule.Action)
		if err != nil {
			return err
		}
		for _, name := range rule.Names {
			if err := filter.AddRuleExact(name, action); err != nil {
				return fmt.Errorf("add seccomp rule for %s: %w", name, err)
			}
		}
	}

	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("set no-new-privs: %w", err)
	}
	return filter.Load()
}

func seccompActionFor(action string) (seccomp.ScmpAction, error) {
	switch strings.ToUpper(action) {
	case "SCMP_ACT_ALLOW":
		return seccomp.ActAllow, nil
	case "SCMP_ACT_KILL", "SCMP_ACT_KILL_PROCESS":
		return seccomp.ActKillProcess, nil
	default:
		return seccomp.ActKillProcess, fmt.Errorf("unsupported seccomp action %q", action)
	}
}

// seccompConfig mirrors internal/sandbox.seccompConfig's JSON shape
// exactly — this file and internal/sandbox/request.go describe the same
// wire format from opposite ends of the pipe and must be kept in lockstep.
type seccompConfig struct {
	DefaultAction string           `json:"defaultAction"`
	Syscalls      []seccompSyscall `json:"syscalls"`
}

type seccompSyscall struct {
	Names  []string `json:"names"`
	Action string   `json:"action"`
}

// initRequest mirrors internal/sandbox.initRequest's JSON shape exactly.
type initRequest struct {
	RunSpec       runSpec          `json:"RunSpec"`
	Isolation     isolationProfile `json:"Isolation"`
	EnableSeccomp bool             `json:"EnableSeccomp"`
	EnableNs      bool             `json:"EnableNs"`
}

type runSpec struct {
	WorkDir    string        `json:"WorkDir"`
	Cmd        []string      `json:"Cmd"`
	Env        []string      `json:"Env"`
	StdinPath  string        `json:"StdinPath"`
	StdoutPath string        `json:"StdoutPath"`
	StderrPath string        `json:"StderrPath"`
	BindMounts []mountSpec   `json:"BindMounts"`
	Limits     resourceLimit `json:"Limits"`
}

type mountSpec struct {
	Source   string `json:"Source"`
	Target   string `json:"Target"`
	ReadOnly bool   `json:"ReadOnly"`
}

type resourceLimit struct {
	CPUTimeMs  int64 `json:"CPUTimeMs"`
	WallTimeMs int64 `json:"WallTimeMs"`
	MemoryKB   int64 `json:"MemoryKB"`
	StackMB    int64 `json:"StackMB"`
	OutputMB   int64 `json:"OutputMB"`
	PIDs       int64 `json:"PIDs"`
	NoFile     int64 `json:"NoFile"`
}

type isolationProfile struct {
	RootFS         string `json:"RootFS"`
	SeccompProfile string `json:"SeccompProfile"`
	DisableNetwork bool   `json:"DisableNetwork"`
}
