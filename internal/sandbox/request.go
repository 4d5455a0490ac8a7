package sandbox

// initRequest is the JSON handshake sent to cmd/sandbox-init over a pipe.
// The field names here must match cmd/sandbox-init/main.go's decoder
// exactly; the two are kept in separate binaries deliberately (the helper
// is the privileged process image that performs unshare/mount/chroot/
// seccomp/exec, and it must not link the rest of the daemon).
type initRequest struct {
	RunSpec       initRunSpec      `json:"RunSpec"`
	Isolation     isolationProfile `json:"Isolation"`
	EnableSeccomp bool             `json:"EnableSeccomp"`
	EnableNs      bool             `json:"EnableNs"`
}

type initRunSpec struct {
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

// seccompConfig is the on-disk JSON shape read by cmd/sandbox-init's
// applySeccomp. Pentagon always installs a strict deny-list: everything
// not named here is allowed, and the names below are unconditionally
// killed, matching the denied set fixed in SPEC_FULL.md §4.2.
type seccompConfig struct {
	DefaultAction string           `json:"defaultAction"`
	Syscalls      []seccompSyscall `json:"syscalls"`
}

type seccompSyscall struct {
	Names  []string `json:"names"`
	Action string   `json:"action"`
}

// deniedSyscalls is the unconditionally-denied set from §4.2: socket
// creation and bind/connect, mount, pivot_root, ptrace, kexec, module
// load, reboot, clock_settime, and the setuid family outside the initial
// call the helper itself makes before dropping privileges.
func deniedSyscalls() []string {
	return []string{
		"socket", "socketpair", "bind", "connect", "listen", "accept", "accept4",
		"mount", "umount2", "pivot_root",
		"ptrace", "process_vm_readv", "process_vm_writev",
		"kexec_load", "kexec_file_load",
		"init_module", "finit_module", "delete_module",
		"reboot",
		"clock_settime", "clock_settime64",
		"setuid", "setgid", "setreuid", "setregid", "setresuid", "setresgid",
	}
}

// buildSeccompProfile returns the deny-list configuration written to disk
// before every spawn and referenced by isolationProfile.SeccompProfile.
func buildSeccompProfile() seccompConfig {
	return seccompConfig{
		DefaultAction: "SCMP_ACT_ALLOW",
		Syscalls: []seccompSyscall{
			{Names: deniedSyscalls(), Action: "SCMP_ACT_KILL_PROCESS"},
		},
	}
}
