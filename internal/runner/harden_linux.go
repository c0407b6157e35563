//go:build linux

package runner

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	seccomp "github.com/elastic/go-seccomp-bpf"
	"golang.org/x/sys/unix"

	"github.com/dontdude/goxec-eval/internal/protocol"
)

const maxOpenFiles = 64

// harden lowers the runner's own limits (hard limits included, so they cannot be
// raised again) and installs the syscall deny-list. It runs after the request has
// been read and before any submitted code is compiled.
func harden(req *protocol.Request) error {
	limits := []struct {
		name     string
		resource int
		value    uint64
	}{
		{"core", unix.RLIMIT_CORE, 0},
		{"fsize", unix.RLIMIT_FSIZE, 0},
		{"nofile", unix.RLIMIT_NOFILE, maxOpenFiles},
	}
	if req.MemoryLimitBytes > 0 {
		limits = append(limits, struct {
			name     string
			resource int
			value    uint64
		}{"data", unix.RLIMIT_DATA, req.MemoryLimitBytes})
		// make the collector work hard before the hard limit kills us
		debug.SetMemoryLimit(int64(req.MemoryLimitBytes / 4 * 3))
	}

	for _, l := range limits {
		if err := unix.Setrlimit(l.resource, &unix.Rlimit{Cur: l.value, Max: l.value}); err != nil {
			return fmt.Errorf("setrlimit %s: %w", l.name, err)
		}
	}

	if len(req.DeniedSyscalls) == 0 {
		return nil
	}
	if !seccomp.Supported() {
		return errors.New("seccomp is not supported by this kernel")
	}

	filter := seccomp.Filter{
		NoNewPrivs: true,
		Flag:       seccomp.FilterFlagTSync,
		Policy: seccomp.Policy{
			DefaultAction: seccomp.ActionAllow,
			Syscalls: []seccomp.SyscallGroup{
				{Action: seccomp.ActionErrno, Names: req.DeniedSyscalls},
			},
		},
	}
	if err := seccomp.LoadFilter(filter); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}

func cpuTime() time.Duration {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	return time.Duration(ru.Utime.Nano() + ru.Stime.Nano())
}
