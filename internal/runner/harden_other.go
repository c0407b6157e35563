//go:build !linux

package runner

import (
	"errors"
	"time"

	"github.com/dontdude/goxec-eval/internal/protocol"
)

// harden only supports resource limits on linux. Syscall filtering cannot be
// emulated, so requesting it elsewhere is a setup error.
func harden(req *protocol.Request) error {
	if len(req.DeniedSyscalls) > 0 {
		return errors.New("syscall filtering requires linux; set sandbox.denied_syscalls to []")
	}
	return nil
}

func cpuTime() time.Duration { return 0 }
