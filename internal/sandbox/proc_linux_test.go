package sandbox

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func assertReaped(t *testing.T, pid int) {
	t.Helper()
	assert.ErrorIs(t, syscall.Kill(pid, 0), syscall.ESRCH, "runner %d still exists", pid)
	assert.ErrorIs(t, syscall.Kill(-pid, 0), syscall.ESRCH, "process group %d still exists", pid)
}
