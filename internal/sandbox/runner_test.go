package sandbox

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dontdude/goxec-eval/internal/config"
	"github.com/dontdude/goxec-eval/internal/domain"
	"github.com/dontdude/goxec-eval/internal/protocol"
)

func responseLine(t *testing.T, resp *protocol.Response) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, protocol.EncodeResponse(&buf, resp))
	return buf.Bytes()
}

func TestInterpret(t *testing.T) {
	stdout := NewLimitedWriter(64)
	_, _ = stdout.Write([]byte("printed\n"))

	t.Run("value", func(t *testing.T) {
		res, state, err := Interpret(stdout, responseLine(t, &protocol.Response{Status: protocol.StatusOK, Value: "2", TotalAlloc: 42, CPUTimeNS: 1000}), nil)
		require.NoError(t, err)
		assert.Equal(t, domain.SandboxCompleted, state)
		assert.Equal(t, domain.ValueOutcome("2"), res.Outcome)
		assert.Equal(t, "printed\n", res.ConsoleOutput)
		assert.EqualValues(t, 42, res.TotalMemoryAllocated)
		assert.EqualValues(t, 1000, res.ProcessorTime)
	})

	t.Run("exception", func(t *testing.T) {
		res, state, err := Interpret(stdout, responseLine(t, &protocol.Response{Status: protocol.StatusException, Error: "Error: x"}), nil)
		require.NoError(t, err)
		assert.Equal(t, domain.SandboxFaulted, state)
		assert.Equal(t, domain.ExceptionOutcome("Error: x"), res.Outcome)
	})

	t.Run("setup error", func(t *testing.T) {
		_, state, err := Interpret(stdout, responseLine(t, &protocol.Response{Status: protocol.StatusSetupError, Error: "seccomp"}), nil)
		assert.ErrorContains(t, err, "seccomp")
		assert.Equal(t, domain.SandboxFaulted, state)
	})

	t.Run("out of memory crash", func(t *testing.T) {
		res, state, err := Interpret(stdout, []byte("fatal error: runtime: out of memory\n\ngoroutine 1 [running]:\n"), nil)
		require.NoError(t, err)
		assert.Equal(t, domain.SandboxFaulted, state)
		assert.Equal(t, domain.OutcomeException, res.Outcome.Kind)
		assert.Contains(t, res.Outcome.Detail, "memory limit")
	})

	t.Run("silent death", func(t *testing.T) {
		res, _, err := Interpret(stdout, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeException, res.Outcome.Kind)
		assert.Contains(t, res.Outcome.Detail, "runner terminated")
	})
}

func TestNewRequest(t *testing.T) {
	limits := LimitsFromConfig(config.Defaults().Sandbox)
	assert.EqualValues(t, 512*1024*1024, limits.MemoryLimitBytes)

	unit := &domain.CompiledUnit{Source: "return 1;", Artifact: struct{}{}}
	req, err := NewRequest("sb-1", unit, limits)
	require.NoError(t, err)
	assert.Equal(t, protocol.Version, req.Protocol)
	assert.Equal(t, "return 1;", req.Source)
	assert.Equal(t, config.DefaultDeniedSyscalls, req.DeniedSyscalls)

	_, err = NewRequest("sb-1", &domain.CompiledUnit{Source: "x"}, limits)
	assert.Error(t, err)
}

func TestLimitedWriter(t *testing.T) {
	w := NewLimitedWriter(5)

	n, err := w.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.False(t, w.Truncated())

	n, err = w.Write([]byte("defgh"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "abcde", w.String())
	assert.True(t, w.Truncated())

	n, _ = w.Write([]byte("more"))
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("abcde"), w.Bytes())
}
