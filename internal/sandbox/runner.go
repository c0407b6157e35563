package sandbox

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/dontdude/goxec-eval/internal/config"
	"github.com/dontdude/goxec-eval/internal/domain"
	"github.com/dontdude/goxec-eval/internal/protocol"
	"github.com/dontdude/goxec-eval/internal/runner"
)

// maxStderrBytes caps what is kept from the runner's stderr: the response line plus
// enough of a Go crash trace to explain it.
const maxStderrBytes = 256 * 1024

// Limits are the per-run restrictions both backends hand to the runner.
type Limits struct {
	MemoryLimitBytes uint64
	MaxOutputBytes   int
	MaxCallStack     int
	DeniedSyscalls   []string
}

// LimitsFromConfig extracts the runner limits from the sandbox configuration.
func LimitsFromConfig(cfg config.SandboxConfig) Limits {
	return Limits{
		MemoryLimitBytes: uint64(cfg.MemoryLimitMB) * 1024 * 1024,
		MaxOutputBytes:   cfg.MaxOutputBytes,
		MaxCallStack:     cfg.MaxCallStack,
		DeniedSyscalls:   append([]string(nil), cfg.DeniedSyscalls...),
	}
}

// NewRequest builds the runner request for one compiled unit.
func NewRequest(sandboxID string, unit *domain.CompiledUnit, limits Limits) (*protocol.Request, error) {
	if unit == nil || !unit.Executable() {
		return nil, errors.New("compiled unit is not executable")
	}
	return &protocol.Request{
		Protocol:         protocol.Version,
		SandboxID:        sandboxID,
		Source:           unit.Source,
		MemoryLimitBytes: limits.MemoryLimitBytes,
		MaxCallStack:     limits.MaxCallStack,
		DeniedSyscalls:   limits.DeniedSyscalls,
	}, nil
}

// Interpret turns what a finished runner left behind into an execution result and the
// state the sandbox ends in. Accounting fields stay zero when the runner died before
// reporting; callers fill them from their own measurements. A non-nil error means the
// runner could not be set up, which is not the submission's fault.
func Interpret(stdout *LimitedWriter, stderr []byte, exitErr error) (domain.ExecutionResult, domain.SandboxState, error) {
	result := domain.ExecutionResult{
		ConsoleOutput:   stdout.String(),
		OutputTruncated: stdout.Truncated(),
	}

	resp, rest, err := protocol.DecodeResponseLenient(stderr)
	if err != nil {
		result.Outcome = domain.ExceptionOutcome(crashSummary(exitErr, rest))
		return result, domain.SandboxFaulted, nil
	}

	result.TotalMemoryAllocated = resp.TotalAlloc
	result.ProcessorTime = time.Duration(resp.CPUTimeNS)

	switch resp.Status {
	case protocol.StatusOK:
		result.Outcome = domain.ValueOutcome(resp.Value)
		return result, domain.SandboxCompleted, nil
	case protocol.StatusException:
		result.Outcome = domain.ExceptionOutcome(resp.Error)
		return result, domain.SandboxFaulted, nil
	default:
		return domain.ExecutionResult{}, domain.SandboxFaulted, fmt.Errorf("runner setup failed: %s", resp.Error)
	}
}

// crashSummary explains a runner that exited without a response line.
func crashSummary(exitErr error, stderr []byte) string {
	trace := string(stderr)
	switch {
	case strings.Contains(trace, "out of memory"), strings.Contains(trace, "cannot allocate memory"):
		return "RangeError: memory limit exceeded"
	case strings.Contains(trace, "stack overflow"):
		return runner.StackOverflowSummary
	}

	var ee *exec.ExitError
	if errors.As(exitErr, &ee) {
		return fmt.Sprintf("InternalError: runner terminated (%s)", ee.ProcessState.String())
	}
	if exitErr != nil {
		return "InternalError: runner terminated: " + exitErr.Error()
	}
	return "InternalError: runner terminated without a result"
}

// DefaultRunnerCommand re-executes the current binary in runner mode.
func DefaultRunnerCommand() ([]string, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	return []string{self, runner.Arg}, nil
}
