// Package sandbox runs compiled submissions in a child runner process that is
// killed as a whole process group when it exceeds its time limit.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dontdude/goxec-eval/internal/config"
	"github.com/dontdude/goxec-eval/internal/domain"
	"github.com/dontdude/goxec-eval/internal/protocol"
)

const defaultKillGrace = 2 * time.Second

// ProcessOptions configure the process backend.
type ProcessOptions struct {
	// Command is the runner argv. It must end up calling runner.Main.
	Command []string
	// Env is the complete environment of the runner. Nothing is inherited from the worker.
	Env       map[string]string
	KillGrace time.Duration
	Limits    Limits
}

// ProcessOptionsFromConfig resolves the runner command and limits.
func ProcessOptionsFromConfig(cfg config.SandboxConfig) (ProcessOptions, error) {
	command := cfg.RunnerCommand
	if len(command) == 0 {
		var err error
		if command, err = DefaultRunnerCommand(); err != nil {
			return ProcessOptions{}, err
		}
	}
	return ProcessOptions{
		Command:   command,
		Env:       cfg.Env,
		KillGrace: cfg.KillGrace,
		Limits:    LimitsFromConfig(cfg),
	}, nil
}

// ProcessFactory hands out single-use process sandboxes.
type ProcessFactory struct {
	opts   ProcessOptions
	logger *slog.Logger
}

var _ domain.SandboxFactory = (*ProcessFactory)(nil)

func NewProcessFactory(opts ProcessOptions, logger *slog.Logger) (*ProcessFactory, error) {
	if len(opts.Command) == 0 {
		return nil, errors.New("sandbox runner command is empty")
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = defaultKillGrace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessFactory{opts: opts, logger: logger.With("component", "sandbox")}, nil
}

// Acquire prepares a private working directory for the next run.
func (f *ProcessFactory) Acquire(ctx context.Context) (domain.Sandbox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp("", "goxec-sandbox-*")
	if err != nil {
		return nil, fmt.Errorf("create sandbox dir: %w", err)
	}
	id := uuid.NewString()
	return &ProcessSandbox{
		id:     id,
		opts:   f.opts,
		dir:    dir,
		logger: f.logger.With("sandbox_id", id),
		state:  domain.SandboxIdle,
	}, nil
}

// ProcessSandbox is one isolation boundary: a scratch directory and at most one runner process.
type ProcessSandbox struct {
	id     string
	opts   ProcessOptions
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	state domain.SandboxState
	cmd   *exec.Cmd
	pid   int
}

var _ domain.Sandbox = (*ProcessSandbox)(nil)

// State returns the current lifecycle state.
func (s *ProcessSandbox) State() domain.SandboxState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Execute runs the unit once. The timeout is enforced by killing the runner's whole
// process group; whatever it printed until then is kept.
func (s *ProcessSandbox) Execute(ctx context.Context, unit *domain.CompiledUnit, timeout time.Duration) (domain.ExecutionResult, error) {
	s.mu.Lock()
	if s.state != domain.SandboxIdle {
		s.mu.Unlock()
		return domain.ExecutionResult{}, domain.ErrSandboxReused
	}
	s.state = domain.SandboxRunning
	s.mu.Unlock()

	result, final, err := s.run(ctx, unit, timeout)

	s.mu.Lock()
	if s.state == domain.SandboxRunning {
		s.state = final
	}
	s.cmd = nil
	s.mu.Unlock()

	return result, err
}

func (s *ProcessSandbox) run(ctx context.Context, unit *domain.CompiledUnit, timeout time.Duration) (domain.ExecutionResult, domain.SandboxState, error) {
	req, err := NewRequest(s.id, unit, s.opts.Limits)
	if err != nil {
		return domain.ExecutionResult{}, domain.SandboxFaulted, err
	}
	if timeout <= 0 {
		return domain.ExecutionResult{}, domain.SandboxFaulted, fmt.Errorf("invalid timeout %s", timeout)
	}

	cmd := exec.Command(s.opts.Command[0], s.opts.Command[1:]...)
	cmd.Dir = s.dir
	cmd.Env = s.env()
	cmd.SysProcAttr = sysProcAttr()
	cmd.WaitDelay = s.opts.KillGrace

	stdout := NewLimitedWriter(s.opts.Limits.MaxOutputBytes)
	stderr := NewLimitedWriter(maxStderrBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return domain.ExecutionResult{}, domain.SandboxFaulted, fmt.Errorf("create stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return domain.ExecutionResult{}, domain.SandboxFaulted, fmt.Errorf("start runner: %w", err)
	}
	s.mu.Lock()
	s.cmd = cmd
	s.pid = cmd.Process.Pid
	s.mu.Unlock()

	s.logger.Debug("runner started", "pid", cmd.Process.Pid, "timeout", timeout)

	// The timer starts once the process exists, so startup cost is not charged to the caller.
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	writeErr := make(chan error, 1)
	go func() {
		defer stdin.Close()
		writeErr <- protocol.EncodeRequest(stdin, req)
	}()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	select {
	case err := <-waitErr:
		return s.finished(cmd, stdout, stderr, err, <-writeErr)

	case <-timer.C:
		select {
		case err := <-waitErr:
			return s.finished(cmd, stdout, stderr, err, <-writeErr)
		default:
		}
		s.logger.Warn("execution timed out, killing runner", "pid", cmd.Process.Pid, "timeout", timeout)
		killProcessGroup(cmd)
		<-waitErr

		result := domain.ExecutionResult{
			ConsoleOutput:        stdout.String(),
			OutputTruncated:      stdout.Truncated(),
			Outcome:              domain.TimeoutOutcome(),
			ProcessorTime:        processorTime(cmd.ProcessState),
			TotalMemoryAllocated: peakMemory(cmd.ProcessState),
		}
		return result, domain.SandboxTimedOut, nil

	case <-ctx.Done():
		killProcessGroup(cmd)
		<-waitErr
		return domain.ExecutionResult{}, domain.SandboxFaulted, fmt.Errorf("execution aborted: %w", ctx.Err())
	}
}

func (s *ProcessSandbox) finished(cmd *exec.Cmd, stdout, stderr *LimitedWriter, exitErr, writeErr error) (domain.ExecutionResult, domain.SandboxState, error) {
	result, state, err := Interpret(stdout, stderr.Bytes(), exitErr)
	if err != nil {
		return result, state, err
	}
	if writeErr != nil && state == domain.SandboxFaulted {
		s.logger.Warn("runner did not accept request", "error", writeErr)
	}
	if result.ProcessorTime == 0 {
		result.ProcessorTime = processorTime(cmd.ProcessState)
	}
	if result.TotalMemoryAllocated == 0 {
		result.TotalMemoryAllocated = peakMemory(cmd.ProcessState)
	}
	s.logger.Debug("runner finished", "state", state.String(), "exit", cmd.ProcessState.ExitCode())
	return result, state, nil
}

// env builds the runner environment from the configured allow-list only.
func (s *ProcessSandbox) env() []string {
	keys := make([]string, 0, len(s.opts.Env))
	for k := range s.opts.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys)+1)
	env = append(env, "HOME="+s.dir)
	for _, k := range keys {
		env = append(env, k+"="+s.opts.Env[k])
	}
	return env
}

// Close kills a runner that is still alive and removes the working directory.
// It is idempotent.
func (s *ProcessSandbox) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == domain.SandboxDisposed {
		return nil
	}
	if s.cmd != nil && s.cmd.Process != nil {
		killProcessGroup(s.cmd)
	}
	s.state = domain.SandboxDisposed

	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove sandbox dir: %w", err)
	}
	return nil
}

func processorTime(ps *os.ProcessState) time.Duration {
	if ps == nil {
		return 0
	}
	return ps.UserTime() + ps.SystemTime()
}
