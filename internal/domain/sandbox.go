package domain

import (
	"context"
	"errors"
	"time"
)

// ErrSandboxReused is returned when Execute is called on a sandbox that already ran or was closed.
var ErrSandboxReused = errors.New("sandbox instance already used")

// ExecutionResult is what a Sandbox reports for one run. It is immutable once returned.
type ExecutionResult struct {
	ConsoleOutput        string
	Outcome              Outcome
	ProcessorTime        time.Duration
	TotalMemoryAllocated uint64

	// OutputTruncated is set when the code wrote more than the configured output cap.
	OutputTruncated bool
}

// Sandbox executes one compiled unit inside a fresh isolation boundary.
// Instances are single use: Idle -> Running -> {Completed, TimedOut, Faulted} -> Disposed.
type Sandbox interface {
	// Execute runs the unit with a hard wall-clock limit. Failures of the executed code are
	// reported through the result Outcome; the error is reserved for infrastructure faults.
	Execute(ctx context.Context, unit *CompiledUnit, timeout time.Duration) (ExecutionResult, error)

	// Close tears the isolation boundary down. It is safe to call more than once.
	Close() error
}

// SandboxFactory hands out fresh Sandbox instances, one per command.
type SandboxFactory interface {
	Acquire(ctx context.Context) (Sandbox, error)
}

// SandboxState tracks the lifecycle of a Sandbox instance.
type SandboxState int

const (
	SandboxIdle SandboxState = iota
	SandboxRunning
	SandboxCompleted
	SandboxTimedOut
	SandboxFaulted
	SandboxDisposed
)

func (s SandboxState) String() string {
	switch s {
	case SandboxIdle:
		return "idle"
	case SandboxRunning:
		return "running"
	case SandboxCompleted:
		return "completed"
	case SandboxTimedOut:
		return "timed_out"
	case SandboxFaulted:
		return "faulted"
	case SandboxDisposed:
		return "disposed"
	}
	return "unknown"
}
