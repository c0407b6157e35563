package protocol

import (
	"time"

	"github.com/dontdude/goxec-eval/internal/domain"
)

// Version is the sandbox runner protocol version.
const Version = 1

// Command is the wire form of domain.ExecutionCommand.
type Command struct {
	ExecutionID string    `json:"execution_id"`
	ClientID    string    `json:"client_id"`
	Source      string    `json:"source"`
	Submitted   time.Time `json:"submitted"`
	TimeoutMS   int64     `json:"timeout_ms"`
}

// Result is the wire form of domain.WorkerResult.
type Result struct {
	ExecutionID          string              `json:"execution_id"`
	ClientID             string              `json:"client_id"`
	StartTime            time.Time           `json:"start_time"`
	StopTime             time.Time           `json:"stop_time"`
	RunDurationMS        float64             `json:"run_duration_ms"`
	ProcessorTimeMS      float64             `json:"processor_time_ms"`
	TotalMemoryAllocated uint64              `json:"total_memory_allocated"`
	ConsoleOutput        string              `json:"console_output"`
	OutputTruncated      bool                `json:"output_truncated,omitempty"`
	Result               string              `json:"result"`
	Outcome              string              `json:"outcome"`
	Detail               string              `json:"detail,omitempty"`
	Diagnostics          []domain.Diagnostic `json:"diagnostics,omitempty"`
}

// Request is written by the sandbox to the runner's stdin.
type Request struct {
	Protocol         int      `json:"protocol"`
	SandboxID        string   `json:"sandbox_id"`
	Source           string   `json:"source"`
	MemoryLimitBytes uint64   `json:"memory_limit_bytes,omitempty"`
	MaxCallStack     int      `json:"max_call_stack,omitempty"`
	DeniedSyscalls   []string `json:"denied_syscalls,omitempty"`
}

// Response statuses.
const (
	StatusOK         = "ok"
	StatusException  = "exception"
	StatusSetupError = "setup_error"
)

// Response is the runner's final line on stderr.
type Response struct {
	Protocol   int    `json:"protocol"`
	Status     string `json:"status"`
	Value      string `json:"value,omitempty"`
	Error      string `json:"error,omitempty"`
	TotalAlloc uint64 `json:"total_alloc"`
	CPUTimeNS  int64  `json:"cpu_time_ns"`
}
