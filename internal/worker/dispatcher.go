package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/dontdude/goxec-eval/internal/domain"
	"github.com/dontdude/goxec-eval/internal/log"
	"github.com/dontdude/goxec-eval/internal/platform/metrics"
)

// Dispatcher turns one inbound command into a published WorkerResult.
// It holds no per-command state and is safe for concurrent use.
type Dispatcher struct {
	compiler  domain.Compiler
	sandboxes domain.SandboxFactory
	publisher *Publisher
	now       func() time.Time

	// maxTimeout caps the sandbox time of any command; zero means uncapped.
	maxTimeout time.Duration
}

var _ Receiver = (*Dispatcher)(nil)

func NewDispatcher(compiler domain.Compiler, sandboxes domain.SandboxFactory, publisher *Publisher) *Dispatcher {
	return &Dispatcher{
		compiler:  compiler,
		sandboxes: sandboxes,
		publisher: publisher,
		now:       time.Now,
	}
}

// WithMaxTimeout caps how long any single command may run in a sandbox. Commands
// that reach the stream without going through the gateway are held to the same limit.
func (d *Dispatcher) WithMaxTimeout(limit time.Duration) *Dispatcher {
	d.maxTimeout = limit
	return d
}

// Receive drops stale commands, compiles the rest and executes what compiled.
// The returned bool is false when the command was dropped and nothing was published.
func (d *Dispatcher) Receive(ctx context.Context, cmd domain.ExecutionCommand) (domain.WorkerResult, bool) {
	logger := log.WithExecution(cmd.ExecutionID, cmd.ClientID)
	metrics.CommandsReceived.Inc()

	start := d.now()
	if cmd.IsStale(start) {
		metrics.StaleDropped.Inc()
		logger.Warn("dropping stale command", "age", cmd.Age(start), "timeout", cmd.TimeoutPeriod)
		return domain.WorkerResult{}, false
	}

	metrics.ActiveExecutions.Inc()
	defer metrics.ActiveExecutions.Dec()

	result := domain.WorkerResult{
		ExecutionID: cmd.ExecutionID,
		ClientID:    cmd.ClientID,
		StartTime:   start.UTC(),
	}

	unit := d.compiler.Compile(cmd.Source)
	metrics.ExecutionDuration.WithLabelValues("compile").Observe(ms(d.now().Sub(start)))

	if !unit.Executable() {
		result.Outcome = domain.CompileFailureOutcome()
		if unit != nil {
			result.Diagnostics = unit.Diagnostics
		}
		logger.Info("compilation failed", "diagnostics", len(result.Diagnostics))
	} else {
		timeout := cmd.TimeoutPeriod
		if d.maxTimeout > 0 && timeout > d.maxTimeout {
			logger.Warn("capping command timeout", "requested", timeout, "max", d.maxTimeout)
			timeout = d.maxTimeout
		}
		execStart := d.now()
		result.ExecutionResult = d.execute(ctx, logger, unit, timeout)
		metrics.ExecutionDuration.WithLabelValues("execute").Observe(ms(d.now().Sub(execStart)))
	}

	stop := d.now()
	result.StopTime = stop.UTC()
	result.RunDuration = stop.Sub(start)

	metrics.ExecutionDuration.WithLabelValues("total").Observe(ms(result.RunDuration))
	metrics.Outcomes.WithLabelValues(string(result.Outcome.Kind)).Inc()
	if result.Outcome.Kind != domain.OutcomeCompileFailure {
		metrics.ProcessorTime.Observe(ms(result.ProcessorTime))
		metrics.MemoryAllocated.Observe(float64(result.TotalMemoryAllocated) / 1024)
	}

	logger.Info("command processed",
		"outcome", result.Outcome.Kind,
		"run_duration", result.RunDuration,
		"processor_time", result.ProcessorTime,
		"memory_bytes", result.TotalMemoryAllocated,
	)

	d.publisher.Publish(ctx, result)
	return result, true
}

// execute runs the unit in a fresh sandbox that is released on every path,
// including a panic escaping Execute.
func (d *Dispatcher) execute(ctx context.Context, logger *slog.Logger, unit *domain.CompiledUnit, timeout time.Duration) (res domain.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("sandbox panicked", "panic", r, "stack", string(debug.Stack()))
			res = domain.ExecutionResult{Outcome: domain.InternalErrorOutcome(fmt.Errorf("sandbox panic: %v", r))}
		}
	}()

	sb, err := d.sandboxes.Acquire(ctx)
	if err != nil {
		logger.Error("failed to acquire sandbox", "error", err)
		return domain.ExecutionResult{Outcome: domain.InternalErrorOutcome(fmt.Errorf("acquire sandbox: %w", err))}
	}
	defer func() {
		if err := sb.Close(); err != nil {
			logger.Warn("failed to release sandbox", "error", err)
		}
	}()

	res, err = sb.Execute(ctx, unit, timeout)
	if err != nil {
		logger.Error("sandbox failed", "error", err)
		return domain.ExecutionResult{Outcome: domain.InternalErrorOutcome(err)}
	}
	return res
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
