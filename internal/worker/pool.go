package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dontdude/goxec-eval/internal/domain"
	"github.com/dontdude/goxec-eval/internal/log"
)

const ackTimeout = 5 * time.Second

// Pool implements a fixed-size worker pool pattern.
// It bounds how many commands are processed (and sandboxes are alive) at once.
type Pool struct {
	// workerCount determines how many commands run concurrently.
	workerCount int
	// tasksCh is the queue for incoming commands.
	tasksCh chan domain.ExecutionCommand
	// wg tracks active workers to ensure graceful shutdown.
	wg sync.WaitGroup

	receiver Receiver
	acker    Acknowledger
	logger   *slog.Logger

	// faults carries the first panic that escaped a worker.
	faults chan error
}

// NewPool initializes the worker pool with a fixed concurrency limit.
func NewPool(concurrency int, receiver Receiver, acker Acknowledger) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		workerCount: concurrency,
		// Buffer the channel to allow non-blocking submission up to a certain point.
		tasksCh:  make(chan domain.ExecutionCommand, concurrency),
		receiver: receiver,
		acker:    acker,
		logger:   log.WithComponent("pool"),
		faults:   make(chan error, 1),
	}
}

// Run feeds commands to the workers until cmds closes, ctx is done or a worker
// faults. In-flight commands are finished before it returns.
func (p *Pool) Run(ctx context.Context, cmds <-chan domain.ExecutionCommand) error {
	p.Start()
	defer p.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-p.faults:
			return err
		case cmd, ok := <-cmds:
			if !ok {
				return nil
			}
			select {
			case p.tasksCh <- cmd:
			case err := <-p.faults:
				return err
			case <-ctx.Done():
				// not acknowledged; the recovery routine hands it out again
				return nil
			}
		}
	}
}

// Start spawns the fixed number of worker goroutines.
// It returns immediately.
func (p *Pool) Start() {
	p.logger.Info("Starting worker pool", "concurrency", p.workerCount)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop closes the task channel and blocks until all workers have finished their current command.
func (p *Pool) Stop() {
	p.logger.Info("Stopping worker pool, waiting for tasks to drain...")
	close(p.tasksCh)
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

// worker is the core logic that runs inside a goroutine.
func (p *Pool) worker(id int) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker panicked", "workerId", id, "panic", r, "stack", string(debug.Stack()))
			select {
			case p.faults <- fmt.Errorf("worker %d panicked: %v", id, r):
			default:
			}
		}
	}()

	// Range over the channel continuously reads commands until the channel is closed.
	for cmd := range p.tasksCh {
		p.logger.Debug("Processing command", "workerId", id, "execution_id", cmd.ExecutionID)

		// Shutdown must not cut a running command short; its own timeout bounds it.
		ctx := context.Background()
		p.receiver.Receive(ctx, cmd)
		p.acknowledge(cmd)
	}
}

// acknowledge runs for published, dropped and failed-to-publish commands alike.
func (p *Pool) acknowledge(cmd domain.ExecutionCommand) {
	if cmd.RawID == "" || p.acker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
	defer cancel()
	if err := p.acker.Acknowledge(ctx, cmd.RawID); err != nil {
		p.logger.Error("failed to acknowledge command", "execution_id", cmd.ExecutionID, "msgID", cmd.RawID, "error", err)
	}
}
