// Package supervisor owns the worker's long-running goroutines and turns any
// fault that escapes them into an orderly shutdown with a non-zero exit status.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dontdude/goxec-eval/internal/log"
)

// Exit statuses returned by Run.
const (
	ExitOK    = 0
	ExitFatal = 1
)

const defaultDrain = 15 * time.Second

// Job is a background routine. It must return when ctx is done.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Supervisor runs jobs until the process is told to stop or one of them fails.
type Supervisor struct {
	jobs    []Job
	inbound io.Closer
	drain   time.Duration
	logger  *slog.Logger
	running atomic.Bool
}

// New returns a supervisor that closes inbound once the jobs are done, or once
// the drain interval has passed, whichever comes first.
func New(inbound io.Closer, drain time.Duration) *Supervisor {
	if drain <= 0 {
		drain = defaultDrain
	}
	return &Supervisor{
		inbound: inbound,
		drain:   drain,
		logger:  log.WithComponent("supervisor"),
	}
}

// Go registers a job. It must be called before Run.
func (s *Supervisor) Go(name string, run func(ctx context.Context) error) {
	s.jobs = append(s.jobs, Job{Name: name, Run: run})
}

// Running reports whether Run is active and no shutdown has begun.
func (s *Supervisor) Running() bool {
	return s.running.Load()
}

// Run starts every job and blocks until shutdown completes. It returns ExitOK when
// ctx was cancelled and everything drained, ExitFatal otherwise.
func (s *Supervisor) Run(ctx context.Context) int {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	for _, job := range s.jobs {
		g.Go(s.guard(gctx, job))
	}
	s.running.Store(true)
	s.logger.Info("supervisor started", "jobs", len(s.jobs))

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var (
		err      error
		finished bool
	)
	select {
	case <-gctx.Done():
	case err = <-done:
		finished = true
	}

	// stop taking new work
	s.running.Store(false)
	cancel()

	if !finished {
		select {
		case err = <-done:
		case <-time.After(s.drain):
			err = errors.Join(err, fmt.Errorf("in-flight work did not drain within %s", s.drain))
		}
	}

	if s.inbound != nil {
		if cerr := s.inbound.Close(); cerr != nil {
			s.logger.Warn("failed to close inbound channel", "error", cerr)
		}
	}

	switch {
	case err != nil:
		s.logger.Error("fatal process failure, exiting", "fatal", true, "error", err)
		return ExitFatal
	case ctx.Err() == nil:
		s.logger.Error("background jobs exited unexpectedly", "fatal", true)
		return ExitFatal
	default:
		s.logger.Info("supervisor stopped")
		return ExitOK
	}
}

// guard turns a panic escaping a job into an error that brings the group down.
func (s *Supervisor) guard(ctx context.Context, job Job) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("job panicked", "job", job.Name, "panic", r, "stack", string(debug.Stack()))
				err = fmt.Errorf("%s panicked: %v", job.Name, r)
			}
		}()

		if err := job.Run(ctx); err != nil {
			return fmt.Errorf("%s: %w", job.Name, err)
		}
		if ctx.Err() == nil {
			return fmt.Errorf("%s exited before shutdown", job.Name)
		}
		return nil
	}
}
