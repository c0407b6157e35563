package worker

import (
	"context"

	"github.com/dontdude/goxec-eval/internal/domain"
)

//go:generate mockgen -destination=mocks/mock_domain.go -package=mocks github.com/dontdude/goxec-eval/internal/domain Compiler,Sandbox,SandboxFactory,ResultEmitter,CommandQueue

// Receiver handles one inbound command. It reports false when the command was dropped.
type Receiver interface {
	Receive(ctx context.Context, cmd domain.ExecutionCommand) (domain.WorkerResult, bool)
}

// Acknowledger confirms that an inbound command has been handled.
type Acknowledger interface {
	Acknowledge(ctx context.Context, rawID string) error
}
