package domain

import "context"

// CommandQueue defines the contract for the inbound command channel.
// It decouples the application from the underlying message broker (Redis, RabbitMQ, etc.).
// Delivery is at-least-once: a command may be seen more than once.
type CommandQueue interface {
	// Enqueue appends a command for processing.
	Enqueue(ctx context.Context, cmd ExecutionCommand) error

	// Subscribe returns a read-only channel that streams commands from the queue.
	// The channel is closed when ctx is cancelled.
	Subscribe(ctx context.Context) (<-chan ExecutionCommand, error)

	// Acknowledge confirms that a command has been handled.
	// This removes it from the Pending Entry list (PEL).
	Acknowledge(ctx context.Context, rawID string) error
}

// ResultEmitter is the outbound side: it emits an already serialized WorkerResult.
// Emission is best effort.
type ResultEmitter interface {
	EmitResult(ctx context.Context, executionID string, payload []byte) error
}

// ResultFeed is consumed by the gateway to deliver results to callers.
type ResultFeed interface {
	// SubscribeResults returns a channel of serialized results from all workers.
	SubscribeResults(ctx context.Context) (<-chan []byte, error)

	// LookupResult returns the stored result for an execution, or ok=false if none is known.
	LookupResult(ctx context.Context, executionID string) (payload []byte, ok bool, err error)
}
