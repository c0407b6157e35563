package worker

import (
	"context"
	"log/slog"

	"github.com/dontdude/goxec-eval/internal/domain"
	"github.com/dontdude/goxec-eval/internal/log"
	"github.com/dontdude/goxec-eval/internal/platform/metrics"
	"github.com/dontdude/goxec-eval/internal/protocol"
)

// Publisher serializes results and hands them to the outbound channel.
// Publishing is best effort: failures are logged and the result is dropped.
type Publisher struct {
	emitter domain.ResultEmitter
	encode  func(domain.WorkerResult) ([]byte, error)
	logger  *slog.Logger
}

func NewPublisher(emitter domain.ResultEmitter) *Publisher {
	return &Publisher{
		emitter: emitter,
		encode:  protocol.EncodeResult,
		logger:  log.WithComponent("publisher"),
	}
}

// Publish reports whether the result left the process.
func (p *Publisher) Publish(ctx context.Context, result domain.WorkerResult) bool {
	data, err := p.encode(result)
	if err != nil {
		metrics.PublishFailures.WithLabelValues("serialize").Inc()
		p.logger.Error("failed to serialize result, dropping it",
			"execution_id", result.ExecutionID, "client_id", result.ClientID, "error", err)
		return false
	}

	if err := p.emitter.EmitResult(ctx, result.ExecutionID, data); err != nil {
		metrics.PublishFailures.WithLabelValues("emit").Inc()
		p.logger.Error("failed to emit result, dropping it",
			"execution_id", result.ExecutionID, "client_id", result.ClientID, "error", err)
		return false
	}

	p.logger.Debug("result published", "execution_id", result.ExecutionID, "bytes", len(data))
	return true
}
