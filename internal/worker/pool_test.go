package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dontdude/goxec-eval/internal/domain"
	"github.com/dontdude/goxec-eval/internal/worker/mocks"
)

type receiverFunc func(ctx context.Context, cmd domain.ExecutionCommand) (domain.WorkerResult, bool)

func (f receiverFunc) Receive(ctx context.Context, cmd domain.ExecutionCommand) (domain.WorkerResult, bool) {
	return f(ctx, cmd)
}

func TestPoolAcknowledgesEveryCommand(t *testing.T) {
	queue := mocks.NewMockCommandQueue(gomock.NewController(t))

	var handled atomic.Int32
	recv := receiverFunc(func(_ context.Context, cmd domain.ExecutionCommand) (domain.WorkerResult, bool) {
		handled.Add(1)
		// odd ids behave like stale drops
		return domain.WorkerResult{}, cmd.ExecutionID != "exec-1"
	})

	queue.EXPECT().Acknowledge(gomock.Any(), "1-0").Return(nil)
	queue.EXPECT().Acknowledge(gomock.Any(), "2-0").Return(nil)
	queue.EXPECT().Acknowledge(gomock.Any(), "3-0").Return(nil)

	cmds := make(chan domain.ExecutionCommand, 3)
	cmds <- domain.ExecutionCommand{ExecutionID: "exec-1", RawID: "1-0"}
	cmds <- domain.ExecutionCommand{ExecutionID: "exec-2", RawID: "2-0"}
	cmds <- domain.ExecutionCommand{ExecutionID: "exec-3", RawID: "3-0"}
	close(cmds)

	err := NewPool(2, recv, queue).Run(context.Background(), cmds)
	require.NoError(t, err)
	assert.EqualValues(t, 3, handled.Load())
}

func TestPoolBoundsConcurrency(t *testing.T) {
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	recv := receiverFunc(func(context.Context, domain.ExecutionCommand) (domain.WorkerResult, bool) {
		mu.Lock()
		active++
		if active > maxSeen {
			maxSeen = active
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return domain.WorkerResult{}, true
	})

	cmds := make(chan domain.ExecutionCommand)
	go func() {
		defer close(cmds)
		for range 12 {
			cmds <- domain.ExecutionCommand{ExecutionID: "x"}
		}
	}()

	require.NoError(t, NewPool(3, recv, nil).Run(context.Background(), cmds))
	assert.LessOrEqual(t, maxSeen, 3)
	assert.Positive(t, maxSeen)
}

func TestPoolFinishesInFlightWorkOnCancel(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	recv := receiverFunc(func(ctx context.Context, _ domain.ExecutionCommand) (domain.WorkerResult, bool) {
		close(started)
		time.Sleep(100 * time.Millisecond)
		// shutdown does not cancel the command's own context
		finished.Store(ctx.Err() == nil)
		return domain.WorkerResult{}, true
	})

	ctx, cancel := context.WithCancel(context.Background())
	cmds := make(chan domain.ExecutionCommand, 1)
	cmds <- domain.ExecutionCommand{ExecutionID: "x"}

	done := make(chan error, 1)
	go func() { done <- NewPool(1, recv, nil).Run(ctx, cmds) }()

	<-started
	cancel()
	require.NoError(t, <-done)
	assert.True(t, finished.Load())
}

func TestPoolReportsWorkerPanic(t *testing.T) {
	recv := receiverFunc(func(context.Context, domain.ExecutionCommand) (domain.WorkerResult, bool) {
		panic("escaped")
	})

	cmds := make(chan domain.ExecutionCommand, 1)
	cmds <- domain.ExecutionCommand{ExecutionID: "x"}

	err := NewPool(1, recv, nil).Run(context.Background(), cmds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escaped")
}
