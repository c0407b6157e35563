package supervisor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dontdude/goxec-eval/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "text")
	os.Exit(m.Run())
}

type closer struct{ closed atomic.Bool }

func (c *closer) Close() error {
	c.closed.Store(true)
	return nil
}

// waitForCancel is a well-behaved job.
func waitForCancel(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func TestPanicShutsInboundDownWithFatalStatus(t *testing.T) {
	inbound := &closer{}
	s := New(inbound, time.Second)

	var stopped atomic.Bool
	s.Go("receive loop", func(ctx context.Context) error {
		<-ctx.Done()
		stopped.Store(true)
		return nil
	})
	s.Go("recovery", func(context.Context) error {
		panic("corrupted state")
	})

	assert.Equal(t, ExitFatal, s.Run(context.Background()))
	assert.True(t, stopped.Load(), "other jobs must be told to stop")
	assert.True(t, inbound.closed.Load())
	assert.False(t, s.Running())
}

func TestJobErrorIsFatal(t *testing.T) {
	inbound := &closer{}
	s := New(inbound, time.Second)
	s.Go("admin", func(context.Context) error { return errors.New("address in use") })
	s.Go("pool", waitForCancel)

	assert.Equal(t, ExitFatal, s.Run(context.Background()))
	assert.True(t, inbound.closed.Load())
}

func TestExternalStopExitsCleanly(t *testing.T) {
	inbound := &closer{}
	s := New(inbound, time.Second)
	s.Go("pool", waitForCancel)
	s.Go("admin", waitForCancel)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for !s.Running() {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()

	assert.Equal(t, ExitOK, s.Run(ctx))
	assert.True(t, inbound.closed.Load())
}

func TestUnexpectedExitIsFatal(t *testing.T) {
	s := New(nil, time.Second)
	s.Go("pool", func(context.Context) error { return nil })

	assert.Equal(t, ExitFatal, s.Run(context.Background()))
}

func TestEarlyExitStopsOtherJobs(t *testing.T) {
	inbound := &closer{}
	s := New(inbound, time.Second)
	s.Go("receive loop", func(context.Context) error { return nil })
	s.Go("recovery", waitForCancel)

	assert.Equal(t, ExitFatal, s.Run(context.Background()))
	assert.True(t, inbound.closed.Load())
}

func TestDrainIsBounded(t *testing.T) {
	inbound := &closer{}
	s := New(inbound, 50*time.Millisecond)

	release := make(chan struct{})
	defer close(release)
	s.Go("stuck", func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	assert.Equal(t, ExitFatal, s.Run(ctx))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, inbound.closed.Load())
}

func TestAdminHandler(t *testing.T) {
	var healthy atomic.Bool
	h := AdminHandler(healthy.Load)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	healthy.Store(true)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminServerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- AdminServer("127.0.0.1:0", http.NotFoundHandler())(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("admin server did not stop")
	}
}
