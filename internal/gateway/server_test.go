package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dontdude/goxec-eval/internal/compiler"
	"github.com/dontdude/goxec-eval/internal/config"
	"github.com/dontdude/goxec-eval/internal/domain"
	"github.com/dontdude/goxec-eval/internal/log"
	"github.com/dontdude/goxec-eval/internal/platform/queue"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "text")
	os.Exit(m.Run())
}

type fakeQueue struct {
	mu   sync.Mutex
	cmds []domain.ExecutionCommand
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, cmd domain.ExecutionCommand) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.cmds = append(q.cmds, cmd)
	return nil
}

type fakeFeed struct {
	mu     sync.Mutex
	stored map[string][]byte
	err    error
}

func (f *fakeFeed) SubscribeResults(context.Context) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (f *fakeFeed) LookupResult(_ context.Context, id string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, false, f.err
	}
	p, ok := f.stored[id]
	return p, ok, nil
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() config.GatewayConfig {
	cfg := config.Defaults().Gateway
	cfg.RatePerSecond = 100
	cfg.Burst = 100
	return cfg
}

func newTestServer(q Submitter, feed domain.ResultFeed, cfg config.GatewayConfig) *Server {
	s := New(q, feed, compiler.NewJavaScript(0), cfg)
	s.now = func() time.Time { return fixedNow }
	s.newID = func() string { return "exec-1" }
	return s
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.10:4321"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRunEnqueuesCommand(t *testing.T) {
	q := &fakeQueue{}
	s := newTestServer(q, &fakeFeed{}, testConfig())

	rec := post(t, s.Handler(), "/api/run", `{"source":"return 1+1;","client_id":"alice","timeout_ms":750}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "exec-1", body["execution_id"])
	assert.Equal(t, "queued", body["status"])

	require.Len(t, q.cmds, 1)
	cmd := q.cmds[0]
	assert.Equal(t, "exec-1", cmd.ExecutionID)
	assert.Equal(t, "alice", cmd.ClientID)
	assert.Equal(t, "return 1+1;", cmd.Source)
	assert.Equal(t, fixedNow, cmd.Submitted)
	assert.Equal(t, 750*time.Millisecond, cmd.TimeoutPeriod)
}

func TestRunDefaultsClientIDToCallerAddress(t *testing.T) {
	q := &fakeQueue{}
	s := newTestServer(q, &fakeFeed{}, testConfig())

	rec := post(t, s.Handler(), "/api/run", `{"source":"return 1;"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, q.cmds, 1)
	assert.Equal(t, "192.0.2.10", q.cmds[0].ClientID)
}

func TestTimeoutIsClamped(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultTimeout = 5 * time.Second
	cfg.MaxTimeout = 30 * time.Second
	s := newTestServer(&fakeQueue{}, &fakeFeed{}, cfg)

	assert.Equal(t, 5*time.Second, s.timeout(0))
	assert.Equal(t, time.Millisecond, s.timeout(1))
	assert.Equal(t, 2*time.Second, s.timeout(2000))
	assert.Equal(t, 30*time.Second, s.timeout(int64(time.Hour/time.Millisecond)))
}

func TestRunRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"invalid json", `{"source":`, http.StatusBadRequest},
		{"missing source", `{"client_id":"x"}`, http.StatusBadRequest},
		{"blank source", `{"source":"   "}`, http.StatusBadRequest},
		{"negative timeout", `{"source":"return 1;","timeout_ms":-5}`, http.StatusBadRequest},
		{"oversized body", `{"source":"` + strings.Repeat("a", maxBodyBytes) + `"}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQueue{}
			s := newTestServer(q, &fakeFeed{}, testConfig())

			rec := post(t, s.Handler(), "/api/run", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Empty(t, q.cmds)
		})
	}
}

func TestRunReportsEnqueueFailure(t *testing.T) {
	s := newTestServer(&fakeQueue{err: errors.New("connection refused")}, &fakeFeed{}, testConfig())

	rec := post(t, s.Handler(), "/api/run", `{"source":"return 1;"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestRunIsRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RatePerSecond = 0.001
	cfg.Burst = 1
	s := newTestServer(&fakeQueue{}, &fakeFeed{}, cfg)
	h := s.Handler()

	assert.Equal(t, http.StatusAccepted, post(t, h, "/api/run", `{"source":"return 1;"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, post(t, h, "/api/run", `{"source":"return 1;"}`).Code)
}

func TestCheckReturnsDiagnosticsWithoutEnqueueing(t *testing.T) {
	q := &fakeQueue{}
	s := newTestServer(q, &fakeFeed{}, testConfig())
	h := s.Handler()

	var body struct {
		Executable  bool                `json:"executable"`
		Diagnostics []domain.Diagnostic `json:"diagnostics"`
	}

	rec := post(t, h, "/api/check", `{"source":"return 1+;"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Executable)
	require.NotEmpty(t, body.Diagnostics)
	assert.Equal(t, domain.SeverityError, body.Diagnostics[0].Severity)
	assert.Equal(t, 1, body.Diagnostics[0].Line)

	rec = post(t, h, "/api/check", `{"source":"return 1+1;"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Executable)
	assert.Contains(t, rec.Body.String(), `"diagnostics":[]`)

	assert.Empty(t, q.cmds)
}

func TestResultLookup(t *testing.T) {
	feed := &fakeFeed{stored: map[string][]byte{"exec-9": []byte(`{"execution_id":"exec-9","result":"2"}`)}}
	s := newTestServer(&fakeQueue{}, feed, testConfig())
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/results/exec-9", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"execution_id":"exec-9","result":"2"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/results/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	feed.err = errors.New("redis down")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/results/exec-9", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(&fakeQueue{}, &fakeFeed{}, testConfig())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/run", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func dialWS(t *testing.T, srv *httptest.Server, executionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?execution_id=" + executionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(msg)
}

func TestWebsocketReceivesBroadcastResult(t *testing.T) {
	s := newTestServer(&fakeQueue{}, &fakeFeed{}, testConfig())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	results := make(chan []byte, 2)
	go s.Broadcast(results)
	defer close(results)

	conn := dialWS(t, srv, "exec-5")
	require.Eventually(t, func() bool { return s.hub.Waiting("exec-5") == 1 }, 5*time.Second, 10*time.Millisecond)

	results <- []byte(`{"execution_id":"someone-else","result":"0"}`)
	results <- []byte(`{"execution_id":"exec-5","result":"2"}`)

	assert.JSONEq(t, `{"execution_id":"exec-5","result":"2"}`, readWS(t, conn))
}

func TestWebsocketReceivesEarlierResult(t *testing.T) {
	feed := &fakeFeed{stored: map[string][]byte{"exec-7": []byte(`{"execution_id":"exec-7","result":"[execution timed out]"}`)}}
	s := newTestServer(&fakeQueue{}, feed, testConfig())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dialWS(t, srv, "exec-7")
	assert.Contains(t, readWS(t, conn), "[execution timed out]")
}

func TestWebsocketRequiresExecutionID(t *testing.T) {
	s := newTestServer(&fakeQueue{}, &fakeFeed{}, testConfig())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ws", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHubDropsBrokenClients(t *testing.T) {
	s := newTestServer(&fakeQueue{}, &fakeFeed{}, testConfig())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dialWS(t, srv, "exec-3")
	require.Eventually(t, func() bool { return s.hub.Waiting("exec-3") == 1 }, 5*time.Second, 10*time.Millisecond)

	_ = conn.Close()
	require.Eventually(t, func() bool { return s.hub.Waiting("exec-3") == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Zero(t, s.hub.Deliver("exec-3", []byte(`{}`)))
}

func TestGatewayAgainstRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	opts := queue.OptionsFromConfig(config.Defaults().Redis)
	q := queue.NewRedisQueueWithClient(rdb, opts)
	defer q.Close()

	s := newTestServer(q, q, testConfig())
	h := s.Handler()

	rec := post(t, h, "/api/run", `{"source":"return 1+1;"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	n, err := rdb.XLen(context.Background(), opts.Stream).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	payload := []byte(`{"execution_id":"exec-1","result":"2","outcome":"value"}`)
	require.NoError(t, q.EmitResult(context.Background(), "exec-1", payload))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/results/exec-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, string(payload), rec.Body.String())
}
