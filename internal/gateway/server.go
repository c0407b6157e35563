// Package gateway is the HTTP surface in front of the command stream: it turns
// submissions into commands and pushes published results back to callers.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dontdude/goxec-eval/internal/config"
	"github.com/dontdude/goxec-eval/internal/domain"
	"github.com/dontdude/goxec-eval/internal/log"
	"github.com/dontdude/goxec-eval/internal/platform/metrics"
	"github.com/dontdude/goxec-eval/internal/platform/web"
)

const maxBodyBytes = 1 << 20

// Submitter accepts commands for the workers.
type Submitter interface {
	Enqueue(ctx context.Context, cmd domain.ExecutionCommand) error
}

// Server holds the gateway's dependencies.
type Server struct {
	queue    Submitter
	results  domain.ResultFeed
	compiler domain.Compiler
	limiter  *web.RateLimiter
	cfg      config.GatewayConfig
	hub      *Hub
	upgrader websocket.Upgrader

	now   func() time.Time
	newID func() string
}

// New wires a gateway. The compiler only serves /api/check; nothing is executed here.
func New(q Submitter, results domain.ResultFeed, c domain.Compiler, cfg config.GatewayConfig) *Server {
	return &Server{
		queue:    q,
		results:  results,
		compiler: c,
		limiter:  web.NewRateLimiter(cfg.RatePerSecond, cfg.Burst),
		cfg:      cfg,
		hub:      NewHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Allow all origins for dev
		},
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func logger() *slog.Logger {
	return log.WithComponent("gateway")
}

// Handler returns the routed, CORS-enabled handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/run", s.limiter.RateLimitMiddleware(s.handleRun))
	mux.HandleFunc("POST /api/check", s.limiter.RateLimitMiddleware(s.handleCheck))
	mux.HandleFunc("GET /api/results/{id}", s.handleResult)
	mux.HandleFunc("GET /api/ws", s.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())

	return enableCORS(mux)
}

// Run serves on addr, forwards published results to websocket clients and evicts
// idle rate limit buckets until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	g, gctx := errgroup.WithContext(ctx)

	results, err := s.results.SubscribeResults(gctx)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		s.limiter.Run(gctx)
		return nil
	})
	g.Go(func() error {
		s.Broadcast(results)
		return nil
	})
	g.Go(func() error {
		logger().Info("API server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Broadcast forwards every published result to the clients waiting on its execution id.
// It returns when results is closed.
func (s *Server) Broadcast(results <-chan []byte) {
	logger().Info("starting result broadcaster")
	for payload := range results {
		var head struct {
			ExecutionID string `json:"execution_id"`
		}
		if err := json.Unmarshal(payload, &head); err != nil || head.ExecutionID == "" {
			logger().Warn("dropping unreadable result", "error", err)
			continue
		}
		s.hub.Deliver(head.ExecutionID, payload)
	}
}

type runRequest struct {
	Source    string `json:"source"`
	ClientID  string `json:"client_id"`
	TimeoutMS int64  `json:"timeout_ms"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if status, err := decodeBody(w, r, &req); err != nil {
		s.reject(w, "run", status, err.Error())
		return
	}
	if strings.TrimSpace(req.Source) == "" {
		s.reject(w, "run", http.StatusBadRequest, "source is required")
		return
	}
	if req.TimeoutMS < 0 {
		s.reject(w, "run", http.StatusBadRequest, "timeout_ms must not be negative")
		return
	}

	clientID := req.ClientID
	if clientID == "" {
		clientID = web.ClientIP(r)
	}

	cmd := domain.ExecutionCommand{
		ExecutionID:   s.newID(),
		ClientID:      clientID,
		Source:        req.Source,
		Submitted:     s.now().UTC(),
		TimeoutPeriod: s.timeout(req.TimeoutMS),
	}

	logger().Info("received submission", "execution_id", cmd.ExecutionID, "client_id", cmd.ClientID)
	if err := s.queue.Enqueue(r.Context(), cmd); err != nil {
		logger().Error("failed to enqueue command", "execution_id", cmd.ExecutionID, "error", err)
		s.reject(w, "run", http.StatusInternalServerError, "Internal Server Error")
		return
	}

	metrics.Submissions.WithLabelValues("run", "accepted").Inc()
	web.WriteJSON(w, http.StatusAccepted, map[string]string{
		"execution_id": cmd.ExecutionID,
		"status":       "queued",
	})
}

// timeout applies the default and clamps to [1ms, MaxTimeout].
func (s *Server) timeout(ms int64) time.Duration {
	d := s.cfg.DefaultTimeout
	if ms > 0 {
		d = time.Duration(ms) * time.Millisecond
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	if s.cfg.MaxTimeout > 0 && d > s.cfg.MaxTimeout {
		d = s.cfg.MaxTimeout
	}
	return d
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
	}
	if status, err := decodeBody(w, r, &req); err != nil {
		s.reject(w, "check", status, err.Error())
		return
	}

	unit := s.compiler.Compile(req.Source)
	diags := unit.Diagnostics
	if diags == nil {
		diags = []domain.Diagnostic{}
	}

	metrics.Submissions.WithLabelValues("check", "ok").Inc()
	web.WriteJSON(w, http.StatusOK, map[string]any{
		"executable":  unit.Executable(),
		"diagnostics": diags,
	})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	payload, ok, err := s.results.LookupResult(r.Context(), id)
	if err != nil {
		logger().Error("failed to look up result", "execution_id", id, "error", err)
		s.reject(w, "result", http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if !ok {
		s.reject(w, "result", http.StatusNotFound, "result not found")
		return
	}

	metrics.Submissions.WithLabelValues("result", "ok").Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// handleWS upgrades the connection and registers it for one execution id. A result
// that was published before the client connected is sent straight away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	executionID := r.URL.Query().Get("execution_id")
	if executionID == "" {
		s.reject(w, "ws", http.StatusBadRequest, "execution_id is required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger().Error("websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn}

	logger().Info("client connected via websocket", "execution_id", executionID, "remote_addr", conn.RemoteAddr().String())
	s.hub.register(executionID, c)
	defer func() {
		s.hub.unregister(executionID, c)
		_ = conn.Close()
		logger().Info("client disconnected", "execution_id", executionID)
	}()

	if payload, ok, err := s.results.LookupResult(r.Context(), executionID); err != nil {
		logger().Warn("failed to look up result", "execution_id", executionID, "error", err)
	} else if ok {
		if err := c.send(payload); err != nil {
			return
		}
	}

	// Keep the connection open until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) reject(w http.ResponseWriter, endpoint string, status int, msg string) {
	metrics.Submissions.WithLabelValues(endpoint, http.StatusText(status)).Inc()
	web.WriteJSON(w, status, map[string]string{"error": msg})
}

// decodeBody reads a capped JSON body into v and returns the status to reply with on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) (int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, errors.New("request body too large")
		}
		return http.StatusBadRequest, errors.New("invalid request body")
	}
	return http.StatusOK, nil
}

// enableCORS adds headers to allow requests from the frontend.
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		// Handle preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
