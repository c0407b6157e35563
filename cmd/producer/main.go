package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dontdude/goxec-eval/internal/config"
	"github.com/dontdude/goxec-eval/internal/domain"
	"github.com/dontdude/goxec-eval/internal/log"
	"github.com/dontdude/goxec-eval/internal/platform/queue"
)

// scenario is a smoke test submission and the result text it should produce.
type scenario struct {
	name    string
	source  string
	timeout time.Duration
	age     time.Duration
	expect  string
}

var scenarios = []scenario{
	{"value", "return 1+1;", 5 * time.Second, 0, "2"},
	{"infinite-loop", "while (true) {}", time.Second, 0, domain.TimeoutMarker},
	{"syntax-error", "return 1+;", 5 * time.Second, 0, domain.CompileFailureMarker},
	{"runtime-error", "var o = undefined;\nreturn o.field;", 5 * time.Second, 0, "TypeError: ..."},
	// Submitted a minute ago with a 5s deadline, so workers drop it.
	{"stale", "return 42;", 5 * time.Second, time.Minute, "(no result)"},
}

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	// 1. Initialize Logger
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Get().Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("producer")

	// 2. Initialize Redis Queue (Producer Mode)
	ctx := context.Background()
	redisQ, err := queue.NewRedisQueue(ctx, cfg.Redis.Addr, queue.OptionsFromConfig(cfg.Redis))
	if err != nil {
		logger.Error("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
		os.Exit(1)
	}
	defer redisQ.Close()

	// 3. Publish the scenarios
	run := time.Now().UTC().Format("150405")
	for _, sc := range scenarios {
		cmd := domain.ExecutionCommand{
			ExecutionID:   fmt.Sprintf("smoke-%s-%s", run, sc.name),
			ClientID:      "producer",
			Source:        sc.source,
			Submitted:     time.Now().UTC().Add(-sc.age),
			TimeoutPeriod: sc.timeout,
		}

		logger.Info("publishing command", "execution_id", cmd.ExecutionID, "expect", sc.expect)
		if err := redisQ.Enqueue(ctx, cmd); err != nil {
			logger.Error("failed to publish command", "execution_id", cmd.ExecutionID, "error", err)
			os.Exit(1)
		}
	}

	logger.Info("published scenarios", "count", len(scenarios))
}
