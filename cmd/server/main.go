package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/dontdude/goxec-eval/internal/compiler"
	"github.com/dontdude/goxec-eval/internal/config"
	"github.com/dontdude/goxec-eval/internal/gateway"
	"github.com/dontdude/goxec-eval/internal/log"
	"github.com/dontdude/goxec-eval/internal/platform/queue"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	// 1. Load configuration and initialize logger
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Get().Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Initialize Redis Queue (as a dependency)
	redisQ, err := queue.NewRedisQueue(ctx, cfg.Redis.Addr, queue.OptionsFromConfig(cfg.Redis))
	if err != nil {
		logger.Error("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
		os.Exit(1)
	}
	defer redisQ.Close()

	// 3. Serve until SIGINT/SIGTERM
	srv := gateway.New(redisQ, redisQ, compiler.NewJavaScript(cfg.Compiler.MaxSourceBytes), cfg.Gateway)
	if err := srv.Run(ctx, cfg.Gateway.Listen); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
