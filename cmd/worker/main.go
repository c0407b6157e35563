package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dontdude/goxec-eval/internal/compiler"
	"github.com/dontdude/goxec-eval/internal/config"
	"github.com/dontdude/goxec-eval/internal/domain"
	"github.com/dontdude/goxec-eval/internal/log"
	"github.com/dontdude/goxec-eval/internal/platform/docker"
	"github.com/dontdude/goxec-eval/internal/platform/queue"
	"github.com/dontdude/goxec-eval/internal/runner"
	"github.com/dontdude/goxec-eval/internal/sandbox"
	"github.com/dontdude/goxec-eval/internal/supervisor"
	"github.com/dontdude/goxec-eval/internal/worker"
)

func main() {
	// The sandbox re-executes this binary as its runner. Nothing may be written
	// to stdout before the runner takes over.
	if len(os.Args) > 1 && os.Args[1] == runner.Arg {
		os.Exit(runner.Main(os.Stdin, os.Stdout, os.Stderr))
	}

	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	os.Exit(run(*configPath))
}

func run(configPath string) int {
	// 1. Load configuration and initialize logger
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Get().Error("failed to load configuration", "error", err)
		return supervisor.ExitFatal
	}
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("starting goxec worker", "backend", cfg.Sandbox.Backend, "concurrency", cfg.Worker.Concurrency)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Infrastructure (fail fast)
	redisQ, err := queue.NewRedisQueue(ctx, cfg.Redis.Addr, queue.OptionsFromConfig(cfg.Redis))
	if err != nil {
		logger.Error("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
		return supervisor.ExitFatal
	}

	sandboxes, closeSandboxes, err := newSandboxFactory(ctx, cfg.Sandbox, logger)
	if err != nil {
		logger.Error("failed to initialize sandbox backend", "backend", cfg.Sandbox.Backend, "error", err)
		_ = redisQ.Close()
		return supervisor.ExitFatal
	}
	defer closeSandboxes()

	// 3. Pipeline
	dispatcher := worker.NewDispatcher(
		compiler.NewJavaScript(cfg.Compiler.MaxSourceBytes),
		sandboxes,
		worker.NewPublisher(redisQ),
	).WithMaxTimeout(cfg.Gateway.MaxTimeout)
	pool := worker.NewPool(cfg.Worker.Concurrency, dispatcher, redisQ)

	// 4. Supervision
	sup := supervisor.New(redisQ, cfg.Worker.DrainTimeout)
	sup.Go("receive loop", func(ctx context.Context) error {
		cmds, err := redisQ.Subscribe(ctx)
		if err != nil {
			return err
		}
		return pool.Run(ctx, cmds)
	})
	sup.Go("recovery", func(ctx context.Context) error {
		return redisQ.StartRecoveryRoutine(ctx, cfg.Worker.RecoveryInterval, cfg.Worker.ReclaimIdle, cfg.Worker.MaxDeliveries)
	})
	if cfg.Worker.AdminAddr != "" {
		sup.Go("admin", supervisor.AdminServer(cfg.Worker.AdminAddr, supervisor.AdminHandler(sup.Running)))
	}

	return sup.Run(ctx)
}

// newSandboxFactory builds the configured backend and returns its release function.
func newSandboxFactory(ctx context.Context, cfg config.SandboxConfig, logger *slog.Logger) (domain.SandboxFactory, func(), error) {
	switch cfg.Backend {
	case "", "process":
		opts, err := sandbox.ProcessOptionsFromConfig(cfg)
		if err != nil {
			return nil, nil, err
		}
		factory, err := sandbox.NewProcessFactory(opts, logger)
		if err != nil {
			return nil, nil, err
		}
		return factory, func() {}, nil

	case "docker":
		dockerClient, err := docker.NewClient(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := dockerClient.EnsureImage(ctx); err != nil {
			_ = dockerClient.Close()
			return nil, nil, err
		}
		return dockerClient, func() { _ = dockerClient.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown sandbox backend %q", cfg.Backend)
	}
}
