package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"

	"github.com/dontdude/goxec-eval/internal/config"
	"github.com/dontdude/goxec-eval/internal/domain"
	"github.com/dontdude/goxec-eval/internal/protocol"
	"github.com/dontdude/goxec-eval/internal/sandbox"
)

const (
	// memoryHeadroom lets the runner's own memory limit trip before the cgroup OOM killer.
	memoryHeadroom = 64 * 1024 * 1024

	maxStderrBytes = 256 * 1024
	labelSandbox   = "goxec.sandbox"
)

// Client wraps the official Docker SDK client and hands out one container per command.
type Client struct {
	cli       *client.Client
	cfg       config.DockerConfig
	limits    sandbox.Limits
	killGrace time.Duration
	logger    *slog.Logger
}

// Check if Client implements domain.SandboxFactory
var _ domain.SandboxFactory = (*Client)(nil)

// NewClient initializes a Docker client and verifies the daemon is reachable.
// An unreachable daemon is an error so the worker refuses to start in a broken state.
func NewClient(ctx context.Context, cfg config.SandboxConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		logger.Error("Failed to create Docker client", "error", err)
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	// Ping Docker to ensure connection
	if _, err := cli.Ping(ctx); err != nil {
		logger.Error("Failed to connect to Docker Daemon", "error", err)
		_ = cli.Close()
		return nil, fmt.Errorf("ping docker daemon: %w", err)
	}

	logger.Info("Docker Client initialized successfully", "image", cfg.Docker.Image)
	return &Client{
		cli:       cli,
		cfg:       cfg.Docker,
		limits:    sandbox.LimitsFromConfig(cfg),
		killGrace: cfg.KillGrace,
		logger:    logger.With("component", "docker"),
	}, nil
}

// EnsureImage pulls the runner image when it is missing or when a pull is forced.
func (c *Client) EnsureImage(ctx context.Context) error {
	if !c.cfg.PullOnStart {
		_, err := c.cli.ImageInspect(ctx, c.cfg.Image)
		if err == nil {
			return nil
		}
		if !cerrdefs.IsNotFound(err) {
			return fmt.Errorf("inspect image %s: %w", c.cfg.Image, err)
		}
	}

	c.logger.Info("Pulling image", "image", c.cfg.Image)
	reader, err := c.cli.ImagePull(ctx, c.cfg.Image, image.PullOptions{})
	if err != nil {
		c.logger.Error("Failed to pull image", "image", c.cfg.Image, "error", err)
		return fmt.Errorf("failed to pull image: %w", err)
	}
	// Drain the response body to ensure the pull completes properly.
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("read pull stream: %w", err)
	}
	return nil
}

// Close releases the SDK client.
func (c *Client) Close() error {
	return c.cli.Close()
}

// Acquire creates a stopped, locked-down container for one execution.
func (c *Client) Acquire(ctx context.Context) (domain.Sandbox, error) {
	id := uuid.NewString()

	resp, err := c.cli.ContainerCreate(ctx, c.containerConfig(id), c.hostConfig(), nil, nil, "goxec-"+id)
	if err != nil {
		c.logger.Error("Failed to create container", "error", err)
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	c.logger.Debug("Container created successfully", "containerID", resp.ID, "sandbox_id", id)
	return &Container{
		client:      c,
		sandboxID:   id,
		containerID: resp.ID,
		state:       domain.SandboxIdle,
	}, nil
}

func (c *Client) containerConfig(sandboxID string) *container.Config {
	return &container.Config{
		Image:           c.cfg.Image,
		Cmd:             c.cfg.Command,
		User:            c.cfg.User,
		Env:             []string{"HOME=/tmp"},
		WorkingDir:      "/tmp",
		Tty:             false,
		OpenStdin:       true,
		StdinOnce:       true,
		AttachStdin:     true,
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: true,
		Labels:          map[string]string{labelSandbox: sandboxID},
	}
}

func (c *Client) hostConfig() *container.HostConfig {
	pidsLimit := c.cfg.PidsLimit
	memory := int64(c.limits.MemoryLimitBytes)
	if memory > 0 {
		memory += memoryHeadroom
	}
	return &container.HostConfig{
		Resources: container.Resources{
			Memory:     memory,
			MemorySwap: memory,
			NanoCPUs:   c.cfg.NanoCPUs,
			PidsLimit:  &pidsLimit,
		},
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		SecurityOpt:    []string{"no-new-privileges"},
		CapDrop:        []string{"ALL"},
		Tmpfs: map[string]string{
			"/tmp": "rw,noexec,nosuid,size=16m,mode=1777",
		},
	}
}

// Container is a single-use sandbox backed by one Docker container.
type Container struct {
	client      *Client
	sandboxID   string
	containerID string

	mu    sync.Mutex
	state domain.SandboxState
}

var _ domain.Sandbox = (*Container)(nil)

// State returns the current lifecycle state.
func (s *Container) State() domain.SandboxState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Execute starts the container, feeds it the request and waits for it to exit or time out.
func (s *Container) Execute(ctx context.Context, unit *domain.CompiledUnit, timeout time.Duration) (domain.ExecutionResult, error) {
	s.mu.Lock()
	if s.state != domain.SandboxIdle {
		s.mu.Unlock()
		return domain.ExecutionResult{}, domain.ErrSandboxReused
	}
	s.state = domain.SandboxRunning
	s.mu.Unlock()

	result, final, err := s.run(ctx, unit, timeout)

	s.mu.Lock()
	if s.state == domain.SandboxRunning {
		s.state = final
	}
	s.mu.Unlock()
	return result, err
}

func (s *Container) run(ctx context.Context, unit *domain.CompiledUnit, timeout time.Duration) (domain.ExecutionResult, domain.SandboxState, error) {
	c := s.client
	req, err := sandbox.NewRequest(s.sandboxID, unit, c.limits)
	if err != nil {
		return domain.ExecutionResult{}, domain.SandboxFaulted, err
	}

	attach, err := c.cli.ContainerAttach(ctx, s.containerID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return domain.ExecutionResult{}, domain.SandboxFaulted, fmt.Errorf("failed to attach to container: %w", err)
	}
	defer attach.Close()

	waitCh, waitErrCh := c.cli.ContainerWait(ctx, s.containerID, container.WaitConditionNextExit)

	if err := c.cli.ContainerStart(ctx, s.containerID, container.StartOptions{}); err != nil {
		return domain.ExecutionResult{}, domain.SandboxFaulted, fmt.Errorf("failed to start container: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	go func() {
		if err := protocol.EncodeRequest(attach.Conn, req); err != nil {
			c.logger.Warn("failed to write request", "containerID", s.containerID, "error", err)
		}
		_ = attach.CloseWrite()
	}()

	stdout := sandbox.NewLimitedWriter(c.limits.MaxOutputBytes)
	stderr := sandbox.NewLimitedWriter(maxStderrBytes)
	copied := make(chan struct{})
	go func() {
		defer close(copied)
		// StdCopy demultiplexes the attached stream into two buffers
		_, _ = stdcopy.StdCopy(stdout, stderr, attach.Reader)
	}()

	select {
	case status := <-waitCh:
		s.drain(copied)
		return sandbox.Interpret(stdout, stderr.Bytes(), exitError(status))

	case err := <-waitErrCh:
		return domain.ExecutionResult{}, domain.SandboxFaulted, fmt.Errorf("container wait error: %w", err)

	case <-timer.C:
		c.logger.Warn("execution timed out, killing container", "containerID", s.containerID, "timeout", timeout)
		cpu, mem := s.stop(ctx)
		s.drain(copied)
		return domain.ExecutionResult{
			ConsoleOutput:        stdout.String(),
			OutputTruncated:      stdout.Truncated(),
			Outcome:              domain.TimeoutOutcome(),
			ProcessorTime:        cpu,
			TotalMemoryAllocated: mem,
		}, domain.SandboxTimedOut, nil

	case <-ctx.Done():
		s.kill(ctx)
		return domain.ExecutionResult{}, domain.SandboxFaulted, fmt.Errorf("execution aborted: %w", ctx.Err())
	}
}

// exitError folds the wait status into the error Interpret expects.
func exitError(status container.WaitResponse) error {
	if status.Error != nil && status.Error.Message != "" {
		return fmt.Errorf("container wait failed with status %d: %s", status.StatusCode, status.Error.Message)
	}
	if status.StatusCode != 0 {
		return fmt.Errorf("container exited with status %d", status.StatusCode)
	}
	return nil
}

func (c *Client) grace() time.Duration {
	if c.killGrace <= 0 {
		return 2 * time.Second
	}
	return c.killGrace
}

// drain waits for the output copy to finish, bounded by the kill grace.
func (s *Container) drain(copied <-chan struct{}) {
	select {
	case <-copied:
	case <-time.After(s.client.grace()):
		s.client.logger.Warn("output stream did not close", "containerID", s.containerID)
	}
}

// stop samples the accounting of a timed out container and kills it. Each daemon
// call is bounded by the kill grace so a slow daemon cannot hold the caller.
func (s *Container) stop(ctx context.Context) (time.Duration, uint64) {
	cpu, mem := s.sample(ctx)
	s.kill(ctx)
	return cpu, mem
}

func (s *Container) kill(ctx context.Context) {
	killCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.client.grace())
	defer cancel()
	if err := s.client.cli.ContainerKill(killCtx, s.containerID, "KILL"); err != nil && !cerrdefs.IsNotFound(err) {
		s.client.logger.Error("failed to kill container", "containerID", s.containerID, "error", err)
	}
}

// sample reads the container's accounting before it is killed.
func (s *Container) sample(ctx context.Context) (time.Duration, uint64) {
	ctx, cancel := context.WithTimeout(ctx, s.client.grace())
	defer cancel()

	stats, err := s.client.cli.ContainerStatsOneShot(ctx, s.containerID)
	if err != nil {
		return 0, 0
	}
	defer stats.Body.Close()

	cpu, mem, err := decodeStats(stats.Body)
	if err != nil {
		s.client.logger.Debug("failed to decode stats", "containerID", s.containerID, "error", err)
	}
	return cpu, mem
}

func decodeStats(r io.Reader) (time.Duration, uint64, error) {
	var st container.StatsResponse
	if err := json.NewDecoder(r).Decode(&st); err != nil {
		return 0, 0, fmt.Errorf("decode stats: %w", err)
	}
	mem := st.MemoryStats.MaxUsage
	if mem == 0 {
		mem = st.MemoryStats.Usage
	}
	return time.Duration(st.CPUStats.CPUUsage.TotalUsage), mem, nil
}

// Close force-removes the container. It is idempotent.
func (s *Container) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SandboxDisposed {
		return nil
	}
	s.state = domain.SandboxDisposed

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := s.client.cli.ContainerRemove(ctx, s.containerID, container.RemoveOptions{Force: true})
	if err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("remove container %s: %w", s.containerID, err)
	}
	return nil
}
