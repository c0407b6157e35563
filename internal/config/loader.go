package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads configuration from path on top of Defaults(). An empty path
// falls back to $GOXEC_CONFIG, and to pure defaults when that is unset too.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("GOXEC_CONFIG")
	}

	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Parse interpolates ${VAR} references and decodes YAML into cfg.
// Fields absent from data keep their current values.
func Parse(data []byte, cfg *Config) error {
	expanded := interpolateEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return err
	}
	return nil
}

func interpolateEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := envVarPattern.FindStringSubmatch(m)[1]
		return os.Getenv(name)
	})
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Service.LogLevel = v
	}
}

// Validate checks invariants the rest of the system relies on.
func (c *Config) Validate() error {
	var errs []error

	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required"))
	}
	if c.Redis.Stream == "" || c.Redis.Group == "" {
		errs = append(errs, errors.New("redis.stream and redis.group are required"))
	}
	if c.Redis.ResultsChannel == "" {
		errs = append(errs, errors.New("redis.results_channel is required"))
	}
	if c.Worker.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("worker.concurrency must be >= 1, got %d", c.Worker.Concurrency))
	}
	if c.Worker.MaxDeliveries < 1 {
		errs = append(errs, fmt.Errorf("worker.max_deliveries must be >= 1, got %d", c.Worker.MaxDeliveries))
	}
	if c.Compiler.MaxSourceBytes < 1 {
		errs = append(errs, errors.New("compiler.max_source_bytes must be positive"))
	}
	if c.Sandbox.KillGrace <= 0 {
		errs = append(errs, errors.New("sandbox.kill_grace must be positive"))
	}
	if c.Sandbox.MaxOutputBytes < 1 {
		errs = append(errs, errors.New("sandbox.max_output_bytes must be positive"))
	}

	switch c.Sandbox.Backend {
	case "process":
	case "docker":
		if c.Sandbox.Docker.Image == "" || len(c.Sandbox.Docker.Command) == 0 {
			errs = append(errs, errors.New("sandbox.docker.image and sandbox.docker.command are required for the docker backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("sandbox.backend must be \"process\" or \"docker\", got %q", c.Sandbox.Backend))
	}

	if c.Gateway.DefaultTimeout <= 0 || c.Gateway.MaxTimeout < c.Gateway.DefaultTimeout {
		errs = append(errs, errors.New("gateway timeouts must satisfy 0 < default_timeout <= max_timeout"))
	}
	// A command still running must never look idle to the recovery routine.
	if longest := c.Gateway.MaxTimeout + c.Sandbox.KillGrace; c.Worker.ReclaimIdle <= longest {
		errs = append(errs, fmt.Errorf("worker.reclaim_idle must exceed gateway.max_timeout + sandbox.kill_grace (%s), got %s", longest, c.Worker.ReclaimIdle))
	}

	return errors.Join(errs...)
}
