package config

import "time"

// Config represents the complete goxec-eval configuration shared by the worker and the gateway.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Redis    RedisConfig    `yaml:"redis"`
	Worker   WorkerConfig   `yaml:"worker"`
	Compiler CompilerConfig `yaml:"compiler"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Gateway  GatewayConfig  `yaml:"gateway"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// RedisConfig defines the inbound stream and the outbound result channel.
type RedisConfig struct {
	Addr             string        `yaml:"addr"`
	Stream           string        `yaml:"stream"`
	Group            string        `yaml:"group"`
	DeadLetterStream string        `yaml:"dead_letter_stream"`
	ResultsChannel   string        `yaml:"results_channel"`
	ResultKeyPrefix  string        `yaml:"result_key_prefix"`
	ResultTTL        time.Duration `yaml:"result_ttl"`
}

// WorkerConfig defines the receive loop and its redelivery policy.
type WorkerConfig struct {
	Concurrency      int           `yaml:"concurrency"`
	AdminAddr        string        `yaml:"admin_addr"`
	RecoveryInterval time.Duration `yaml:"recovery_interval"`
	ReclaimIdle      time.Duration `yaml:"reclaim_idle"`
	MaxDeliveries    int64         `yaml:"max_deliveries"`
	DrainTimeout     time.Duration `yaml:"drain_timeout"`
}

// CompilerConfig bounds what the compiler accepts.
type CompilerConfig struct {
	MaxSourceBytes int `yaml:"max_source_bytes"`
}

// SandboxConfig defines how submitted code is isolated.
type SandboxConfig struct {
	// Backend is "process" (default) or "docker".
	Backend string `yaml:"backend"`

	// RunnerCommand starts the child runner. Empty means the current executable
	// with the sandbox-runner argument.
	RunnerCommand []string          `yaml:"runner_command,omitempty"`
	Env           map[string]string `yaml:"env,omitempty"`

	MemoryLimitMB  int           `yaml:"memory_limit_mb"`
	MaxOutputBytes int           `yaml:"max_output_bytes"`
	KillGrace      time.Duration `yaml:"kill_grace"`
	MaxCallStack   int           `yaml:"max_call_stack"`
	DeniedSyscalls []string      `yaml:"denied_syscalls"`

	Docker DockerConfig `yaml:"docker"`
}

// DockerConfig is used when Sandbox.Backend is "docker".
type DockerConfig struct {
	Image       string   `yaml:"image"`
	Command     []string `yaml:"command"`
	User        string   `yaml:"user"`
	PidsLimit   int64    `yaml:"pids_limit"`
	NanoCPUs    int64    `yaml:"nano_cpus"`
	PullOnStart bool     `yaml:"pull_on_start"`
}

// GatewayConfig defines the HTTP submission surface.
type GatewayConfig struct {
	Listen         string        `yaml:"listen"`
	RatePerSecond  float64       `yaml:"rate_per_second"`
	Burst          int           `yaml:"burst"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	MaxTimeout     time.Duration `yaml:"max_timeout"`
}

// DefaultDeniedSyscalls blocks network, process creation, file opening and mount operations
// inside the runner once it has read its request. The common names exist on amd64 and arm64;
// architectures that still carry the legacy file syscalls deny those too.
var DefaultDeniedSyscalls = append([]string{
	"socket", "connect", "bind", "listen", "accept4",
	"execve", "execveat", "ptrace",
	"openat", "unlinkat", "mkdirat",
	"mount", "umount2", "chroot", "pivot_root",
	"setuid", "setgid",
}, legacyDeniedSyscalls...)

// Defaults returns a Config with values suitable for a local deployment.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "goxec-eval",
			LogLevel:  "INFO",
			LogFormat: "json",
		},
		Redis: RedisConfig{
			Addr:             "localhost:6379",
			Stream:           "goxec:commands",
			Group:            "goxec:workers",
			DeadLetterStream: "goxec:commands:dead",
			ResultsChannel:   "goxec:results",
			ResultKeyPrefix:  "goxec:result:",
			ResultTTL:        time.Hour,
		},
		Worker: WorkerConfig{
			Concurrency:      4,
			AdminAddr:        ":9090",
			RecoveryInterval: 30 * time.Second,
			ReclaimIdle:      2 * time.Minute,
			MaxDeliveries:    3,
			DrainTimeout:     15 * time.Second,
		},
		Compiler: CompilerConfig{
			MaxSourceBytes: 64 * 1024,
		},
		Sandbox: SandboxConfig{
			Backend:        "process",
			MemoryLimitMB:  512,
			MaxOutputBytes: 64 * 1024,
			KillGrace:      2 * time.Second,
			MaxCallStack:   10000,
			DeniedSyscalls: append([]string(nil), DefaultDeniedSyscalls...),
			Docker: DockerConfig{
				Image:     "goxec-eval-runner:latest",
				Command:   []string{"/usr/local/bin/goxec-worker", "sandbox-runner"},
				User:      "nobody",
				PidsLimit: 64,
				NanoCPUs:  1_000_000_000,
			},
		},
		Gateway: GatewayConfig{
			Listen:         ":8080",
			RatePerSecond:  0.5,
			Burst:          5,
			DefaultTimeout: 5 * time.Second,
			MaxTimeout:     30 * time.Second,
		},
	}
}
