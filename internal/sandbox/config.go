package sandbox

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Mode selects how commands are isolated.
type Mode string

const (
	// ModeDocker uses Docker containers for isolation.
	ModeDocker Mode = "docker"
	// ModeHost runs commands directly on the host (no isolation).
	ModeHost Mode = "host"
	// ModeAuto selects Docker when available, otherwise host.
	ModeAuto Mode = "auto"
)

// Config holds sandbox execution settings.
type Config struct {
	Mode        Mode
	DockerImage string
	CPU         string
	Memory      string
	CmdTimeout  time.Duration
}

// DefaultConfig reads sandbox settings from the environment.
func DefaultConfig() Config {
	modeStr := strings.ToLower(os.Getenv("RAVEL_SANDBOX_MODE"))
	if modeStr == "" {
		modeStr = "auto"
	}

	var mode Mode
	switch modeStr {
	case "docker":
		mode = ModeDocker
	case "host":
		mode = ModeHost
	case "auto":
		mode = ModeAuto
	default:
		log.Printf("WARNING: Unknown RAVEL_SANDBOX_MODE value '%s', defaulting to 'auto'", modeStr)
		mode = ModeAuto
	}

	cmdTimeout := defaultCmdTimeout
	if timeoutStr := os.Getenv("RAVEL_CMD_TIMEOUT"); timeoutStr != "" {
		if d, err := time.ParseDuration(timeoutStr); err == nil && d > 0 {
			cmdTimeout = d
		} else {
			log.Printf("WARNING: Invalid RAVEL_CMD_TIMEOUT value '%s', using default 2m", timeoutStr)
		}
	}

	return Config{
		Mode:        mode,
		DockerImage: os.Getenv("RAVEL_DOCKER_IMAGE"),
		CPU:         getEnvOrDefault("RAVEL_DOCKER_CPU", "2"),
		Memory:      getEnvOrDefault("RAVEL_DOCKER_MEMORY", "1g"),
		CmdTimeout:  cmdTimeout,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

// IsDockerAvailable checks whether a Docker daemon is reachable.
func IsDockerAvailable(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "docker", "ps")
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run() == nil
}

// NewDefaultRunner builds a runner from RAVEL_SANDBOX_MODE:
// - "docker": use Docker, fall back to host with a warning if unavailable
// - "host": run directly on the host
// - "auto": Docker when available, otherwise host
func NewDefaultRunner() Runner {
	config := DefaultConfig()
	ctx := context.Background()

	switch config.Mode {
	case ModeDocker:
		if !IsDockerAvailable(ctx) {
			log.Printf("WARNING: Docker mode requested but Docker is not available. Falling back to host executor.")
			return &HostRunner{config: config}
		}
		dockerRunner, err := NewDockerRunner(config)
		if err != nil {
			log.Printf("WARNING: Failed to create Docker runner: %v. Falling back to host executor.", err)
			return &HostRunner{config: config}
		}
		return dockerRunner

	case ModeHost:
		return &HostRunner{config: config}

	default:
		if IsDockerAvailable(ctx) {
			dockerRunner, err := NewDockerRunner(config)
			if err != nil {
				log.Printf("WARNING: Docker available but failed to create runner: %v. Falling back to host executor.", err)
				return &HostRunner{config: config}
			}
			return dockerRunner
		}
		return &HostRunner{config: config}
	}
}

// NewRunner creates a specific runner implementation.
func NewRunner(mode Mode, config Config) (Runner, error) {
	switch mode {
	case ModeDocker:
		return NewDockerRunner(config)
	case ModeHost:
		return &HostRunner{config: config}, nil
	default:
		return nil, fmt.Errorf("unknown runner mode: %s", mode)
	}
}
