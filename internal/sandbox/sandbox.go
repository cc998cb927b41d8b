// Package sandbox runs external processes — reasoning workers and the
// structure analyzer — either directly on the host or inside a locked-down
// Docker container.
package sandbox

import (
	"context"
	"time"
)

// Spec describes one command invocation.
type Spec struct {
	// Dir is the working directory for the command. Docker mode mounts it
	// into the container.
	Dir  string
	Name string
	Args []string
	// StdinFile, when set, is a file inside Dir fed to the command as
	// standard input.
	StdinFile string
	Env       []string
	// Timeout bounds the whole invocation; <=0 selects the configured
	// default.
	Timeout time.Duration
}

// Result captures the outcome of a command.
type Result struct {
	Stdout   string
	Stderr   string
	Code     int
	TimedOut bool
}

// Runner executes commands in some degree of isolation from the host.
type Runner interface {
	Run(ctx context.Context, spec Spec) (Result, error)
}
