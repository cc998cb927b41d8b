package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/selimbzr/ravel/internal/providers"
	"github.com/selimbzr/ravel/internal/sandbox"
)

// Default worker settings.
const (
	DefaultWorkerCommand = "pi"
	DefaultWorkerModel   = "google/gemini-2.0-flash-lite"
	DefaultWorkerTimeout = 120 * time.Second

	// PromptFileName is written into the sub-query directory and fed to
	// CLI workers as standard input.
	PromptFileName = "prompt.txt"
)

// TimeoutError reports a worker that exceeded its invocation budget.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("worker timed out after %ds", int(e.Timeout.Seconds()))
}

// ExitError reports a worker process that exited non-zero.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("worker exited with code %d", e.Code)
}

// ErrParse means the worker produced output but no final assistant message
// could be extracted from it.
var ErrParse = errors.New("no assistant message found in worker output")

// Worker answers one sub-query. dir is the query's isolated state directory
// and already contains the prompt file; prompt is the same text in memory.
// Implementations return the extracted answer text, or a TimeoutError,
// ExitError, or ErrParse describing the failure.
type Worker interface {
	Query(ctx context.Context, dir, prompt string, remainingDepth int, timeout time.Duration) (string, error)
}

// CLIWorker spawns an external reasoning CLI as an isolated subprocess. The
// sub-query's state directory and decremented depth are injected through an
// appended system prompt so the worker can itself recurse within budget.
type CLIWorker struct {
	Runner  sandbox.Runner
	Command string
	Model   string
}

// NewCLIWorker builds a worker with defaults filled from the environment:
// RAVEL_WORKER_CMD and RAVEL_WORKER_MODEL override the command and model.
func NewCLIWorker(runner sandbox.Runner) *CLIWorker {
	cmd := os.Getenv("RAVEL_WORKER_CMD")
	if cmd == "" {
		cmd = DefaultWorkerCommand
	}
	model := os.Getenv("RAVEL_WORKER_MODEL")
	if model == "" {
		model = DefaultWorkerModel
	}
	return &CLIWorker{Runner: runner, Command: cmd, Model: model}
}

func (w *CLIWorker) Query(ctx context.Context, dir, prompt string, remainingDepth int, timeout time.Duration) (string, error) {
	systemAppend := fmt.Sprintf("RAVEL_STATE_DIR=%s RAVEL_REMAINING_DEPTH=%d",
		dir, remainingDepth-1)

	res, err := w.Runner.Run(ctx, sandbox.Spec{
		Dir:  dir,
		Name: w.Command,
		Args: []string{
			"--mode", "json",
			"-p",
			"--no-session",
			"--model", w.Model,
			"--append-system-prompt", systemAppend,
		},
		StdinFile: PromptFileName,
		Timeout:   timeout,
	})
	if err != nil {
		return "", err
	}
	if res.TimedOut {
		return "", &TimeoutError{Timeout: timeout}
	}
	if res.Code != 0 {
		return "", &ExitError{Code: res.Code, Stderr: res.Stderr}
	}

	text := ParseWorkerOutput(res.Stdout)
	if text == "" {
		return "", ErrParse
	}
	return text, nil
}

// APIWorker answers sub-queries through a provider API instead of a CLI
// subprocess. Depth still applies: API workers cannot recurse, so the
// decremented depth is informational only.
type APIWorker struct {
	Client providers.LLMClient
	Model  string
}

func (w *APIWorker) Query(ctx context.Context, dir, prompt string, remainingDepth int, timeout time.Duration) (string, error) {
	_ = dir
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := w.Client.Complete(callCtx, w.Model, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &TimeoutError{Timeout: timeout}
		}
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrParse
	}
	return text, nil
}

// workerEvent is one record of the CLI worker's streaming JSONL output.
type workerEvent struct {
	Type    string `json:"type"`
	Message struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
}

// ParseWorkerOutput extracts the final assistant text from a worker's
// streaming JSONL output. It scans from the end for the last message_end
// event with an assistant role and joins that message's text segments.
// Returns "" when no such event exists.
func ParseWorkerOutput(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		var event workerEvent
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue
		}
		if event.Type != "message_end" || event.Message.Role != "assistant" {
			continue
		}
		var texts []string
		for _, c := range event.Message.Content {
			if c.Type == "text" && c.Text != "" {
				texts = append(texts, c.Text)
			}
		}
		return strings.Join(texts, "\n")
	}
	return ""
}

// WritePrompt stores the prompt into the sub-query directory.
func WritePrompt(dir, prompt string) (string, error) {
	p := filepath.Join(dir, PromptFileName)
	if err := os.WriteFile(p, []byte(prompt), 0644); err != nil {
		return "", fmt.Errorf("failed to write prompt file: %w", err)
	}
	return p, nil
}
