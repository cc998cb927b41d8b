package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/selimbzr/ravel/internal/dispatch"
	"github.com/selimbzr/ravel/internal/finalize"
	"github.com/selimbzr/ravel/internal/ingest"
	"github.com/selimbzr/ravel/internal/providers"
	"github.com/selimbzr/ravel/internal/sandbox"
	"github.com/selimbzr/ravel/internal/session"
)

// newDispatcher builds the worker stack for a session: a CLI worker in the
// configured sandbox by default, or a provider API worker when
// RAVEL_WORKER=api.
func newDispatcher(sessionDir string, timeout time.Duration, preserve bool) (*dispatch.Dispatcher, error) {
	var worker dispatch.Worker
	if os.Getenv("RAVEL_WORKER") == "api" {
		client, model, err := providers.NewLLMClientFromEnv()
		if err != nil {
			return nil, err
		}
		worker = &dispatch.APIWorker{Client: client, Model: model}
	} else {
		worker = dispatch.NewCLIWorker(sandbox.NewDefaultRunner())
	}

	limiter := dispatch.NewLimiter(envInt("RAVEL_CONCURRENCY_CAP", dispatch.GlobalConcurrencyCap))
	d := dispatch.NewDispatcher(worker, limiter, sessionDir)
	if timeout > 0 {
		d.Timeout = timeout
	}
	d.Preserve = preserve
	return d, nil
}

// remainingDepth resolves the recursion depth left: the session's value, overridden
// by RAVEL_REMAINING_DEPTH when this process is itself a spawned worker.
func remainingDepth(sess *session.Session) int {
	return envInt("RAVEL_REMAINING_DEPTH", sess.RemainingDepth)
}

func cmdQuery(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	statePath := fs.String("state", "", "snapshot path")
	prompt := fs.String("prompt", "", "prompt text (default: read stdin)")
	timeoutSecs := fs.Int("timeout", int(dispatch.DefaultWorkerTimeout.Seconds()), "worker timeout in seconds")
	preserve := fs.Bool("preserve", false, "keep the sub-query state directory")
	buffer := fs.Bool("buffer", false, "append the response to the session buffers")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := requireState(*statePath)
	if err != nil {
		return err
	}

	sess, err := session.Load(path)
	if err != nil {
		return err
	}

	text := *prompt
	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		return fmt.Errorf("empty prompt")
	}

	d, err := newDispatcher(session.Dir(path), time.Duration(*timeoutSecs)*time.Second, *preserve || sess.PreserveRecursiveState)
	if err != nil {
		return err
	}

	response := d.Dispatch(ctx, text, remainingDepth(sess))
	fmt.Println(response)

	if *buffer && !dispatch.IsError(response) {
		sess.AddBuffer(response)
		if err := session.Save(sess, path); err != nil {
			return err
		}
	}
	if dispatch.IsError(response) {
		os.Exit(1)
	}
	return nil
}

func cmdBatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	statePath := fs.String("state", "", "snapshot path")
	file := fs.String("file", "", "prompts file: JSON array or one prompt per line (default: read stdin)")
	concurrency := fs.Int("concurrency", dispatch.GlobalConcurrencyCap, "parallel workers (clamped to the global cap)")
	retries := fs.Int("retries", 0, "retries per failed prompt")
	timeoutSecs := fs.Int("timeout", int(dispatch.DefaultWorkerTimeout.Seconds()), "worker timeout in seconds")
	preserve := fs.Bool("preserve", false, "keep sub-query state directories")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := requireState(*statePath)
	if err != nil {
		return err
	}

	sess, err := session.Load(path)
	if err != nil {
		return err
	}

	prompts, err := readPrompts(*file)
	if err != nil {
		return err
	}
	if len(prompts) == 0 {
		return fmt.Errorf("no prompts to dispatch")
	}

	d, err := newDispatcher(session.Dir(path), time.Duration(*timeoutSecs)*time.Second, *preserve || sess.PreserveRecursiveState)
	if err != nil {
		return err
	}

	results, failures := dispatch.NewScheduler(d).RunBatch(ctx, prompts, remainingDepth(sess), *concurrency, *retries)

	out := struct {
		Results  []string                 `json:"results"`
		Failures map[int]dispatch.Failure `json:"failures"`
	}{Results: results, Failures: failures}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// readPrompts loads prompts from a JSON array file, a newline-separated
// file, or stdin.
func readPrompts(file string) ([]string, error) {
	var data []byte
	var err error
	if file == "" {
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
	} else {
		text, err := ingest.ReadTextFile(file, 0)
		if err != nil {
			return nil, err
		}
		data = []byte(text)
	}

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var prompts []string
		if err := json.Unmarshal([]byte(trimmed), &prompts); err != nil {
			return nil, fmt.Errorf("prompts file looks like JSON but does not parse: %w", err)
		}
		return prompts, nil
	}

	var prompts []string
	for _, line := range strings.Split(trimmed, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			prompts = append(prompts, line)
		}
	}
	return prompts, nil
}

func cmdFinalize(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("finalize", flag.ExitOnError)
	statePath := fs.String("state", "", "snapshot path")
	value := fs.String("value", "", "answer as JSON (non-JSON text is stored as a string)")
	schemaFile := fs.String("schema", "", "optional JSON Schema file the answer must match")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := requireState(*statePath)
	if err != nil {
		return err
	}

	sess, err := session.Load(path)
	if err != nil {
		return err
	}

	var answer any
	if err := json.Unmarshal([]byte(*value), &answer); err != nil {
		answer = *value
	}

	schema := ""
	if *schemaFile != "" {
		schema, err = ingest.ReadTextFile(*schemaFile, 0)
		if err != nil {
			return err
		}
	}

	if err := finalize.SetWithSchema(sess, answer, schema); err != nil {
		return err
	}
	if err := session.Save(sess, path); err != nil {
		return err
	}
	fmt.Printf("Final answer set (%s)\n", finalize.Describe(answer))
	return nil
}

func cmdGetFinalAnswer(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("get-final-answer", flag.ExitOnError)
	statePath := fs.String("state", "", "snapshot path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := requireState(*statePath)
	if err != nil {
		return err
	}

	sess, err := session.Load(path)
	if err != nil {
		return err
	}

	out := struct {
		Set   bool    `json:"set"`
		Value any     `json:"value"`
		SetAt *string `json:"set_at"`
	}{}
	if sess.FinalAnswer != nil {
		out.Set = true
		out.Value = sess.FinalAnswer.Value
		stamp := sess.FinalAnswer.SetAt.Format(time.RFC3339)
		out.SetAt = &stamp
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	if !out.Set {
		os.Exit(1)
	}
	return nil
}
