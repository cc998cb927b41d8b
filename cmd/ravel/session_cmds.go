package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/selimbzr/ravel/internal/ingest"
	"github.com/selimbzr/ravel/internal/session"
)

func requireState(statePath string) (string, error) {
	if statePath == "" {
		return "", fmt.Errorf("missing required -state flag")
	}
	return statePath, nil
}

// loadContext reads the session source, a single file or a directory tree.
// Read failures surface as *session.InitializationError.
func loadContext(abs string, maxBytes int64) (string, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return "", &session.InitializationError{Path: abs, Err: err}
	}

	if info.IsDir() {
		walker, err := ingest.NewWalker(abs)
		if err != nil {
			return "", &session.InitializationError{Path: abs, Err: err}
		}
		content, err := walker.Concat(maxBytes)
		if err != nil {
			return "", &session.InitializationError{Path: abs, Err: err}
		}
		return content, nil
	}

	content, err := ingest.ReadTextFile(abs, maxBytes)
	if err != nil {
		return "", &session.InitializationError{Path: abs, Err: err}
	}
	return content, nil
}

func cmdInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	contextPath := fs.String("context", "", "source file or directory to load")
	statePath := fs.String("state", "", "explicit snapshot path (default: generated under the state dir)")
	stateDir := fs.String("state-dir", "", "base directory for generated sessions")
	maxBytes := fs.Int64("max-bytes", 0, "cap on bytes read from the source (0 = unlimited)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *contextPath == "" {
		return fmt.Errorf("missing required -context flag")
	}

	abs, err := filepath.Abs(*contextPath)
	if err != nil {
		return err
	}

	content, err := loadContext(abs, *maxBytes)
	if err != nil {
		return err
	}

	store := session.NewStore(*stateDir)
	_, path, err := store.Create(abs, content, *statePath)
	if err != nil {
		return err
	}

	fmt.Printf("Session path: %s\n", path)
	fmt.Printf("Session directory: %s\n", session.Dir(path))
	fmt.Printf("Context: %s (%d chars)\n", abs, len(content))
	return nil
}

func cmdStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	statePath := fs.String("state", "", "snapshot path")
	showHandles := fs.Bool("show-handles", false, "list every handle")
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

	fmt.Println("Session status")
	fmt.Printf("  State file: %s\n", path)
	fmt.Printf("  Session directory: %s\n", session.Dir(path))
	fmt.Printf("  Context path: %s\n", sess.Context.Path)
	fmt.Printf("  Context chars: %d\n", len(sess.Context.Content))
	fmt.Printf("  Buffers: %d\n", len(sess.Buffers))
	fmt.Printf("  Handles: %d\n", len(sess.Handles))
	fmt.Printf("  Remaining depth: %d/%d\n", sess.RemainingDepth, sess.MaxDepth)
	if sess.FinalAnswer != nil {
		fmt.Printf("  Final answer: set at %s\n", sess.FinalAnswer.SetAt.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Println("  Final answer: not set")
	}
	if *showHandles && len(sess.Handles) > 0 {
		fmt.Println("  Active handles:")
		names := make([]string, 0, len(sess.Handles))
		for name := range sess.Handles {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			a, _ := strconv.Atoi(strings.TrimPrefix(names[i], "$res"))
			b, _ := strconv.Atoi(strings.TrimPrefix(names[j], "$res"))
			return a < b
		})
		for _, name := range names {
			fmt.Printf("    - %s: Array(%d)\n", name, len(sess.Handles[name].Items))
		}
	}
	return nil
}

func cmdReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	statePath := fs.String("state", "", "snapshot path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := requireState(*statePath)
	if err != nil {
		return err
	}

	deleted, err := session.Reset(path)
	if err != nil {
		return err
	}
	if deleted {
		fmt.Printf("Deleted state: %s\n", path)
	} else {
		fmt.Printf("No state to delete at: %s\n", path)
	}
	return nil
}

func cmdPeek(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("peek", flag.ExitOnError)
	statePath := fs.String("state", "", "snapshot path")
	start := fs.Int("start", 0, "start offset")
	end := fs.Int("end", 2000, "end offset")
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
	fmt.Print(sess.Peek(*start, *end))
	return nil
}

func cmdAddBuffer(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add-buffer", flag.ExitOnError)
	statePath := fs.String("state", "", "snapshot path")
	text := fs.String("text", "", "buffer text (default: read stdin)")
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

	buf := *text
	if buf == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		buf = string(data)
	}
	sess.AddBuffer(buf)
	if err := session.Save(sess, path); err != nil {
		return err
	}
	fmt.Printf("Buffer %d added (%d chars)\n", len(sess.Buffers), len(buf))
	return nil
}

func cmdExportBuffers(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export-buffers", flag.ExitOnError)
	statePath := fs.String("state", "", "snapshot path")
	out := fs.String("out", "", "output file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := requireState(*statePath)
	if err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("missing required -out flag")
	}

	sess, err := session.Load(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0755); err != nil {
		return err
	}
	joined := strings.Join(sess.Buffers, "\n\n")
	if err := os.WriteFile(*out, []byte(joined), 0644); err != nil {
		return fmt.Errorf("failed to write buffers: %w", err)
	}
	fmt.Printf("Wrote %d buffers to: %s\n", len(sess.Buffers), *out)
	return nil
}

func cmdWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	target := fs.String("context", "", "file or directory to watch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *target == "" {
		return fmt.Errorf("missing required -context flag")
	}

	w, err := ingest.NewWatcher(*target, func(paths []string) {
		for _, p := range paths {
			fmt.Printf("changed: %s (session content is stale; re-run init)\n", p)
		}
	})
	if err != nil {
		return err
	}
	w.Start()
	defer w.Stop()

	fmt.Printf("Watching %s (Ctrl-C to stop)\n", *target)
	select {}
}
