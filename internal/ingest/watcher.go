package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports when session source content changes on disk. Session
// snapshots hold an immutable copy of their content, so a change means the
// session is stale and should be re-initialized, not silently updated.
type Watcher struct {
	watcher  *fsnotify.Watcher
	onChange func(paths []string)
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher over one context path. A file target watches
// its parent directory (editors replace files rather than write in place);
// a directory target watches the whole subtree.
func NewWatcher(target string, onChange func(paths []string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		watcher:  fsw,
		onChange: onChange,
		debounce: 500 * time.Millisecond,
		pending:  make(map[string]bool),
	}

	info, err := os.Stat(target)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to stat watch target: %w", err)
	}
	if info.IsDir() {
		err = filepath.WalkDir(target, func(path string, d os.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			return w.watcher.Add(path)
		})
	} else {
		err = w.watcher.Add(filepath.Dir(target))
	}
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to add watch: %w", err)
	}
	return w, nil
}

// Start begins delivering debounced change callbacks until Stop.
func (w *Watcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.wg.Add(2)
	go w.eventLoop(ctx)
	go w.flushLoop(ctx)
}

// Stop halts delivery and releases the underlying watcher.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.pending[event.Name] = true
			w.mu.Unlock()
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) flushLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			if len(w.pending) == 0 {
				w.mu.Unlock()
				continue
			}
			paths := make([]string, 0, len(w.pending))
			for p := range w.pending {
				paths = append(paths, p)
			}
			w.pending = make(map[string]bool)
			w.mu.Unlock()

			if w.onChange != nil {
				w.onChange(paths)
			}
		}
	}
}
