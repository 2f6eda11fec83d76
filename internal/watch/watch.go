// Package watch reports changes to the files the server hands out.
// The companion file and build source are read on every connection, so an
// edit takes effect on the next transfer; the watcher only makes that visible.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/cosched/pkg/log"
)

// DefaultDebounceDelay coalesces editor write bursts into one notice.
const DefaultDebounceDelay = 100 * time.Millisecond

// Change describes a settled change to a watched file.
type Change struct {
	Path    string
	Exists  bool
	Size    int64
	ModTime time.Time
}

// Config holds configuration options for the watcher.
type Config struct {
	// Paths are the files to watch. Their parent directories are watched so
	// that replace-by-rename edits are seen.
	Paths []string

	// DebounceDelay is the quiet period after the last event before a
	// change is reported.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

// Watcher monitors a fixed set of files.
type Watcher struct {
	mu sync.Mutex

	paths    map[string]struct{}
	delay    time.Duration
	logger   log.Logger
	onChange func(Change)

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	pending map[string]*time.Timer
	closed  bool
}

// New creates a watcher. onChange may be nil.
func New(cfg Config, logger log.Logger, onChange func(Change)) (*Watcher, error) {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = DefaultDebounceDelay
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	paths := make(map[string]struct{}, len(cfg.Paths))
	for _, p := range cfg.Paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		paths[abs] = struct{}{}
	}
	return &Watcher{
		paths:    paths,
		delay:    cfg.DebounceDelay,
		logger:   logger,
		onChange: onChange,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Start begins watching. It returns once the directories are registered.
func (w *Watcher) Start(ctx context.Context) error {
	if len(w.paths) == 0 {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	dirs := make(map[string]struct{})
	for p := range w.paths {
		dirs[filepath.Dir(p)] = struct{}{}
	}
	for d := range dirs {
		if err := fw.Add(d); err != nil {
			fw.Close()
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.logger.Info("watching inputs", log.Int("files", len(w.paths)), log.Int("dirs", len(dirs)))

	w.wg.Add(1)
	go w.loop(watchCtx, fw)
	return nil
}

// Close stops the watcher and drops pending notices.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	cancel := w.cancel
	for p, t := range w.pending {
		t.Stop()
		delete(w.pending, p)
	}
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	return nil
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer w.wg.Done()
	defer fw.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			name := filepath.Clean(event.Name)
			if _, watched := w.paths[name]; !watched {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.debounce(name)

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", log.Err(err))
		}
	}
}

func (w *Watcher) debounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.delay, func() {
		w.settle(path)
	})
}

func (w *Watcher) settle(path string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.mu.Unlock()

	c := Change{Path: path}
	info, err := os.Stat(path)
	switch {
	case err == nil:
		c.Exists = true
		c.Size = info.Size()
		c.ModTime = info.ModTime()
		w.logger.Info("input changed", log.String("path", path), log.Int64("size", c.Size))
	case errors.Is(err, os.ErrNotExist):
		w.logger.Warn("input removed", log.String("path", path))
	default:
		w.logger.Warn("input unreadable", log.String("path", path), log.Err(err))
	}

	if w.onChange != nil {
		w.onChange(c)
	}
}
