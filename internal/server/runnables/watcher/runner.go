// Package watcher provides a supervisor runnable that watches the data
// directory and publishes the path of every changed file on the change
// notification bus.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/atlanticdynamic/usercode/internal/server/finitestate"
	"github.com/atlanticdynamic/usercode/internal/usercode/bus"
	"github.com/fsnotify/fsnotify"
	"github.com/robbyt/go-supervisor/supervisor"
)

var (
	_ supervisor.Runnable  = (*Runner)(nil)
	_ supervisor.Stateable = (*Runner)(nil)
)

// skipDirs are never watched.
var skipDirs = map[string]bool{
	"node_modules":            true,
	"node_production_modules": true,
	".git":                    true,
}

// Runner watches a directory tree. fsnotify is not recursive, so every
// directory is added on boot and new directories are added as they appear.
type Runner struct {
	root      string
	publisher bus.Publisher

	logger *slog.Logger
	fsm    finitestate.Machine

	mu        sync.Mutex
	runCancel context.CancelFunc
	watched   map[string]bool
}

// NewRunner returns a runner publishing changes below root to pub.
func NewRunner(root string, pub bus.Publisher, opts ...Option) (*Runner, error) {
	if pub == nil {
		return nil, errors.New("watcher needs a publisher")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", root, err)
	}

	r := &Runner{
		root:      abs,
		publisher: pub,
		logger:    slog.Default().WithGroup("watcher.Runner"),
		watched:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}

	machine, err := finitestate.New(r.logger.WithGroup("fsm").Handler())
	if err != nil {
		return nil, fmt.Errorf("failed to create state machine: %w", err)
	}
	r.fsm = machine
	return r, nil
}

// String implements the supervisor.Runnable interface
func (r *Runner) String() string {
	return "watcher.Runner"
}

// Run implements the supervisor.Runnable interface. It blocks until the
// context is cancelled or Stop is called.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.fsm.Transition(finitestate.StatusBooting); err != nil {
		return fmt.Errorf("failed to transition to booting state: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		r.fail()
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() {
		if err := w.Close(); err != nil {
			r.logger.Warn("Failed to close file watcher", "error", err)
		}
	}()

	if err := os.MkdirAll(r.root, 0o755); err != nil {
		r.fail()
		return fmt.Errorf("failed to create %s: %w", r.root, err)
	}
	if err := r.addTree(w, r.root); err != nil {
		r.fail()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.runCancel = cancel
	r.mu.Unlock()

	if err := r.fsm.Transition(finitestate.StatusRunning); err != nil {
		return fmt.Errorf("failed to transition to running state: %w", err)
	}
	r.logger.Info("Watching for script changes", "root", r.root, "dirs", r.watchedCount())

	for {
		select {
		case <-runCtx.Done():
			r.logger.Debug("Watcher shutting down")
			finitestate.Stop(r.fsm, r.logger)
			return nil

		case event, ok := <-w.Events:
			if !ok {
				finitestate.Stop(r.fsm, r.logger)
				return nil
			}
			r.handle(w, event)

		case err, ok := <-w.Errors:
			if !ok {
				finitestate.Stop(r.fsm, r.logger)
				return nil
			}
			r.logger.Warn("File watcher error", "error", err)
		}
	}
}

// Stop implements the supervisor.Runnable interface
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.runCancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// GetState implements the supervisor.Stateable interface
func (r *Runner) GetState() string {
	return r.fsm.GetState()
}

// GetStateChan implements the supervisor.Stateable interface
func (r *Runner) GetStateChan(ctx context.Context) <-chan string {
	return r.fsm.GetStateChan(ctx)
}

// IsRunning implements the supervisor.Stateable interface
func (r *Runner) IsRunning() bool {
	return r.fsm.GetState() == finitestate.StatusRunning
}

func (r *Runner) handle(w *fsnotify.Watcher, event fsnotify.Event) {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return
	}
	if skipped(event.Name) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := r.addTree(w, event.Name); err != nil {
				r.logger.Warn("Failed to watch new directory", "dir", event.Name, "error", err)
			}
		}
	}
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		r.mu.Lock()
		delete(r.watched, event.Name)
		r.mu.Unlock()
	}

	key := filepath.ToSlash(event.Name)
	r.logger.Debug("File changed", "key", key, "op", event.Op.String())
	r.publisher.Publish(key)
}

// addTree watches dir and every directory below it.
func (r *Runner) addTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && skipDirs[d.Name()] {
			return filepath.SkipDir
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.watched[p] {
			return nil
		}
		if err := w.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		r.watched[p] = true
		return nil
	})
}

func (r *Runner) watchedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watched)
}

func (r *Runner) fail() {
	if err := r.fsm.Transition(finitestate.StatusError); err != nil {
		r.logger.Error("Failed to transition to error state", "error", err)
	}
}

func skipped(p string) bool {
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if skipDirs[part] {
			return true
		}
	}
	return false
}
