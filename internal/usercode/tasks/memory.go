package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultMaxTasks is the number of tasks MemoryRepository keeps.
const DefaultMaxTasks = 1000

var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository keeps the most recent tasks in memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	tasks    []Task
	seen     map[string]struct{}
	maxTasks int
	logger   *slog.Logger
}

// MemoryOption configures a MemoryRepository.
type MemoryOption func(*MemoryRepository)

// WithMaxTasks sets how many tasks are kept.
func WithMaxTasks(n int) MemoryOption {
	return func(r *MemoryRepository) {
		if n > 0 {
			r.maxTasks = n
		}
	}
}

// WithLogHandler sets the log handler for the repository.
func WithLogHandler(handler slog.Handler) MemoryOption {
	return func(r *MemoryRepository) {
		if handler != nil {
			r.logger = slog.New(handler)
		}
	}
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository(opts ...MemoryOption) *MemoryRepository {
	r := &MemoryRepository{
		seen:     make(map[string]struct{}),
		maxTasks: DefaultMaxTasks,
		logger:   slog.Default().WithGroup("tasks.MemoryRepository"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record implements Repository.
func (r *MemoryRepository) Record(_ context.Context, t Task) error {
	if !t.Finalized() {
		return fmt.Errorf("%w: %s", ErrNotFinalized, t.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := t.ID.String()
	if _, ok := r.seen[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRecorded, id)
	}
	r.seen[id] = struct{}{}
	r.tasks = append(r.tasks, t)

	if len(r.tasks) > r.maxTasks {
		dropped := r.tasks[:len(r.tasks)-r.maxTasks]
		for _, old := range dropped {
			delete(r.seen, old.ID.String())
		}
		r.tasks = append([]Task(nil), r.tasks[len(r.tasks)-r.maxTasks:]...)
	}
	r.logger.Debug("Recorded task", "id", id, "status", t.Status)
	return nil
}

// List implements Repository.
func (r *MemoryRepository) List(_ context.Context, f Filter) ([]Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Task
	for i := len(r.tasks) - 1; i >= 0; i-- {
		if !f.match(r.tasks[i]) {
			continue
		}
		out = append(out, r.tasks[i])
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}
