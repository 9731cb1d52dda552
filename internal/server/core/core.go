// Package core assembles the user code runtime from a validated configuration:
// the script store, the change bus, module resolution, the registry, the
// executors, the engine with its delegation client and the hook runner.
//
// Core is also a supervisor runnable. It holds the registry subscription for
// its lifetime and clears every cache when the supervisor reloads.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/atlanticdynamic/usercode/internal/config"
	"github.com/atlanticdynamic/usercode/internal/usercode/bus"
	"github.com/atlanticdynamic/usercode/internal/usercode/delegation"
	"github.com/atlanticdynamic/usercode/internal/usercode/engine"
	"github.com/atlanticdynamic/usercode/internal/usercode/executor"
	"github.com/atlanticdynamic/usercode/internal/usercode/hooks"
	"github.com/atlanticdynamic/usercode/internal/usercode/registry"
	"github.com/atlanticdynamic/usercode/internal/usercode/resolver"
	"github.com/atlanticdynamic/usercode/internal/usercode/scripts"
	"github.com/atlanticdynamic/usercode/internal/usercode/store"
	"github.com/atlanticdynamic/usercode/internal/usercode/tasks"
	"github.com/robbyt/go-supervisor/supervisor"
)

var (
	_ supervisor.Runnable   = (*Core)(nil)
	_ supervisor.Reloadable = (*Core)(nil)
)

// Core owns the runtime components built from one configuration.
type Core struct {
	cfg    *config.Config
	logger *slog.Logger

	store     *store.DiskStore
	bus       *bus.Bus
	resolver  *resolver.Resolver
	registry  *registry.Registry
	engine    *engine.Engine
	hooks     *hooks.Runner
	tasks     tasks.Repository
	delegator *delegation.Client

	closers     []io.Closer
	unsubscribe func()
	closeOnce   sync.Once
	closeErr    error

	mu        sync.Mutex
	runCancel context.CancelFunc
}

// New builds the runtime described by cfg. The task database, when
// configured, is opened with ctx.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Core, error) {
	if cfg == nil {
		return nil, errors.New("core needs a configuration")
	}

	c := &Core{
		cfg:    cfg,
		logger: slog.Default().WithGroup("core.Core"),
	}
	for _, opt := range opts {
		opt(c)
	}
	handler := c.logger.Handler()

	st, err := store.NewDiskStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	c.store = st
	c.bus = bus.New(c.logger.WithGroup("bus"))

	c.resolver = resolver.New(st, resolver.Options{
		SharedLibs: st.Path(scripts.Global(), string(scripts.CategorySharedLibs), ""),
		BotLibraries: func(botID string) string {
			return st.Path(scripts.Bot(botID), string(scripts.CategoryLibraries), "")
		},
		Modules: cfg.ModuleRoots(),
	}, c.logger.WithGroup("resolver"))

	c.registry = registry.New(st,
		registry.WithLogHandler(handler),
		registry.WithValidator(resolver.NewValidator(c.resolver, st, c.logger.WithGroup("validator"))),
		registry.WithTrustedPrefixes(cfg.TrustedPrefixes()),
		registry.WithDebounce(cfg.Debounce()),
	)
	c.unsubscribe = c.registry.Subscribe(c.bus)

	if err := c.openTasks(ctx); err != nil {
		c.registry.Stop()
		return nil, err
	}

	executors, err := c.executors()
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	engineOpts := []engine.Option{
		engine.WithLogHandler(handler),
		engine.WithSandboxPolicy(cfg.SandboxPolicy()),
		engine.WithBotDirectory(cfg),
	}
	if cfg.AppSecret != "" {
		signer, err := delegation.NewSigner([]byte(cfg.AppSecret), cfg.Audience(), cfg.TokenTTL())
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to create token signer: %w", err)
		}
		c.delegator = delegation.NewClient(signer, c.tasks,
			delegation.WithLogHandler(handler),
			delegation.WithRequestTimeout(cfg.RequestTimeout()),
		)
		engineOpts = append(engineOpts,
			engine.WithTokenSigner(signer),
			engine.WithDelegator(c.delegator),
		)
	}
	c.engine = engine.New(c.registry, executors, engineOpts...)

	hookOpts := []hooks.Option{hooks.WithLogHandler(handler)}
	for name, o := range cfg.LifecycleOptions() {
		hookOpts = append(hookOpts, hooks.WithLifecycle(name, o))
	}
	c.hooks = hooks.NewRunner(c.engine, st, hookOpts...)

	c.logger.Debug("Runtime assembled",
		"dataDir", st.Root(),
		"delegation", c.delegator != nil,
		"modules", len(cfg.Modules),
	)
	return c, nil
}

func (c *Core) openTasks(ctx context.Context) error {
	if c.cfg.Tasks.Database == "" {
		c.tasks = tasks.NewMemoryRepository(tasks.WithLogHandler(c.logger.Handler()))
		return nil
	}
	repo, err := tasks.OpenSQLite(ctx, c.cfg.Tasks.Database, c.logger.Handler())
	if err != nil {
		return fmt.Errorf("failed to open task database: %w", err)
	}
	c.tasks = repo
	c.closers = append(c.closers, repo)
	return nil
}

func (c *Core) executors() (engine.Executors, error) {
	process, err := executor.ProcessSnapshot(c.cfg.SecretEnvPatterns())
	if err != nil {
		return engine.Executors{}, fmt.Errorf("failed to snapshot process environment: %w", err)
	}
	handler := c.logger.Handler()
	timeout := c.cfg.ActionTimeout()

	sandboxOpts := []executor.Option{
		executor.WithLogHandler(handler),
		executor.WithTimeout(timeout),
		executor.WithProcess(process),
	}
	if c.cfg.Sandbox.MaxSteps > 0 {
		sandboxOpts = append(sandboxOpts, executor.WithMaxSteps(c.cfg.Sandbox.MaxSteps))
	}

	return engine.Executors{
		Direct: executor.NewDirect(c.resolver, c.store,
			executor.WithLogHandler(handler),
			executor.WithProcess(process),
		),
		Sandboxed: executor.NewSandboxed(c.resolver, c.store, sandboxOpts...),
		Risor: executor.NewRisor(
			executor.WithRisorLogHandler(handler),
			executor.WithRisorTimeout(timeout),
			executor.WithRisorProcess(process),
		),
	}, nil
}

// Config returns the configuration the runtime was built from.
func (c *Core) Config() *config.Config { return c.cfg }

// Store returns the script store.
func (c *Core) Store() *store.DiskStore { return c.store }

// Bus returns the change notification bus the registry listens on.
func (c *Core) Bus() *bus.Bus { return c.bus }

// Registry returns the script registry.
func (c *Core) Registry() *registry.Registry { return c.registry }

// Engine returns the execution engine.
func (c *Core) Engine() *engine.Engine { return c.engine }

// Hooks returns the hook runner.
func (c *Core) Hooks() *hooks.Runner { return c.hooks }

// Tasks returns the delegation task repository.
func (c *Core) Tasks() tasks.Repository { return c.tasks }

// Close releases the registry subscription and the task database. It is
// safe to call more than once.
func (c *Core) Close() error {
	c.closeOnce.Do(func() {
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		if c.registry != nil {
			c.registry.Stop()
		}
		var errs []error
		for _, cl := range c.closers {
			errs = append(errs, cl.Close())
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}

// String implements the supervisor.Runnable interface
func (c *Core) String() string {
	return "core.Core"
}

// Run implements the supervisor.Runnable interface. It runs the
// after_server_start hooks and then blocks until the context is cancelled
// or Stop is called.
func (c *Core) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.runCancel = cancel
	c.mu.Unlock()

	c.logger.Info("Starting user code runtime", "dataDir", c.store.Root())
	if _, err := c.hooks.Run(runCtx, hooks.Hook{Lifecycle: hooks.AfterServerStart}); err != nil {
		c.logger.Error("Server start hooks failed", "error", err)
	}

	<-runCtx.Done()
	c.logger.Info("User code runtime shutting down")
	return c.Close()
}

// Stop implements the supervisor.Runnable interface
func (c *Core) Stop() {
	c.mu.Lock()
	cancel := c.runCancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reload implements the supervisor.Reloadable interface. Cached scripts and
// import validations are dropped, so the next lookup reads the data
// directory again.
func (c *Core) Reload() {
	c.logger.Info("Reloading user code")
	c.registry.Clear()
}
