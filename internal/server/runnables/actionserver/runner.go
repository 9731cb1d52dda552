package actionserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/atlanticdynamic/usercode/internal/usercode/delegation"
	"github.com/robbyt/go-supervisor/runnables/httpserver"
	"github.com/robbyt/go-supervisor/supervisor"
)

var (
	_ supervisor.Runnable  = (*Runner)(nil)
	_ supervisor.Stateable = (*Runner)(nil)
)

// Timeouts of the HTTP server. Zero values keep the go-supervisor defaults.
type Timeouts struct {
	Read  time.Duration
	Write time.Duration
	Idle  time.Duration
	Drain time.Duration
}

// serverImplementation abstracts the go-supervisor HTTP runner.
type serverImplementation interface {
	Run(ctx context.Context) error
	Stop()
	GetState() string
	IsRunning() bool
	GetStateChan(ctx context.Context) <-chan string
}

// Runner serves the run endpoint of the action server.
type Runner struct {
	address  string
	handler  http.Handler
	timeouts Timeouts
	logger   *slog.Logger
	route    *httpserver.Route
	server   serverImplementation
}

// NewRunner returns a runner serving handler at delegation.RunPath on address.
func NewRunner(address string, handler http.Handler, opts ...Option) (*Runner, error) {
	if address == "" {
		return nil, errors.New("action server needs a listen address")
	}
	if handler == nil {
		return nil, errors.New("action server needs a handler")
	}

	r := &Runner{
		address: address,
		handler: handler,
		logger:  slog.Default().WithGroup("actionserver.Runner"),
	}
	for _, opt := range opts {
		opt(r)
	}

	route, err := httpserver.NewRouteFromHandlerFunc(
		"action-run",
		delegation.RunPath,
		handler.ServeHTTP,
		accessLog(r.logger.WithGroup("http")),
		responseHeaders(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create route: %w", err)
	}
	r.route = route

	runner, err := httpserver.NewRunner(httpserver.WithConfigCallback(r.config))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP server runner: %w", err)
	}
	r.server = runner
	return r, nil
}

func (r *Runner) config() (*httpserver.Config, error) {
	options := []httpserver.ConfigOption{}
	if r.timeouts.Read > 0 {
		options = append(options, httpserver.WithReadTimeout(r.timeouts.Read))
	}
	if r.timeouts.Write > 0 {
		options = append(options, httpserver.WithWriteTimeout(r.timeouts.Write))
	}
	if r.timeouts.Idle > 0 {
		options = append(options, httpserver.WithIdleTimeout(r.timeouts.Idle))
	}
	if r.timeouts.Drain > 0 {
		options = append(options, httpserver.WithDrainTimeout(r.timeouts.Drain))
	}

	config, err := httpserver.NewConfig(r.address, []httpserver.Route{*r.route}, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP server config: %w", err)
	}
	return config, nil
}

// String implements the supervisor.Runnable interface
func (r *Runner) String() string {
	return fmt.Sprintf("actionserver.Runner[%s]", r.address)
}

// Run implements the supervisor.Runnable interface
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("Starting action server", "address", r.address, "path", delegation.RunPath)
	return r.server.Run(ctx)
}

// Stop implements the supervisor.Runnable interface
func (r *Runner) Stop() {
	r.logger.Info("Stopping action server", "address", r.address)
	r.server.Stop()
}

// GetState implements the supervisor.Stateable interface
func (r *Runner) GetState() string {
	return r.server.GetState()
}

// IsRunning implements the supervisor.Stateable interface
func (r *Runner) IsRunning() bool {
	return r.server.IsRunning()
}

// GetStateChan implements the supervisor.Stateable interface
func (r *Runner) GetStateChan(ctx context.Context) <-chan string {
	return r.server.GetStateChan(ctx)
}

// ServeHTTP serves a request through the route and its middleware without
// a listener.
func (r *Runner) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.route.ServeHTTP(w, req)
}
