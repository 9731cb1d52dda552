// Package delegation forwards script runs to a remote action server. Each
// attempt is signed with a short-lived credential and recorded as exactly one
// finalized delegation task.
package delegation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/atlanticdynamic/usercode/internal/usercode/event"
	"github.com/atlanticdynamic/usercode/internal/usercode/executor"
	"github.com/atlanticdynamic/usercode/internal/usercode/tasks"
)

// DefaultRequestTimeout bounds one call to an action server.
const DefaultRequestTimeout = 5 * time.Second

// RunPath is the endpoint of an action server running scripts.
const RunPath = "/action/run"

// ResponseStatusKey is set in the temp partition to the status of the response.
const ResponseStatusKey = "responseStatusCode"

// Response validation failures.
const (
	ValidationDecode           = "decode_error"
	ValidationMissingEvent     = "missing_event"
	ValidationMissingState     = "missing_state"
	ValidationInvalidPartition = "invalid_partition"
)

// Server is a remote action server.
type Server struct {
	ID      string `toml:"id"`
	BaseURL string `toml:"base_url"`
}

// Request is one delegated run.
type Request struct {
	Server      Server
	Event       *event.Event
	ScriptName  string
	Args        map[string]any
	WorkspaceID string
}

// RunRequest is the body posted to an action server.
type RunRequest struct {
	Token      string         `json:"token"`
	BotID      string         `json:"botId"`
	ScriptName string         `json:"scriptName"`
	Args       map[string]any `json:"args"`
	Event      map[string]any `json:"event"`
}

// RunResponse is the body of a successful action server response.
type RunResponse struct {
	Event *ResponseEvent `json:"event"`
}

// ResponseEvent carries the state computed by the action server.
type ResponseEvent struct {
	State map[string]json.RawMessage `json:"state"`
}

// Result is the outcome of a delegated run.
type Result struct {
	Success    bool
	StatusCode int
	State      event.StateDelta
	Task       tasks.Task
	Error      *executor.ExecutionError
}

// Client posts runs to action servers.
type Client struct {
	signer     *Signer
	repo       tasks.Repository
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// NewClient returns a client signing credentials with signer and recording
// tasks in repo.
func NewClient(signer *Signer, repo tasks.Repository, opts ...Option) *Client {
	c := &Client{
		signer:     signer,
		repo:       repo,
		httpClient: &http.Client{},
		timeout:    DefaultRequestTimeout,
		logger:     slog.Default().WithGroup("delegation.Client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Delegate runs req on its action server.
//
// A transport failure or an invalid response is recorded and returned as an
// error. A status other than 200 is recorded and returned as a failed result
// with a nil error. On success the response partitions replace the event's
// state.
func (c *Client) Delegate(ctx context.Context, req Request) (*Result, error) {
	ev := req.Event
	logger := c.logger.With("botID", ev.BotID, "script", req.ScriptName, "server", req.Server.ID)
	task := tasks.Start(ev.ID, ev.BotID, req.ScriptName, req.Server.ID)

	token, err := c.signer.Sign(ev.BotID, req.WorkspaceID)
	if err != nil {
		return nil, c.fail(ctx, task, 0, executor.KindTransportFailure, "credential", req.ScriptName, err)
	}

	body, err := json.Marshal(RunRequest{
		Token:      token,
		BotID:      ev.BotID,
		ScriptName: req.ScriptName,
		Args:       req.Args,
		Event:      ev.Map(),
	})
	if err != nil {
		return nil, c.fail(ctx, task, 0, executor.KindTransportFailure, "encode", req.ScriptName, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := strings.TrimRight(req.Server.BaseURL, "/") + RunPath
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, c.fail(ctx, task, 0, executor.KindTransportFailure, "http:transport", req.ScriptName, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	logger.Debug("Delegating script", "url", url)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		reason := "http:" + TransportErrorCode(err)
		logger.Warn("Action server unreachable", "reason", reason, "error", err)
		return nil, c.fail(ctx, task, 0, executor.KindTransportFailure, reason, req.ScriptName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		reason := "http:" + TransportErrorCode(err)
		return nil, c.fail(ctx, task, resp.StatusCode, executor.KindTransportFailure, reason, req.ScriptName, err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.Warn("Action server returned an unexpected status", "status", resp.StatusCode)
		ee := executor.NewError(executor.KindBadStatus, req.ScriptName,
			fmt.Errorf("status %d from %s", resp.StatusCode, req.Server.ID))
		ee.Reason = "http:bad_status_code"
		task = task.Fail(resp.StatusCode, ee.Reason)
		c.record(ctx, task)
		return &Result{StatusCode: resp.StatusCode, Task: task, Error: ee}, nil
	}

	delta, kind, err := ParseResponse(payload)
	if err != nil {
		logger.Warn("Action server response is invalid", "kind", kind, "error", err)
		return nil, c.fail(ctx, task, resp.StatusCode, executor.KindResponseValidation,
			"validation:"+kind, req.ScriptName, err)
	}

	temp := map[string]any{ResponseStatusKey: resp.StatusCode}
	maps.Copy(temp, delta[event.PartitionTemp])
	delta[event.PartitionTemp] = temp
	ev.ApplyState(delta)

	task = task.Complete(resp.StatusCode)
	c.record(ctx, task)
	logger.Debug("Delegated script completed", "duration", task.EndedAt.Sub(task.StartedAt))
	return &Result{Success: true, StatusCode: resp.StatusCode, State: delta, Task: task}, nil
}

// fail finalizes task as failed and returns the matching execution error.
func (c *Client) fail(
	ctx context.Context,
	task tasks.Task,
	status int,
	kind executor.Kind,
	reason, script string,
	err error,
) *executor.ExecutionError {
	ee := executor.NewError(kind, script, err)
	ee.Reason = reason
	c.record(ctx, task.Fail(status, reason))
	return ee
}

func (c *Client) record(ctx context.Context, task tasks.Task) {
	if c.repo == nil {
		return
	}
	// recording outlives a cancelled caller
	if err := c.repo.Record(context.WithoutCancel(ctx), task); err != nil {
		c.logger.Error("Failed to record delegation task", "id", task.ID, "error", err)
	}
}

// ParseResponse validates an action server response and returns its state
// partitions. On failure kind names the validation problem.
func ParseResponse(payload []byte) (delta event.StateDelta, kind string, err error) {
	var resp RunResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, ValidationDecode, err
	}
	if resp.Event == nil {
		return nil, ValidationMissingEvent, errors.New("response has no event")
	}
	if resp.Event.State == nil {
		return nil, ValidationMissingState, errors.New("response event has no state")
	}

	delta = make(event.StateDelta, len(event.Partitions))
	for _, p := range event.Partitions {
		raw, ok := resp.Event.State[p]
		if !ok {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil || m == nil {
			return nil, ValidationInvalidPartition, fmt.Errorf("state partition %q is not an object", p)
		}
		delta[p] = m
	}
	return delta, "", nil
}

// TransportErrorCode names the cause of a failed HTTP round trip.
func TransportErrorCode(err error) string {
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "connection_refused"
	case errors.Is(err, syscall.ECONNRESET):
		return "connection_reset"
	case errors.As(err, &dnsErr):
		return "dns"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	default:
		return "transport"
	}
}
