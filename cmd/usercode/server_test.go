package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/atlanticdynamic/usercode/internal/testutil"
	"github.com/atlanticdynamic/usercode/internal/usercode/delegation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postRun(t *testing.T, addr, script string) (int, map[string]any) {
	t.Helper()

	signer, err := delegation.NewSigner([]byte("s3cret"), "", time.Minute)
	require.NoError(t, err)
	token, err := signer.Sign("bot1", "default")
	require.NoError(t, err)

	raw, err := json.Marshal(delegation.RunRequest{
		Token:      token,
		BotID:      "bot1",
		ScriptName: script,
		Args:       map[string]any{"who": "ada"},
		Event:      map[string]any{"id": "evt-1"},
	})
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, "http://"+addr+delegation.RunPath, bytes.NewReader(raw))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil
	}
	defer func() { _ = resp.Body.Close() }()

	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func TestServer(t *testing.T) {
	addr := testutil.ListenAddress(t)
	f := newFixture(t, `app_secret = "s3cret"

[server]
listen = "`+addr+`"
`)
	f.write(t, "bots/bot1/actions/greet.star", `temp["msg"] = "hi " + args["who"]`+"\n")
	f.write(t, "global/hooks/after_server_start/boot.star", "x = 1\n")

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var out testutil.SyncBuffer
	app := newApp()
	app.Writer = &out
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Run(ctx, []string{"usercode", "--config", f.config, "server"})
	}()

	require.Eventually(t, func() bool {
		status, _ := postRun(t, addr, "greet")
		return status == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	status, body := postRun(t, addr, "greet")
	require.Equal(t, http.StatusOK, status)
	state := body["event"].(map[string]any)["state"].(map[string]any)
	assert.Equal(t, "hi ada", state["temp"].(map[string]any)["msg"])

	status, _ = postRun(t, addr, "later")
	assert.Equal(t, http.StatusNotFound, status)

	// picked up through the watcher
	f.write(t, "bots/bot1/actions/later.star", `temp["msg"] = "later"`+"\n")
	assert.Eventually(t, func() bool {
		status, _ := postRun(t, addr, "later")
		return status == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_ListenNeedsSecret(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.run(t, "server", "--listen", testutil.ListenAddress(t), "--no-watch")
	require.ErrorIs(t, err, delegation.ErrNoSecret)
}
