// Package actionserver serves delegated script runs over HTTP. It is the
// receiving end of the delegation client: a request carries a signed
// credential, the bot, the script and the event, and the response carries
// the resulting state partitions.
package actionserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"maps"
	"net/http"

	"github.com/atlanticdynamic/usercode/internal/usercode/delegation"
	"github.com/atlanticdynamic/usercode/internal/usercode/engine"
	"github.com/atlanticdynamic/usercode/internal/usercode/event"
	"github.com/atlanticdynamic/usercode/internal/usercode/registry"
	"github.com/atlanticdynamic/usercode/internal/usercode/scripts"
)

// maxBodySize bounds a run request.
const maxBodySize = 4 << 20

// ErrorResponse is the body of every non-200 response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// Handler runs the scripts posted to it through an engine.
type Handler struct {
	engine   *engine.Engine
	secret   []byte
	audience string
	logger   *slog.Logger
}

// NewHandler returns a handler verifying credentials with secret and audience.
func NewHandler(eng *engine.Engine, secret []byte, audience string, logger *slog.Logger) (*Handler, error) {
	if eng == nil {
		return nil, errors.New("action server needs an engine")
	}
	if len(secret) == 0 {
		return nil, delegation.ErrNoSecret
	}
	if logger == nil {
		logger = slog.Default().WithGroup("actionserver.Handler")
	}
	return &Handler{engine: eng, secret: secret, audience: audience, logger: logger}, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	var req delegation.RunRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if req.BotID == "" || req.ScriptName == "" {
		writeError(w, http.StatusBadRequest, "botId and scriptName are required", "")
		return
	}

	claims, err := delegation.Verify(h.secret, h.audience, req.Token)
	if err != nil {
		h.logger.Warn("Rejected run request", "botID", req.BotID, "error", err)
		writeError(w, http.StatusUnauthorized, "invalid token", "")
		return
	}
	if claims.BotID != req.BotID {
		h.logger.Warn("Token is bound to another bot", "botID", req.BotID, "tokenBotID", claims.BotID)
		writeError(w, http.StatusForbidden, "token is not valid for this bot", "")
		return
	}

	ev, err := decodeEvent(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event", "")
		return
	}

	logger := h.logger.With("botID", req.BotID, "script", req.ScriptName, "eventID", ev.ID)
	ctx := r.Context()

	script, err := h.engine.Registry().GetScript(ctx, req.ScriptName, scripts.Bot(req.BotID))
	if err != nil {
		if errors.Is(err, registry.ErrActionNotFound) {
			writeError(w, http.StatusNotFound, err.Error(), "")
			return
		}
		logger.Error("Failed to load script", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load script", "")
		return
	}

	outcome, err := h.engine.Execute(ctx, engine.ExecutionRequest{
		Script:            script,
		Args:              req.Args,
		Event:             ev,
		InvokingContextID: ev.ID,
		Mode:              engine.RunTypeHTTP,
		Local:             true,
	})
	if err != nil {
		kind := ""
		if outcome != nil && outcome.Error != nil {
			kind = outcome.Error.Kind.String()
		}
		logger.Warn("Script failed", "kind", kind, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error(), kind)
		return
	}

	logger.Debug("Script completed", "strategy", outcome.Strategy, "duration", outcome.Duration)
	writeJSON(w, http.StatusOK, delegation.RunResponse{Event: stateOf(ev)})
}

// decodeEvent builds the event a posted run executes against.
func decodeEvent(req delegation.RunRequest) (*event.Event, error) {
	ev := &event.Event{}
	if req.Event != nil {
		raw, err := json.Marshal(req.Event)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, ev); err != nil {
			return nil, err
		}
	}
	ev.BotID = req.BotID
	return ev, nil
}

func stateOf(ev *event.Event) *delegation.ResponseEvent {
	state := make(map[string]json.RawMessage, len(event.Partitions))
	for _, p := range event.Partitions {
		m := ev.Partition(p)
		if m == nil {
			m = map[string]any{}
		}
		raw, err := json.Marshal(maps.Clone(m))
		if err != nil {
			raw = []byte("{}")
		}
		state[p] = raw
	}
	return &delegation.ResponseEvent{State: state}
}

func writeError(w http.ResponseWriter, status int, msg, kind string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
