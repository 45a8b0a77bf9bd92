// Package relay is the follower half of the port-ownership protocol.
// A bridge process that lost the race for the well-known port never
// serves Studio directly; instead it drains its own queue and forwards
// each command to the owner's POST /proxy, feeding replies back into the
// local dispatch state.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/lydakis/studiomcp/internal/dispatch"
)

// Relay forwards locally-queued commands through the owning bridge
// process's HTTP surface.
type Relay struct {
	state    *dispatch.State
	ownerURL string
	client   *http.Client
	logger   *slog.Logger
}

// New creates a relay targeting the owner at ownerURL (scheme://host:port,
// no trailing slash).
func New(state *dispatch.State, ownerURL string, logger *slog.Logger) *Relay {
	return &Relay{
		state:    state,
		ownerURL: ownerURL,
		// No client timeout: /proxy blocks until Studio finishes the
		// command, which is unbounded from the bridge's perspective.
		client: &http.Client{},
		logger: logger,
	}
}

// Run drains the local queue until ctx is canceled, blocking on the
// dispatch notifier when idle. Commands are forwarded in enqueue order,
// one at a time.
func (r *Relay) Run(ctx context.Context) {
	r.logger.Info("relaying commands through owning bridge", "owner", r.ownerURL)
	for {
		// Grab the waiter before checking the queue: an enqueue that
		// lands after an empty check closes this channel, so the wakeup
		// cannot slip between the two calls.
		waiter := r.state.Waiter()
		if env, ok := r.state.TryDequeue(); ok {
			r.forward(ctx, env)
			continue
		}
		select {
		case <-waiter:
		case <-ctx.Done():
			return
		}
	}
}

// forward relays one envelope. A dead owner resolves the waiting
// invocation with an error outcome instead of leaving it hanging; the
// relay itself keeps serving subsequent commands.
func (r *Relay) forward(ctx context.Context, env dispatch.Envelope) {
	id := *env.ID

	msg, err := r.post(ctx, env)
	if err != nil {
		r.logger.Error("failed to proxy command", "id", id, "error", err)
		r.state.Complete(id, dispatch.Outcome{ //nolint: errcheck
			Err: fmt.Errorf("forwarding command to owning bridge: %w", err),
		})
		return
	}

	if err := r.state.Complete(msg.ID, dispatch.Outcome{Response: msg.Response}); err != nil {
		// Waiter already gave up between forward and reply.
		r.logger.Warn("dropping proxied reply", "id", msg.ID, "error", err)
	}
}

func (r *Relay) post(ctx context.Context, env dispatch.Envelope) (*dispatch.ResultMessage, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.ownerURL+"/proxy", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building proxy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling owner: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("owner returned status %d", resp.StatusCode)
	}

	var msg dispatch.ResultMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decoding proxy reply: %w", err)
	}
	return &msg, nil
}
