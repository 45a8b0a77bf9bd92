// Package studio serves the HTTP surface the Roblox Studio plugin polls:
// GET /request hands out queued commands, POST /response completes them,
// and POST /proxy lets a follower bridge process submit a command and
// wait for its result in one call.
package studio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/lydakis/studiomcp/internal/dispatch"
)

const maxRequestBodyBytes = 8 << 20

// Server is the owner process's HTTP surface over the shared dispatch
// state. Only the process that won the port bind runs one.
type Server struct {
	state  *dispatch.State
	window time.Duration
	logger *slog.Logger
	srv    *http.Server
}

// NewServer builds the HTTP surface. window bounds how long GET /request
// is held open before answering "no work yet".
func NewServer(state *dispatch.State, window time.Duration, logger *slog.Logger) *Server {
	s := &Server{
		state:  state,
		window: window,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /request", s.handleRequest)
	mux.HandleFunc("POST /response", s.handleResponse)
	mux.HandleFunc("POST /proxy", s.handleProxy)

	// No write timeout: /request holds connections for the poll window
	// and /proxy blocks until Studio finishes executing the command.
	s.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("serving studio http surface", "addr", ln.Addr().String())
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server and lets in-flight requests drain.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// handleRequest long-polls for the next queued command. An empty 423
// tells the plugin "no work within the window, poll again"; it is not an
// error.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	timer := time.NewTimer(s.window)
	defer timer.Stop()

	for {
		// Waiter before the queue check, so an enqueue landing between
		// the two still wakes this poll instead of stranding the
		// command until the next one.
		waiter := s.state.Waiter()
		if env, ok := s.state.TryDequeue(); ok {
			s.logger.Debug("dispatching command to studio", "id", env.ID)
			writeJSON(w, http.StatusOK, env)
			return
		}

		select {
		case <-waiter:
		case <-timer.C:
			// The select may pick the timer over a simultaneous wakeup;
			// check the queue one last time before answering empty.
			if env, ok := s.state.TryDequeue(); ok {
				s.logger.Debug("dispatching command to studio", "id", env.ID)
				writeJSON(w, http.StatusOK, env)
				return
			}
			w.WriteHeader(http.StatusLocked)
			return
		case <-r.Context().Done():
			return
		}
	}
}

// handleResponse completes the pending command named by the posted
// result. An unknown id is a client error on this one call only.
func (s *Server) handleResponse(w http.ResponseWriter, r *http.Request) {
	var msg dispatch.ResultMessage
	if err := decodeJSONBody(w, r, &msg); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid result: "+err.Error())
		return
	}

	s.logger.Debug("received reply from studio", "id", msg.ID)
	if err := s.state.Complete(msg.ID, dispatch.Outcome{Response: msg.Response}); err != nil {
		if errors.Is(err, dispatch.ErrUnknownCommand) {
			writeErr(w, http.StatusNotFound, err.Error())
			return
		}
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleProxy accepts a forwarded envelope from a follower bridge,
// enqueues it like any locally-submitted command, and blocks until the
// result arrives.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	var env dispatch.Envelope
	if err := decodeJSONBody(w, r, &env); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid envelope: "+err.Error())
		return
	}
	if env.ID == nil {
		writeErr(w, http.StatusBadRequest, "proxy command without id")
		return
	}
	id := *env.ID

	s.logger.Debug("proxying command for follower", "id", id)
	ch, err := s.state.Enqueue(env)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	select {
	case out := <-ch:
		if out.Err != nil {
			writeErr(w, http.StatusBadGateway, out.Err.Error())
			return
		}
		writeJSON(w, http.StatusOK, dispatch.ResultMessage{ID: id, Response: out.Response})
	case <-r.Context().Done():
		// Follower gave up; nobody is interested in this result anymore.
		s.state.Abandon(id)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint: errcheck
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}
