package studio

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lydakis/studiomcp/internal/dispatch"
)

func newTestServer(t *testing.T, state *dispatch.State, window time.Duration) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer(state, window, logger)
	ts := httptest.NewServer(s.srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshaling body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRequestReturnsQueuedCommand(t *testing.T) {
	state := dispatch.NewState()
	ts := newTestServer(t, state, 15*time.Second)

	env, id := dispatch.NewEnvelope(dispatch.Args{RunCode: &dispatch.RunCode{Command: "return 1+1"}})
	if _, err := state.Enqueue(env); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	resp, err := http.Get(ts.URL + "/request")
	if err != nil {
		t.Fatalf("GET /request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var got dispatch.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	if got.ID == nil || *got.ID != id {
		t.Fatalf("envelope id = %v, want %s", got.ID, id)
	}
	if got.Args.RunCode == nil || got.Args.RunCode.Command != "return 1+1" {
		t.Fatalf("envelope args = %+v, want original RunCode", got.Args)
	}
}

func TestRequestEmptyQueueTimesOutWith423(t *testing.T) {
	state := dispatch.NewState()
	window := 200 * time.Millisecond
	ts := newTestServer(t, state, window)

	start := time.Now()
	resp, err := http.Get(ts.URL + "/request")
	if err != nil {
		t.Fatalf("GET /request: %v", err)
	}
	defer resp.Body.Close()
	elapsed := time.Since(start)

	if resp.StatusCode != http.StatusLocked {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusLocked)
	}
	if elapsed < window {
		t.Fatalf("returned after %v, want at least %v", elapsed, window)
	}
	if elapsed > 5*time.Second {
		t.Fatalf("returned after %v, poll window not enforced", elapsed)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) != 0 {
		t.Fatalf("body = %q, want empty", body)
	}
}

func TestRequestWakesOnConcurrentEnqueue(t *testing.T) {
	state := dispatch.NewState()
	ts := newTestServer(t, state, 10*time.Second)

	env, id := dispatch.NewEnvelope(dispatch.Args{DeletePart: &dispatch.DeletePart{PartName: "Baseplate"}})
	go func() {
		time.Sleep(100 * time.Millisecond)
		state.Enqueue(env) //nolint: errcheck
	}()

	resp, err := http.Get(ts.URL + "/request")
	if err != nil {
		t.Fatalf("GET /request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var got dispatch.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	if got.ID == nil || *got.ID != id {
		t.Fatalf("envelope id = %v, want %s", got.ID, id)
	}
}

func TestResponseResolvesWaitingInvocation(t *testing.T) {
	state := dispatch.NewState()
	ts := newTestServer(t, state, 15*time.Second)

	env, id := dispatch.NewEnvelope(dispatch.Args{RunCode: &dispatch.RunCode{Command: "return 1+1"}})
	ch, err := state.Enqueue(env)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, ok := state.TryDequeue(); !ok {
		t.Fatal("TryDequeue() empty, want envelope")
	}

	resp := postJSON(t, ts.URL+"/response", dispatch.ResultMessage{ID: id, Response: "2"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	select {
	case out := <-ch:
		if out.Err != nil || out.Response != "2" {
			t.Fatalf("outcome = %+v, want response %q", out, "2")
		}
	case <-time.After(time.Second):
		t.Fatal("waiting invocation never resolved")
	}
}

func TestResponseUnknownIDReturns404(t *testing.T) {
	state := dispatch.NewState()
	ts := newTestServer(t, state, 15*time.Second)

	resp := postJSON(t, ts.URL+"/response", dispatch.ResultMessage{ID: uuid.New(), Response: "x"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestResponseMalformedBodyReturns400(t *testing.T) {
	state := dispatch.NewState()
	ts := newTestServer(t, state, 15*time.Second)

	resp, err := http.Post(ts.URL+"/response", "application/json", bytes.NewReader([]byte("{")))
	if err != nil {
		t.Fatalf("POST /response: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestProxyRoundTrip(t *testing.T) {
	state := dispatch.NewState()
	ts := newTestServer(t, state, 15*time.Second)

	env, id := dispatch.NewEnvelope(dispatch.Args{InsertModel: &dispatch.InsertModel{Query: "red car"}})

	// Studio side: poll the queue and post the result, as the plugin would.
	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if got, ok := state.TryDequeue(); ok {
				state.Complete(*got.ID, dispatch.Outcome{Response: "inserted RedCar"}) //nolint: errcheck
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	resp := postJSON(t, ts.URL+"/proxy", env)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var msg dispatch.ResultMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if msg.ID != id {
		t.Fatalf("result id = %s, want %s", msg.ID, id)
	}
	if msg.Response != "inserted RedCar" {
		t.Fatalf("result response = %q, want %q", msg.Response, "inserted RedCar")
	}
}

func TestProxyWithoutIDReturns400(t *testing.T) {
	state := dispatch.NewState()
	ts := newTestServer(t, state, 15*time.Second)

	env := dispatch.Envelope{Args: dispatch.Args{RunCode: &dispatch.RunCode{Command: "print(1)"}}}
	resp := postJSON(t, ts.URL+"/proxy", env)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}
