package dispatch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrUnknownCommand is returned by Complete when no pending entry matches
// the identifier: the result is late, duplicate, or was never issued here.
var ErrUnknownCommand = errors.New("unknown command id")

// Outcome is what a waiting tool invocation eventually receives. Err is
// set for bridge-level failures (for example a dead relay); host-side
// failures travel inside Response as ordinary text.
type Outcome struct {
	Response string
	Err      error
}

// State is the single source of truth shared by the tool server, the
// HTTP surface, and the relay loop: a FIFO queue of undelivered
// envelopes plus the id→channel map for in-flight commands.
//
// The mutex is held only for queue/map mutations, never across a wait.
type State struct {
	mu      sync.Mutex
	queue   []Envelope
	pending map[uuid.UUID]chan Outcome
	notify  chan struct{}
}

// NewState creates an empty dispatch state.
func NewState() *State {
	return &State{
		pending: make(map[uuid.UUID]chan Outcome),
		notify:  make(chan struct{}),
	}
}

// Enqueue appends the envelope, registers a pending entry for its id, and
// wakes every waiter. The returned channel delivers exactly one Outcome.
func (s *State) Enqueue(env Envelope) (<-chan Outcome, error) {
	if env.ID == nil {
		return nil, fmt.Errorf("enqueueing envelope without id")
	}
	ch := make(chan Outcome, 1)

	s.mu.Lock()
	if _, exists := s.pending[*env.ID]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("duplicate command id %s", env.ID)
	}
	s.queue = append(s.queue, env)
	s.pending[*env.ID] = ch
	close(s.notify)
	s.notify = make(chan struct{})
	s.mu.Unlock()

	return ch, nil
}

// TryDequeue pops the head of the queue if one is present.
func (s *State) TryDequeue() (Envelope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Envelope{}, false
	}
	env := s.queue[0]
	s.queue = s.queue[1:]
	return env, true
}

// Waiter returns a channel that is closed on the next enqueue. Waiters
// must re-check the queue after the channel closes; the close is an
// edge-triggered "something changed" signal, not an item handoff.
// Acquire the waiter before checking the queue: an enqueue closes the
// channel that was current at enqueue time, so a waiter taken after a
// failed check can miss that close.
func (s *State) Waiter() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notify
}

// Complete removes the pending entry for id and delivers the outcome to
// its waiter. The pending channel is buffered, so delivery never blocks.
func (s *State) Complete(id uuid.UUID, out Outcome) error {
	s.mu.Lock()
	ch, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("completing %s: %w", id, ErrUnknownCommand)
	}
	ch <- out
	return nil
}

// Abandon drops the pending entry for id without delivering anything.
// Used when the waiting invocation has stopped listening.
func (s *State) Abandon(id uuid.UUID) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// PendingLen reports the number of in-flight commands.
func (s *State) PendingLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
