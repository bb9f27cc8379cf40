package oracle

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// subscriptionState tracks the lifecycle of one live listen operation.
// Terminal states are mutually exclusive and final.
type subscriptionState int

const (
	stateIdle subscriptionState = iota
	stateListening
	stateTimedOut
	stateCancelled
	stateCompleted
)

func (s subscriptionState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateListening:
		return "listening"
	case stateTimedOut:
		return "timed_out"
	case stateCancelled:
		return "cancelled"
	case stateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

func (s subscriptionState) terminal() bool {
	return s == stateTimedOut || s == stateCancelled || s == stateCompleted
}

// subscription is the handle for one live listen operation. The cancel
// function stops the operation's context; the state machine records which
// terminal transition won.
type subscription struct {
	id     common.Hash
	cancel context.CancelFunc

	mu    sync.Mutex
	state subscriptionState
}

// finish moves the subscription to a terminal state. Only the first
// terminal transition takes effect; later calls are no-ops. Returns whether
// this call performed the transition.
func (s *subscription) finish(to subscriptionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.terminal() {
		return false
	}
	s.state = to
	s.cancel()
	return true
}

func (s *subscription) currentState() subscriptionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// subscriptionRegistry owns the live subscriptions of an engine, keyed by
// random 32-byte ids.
type subscriptionRegistry struct {
	mu   sync.Mutex
	subs map[common.Hash]*subscription
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{subs: make(map[common.Hash]*subscription)}
}

// add registers a new subscription in the Listening state.
func (r *subscriptionRegistry) add(cancel context.CancelFunc) (*subscription, error) {
	id, err := newSubscriptionID()
	if err != nil {
		return nil, err
	}
	sub := &subscription{id: id, cancel: cancel, state: stateListening}
	r.mu.Lock()
	r.subs[id] = sub
	r.mu.Unlock()
	return sub, nil
}

func (r *subscriptionRegistry) get(id common.Hash) *subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs[id]
}

func (r *subscriptionRegistry) remove(id common.Hash) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()
}

// unsubscribe cancels the subscription with the given id. Unknown ids and
// already-terminal subscriptions are no-ops, so the call is idempotent.
func (r *subscriptionRegistry) unsubscribe(id common.Hash) {
	sub := r.get(id)
	if sub == nil {
		return
	}
	sub.finish(stateCancelled)
}

func newSubscriptionID() (common.Hash, error) {
	var id common.Hash
	if _, err := rand.Read(id[:]); err != nil {
		return common.Hash{}, fmt.Errorf("failed to generate subscription id: %w", err)
	}
	return id, nil
}
