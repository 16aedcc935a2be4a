package hub

import "github.com/tarneaux/swec/internal/store"

// State is a subscription's position in its lifecycle.
type State int32

const (
	// StateConnecting means the subscription exists but is not yet
	// registered for delivery.
	StateConnecting State = iota

	// StateActive means the subscription receives matching events.
	StateActive

	// StateDraining means delivery has stopped and the channel is
	// closed, but queued events remain readable.
	StateDraining

	// StateClosed means the subscription is fully torn down.
	StateClosed
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Subscription is one consumer's connection to the hub.
//
// Events arrive on [Subscription.Events] in commit order. When the
// channel closes, [Subscription.Err] explains why: nil for an orderly
// shutdown or consumer close, [store.ErrOverflow] when the hub
// disconnected a slow consumer. The consumer must call
// [Subscription.Close] when done.
//
// State and err are written only under the hub lock; consumers read
// them through the accessor methods.
type Subscription struct {
	id     string
	filter Filter
	events chan store.Event
	hub    *Hub
	state  State
	err    error
}

// ID returns the subscription's unique id, used in logs.
func (s *Subscription) ID() string {
	return s.id
}

// Events returns the delivery channel. It is closed when the
// subscription leaves the Active state; any queued events can still be
// drained first.
func (s *Subscription) Events() <-chan store.Event {
	return s.events
}

// Err reports why delivery stopped. Only meaningful after the events
// channel has been closed.
func (s *Subscription) Err() error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return s.err
}

// State returns the current lifecycle state.
func (s *Subscription) State() State {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return s.state
}

// Close tears the subscription down. Safe to call multiple times, and
// safe to call after the hub has already disconnected the subscriber.
func (s *Subscription) Close() {
	s.hub.remove(s)
}
