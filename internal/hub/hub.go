package hub

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tarneaux/swec/internal/metrics"
	"github.com/tarneaux/swec/internal/store"
)

// DefaultBuffer is the outbound queue capacity used when a subscriber
// doesn't ask for one.
const DefaultBuffer = 64

// Filter restricts which committed events a subscriber receives.
// The zero value matches everything; Checker takes precedence over
// Group when both are set.
type Filter struct {
	// Checker, when non-empty, matches only events for this checker.
	Checker string

	// Group, when non-empty, matches only events whose checker was in
	// this group at commit time.
	Group string
}

// Matches reports whether ev passes the filter.
func (f Filter) Matches(ev store.Event) bool {
	if f.Checker != "" {
		return ev.Checker == f.Checker
	}
	if f.Group != "" {
		return ev.Group == f.Group
	}
	return true
}

// Hub fans committed events out to live subscribers.
//
// Publish is called from inside the commit section, once per committed
// event in sequence order, and enqueues without blocking: every
// subscriber owns a bounded queue, and a subscriber whose queue is full
// is disconnected rather than allowed to stall the commit path or
// silently miss events. The subscriber set has its own lock, distinct
// from the store's, so subscription churn never contends with readers.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]*Subscription
	buffer  int
	closed  bool
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a hub. buffer is the default subscriber queue capacity
// (0 or less selects [DefaultBuffer]); m may be nil.
func New(buffer int, m *metrics.Metrics, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:    make(map[string]*Subscription),
		buffer:  buffer,
		logger:  logger,
		metrics: m,
	}
}

// Subscribe registers a new subscriber and returns its subscription,
// already Active. backlog, if any, is preloaded into the queue ahead of
// live events; the queue is sized to hold the whole backlog plus the
// configured capacity, so a resume can never overflow on arrival.
//
// The caller is responsible for calling Subscribe while no commit can
// interleave (the engine does so under the journal barrier), which is
// what makes the backlog gap-free: every event is either in the backlog
// or published after registration, never both, never neither.
func (h *Hub) Subscribe(f Filter, buffer int, backlog []store.Event) *Subscription {
	if buffer <= 0 {
		buffer = h.buffer
	}
	sub := &Subscription{
		id:     uuid.NewString(),
		filter: f,
		hub:    h,
		state:  StateConnecting,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		sub.events = make(chan store.Event)
		close(sub.events)
		sub.state = StateClosed
		return sub
	}

	sub.events = make(chan store.Event, len(backlog)+buffer)
	for _, ev := range backlog {
		if f.Matches(ev) {
			sub.events <- ev
		}
	}
	sub.state = StateActive
	h.subs[sub.id] = sub
	h.metrics.SubscriberAdded()
	h.logger.Debug("subscriber connected",
		"subscriber", sub.id,
		"checker", f.Checker,
		"group", f.Group,
		"backlog", len(backlog),
	)
	return sub
}

// Publish delivers a committed event to every active subscriber whose
// filter matches. The enqueue is non-blocking: a subscriber with a full
// queue is moved to Draining and disconnected with [store.ErrOverflow].
// Publish is called in commit order, so each subscriber's delivery
// order is a subsequence of the global sequence order.
func (h *Hub) Publish(ev store.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.state != StateActive || !sub.filter.Matches(ev) {
			continue
		}
		select {
		case sub.events <- ev:
		default:
			// Slow consumer: fail it rather than stall the commit
			// path or drop events silently.
			sub.err = store.ErrOverflow
			h.drainLocked(sub)
			h.metrics.Overflow()
			h.logger.Warn("subscriber queue overflow, disconnecting",
				"subscriber", sub.id,
				"seq", ev.Seq,
			)
		}
	}
}

// drainLocked transitions sub to Draining: it is removed from the set
// and its channel is closed, but events already queued stay readable.
// Callers must hold h.mu.
func (h *Hub) drainLocked(sub *Subscription) {
	if sub.state != StateActive {
		return
	}
	sub.state = StateDraining
	delete(h.subs, sub.id)
	close(sub.events)
	h.metrics.SubscriberRemoved()
}

// remove handles a consumer-initiated close.
func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drainLocked(sub)
	sub.state = StateClosed
}

// Len returns the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber and rejects future subscriptions.
// Called on engine shutdown; subscribers see their channel close after
// any queued events.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, sub := range h.subs {
		h.drainLocked(sub)
	}
}
