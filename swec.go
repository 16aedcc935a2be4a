package swec

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/tarneaux/swec/internal/hub"
	"github.com/tarneaux/swec/internal/metrics"
	"github.com/tarneaux/swec/internal/store"
	"github.com/tarneaux/swec/internal/wal"
)

// Engine is the status store and live-update engine.
//
// An Engine accepts concurrent writes from many independent checkers,
// serves concurrent reads without blocking writers, journals every
// accepted mutation before acknowledging it, and fans committed changes
// out to subscribers in a single global order. Create one with [New];
// state from previous runs is recovered from the data directory before
// New returns.
//
// [Engine.Run] drives background snapshotting and shuts the engine down
// when its context is cancelled. Callers that don't use Run must call
// [Engine.Close] themselves.
type Engine struct {
	store   *store.Store
	wal     *wal.WAL
	hub     *hub.Hub
	metrics *metrics.Metrics
	logger  *slog.Logger

	snapshotInterval time.Duration

	closeOnce sync.Once
	closeErr  error
}

// New creates an [Engine], recovering all committed state from the
// configured data directory. Options have sensible defaults:
//   - Data directory: "data"
//   - History limit: 3600 entries per checker
//   - Snapshot interval: 60 seconds
//   - Snapshot threshold: 4096 journal entries
//   - Subscriber buffer: 64 events
//
// Returns an error if the data directory cannot be used or recovery
// finds state it cannot load.
func New(opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	st := store.New(cfg.historyLimit)
	w, err := wal.Open(cfg.dataDir, st, cfg.snapshotThreshold, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	m := metrics.New()
	e := &Engine{
		store:            st,
		wal:              w,
		hub:              hub.New(cfg.subscriberBuffer, m, logger),
		metrics:          m,
		logger:           logger,
		snapshotInterval: cfg.snapshotInterval,
	}
	logger.Info("engine ready",
		"checkers", st.Len(),
		"seq", w.Seq(),
		"data_dir", cfg.dataDir,
	)
	return e, nil
}

// commit runs one mutation through the journal. On success the event
// has been fsynced, applied to memory and published, in that order and
// atomically with respect to every other commit.
func (e *Engine) commit(ev store.Event) error {
	_, err := e.wal.Commit(ev, func(committed store.Event) {
		if aerr := e.store.Apply(committed); aerr != nil {
			// Validation happens before commit, so this is a bug,
			// not a caller error. The journal and memory now
			// disagree; log loudly.
			e.logger.Error("failed to apply committed event", "error", aerr, "seq", committed.Seq)
		}
		e.hub.Publish(committed)
	})
	if err != nil {
		e.metrics.CommitFailed()
		return err
	}
	e.metrics.CommitOK(string(ev.Kind))
	return nil
}

// CreateSpec registers a new checker under name. Fails with
// [ErrConflict] if the name is taken, [ErrValidation] if the spec is
// malformed, or [ErrPersistence] if the mutation cannot be journaled.
func (e *Engine) CreateSpec(name string, spec Spec) error {
	if name == "" {
		return fmt.Errorf("%w: checker name is required", ErrValidation)
	}
	if err := spec.Validate(); err != nil {
		return err
	}

	l := e.store.WriterLock(name)
	l.Lock()
	defer l.Unlock()

	if e.store.Exists(name) {
		return fmt.Errorf("%w: %q", ErrConflict, name)
	}
	return e.commit(store.Event{
		Kind:    store.KindSpecCreated,
		Checker: name,
		Group:   spec.Group,
		Time:    time.Now(),
		Spec:    &spec,
	})
}

// UpdateSpec replaces the spec of an existing checker. The checker's
// name and history are untouched. Fails with [ErrNotFound] if the
// checker doesn't exist.
func (e *Engine) UpdateSpec(name string, spec Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	l := e.store.WriterLock(name)
	l.Lock()
	defer l.Unlock()

	if !e.store.Exists(name) {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return e.commit(store.Event{
		Kind:    store.KindSpecUpdated,
		Checker: name,
		Group:   spec.Group,
		Time:    time.Now(),
		Spec:    &spec,
	})
}

// DeleteSpec removes a checker and its entire history, emitting exactly
// one deletion event. The name may be reused afterwards, but sequence
// numbers from its earlier life never are.
func (e *Engine) DeleteSpec(name string) error {
	l := e.store.WriterLock(name)
	l.Lock()
	defer l.Unlock()

	spec, err := e.store.GetSpec(name)
	if err != nil {
		return err
	}
	return e.commit(store.Event{
		Kind:    store.KindSpecDeleted,
		Checker: name,
		Group:   spec.Group,
		Time:    time.Now(),
		Spec:    &spec,
	})
}

// AppendStatus appends one observation to a checker's history. A zero
// entry time is filled in with the current time. Fails with
// [ErrNotFound] for an unknown checker and [ErrOutOfOrder] if the entry
// is older than the checker's latest status; an out-of-order entry is
// rejected outright rather than clamped or reordered, so a checker's
// history is always sorted by time. Appending may prune the oldest
// entry once the history limit is reached.
func (e *Engine) AppendStatus(name string, st Status) error {
	if st.Time.IsZero() {
		st.Time = time.Now()
	}

	l := e.store.WriterLock(name)
	l.Lock()
	defer l.Unlock()

	spec, err := e.store.GetSpec(name)
	if err != nil {
		return err
	}
	latest, err := e.store.Latest(name)
	if err != nil {
		return err
	}
	if latest != nil && st.Time.Before(latest.Time) {
		return fmt.Errorf("%w: %s is before %s",
			ErrOutOfOrder, st.Time.Format(time.RFC3339Nano), latest.Time.Format(time.RFC3339Nano))
	}
	return e.commit(store.Event{
		Kind:    store.KindStatusAppended,
		Checker: name,
		Group:   spec.Group,
		Time:    time.Now(),
		Status:  &st,
	})
}

// GetSpec returns the spec of the named checker.
func (e *Engine) GetSpec(name string) (Spec, error) {
	return e.store.GetSpec(name)
}

// GetChecker returns a full copy of the named checker, spec and
// history.
func (e *Engine) GetChecker(name string) (Checker, error) {
	return e.store.GetChecker(name)
}

// GetLatest returns the newest status of the named checker. Fails with
// [ErrNotFound] if the checker is unknown or has no statuses yet.
func (e *Engine) GetLatest(name string) (Status, error) {
	latest, err := e.store.Latest(name)
	if err != nil {
		return Status{}, err
	}
	if latest == nil {
		return Status{}, fmt.Errorf("%w: checker %q has no statuses yet", ErrNotFound, name)
	}
	return *latest, nil
}

// GetHistory returns one page of the named checker's history, oldest
// first, plus the total history length. A limit of 0 means "to the
// end".
func (e *Engine) GetHistory(name string, offset, limit int) ([]Status, int, error) {
	return e.store.History(name, offset, limit)
}

// ListCheckers returns all checkers in creation order, optionally
// restricted to one group.
func (e *Engine) ListCheckers(group string) []ListedChecker {
	return e.store.List(group)
}

// Seq returns the last committed global sequence number.
func (e *Engine) Seq() uint64 {
	return e.wal.Seq()
}

// Len returns the number of registered checkers.
func (e *Engine) Len() int {
	return e.store.Len()
}

// Subscribe opens a live event stream. Events matching the filter are
// delivered in commit order starting from the moment of subscription.
// buffer is the subscriber queue capacity; 0 selects the configured
// default. The caller must Close the subscription when done.
func (e *Engine) Subscribe(f Filter, buffer int) *Subscription {
	var sub *Subscription
	e.wal.Barrier(func(uint64) {
		sub = e.hub.Subscribe(f, buffer, nil)
	})
	return sub
}

// Resume opens a live event stream that first replays every committed
// event with a sequence greater than since, then continues live, with
// no gap and no duplicate in between. Fails with [ErrGone] when since
// predates the retention window; the caller must then do a fresh full
// read and subscribe without a resume point.
func (e *Engine) Resume(f Filter, since uint64, buffer int) (*Subscription, error) {
	var (
		sub *Subscription
		err error
	)
	e.wal.Barrier(func(uint64) {
		var backlog []store.Event
		backlog, err = e.wal.ReadSince(since)
		if err != nil {
			return
		}
		sub = e.hub.Subscribe(f, buffer, backlog)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// WatchChecker subscribes to a single checker and returns, atomically
// with the subscription, an initial event carrying the checker's
// current spec and latest status. Clients need no separate "read then
// subscribe" dance and cannot lose or double-see an update in between.
func (e *Engine) WatchChecker(name string, buffer int) (*Subscription, Event, error) {
	var (
		sub     *Subscription
		initial store.Event
		err     error
	)
	e.wal.Barrier(func(seq uint64) {
		var c store.Checker
		c, err = e.store.GetChecker(name)
		if err != nil {
			return
		}
		initial = store.Event{
			Seq:     seq,
			Kind:    store.KindInitial,
			Checker: name,
			Group:   c.Spec.Group,
			Time:    time.Now(),
			Spec:    &c.Spec,
			Status:  c.Latest(),
		}
		sub = e.hub.Subscribe(hub.Filter{Checker: name}, buffer, nil)
	})
	if err != nil {
		return nil, Event{}, err
	}
	return sub, initial, nil
}

// MetricsHandler returns the Prometheus scrape handler for the
// engine's collectors. Mounted on the private listener by the serve
// command.
func (e *Engine) MetricsHandler() http.Handler {
	return e.metrics.Handler()
}

// Run drives the engine's background work: periodic snapshots, plus an
// extra snapshot whenever the journal grows past the configured
// threshold. It blocks until ctx is cancelled, then takes a final
// snapshot and closes the engine.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return e.Close()
		case <-ticker.C:
			if e.wal.TailLen() > 0 {
				e.snapshot()
			}
		case <-e.wal.SnapshotSignal():
			e.snapshot()
		}
	}
}

// snapshot writes one snapshot and records its outcome.
func (e *Engine) snapshot() {
	start := time.Now()
	if err := e.wal.Snapshot(e.store); err != nil {
		e.logger.Error("snapshot failed", "error", err)
		return
	}
	e.metrics.SnapshotDone(e.wal.Seq(), time.Since(start))
}

// Close disconnects all subscribers, writes a final snapshot so the
// next start recovers without replay, and closes the journal. Safe to
// call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.hub.Close()
		if e.wal.TailLen() > 0 {
			if err := e.wal.Snapshot(e.store); err != nil {
				e.logger.Warn("final snapshot failed", "error", err)
			}
		}
		e.closeErr = e.wal.Close()
		e.logger.Info("engine stopped", "seq", e.wal.Seq())
	})
	return e.closeErr
}
