package store

import (
	"fmt"
	"sync"
)

// DefaultHistoryLimit is the per-checker history capacity used when no
// limit is configured. One entry per minute-level check keeps roughly
// two and a half days of history.
const DefaultHistoryLimit = 3600

// Store holds every checker's spec and bounded status history.
//
// Locking is two-level and per-checker. Each checker has a mutation
// lock (handed out by [Store.WriterLock]) that serializes the whole
// validate/commit/apply pipeline for that checker, and a data RWMutex
// that is held only for the in-memory apply step or a read. Readers
// therefore never wait on journal I/O, and mutations to distinct
// checkers never contend. The store-level RWMutex guards only the map
// and the creation-order list.
//
// Store itself performs no durability: mutations are applied through
// [Store.Apply] by whoever owns the commit pipeline, both on the live
// path and during journal replay.
type Store struct {
	mu       sync.RWMutex
	checkers map[string]*record
	order    []string
	locks    map[string]*sync.Mutex
	limit    int
}

// record is one checker's live state.
type record struct {
	mu      sync.RWMutex
	spec    Spec
	history *ring
}

// New creates an empty store with the given per-checker history limit.
// A limit of 0 or less selects [DefaultHistoryLimit].
func New(historyLimit int) *Store {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Store{
		checkers: make(map[string]*record),
		locks:    make(map[string]*sync.Mutex),
		limit:    historyLimit,
	}
}

// HistoryLimit returns the per-checker history capacity.
func (s *Store) HistoryLimit() int {
	return s.limit
}

// WriterLock returns the mutation lock for name, creating it on first
// use. Exactly one mutation per checker may be in flight at a time;
// the caller holds this lock from validation through apply. Locks
// outlive deletion so that delete/recreate sequences on the same name
// stay serialized.
func (s *Store) WriterLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

// get returns the live record for name, or nil.
func (s *Store) get(name string) *record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkers[name]
}

// Exists reports whether a checker with the given name is present.
func (s *Store) Exists(name string) bool {
	return s.get(name) != nil
}

// Len returns the number of checkers.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.checkers)
}

// GetSpec returns the spec of the named checker.
func (s *Store) GetSpec(name string) (Spec, error) {
	rec := s.get(name)
	if rec == nil {
		return Spec{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	return rec.spec, nil
}

// GetChecker returns a full copy of the named checker: spec plus the
// whole history, oldest first.
func (s *Store) GetChecker(name string) (Checker, error) {
	rec := s.get(name)
	if rec == nil {
		return Checker{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	return Checker{Spec: rec.spec, Statuses: rec.history.collect()}, nil
}

// Latest returns the newest status of the named checker, or nil if no
// status has been reported yet.
func (s *Store) Latest(name string) (*Status, error) {
	rec := s.get(name)
	if rec == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	if st, ok := rec.history.last(); ok {
		return &st, nil
	}
	return nil, nil
}

// History returns one page of the named checker's history, oldest
// first, along with the total history length. A limit of 0 means "to
// the end".
func (s *Store) History(name string, offset, limit int) ([]Status, int, error) {
	rec := s.get(name)
	if rec == nil {
		return nil, 0, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	return rec.history.slice(offset, limit), rec.history.len(), nil
}

// List returns all checkers in creation order, optionally restricted
// to one group. Each entry carries the spec and the latest status;
// full histories are paginated separately via [Store.History].
func (s *Store) List(group string) []ListedChecker {
	s.mu.RLock()
	names := make([]string, len(s.order))
	copy(names, s.order)
	recs := make([]*record, len(names))
	for i, name := range names {
		recs[i] = s.checkers[name]
	}
	s.mu.RUnlock()

	out := make([]ListedChecker, 0, len(names))
	for i, rec := range recs {
		if rec == nil {
			continue
		}
		rec.mu.RLock()
		spec := rec.spec
		last, ok := rec.history.last()
		rec.mu.RUnlock()
		if group != "" && spec.Group != group {
			continue
		}
		entry := ListedChecker{Name: names[i], Spec: spec}
		if ok {
			entry.Latest = &last
		}
		out = append(out, entry)
	}
	return out
}

// Apply performs the in-memory state transition for a committed event.
// It is the single mutation path, shared by live commits and journal
// replay, and must be deterministic: the same event sequence always
// produces the same state. Validation has already happened by the time
// an event reaches Apply; errors here indicate a corrupt journal.
func (s *Store) Apply(ev Event) error {
	switch ev.Kind {
	case KindSpecCreated:
		if ev.Spec == nil {
			return fmt.Errorf("event %d: %s without spec", ev.Seq, ev.Kind)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.checkers[ev.Checker]; ok {
			return fmt.Errorf("event %d: checker %q already exists", ev.Seq, ev.Checker)
		}
		s.checkers[ev.Checker] = &record{spec: *ev.Spec, history: newRing(s.limit)}
		s.order = append(s.order, ev.Checker)
		return nil

	case KindSpecUpdated:
		rec := s.get(ev.Checker)
		if rec == nil || ev.Spec == nil {
			return fmt.Errorf("event %d: cannot update checker %q", ev.Seq, ev.Checker)
		}
		rec.mu.Lock()
		rec.spec = *ev.Spec
		rec.mu.Unlock()
		return nil

	case KindSpecDeleted:
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.checkers[ev.Checker]; !ok {
			return fmt.Errorf("event %d: cannot delete unknown checker %q", ev.Seq, ev.Checker)
		}
		delete(s.checkers, ev.Checker)
		for i, name := range s.order {
			if name == ev.Checker {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		return nil

	case KindStatusAppended:
		rec := s.get(ev.Checker)
		if rec == nil || ev.Status == nil {
			return fmt.Errorf("event %d: cannot append status to checker %q", ev.Seq, ev.Checker)
		}
		rec.mu.Lock()
		rec.history.push(*ev.Status)
		rec.mu.Unlock()
		return nil

	default:
		return fmt.Errorf("event %d: unknown kind %q", ev.Seq, ev.Kind)
	}
}

// Export returns a deep copy of the full store state and the creation
// order, for snapshotting.
func (s *Store) Export() (map[string]Checker, []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	checkers := make(map[string]Checker, len(s.checkers))
	for name, rec := range s.checkers {
		rec.mu.RLock()
		checkers[name] = Checker{Spec: rec.spec, Statuses: rec.history.collect()}
		rec.mu.RUnlock()
	}
	order := make([]string, len(s.order))
	copy(order, s.order)
	return checkers, order
}

// Restore replaces the store contents with snapshot state. Histories
// longer than the current limit keep only their newest entries, so the
// limit may be lowered between restarts without breaking recovery.
func (s *Store) Restore(checkers map[string]Checker, order []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers = make(map[string]*record, len(checkers))
	s.order = s.order[:0]
	restore := func(name string, c Checker) {
		rec := &record{spec: c.Spec, history: newRing(s.limit)}
		rec.history.restore(c.Statuses)
		s.checkers[name] = rec
		s.order = append(s.order, name)
	}
	for _, name := range order {
		if c, ok := checkers[name]; ok {
			restore(name, c)
		}
	}
	// names missing from the order list still get restored
	for name, c := range checkers {
		if _, ok := s.checkers[name]; !ok {
			restore(name, c)
		}
	}
}
