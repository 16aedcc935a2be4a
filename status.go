package swec

import (
	"github.com/tarneaux/swec/internal/hub"
	"github.com/tarneaux/swec/internal/store"
)

// Core domain types, defined in internal/store and aliased here so
// that callers only ever import the root package.
type (
	// Spec describes a monitored service: a required human-readable
	// description, an optional absolute URL, and an optional free-form
	// group label.
	Spec = store.Spec

	// Status is one reported observation: a timestamp, an up/down
	// flag, and a human-readable message.
	Status = store.Status

	// Checker is a point-in-time view of one checker: its spec plus
	// its status history, oldest first.
	Checker = store.Checker

	// ListedChecker is one entry of a checker listing: name, spec,
	// and latest status.
	ListedChecker = store.ListedChecker

	// Event is a committed mutation tagged with its global sequence
	// number. Subscribers receive events in sequence order.
	Event = store.Event

	// EventKind identifies what an event carries.
	EventKind = store.EventKind

	// Filter restricts which events a subscriber receives.
	Filter = hub.Filter

	// Subscription is a live event stream; see [Engine.Subscribe].
	Subscription = hub.Subscription
)

// Event kinds, re-exported from internal/store.
const (
	KindSpecCreated    = store.KindSpecCreated
	KindSpecUpdated    = store.KindSpecUpdated
	KindSpecDeleted    = store.KindSpecDeleted
	KindStatusAppended = store.KindStatusAppended
	KindInitial        = store.KindInitial
)

// The engine's failure taxonomy. Match with errors.Is.
var (
	ErrNotFound    = store.ErrNotFound
	ErrConflict    = store.ErrConflict
	ErrValidation  = store.ErrValidation
	ErrOutOfOrder  = store.ErrOutOfOrder
	ErrPersistence = store.ErrPersistence
	ErrGone        = store.ErrGone
	ErrOverflow    = store.ErrOverflow
)

// Info describes an API endpoint to clients: whether it accepts writes
// and the server version.
type Info struct {
	Writable bool   `json:"writable"`
	Version  string `json:"version"`
}
