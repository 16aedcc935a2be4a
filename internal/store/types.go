package store

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Spec describes a monitored service. It is intended to be read by humans;
// the engine only validates it and hands it back out.
type Spec struct {
	// Description is a human-readable summary of the service. Required.
	Description string `json:"description"`

	// URL is the service's public URL, if it has one.
	// When set it must be an absolute URL (scheme and host).
	URL string `json:"url,omitempty"`

	// Group is a free-form grouping label used for listing and
	// subscription filters. Accepted verbatim, may be empty.
	Group string `json:"group,omitempty"`
}

// Validate checks that the spec is well formed.
//
// Description must be non-empty after trimming whitespace. URL, when
// present, must parse as an absolute URI; the scheme is not restricted
// here, a checker that cannot probe it simply won't. Group is accepted
// verbatim. Violations are reported as [ErrValidation].
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrValidation)
	}
	if s.URL != "" {
		parsed, err := url.Parse(s.URL)
		if err != nil {
			return fmt.Errorf("%w: invalid url: %v", ErrValidation, err)
		}
		if !parsed.IsAbs() {
			return fmt.Errorf("%w: url must be absolute", ErrValidation)
		}
	}
	return nil
}

// Status is one reported observation of a service at a point in time.
// It is immutable once stored.
type Status struct {
	// Time is when the observation was made, as reported by the checker.
	Time time.Time `json:"time"`

	// Up reports whether the service was reachable and healthy.
	Up bool `json:"up"`

	// Message is human-readable detail about the observation,
	// e.g. "200 OK" or "timeout after 5s".
	Message string `json:"message"`
}

// Checker is a point-in-time view of one checker: its spec and its
// status history, oldest first. Returned by reads; never aliased to
// internal state.
type Checker struct {
	Spec     Spec     `json:"spec"`
	Statuses []Status `json:"statuses"`
}

// Latest returns the newest status, or nil if the history is empty.
func (c Checker) Latest() *Status {
	if len(c.Statuses) == 0 {
		return nil
	}
	return &c.Statuses[len(c.Statuses)-1]
}

// ListedChecker is one entry of a checker listing: the name, the spec
// and the latest status (nil when no status has been reported yet).
// Listings carry only the latest status; full histories are paginated
// separately.
type ListedChecker struct {
	Name   string  `json:"name"`
	Spec   Spec    `json:"spec"`
	Latest *Status `json:"latest,omitempty"`
}

// EventKind identifies the kind of committed mutation an [Event] carries.
type EventKind string

const (
	// KindSpecCreated is emitted when a checker is created.
	KindSpecCreated EventKind = "spec_created"

	// KindSpecUpdated is emitted when a checker's spec is replaced.
	KindSpecUpdated EventKind = "spec_updated"

	// KindSpecDeleted is emitted when a checker is deleted.
	// Exactly one deletion event is emitted per delete; the checker's
	// history is gone with it.
	KindSpecDeleted EventKind = "spec_deleted"

	// KindStatusAppended is emitted when a status is appended to a
	// checker's history.
	KindStatusAppended EventKind = "status_appended"

	// KindInitial is a synthetic event sent as the first frame of a
	// watch stream. It carries the checker's current spec and latest
	// status together with the sequence number they are valid at.
	// Initial events are never committed to the journal.
	KindInitial EventKind = "initial"
)

// Event is a committed mutation. The same type serves as the durable
// journal record and as the message delivered to subscribers: Seq is the
// global commit sequence, Time the commit time, and exactly one of Spec
// or Status is set depending on Kind (both for [KindInitial]).
type Event struct {
	// Seq is the global sequence number assigned at commit.
	// Sequence numbers totally order all commits and are never reused.
	Seq uint64 `json:"seq"`

	// Kind is the mutation kind.
	Kind EventKind `json:"kind"`

	// Checker is the name of the checker the mutation applies to.
	Checker string `json:"checker"`

	// Group is the checker's group at commit time. Recorded on every
	// event so that group-filtered subscribers can match deletions and
	// replayed history without a live record to consult.
	Group string `json:"group,omitempty"`

	// Time is the commit time.
	Time time.Time `json:"time"`

	// Spec is the new spec for spec events, and the current spec for
	// initial events.
	Spec *Spec `json:"spec,omitempty"`

	// Status is the appended status for status events, and the latest
	// status (if any) for initial events.
	Status *Status `json:"status,omitempty"`
}
