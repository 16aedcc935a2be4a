package store

import "errors"

// Sentinel errors for the engine's failure taxonomy. Callers classify
// failures with errors.Is; wrapped messages carry the detail.
var (
	// ErrNotFound reports an operation on an unknown checker.
	ErrNotFound = errors.New("checker not found")

	// ErrConflict reports a create for a name that already exists.
	ErrConflict = errors.New("checker already exists")

	// ErrValidation reports malformed input. The caller's fault;
	// never retried automatically.
	ErrValidation = errors.New("invalid input")

	// ErrOutOfOrder reports a status append whose timestamp is strictly
	// earlier than the checker's latest status. The append is rejected,
	// not reordered, to keep per-checker histories monotonic.
	ErrOutOfOrder = errors.New("status timestamp is older than latest")

	// ErrPersistence reports that a mutation could not be durably
	// committed. The mutation was not applied; further writes are
	// refused until the journal is healthy again.
	ErrPersistence = errors.New("persistence failure")

	// ErrGone reports a subscription resume point that has fallen out
	// of the retention window. The subscriber must do a fresh read and
	// resubscribe without a resume sequence.
	ErrGone = errors.New("resume sequence no longer retained")

	// ErrOverflow reports a subscriber disconnected because its
	// outbound queue filled up.
	ErrOverflow = errors.New("subscriber queue overflow")
)
