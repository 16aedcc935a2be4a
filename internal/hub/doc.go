// Package hub fans committed mutations out to live subscribers.
//
// Every subscriber declares an optional filter (one checker, one group,
// or everything) and owns a bounded queue drained at its own pace.
// Publication happens once per commit, in global sequence order, as a
// non-blocking enqueue: a subscriber that cannot keep up is
// disconnected rather than allowed to stall other subscribers or the
// write path. Reconnecting subscribers can resume from a previously
// seen sequence number; the backlog comes from the journal's retained
// tail and is preloaded atomically with registration so the stream has
// no gaps and no duplicates.
package hub
