// Package wal is the durability layer of the status engine: an
// append-only journal of committed events plus periodic full-state
// snapshots, together the only on-disk state the engine owns.
//
// The commit protocol is journal-before-apply: an event is assigned its
// global sequence number, written and fsynced, and only then applied to
// memory and published to subscribers. "Committed" means the journal
// write is durable, so an acknowledged write can never be lost to a
// crash, and a crash mid-write leaves at most a torn trailing entry
// that recovery truncates away.
package wal
