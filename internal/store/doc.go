// Package store holds the in-memory state of the status engine: every
// checker's spec and its bounded status history.
//
// The main components are:
//
//   - [Store]: the checker map with per-checker locking
//   - [Spec], [Status], [Checker]: the domain types
//   - [Event]: a committed mutation, shared by the journal and the
//     subscription hub
//
// The store is designed for concurrent access: reads take only brief
// per-checker read locks and are never blocked behind persistence I/O.
// Durability and fan-out live elsewhere (internal/wal and internal/hub);
// both drive state changes through [Store.Apply], the single
// deterministic mutation path.
package store
