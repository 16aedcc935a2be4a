package wal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tarneaux/swec/internal/store"
)

const (
	// journalName is the append-only event journal, one JSON object
	// per line in commit order.
	journalName = "journal.log"

	// snapshotName is the full-state snapshot, written atomically via
	// a temp file and rename.
	snapshotName = "snapshot.json"

	// DefaultSnapshotThreshold is the number of journal entries that
	// triggers a snapshot between timer ticks. It also bounds the
	// in-memory tail retained for subscription resume.
	DefaultSnapshotThreshold = 4096
)

// snapshot is the on-disk snapshot format: the full store state tagged
// with the sequence number it is valid at.
type snapshot struct {
	Seq      uint64                   `json:"seq"`
	Order    []string                 `json:"order"`
	Checkers map[string]store.Checker `json:"checkers"`
}

// WAL is the engine's durability layer: an append-only journal of
// committed events plus periodic full-state snapshots.
//
// Commit is the serialization point of the whole engine. Under the WAL
// mutex an event gets the next global sequence number, is written and
// fsynced, and only then is the caller's apply step run. Because apply
// (in-memory mutation plus hub publish) happens inside the same
// serialized section, commit order, memory visibility order and
// subscriber delivery order are all the same total order.
//
// A failed write or fsync puts the WAL into a failed state: the write
// that failed gets a persistence error and every later commit first
// retries opening the journal, failing closed until the retry
// succeeds. Reads are unaffected throughout.
type WAL struct {
	mu       sync.Mutex
	dir      string
	f        *os.File
	goodSize int64 // journal bytes known to be durable and well-formed

	nextSeq uint64
	snapSeq uint64        // newest sequence covered by the snapshot
	tail    []store.Event // retained journal entries, seq snapSeq+1..nextSeq-1

	threshold int
	snapC     chan struct{}

	failed bool
	closed bool
	logger *slog.Logger
}

// Open opens (or creates) the journal and snapshot under dir, restores
// the given store from the snapshot, and replays every journal entry
// with a sequence beyond the snapshot. A torn final entry, the signature
// of a crash mid-write, is logged and truncated away: the engine starts
// from the last fully committed event.
//
// threshold is the journal length that triggers a snapshot signal; 0
// or less selects [DefaultSnapshotThreshold].
func Open(dir string, st *store.Store, threshold int, logger *slog.Logger) (*WAL, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if threshold <= 0 {
		threshold = DefaultSnapshotThreshold
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	w := &WAL{
		dir:       dir,
		threshold: threshold,
		snapC:     make(chan struct{}, 1),
		logger:    logger,
	}

	if err := w.loadSnapshot(st); err != nil {
		return nil, err
	}
	if err := w.replayJournal(st); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(w.journalPath(), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if _, err := f.Seek(w.goodSize, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to seek journal: %w", err)
	}
	w.f = f
	return w, nil
}

func (w *WAL) journalPath() string  { return filepath.Join(w.dir, journalName) }
func (w *WAL) snapshotPath() string { return filepath.Join(w.dir, snapshotName) }

// loadSnapshot restores st from the snapshot file, if one exists.
func (w *WAL) loadSnapshot(st *store.Store) error {
	data, err := os.ReadFile(w.snapshotPath())
	if errors.Is(err, os.ErrNotExist) {
		w.nextSeq = 1
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse snapshot: %w", err)
	}
	st.Restore(snap.Checkers, snap.Order)
	w.snapSeq = snap.Seq
	w.nextSeq = snap.Seq + 1
	w.logger.Info("snapshot loaded", "seq", snap.Seq, "checkers", len(snap.Checkers))
	return nil
}

// replayJournal applies journal entries beyond the snapshot to st, in
// sequence order, stopping at the first malformed or torn entry and
// truncating the file there.
func (w *WAL) replayJournal(st *store.Store) error {
	f, err := os.Open(w.journalPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer func() { _ = f.Close() }()

	var (
		offset   int64
		replayed int
		reader   = bufio.NewReader(f)
	)
	for {
		line, err := reader.ReadBytes('\n')
		if err == io.EOF && len(line) == 0 {
			break
		}
		torn := err != nil // EOF mid-line: partial write from a crash
		var ev store.Event
		if !torn {
			if uerr := json.Unmarshal(line, &ev); uerr != nil {
				torn = true
			}
		}
		if torn {
			w.logger.Warn("journal ends with a torn entry, truncating",
				"offset", offset,
				"discarded_bytes", len(line),
			)
			if terr := os.Truncate(w.journalPath(), offset); terr != nil {
				return fmt.Errorf("failed to truncate torn journal: %w", terr)
			}
			break
		}
		offset += int64(len(line))
		if ev.Seq <= w.snapSeq {
			// already covered by the snapshot
			continue
		}
		if aerr := st.Apply(ev); aerr != nil {
			w.logger.Warn("journal entry could not be applied, skipping", "error", aerr)
		}
		w.tail = append(w.tail, ev)
		w.nextSeq = ev.Seq + 1
		replayed++
	}
	w.goodSize = offset
	if replayed > 0 {
		w.logger.Info("journal replayed", "entries", replayed, "next_seq", w.nextSeq)
	}
	return nil
}

// Commit durably records ev, assigning it the next global sequence
// number, and then runs apply with the committed event. The write is
// fsynced before apply runs and before Commit returns: an acknowledged
// commit cannot be lost, and apply never runs for an unflushed event.
//
// On a persistence failure the event is not applied and the error wraps
// [store.ErrPersistence]; the WAL fails closed and later commits retry
// the journal before accepting writes again.
func (w *WAL) Commit(ev store.Event, apply func(store.Event)) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, fmt.Errorf("%w: journal is closed", store.ErrPersistence)
	}
	if w.failed {
		if err := w.reopen(); err != nil {
			return 0, fmt.Errorf("%w: journal unavailable: %v", store.ErrPersistence, err)
		}
	}

	ev.Seq = w.nextSeq
	line, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("%w: encode event: %v", store.ErrPersistence, err)
	}
	line = append(line, '\n')

	if _, err := w.f.Write(line); err != nil {
		w.fail(err)
		return 0, fmt.Errorf("%w: write: %v", store.ErrPersistence, err)
	}
	if err := w.f.Sync(); err != nil {
		w.fail(err)
		return 0, fmt.Errorf("%w: fsync: %v", store.ErrPersistence, err)
	}

	w.goodSize += int64(len(line))
	w.nextSeq++
	w.tail = append(w.tail, ev)
	if apply != nil {
		apply(ev)
	}

	if len(w.tail) >= w.threshold {
		select {
		case w.snapC <- struct{}{}:
		default:
		}
	}
	return ev.Seq, nil
}

// fail records a journal failure. Later commits will attempt a reopen.
func (w *WAL) fail(err error) {
	w.failed = true
	w.logger.Error("journal write failed, refusing further writes until healthy",
		"error", err,
	)
}

// reopen attempts to bring a failed journal back: the file is reopened
// and truncated to the last byte known durable, discarding any partial
// write left behind by the failure.
func (w *WAL) reopen() error {
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	f, err := os.OpenFile(w.journalPath(), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	if err := f.Truncate(w.goodSize); err != nil {
		_ = f.Close()
		return err
	}
	if _, err := f.Seek(w.goodSize, io.SeekStart); err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.failed = false
	w.logger.Info("journal recovered, accepting writes again")
	return nil
}

// Barrier runs fn under the commit mutex with the last committed
// sequence number. No commit can interleave with fn, which makes it the
// tool for race-free subscription: registering a subscriber and reading
// the state it starts from happen against the same sequence.
func (w *WAL) Barrier(fn func(seq uint64)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(w.nextSeq - 1)
}

// Seq returns the last committed sequence number (0 before the first
// commit).
func (w *WAL) Seq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextSeq - 1
}

// TailLen returns the number of retained journal entries since the
// last snapshot.
func (w *WAL) TailLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tail)
}

// ReadSince returns copies of every retained event with a sequence
// strictly greater than seq, in commit order. If seq predates the
// retention window (the journal since the last snapshot), the error
// wraps [store.ErrGone] and the caller must fall back to a full read.
//
// ReadSince assumes the commit mutex is already held; it is intended to
// be called from inside [WAL.Barrier] when wiring up a resuming
// subscriber.
func (w *WAL) ReadSince(seq uint64) ([]store.Event, error) {
	if seq < w.snapSeq {
		return nil, fmt.Errorf("%w: oldest retained sequence is %d", store.ErrGone, w.snapSeq+1)
	}
	idx := int(seq - w.snapSeq)
	if idx >= len(w.tail) {
		return nil, nil
	}
	out := make([]store.Event, len(w.tail)-idx)
	copy(out, w.tail[idx:])
	return out, nil
}

// Snapshot writes a full-state snapshot of st tagged with the current
// sequence, then truncates the journal: entries covered by the snapshot
// are discarded and the resume retention window restarts. The snapshot
// file is written to a temp file and renamed so a crash never leaves a
// half-written snapshot behind.
func (w *WAL) Snapshot(st *store.Store) error {
	start := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("%w: journal is closed", store.ErrPersistence)
	}

	seq := w.nextSeq - 1
	checkers, order := st.Export()
	data, err := json.Marshal(snapshot{Seq: seq, Order: order, Checkers: checkers})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tmp := w.snapshotPath() + ".tmp"
	if err := writeFileSync(tmp, data); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, w.snapshotPath()); err != nil {
		return fmt.Errorf("failed to install snapshot: %w", err)
	}

	// Journal entries up to seq are now covered by the snapshot.
	// If rotation fails the stale entries are harmless: replay skips
	// anything at or below the snapshot sequence.
	if w.f != nil && !w.failed {
		if err := w.f.Truncate(0); err != nil {
			w.fail(err)
		} else if _, err := w.f.Seek(0, io.SeekStart); err != nil {
			w.fail(err)
		} else {
			w.goodSize = 0
		}
	}
	w.snapSeq = seq
	w.tail = w.tail[:0]

	w.logger.Info("snapshot written",
		"seq", seq,
		"checkers", len(checkers),
		"duration", time.Since(start).String(),
	)
	return nil
}

// SnapshotSignal returns a channel that receives a value when the
// journal has grown past the snapshot threshold. The engine's snapshot
// loop listens on it alongside its timer.
func (w *WAL) SnapshotSignal() <-chan struct{} {
	return w.snapC
}

// Close syncs and closes the journal. Further commits fail with a
// persistence error.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.f == nil {
		return nil
	}
	syncErr := w.f.Sync()
	closeErr := w.f.Close()
	w.f = nil
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}

// writeFileSync writes data to path and fsyncs it before closing.
func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
