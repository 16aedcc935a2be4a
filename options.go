package swec

import (
	"fmt"
	"log/slog"
	"time"
)

// engineConfig holds mutable state during [Engine] construction.
type engineConfig struct {
	dataDir           string
	historyLimit      int
	snapshotInterval  time.Duration
	snapshotThreshold int
	subscriberBuffer  int
	logger            *slog.Logger
}

func defaultConfig() *engineConfig {
	return &engineConfig{
		dataDir:           "data",
		historyLimit:      3600,
		snapshotInterval:  60 * time.Second,
		snapshotThreshold: 4096,
		subscriberBuffer:  64,
	}
}

// Option is a function that configures an [Engine] during construction.
//
// Option implements the functional options pattern; options return an
// error if validation fails. Built-in options: [WithDataDir],
// [WithHistoryLimit], [WithSnapshotInterval], [WithSnapshotThreshold],
// [WithSubscriberBuffer], [WithLogger].
type Option func(*engineConfig) error

// WithDataDir sets the directory holding the journal and snapshot, the
// only on-disk state the engine owns. Created if missing. Defaults to
// "data".
func WithDataDir(dir string) Option {
	return func(cfg *engineConfig) error {
		if dir == "" {
			return fmt.Errorf("data dir must not be empty")
		}
		cfg.dataDir = dir
		return nil
	}
}

// WithHistoryLimit bounds each checker's in-memory status history.
// Once a history is full, appending prunes the oldest entry. Defaults
// to 3600.
func WithHistoryLimit(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 1 {
			return fmt.Errorf("history limit must be positive, got %d", n)
		}
		cfg.historyLimit = n
		return nil
	}
}

// WithSnapshotInterval sets the period between background snapshots.
// Shorter intervals mean faster restarts and a shorter subscription
// resume window. Defaults to 60 seconds.
func WithSnapshotInterval(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < time.Second {
			return fmt.Errorf("snapshot interval must be at least 1s, got %s", d)
		}
		cfg.snapshotInterval = d
		return nil
	}
}

// WithSnapshotThreshold sets the journal length that triggers a
// snapshot between timer ticks. The threshold also bounds the memory
// retained for subscription resume. Defaults to 4096 entries.
func WithSnapshotThreshold(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 1 {
			return fmt.Errorf("snapshot threshold must be positive, got %d", n)
		}
		cfg.snapshotThreshold = n
		return nil
	}
}

// WithSubscriberBuffer sets the default per-subscriber queue capacity.
// A subscriber that falls this many events behind is disconnected.
// Defaults to 64.
func WithSubscriberBuffer(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 1 {
			return fmt.Errorf("subscriber buffer must be positive, got %d", n)
		}
		cfg.subscriberBuffer = n
		return nil
	}
}

// WithLogger sets the logger used by the engine and its components.
// Defaults to [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *engineConfig) error {
		if logger == nil {
			return fmt.Errorf("logger must not be nil")
		}
		cfg.logger = logger
		return nil
	}
}
