package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tarneaux/swec"
	"github.com/tarneaux/swec/client"
)

// Runner drives a single checker end to end: it registers the checker's
// spec with a status API, probes the spec's URL on a fixed interval, and
// reports each result.
//
// A transient reporting failure is logged and skipped; the next tick
// probes again. Run returns when the context is cancelled.
type Runner struct {
	client   *client.Client
	prober   *Prober
	name     string
	spec     swec.Spec
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewRunner creates a [Runner] for one checker. The spec must carry an
// absolute URL to probe; interval and timeout must be positive.
func NewRunner(c *client.Client, name string, spec swec.Spec, interval, timeout time.Duration, logger *slog.Logger) (*Runner, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: checker name required", swec.ErrValidation)
	}
	if spec.URL == "" {
		return nil, fmt.Errorf("%w: probe URL required", swec.ErrValidation)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if interval <= 0 || timeout <= 0 {
		return nil, fmt.Errorf("%w: interval and timeout must be positive", swec.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		client:   c,
		prober:   NewProber(),
		name:     name,
		spec:     spec,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}, nil
}

// Run registers the checker if needed, then probes until ctx is cancelled.
// The first probe happens immediately.
func (r *Runner) Run(ctx context.Context) error {
	defer r.prober.Close()

	if err := r.ensure(ctx); err != nil {
		return err
	}

	r.probeOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.probeOnce(ctx)
		}
	}
}

// ensure creates the checker's spec if the API does not know it yet, and
// updates it when the stored spec drifted from the configured one.
func (r *Runner) ensure(ctx context.Context) error {
	existing, err := r.client.GetSpec(ctx, r.name)
	switch {
	case errors.Is(err, swec.ErrNotFound):
		if err := r.client.CreateSpec(ctx, r.name, r.spec); err != nil {
			// lost a create race with another checker instance
			if errors.Is(err, swec.ErrConflict) {
				return nil
			}
			return fmt.Errorf("registering checker %q: %w", r.name, err)
		}
		r.logger.Info("checker registered", "checker", r.name, "url", r.spec.URL)
		return nil
	case err != nil:
		return fmt.Errorf("looking up checker %q: %w", r.name, err)
	}

	if existing != r.spec {
		if err := r.client.UpdateSpec(ctx, r.name, r.spec); err != nil {
			return fmt.Errorf("updating checker %q: %w", r.name, err)
		}
		r.logger.Info("checker spec updated", "checker", r.name)
	}
	return nil
}

func (r *Runner) probeOnce(ctx context.Context) {
	st := r.prober.Probe(ctx, r.spec.URL, r.timeout)
	if ctx.Err() != nil {
		return
	}
	if err := r.client.AppendStatus(ctx, r.name, st); err != nil {
		r.logger.Warn("status report failed",
			"checker", r.name,
			"error", err,
		)
		return
	}
	r.logger.Debug("status reported",
		"checker", r.name,
		"up", st.Up,
		"message", st.Message,
	)
}
