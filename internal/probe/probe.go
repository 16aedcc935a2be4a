package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tarneaux/swec"
)

// connection pooling limits to prevent resource exhaustion when a single
// checker process probes many targets
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// Prober performs HTTP health probes and turns the outcome into a
// [swec.Status].
//
// Prober uses per-request timeouts via context rather than a global client
// timeout, so callers can probe different targets with different deadlines.
// Response bodies are discarded; only reachability and the status code
// matter.
type Prober struct {
	httpClient *http.Client
}

// NewProber creates a probing [Prober] with pooled connections.
func NewProber() *Prober {
	return &Prober{
		httpClient: &http.Client{
			// no default timeout - per-request timeouts via context
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
}

// Probe requests url once and reports the result.
//
// A 2xx or 3xx response counts as up with the HTTP status line as the
// message (e.g. "200 OK"). Other status codes count as down with the same
// message. Transport failures count as down with a short error message;
// deadline expiry reports "timeout after <timeout>".
func (p *Prober) Probe(ctx context.Context, url string, timeout time.Duration) swec.Status {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	now := time.Now().UTC()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return swec.Status{Time: now, Up: false, Message: "error: " + err.Error()}
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		msg := "error: " + err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("timeout after %s", timeout)
		}
		return swec.Status{Time: now, Up: false, Message: msg}
	}
	defer func() { _ = resp.Body.Close() }()

	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	return swec.Status{
		Time:    now,
		Up:      resp.StatusCode < 400,
		Message: resp.Status,
	}
}

// Close releases idle connections in the prober's pool. The prober remains
// usable afterwards; new connections are established as needed.
func (p *Prober) Close() {
	if p == nil || p.httpClient == nil {
		return
	}
	if transport, ok := p.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
