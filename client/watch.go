package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/tarneaux/swec"
)

// Watch streams one checker's committed events. The first event on the
// channel has kind [swec.KindInitial] and carries the checker's current
// spec and latest status; later events follow in commit order.
//
// The channel closes when ctx is cancelled, the server hangs up, or
// the connection breaks. A server hang-up for slowness can be recovered
// by reconnecting with a resume point via [Client.ResumeAll].
func (c *Client) Watch(ctx context.Context, name string) (<-chan swec.Event, error) {
	return c.dialWatch(ctx, c.endpoint(nil, "checkers", name, "watch"))
}

// WatchAll streams every committed event, optionally restricted to one
// group, starting from now.
func (c *Client) WatchAll(ctx context.Context, group string) (<-chan swec.Event, error) {
	query := url.Values{}
	if group != "" {
		query.Set("group", group)
	}
	return c.dialWatch(ctx, c.endpoint(query, "watch"))
}

// ResumeAll is [Client.WatchAll] with replay: the stream first carries
// every committed event with a sequence greater than since, then
// continues live with no gap. Fails with [swec.ErrGone] when since is
// no longer retained; do a fresh read and use [Client.WatchAll].
func (c *Client) ResumeAll(ctx context.Context, group string, since uint64) (<-chan swec.Event, error) {
	query := url.Values{}
	if group != "" {
		query.Set("group", group)
	}
	query.Set("since", strconv.FormatUint(since, 10))
	return c.dialWatch(ctx, c.endpoint(query, "watch"))
}

// dialWatch upgrades endpoint to a websocket and pumps its frames into
// a channel.
func (c *Client) dialWatch(ctx context.Context, endpoint string) (<-chan swec.Event, error) {
	wsURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid watch URL: %w", err)
	}
	switch wsURL.Scheme {
	case "http":
		wsURL.Scheme = "ws"
	case "https":
		wsURL.Scheme = "wss"
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		if resp != nil {
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode >= 400 {
				return nil, decodeError(resp)
			}
		}
		return nil, fmt.Errorf("watch dial failed: %w", err)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}

	events := make(chan swec.Event)
	done := make(chan struct{})
	go func() {
		// Tear the connection down on cancellation; ReadJSON below
		// then fails and ends the pump. The done channel releases this
		// goroutine when the pump exits first.
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(events)
		defer close(done)
		defer func() { _ = conn.Close() }()
		for {
			var ev swec.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}
