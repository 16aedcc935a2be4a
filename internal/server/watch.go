package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tarneaux/swec"
)

const (
	// wsWriteWait bounds a single websocket write so a dead client
	// cannot wedge the handler.
	wsWriteWait = 10 * time.Second

	// wsPongWait is how long to wait for a pong before assuming the
	// client is gone. Must be greater than wsPingPeriod.
	wsPongWait = 60 * time.Second

	// wsPingPeriod is how often pings are sent.
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleWatchChecker streams one checker's committed events over a
// websocket. The first frame is an "initial" event with the current
// spec and latest status, taken atomically with the subscription, so
// the client never misses or double-sees an update around connect.
func (s *Server) handleWatchChecker(w http.ResponseWriter, r *http.Request) {
	sub, initial, err := s.engine.WatchChecker(r.PathValue("name"), 0)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.serveStream(w, r, sub, &initial)
}

// handleWatchAll streams all committed events, optionally restricted
// to one group and optionally resuming from a previously seen sequence
// (?since=). An expired resume point yields 410 Gone; the client must
// refetch and reconnect without since.
func (s *Server) handleWatchAll(w http.ResponseWriter, r *http.Request) {
	filter := swec.Filter{Group: r.URL.Query().Get("group")}

	var sub *swec.Subscription
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, errors.Join(swec.ErrValidation, errors.New("since must be a sequence number")))
			return
		}
		resumed, err := s.engine.Resume(filter, since, 0)
		if err != nil {
			s.writeError(w, err)
			return
		}
		sub = resumed
	} else {
		sub = s.engine.Subscribe(filter, 0)
	}
	s.serveStream(w, r, sub, nil)
}

// serveStream owns one websocket connection: it upgrades, sends the
// optional initial frame, then copies events from the subscription
// until either side goes away. Events are written in the order they
// arrive from the hub, which is commit order.
func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, sub *swec.Subscription, initial *swec.Event) {
	defer sub.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// Reader goroutine: we never expect client frames, but reading is
	// what surfaces close frames and pong responses.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(v)
	}

	if initial != nil {
		if err := write(initial); err != nil {
			return
		}
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				// Hub closed the stream: engine shutdown, or this
				// client was too slow. Say why before hanging up.
				reason := "stream closed"
				if errors.Is(sub.Err(), swec.ErrOverflow) {
					reason = "client too slow, resume with last seen seq"
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, reason))
				return
			}
			if err := write(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			// Fires on client disconnect and on server shutdown,
			// since request contexts derive from the server context.
			return
		}
	}
}
