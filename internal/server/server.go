package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/tarneaux/swec"
)

// Engine is the slice of the status engine the gateway needs. The root
// [swec.Engine] satisfies it; tests may substitute their own.
type Engine interface {
	ListCheckers(group string) []swec.ListedChecker
	GetChecker(name string) (swec.Checker, error)
	GetSpec(name string) (swec.Spec, error)
	CreateSpec(name string, spec swec.Spec) error
	UpdateSpec(name string, spec swec.Spec) error
	DeleteSpec(name string) error
	AppendStatus(name string, st swec.Status) error
	GetLatest(name string) (swec.Status, error)
	GetHistory(name string, offset, limit int) ([]swec.Status, int, error)
	Subscribe(f swec.Filter, buffer int) *swec.Subscription
	Resume(f swec.Filter, since uint64, buffer int) (*swec.Subscription, error)
	WatchChecker(name string, buffer int) (*swec.Subscription, swec.Event, error)
}

// Config configures one listener.
type Config struct {
	// Addr is the listen address, e.g. ":8080" or "127.0.0.1:8081".
	Addr string

	// Writable mounts the mutating routes. The caller is expected to
	// expose the writable listener only to trusted checkers; the
	// gateway itself performs no credential checks.
	Writable bool

	// Version is reported by the info route.
	Version string

	// Metrics, when non-nil, is mounted at /metrics.
	Metrics http.Handler

	// Logger for request-level events. Defaults to slog.Default.
	Logger *slog.Logger
}

// Server is one HTTP listener of the status API.
//
// The API is split across two servers in the usual deployment: a
// public read-only one and a private read-write one, both backed by
// the same [Engine]. Routes follow /api/v1:
//
//	GET    /api/v1/info
//	GET    /api/v1/checkers?group=
//	GET    /api/v1/checkers/{name}
//	GET    /api/v1/checkers/{name}/spec
//	GET    /api/v1/checkers/{name}/statuses?offset=&limit=
//	GET    /api/v1/checkers/{name}/statuses/latest
//	GET    /api/v1/checkers/{name}/watch        (websocket)
//	GET    /api/v1/watch?group=&since=          (websocket)
//	POST   /api/v1/checkers/{name}/spec         (writable only)
//	PUT    /api/v1/checkers/{name}/spec         (writable only)
//	DELETE /api/v1/checkers/{name}              (writable only)
//	POST   /api/v1/checkers/{name}/statuses     (writable only)
//
// The server shuts down gracefully when the context passed to
// [Server.Start] is cancelled.
type Server struct {
	engine     Engine
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
}

// New creates a [Server]. It does not listen until [Server.Start].
func New(engine Engine, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, cfg: cfg, logger: logger}
}

// Handler returns the route table as an http.Handler. Exposed for
// tests; Start uses the same handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/info", s.handleInfo)
	mux.HandleFunc("GET /api/v1/checkers", s.handleList)
	mux.HandleFunc("GET /api/v1/checkers/{name}", s.handleGetChecker)
	mux.HandleFunc("GET /api/v1/checkers/{name}/spec", s.handleGetSpec)
	// A single history entry is addressed as ?offset=i&limit=1 rather
	// than a dedicated by-index route.
	mux.HandleFunc("GET /api/v1/checkers/{name}/statuses", s.handleHistory)
	mux.HandleFunc("GET /api/v1/checkers/{name}/statuses/latest", s.handleLatest)
	mux.HandleFunc("GET /api/v1/checkers/{name}/watch", s.handleWatchChecker)
	mux.HandleFunc("GET /api/v1/watch", s.handleWatchAll)

	if s.cfg.Writable {
		mux.HandleFunc("POST /api/v1/checkers/{name}/spec", s.handleCreateSpec)
		mux.HandleFunc("PUT /api/v1/checkers/{name}/spec", s.handleUpdateSpec)
		mux.HandleFunc("DELETE /api/v1/checkers/{name}", s.handleDeleteChecker)
		mux.HandleFunc("POST /api/v1/checkers/{name}/statuses", s.handleAppendStatus)
	}
	if s.cfg.Metrics != nil {
		mux.Handle("GET /metrics", s.cfg.Metrics)
	}
	return mux
}

// Start begins serving in a background goroutine.
//
// Start is non-blocking and returns once the listener is bound, so a
// bad address fails synchronously. The server runs until ctx is
// cancelled, then shuts down gracefully with a 5-second timeout.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", s.cfg.Addr, err)
	}

	s.httpServer = &http.Server{
		Handler: s.Handler(),
		// Request contexts derive from the server context, so
		// long-running watch handlers stop on shutdown too.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "addr", s.cfg.Addr, "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "addr", s.cfg.Addr, "error", err)
		}
	}()

	s.logger.Info("listening", "addr", ln.Addr().String(), "writable", s.cfg.Writable)
	return nil
}

// writeJSON writes v with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// ErrorResponse is the JSON error envelope. Code is the stable,
// machine-readable name of the failure class; clients map it back to
// the engine's sentinel errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError maps an engine error onto the HTTP taxonomy.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, swec.ErrValidation):
		status, code = http.StatusBadRequest, "validation"
	case errors.Is(err, swec.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, swec.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, swec.ErrOutOfOrder):
		status, code = http.StatusConflict, "out_of_order"
	case errors.Is(err, swec.ErrGone):
		status, code = http.StatusGone, "gone"
	case errors.Is(err, swec.ErrPersistence):
		status, code = http.StatusServiceUnavailable, "persistence"
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, swec.Info{
		Writable: s.cfg.Writable,
		Version:  s.cfg.Version,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.ListCheckers(r.URL.Query().Get("group")))
}

func (s *Server) handleGetChecker(w http.ResponseWriter, r *http.Request) {
	c, err := s.engine.GetChecker(r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleGetSpec(w http.ResponseWriter, r *http.Request) {
	spec, err := s.engine.GetSpec(r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, spec)
}

func (s *Server) handleCreateSpec(w http.ResponseWriter, r *http.Request) {
	var spec swec.Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", swec.ErrValidation, err))
		return
	}
	if err := s.engine.CreateSpec(r.PathValue("name"), spec); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, spec)
}

func (s *Server) handleUpdateSpec(w http.ResponseWriter, r *http.Request) {
	var spec swec.Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", swec.ErrValidation, err))
		return
	}
	if err := s.engine.UpdateSpec(r.PathValue("name"), spec); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, spec)
}

func (s *Server) handleDeleteChecker(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteSpec(r.PathValue("name")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAppendStatus(w http.ResponseWriter, r *http.Request) {
	var st swec.Status
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", swec.ErrValidation, err))
		return
	}
	if err := s.engine.AppendStatus(r.PathValue("name"), st); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, st)
}

// HistoryPage is the paginated history response.
type HistoryPage struct {
	Total    int           `json:"total"`
	Offset   int           `json:"offset"`
	Statuses []swec.Status `json:"statuses"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeError(w, err)
		return
	}
	statuses, total, err := s.engine.GetHistory(r.PathValue("name"), offset, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, HistoryPage{Total: total, Offset: offset, Statuses: statuses})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.GetLatest(r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

// queryInt parses a non-negative integer query parameter.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", swec.ErrValidation, key)
	}
	return n, nil
}
