package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ardnew/tracepoint/log"
	"github.com/ardnew/tracepoint/tracepoint"
)

// maxBody bounds request bodies.
const maxBody = 1 << 20

// ShutdownTimeout bounds the graceful shutdown in [Server.Serve].
const ShutdownTimeout = 5 * time.Second

// Server serves the control API for one registry.
type Server struct {
	reg      *tracepoint.Registry
	logger   log.Logger
	gatherer prometheus.Gatherer
	mounts   []mount
	mux      *http.ServeMux
}

type mount struct {
	pattern string
	handler http.Handler
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithGatherer serves g at /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithHandler serves h for pattern alongside the control API.
func WithHandler(pattern string, h http.Handler) Option {
	return func(s *Server) { s.mounts = append(s.mounts, mount{pattern, h}) }
}

// New returns a server for reg.
func New(reg *tracepoint.Registry, opts ...Option) *Server {
	s := &Server{reg: reg, logger: log.Default()}

	for _, opt := range opts {
		opt(s)
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("GET /healthz", s.healthz)
	s.mux.HandleFunc("GET /modules", s.modules)
	s.mux.HandleFunc("GET /tracepoints", s.list)
	s.mux.HandleFunc("POST /tracepoints/enable", s.enable)
	s.mux.HandleFunc("POST /tracepoints/configure", s.configure)
	s.mux.HandleFunc("POST /messages", s.message)

	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	for _, m := range s.mounts {
		s.mux.Handle(m.pattern, m.handler)
	}

	return s
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

	s.mux.ServeHTTP(rw, r)

	s.logger.DebugContext(r.Context(), "control request",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", rw.status),
		slog.Duration("elapsed", time.Since(start)))
}

// Serve accepts connections on ln until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	s.logger.Info("control server listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		return err

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}

		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	}
}

// ListenAndServe listens on addr and calls [Server.Serve].
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	return s.Serve(ctx, ln)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"tracepoints": s.reg.Len()})
}

func (s *Server) modules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.Modules())
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f, err := tracepoint.FilterSpec{
		Module: q.Get("module"),
		Name:   q.Get("name"),
		Func:   q.Get("func"),
		File:   q.Get("file"),
		Where:  q.Get("where"),
	}.Compile()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	out := []Tracepoint{}
	for _, site := range s.reg.Select(f) {
		out = append(out, describe(site))
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) toggleRequest(w http.ResponseWriter, r *http.Request) (tracepoint.Filter, bool, bool) {
	var req ToggleRequest
	if !readJSON(w, r, &req) {
		return tracepoint.Filter{}, false, false
	}

	f, err := req.Filter.Compile()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return tracepoint.Filter{}, false, false
	}

	return f, req.Enable, true
}

func (s *Server) enable(w http.ResponseWriter, r *http.Request) {
	f, on, ok := s.toggleRequest(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, ToggleResponse{Matched: s.reg.Enable(f, on)})
}

func (s *Server) configure(w http.ResponseWriter, r *http.Request) {
	f, on, ok := s.toggleRequest(w, r)
	if !ok {
		return
	}

	// A partial failure is still a complete answer; the body lists it.
	report, _ := s.reg.Configure(f, on)

	writeJSON(w, http.StatusOK, newConfigureResponse(report))
}

func (s *Server) message(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if !readJSON(w, r, &req) {
		return
	}

	opts := []tracepoint.MessageOption{tracepoint.WithCallstack(req.Callstack)}

	if len(req.Color) > 0 && string(req.Color) != "null" {
		c, err := decodeColor(req.Color)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)

			return
		}

		opts = append(opts, tracepoint.WithColor(c))
	}

	if err := s.reg.Message(req.Text, opts...); err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)

		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
