// Package web provides the HTTP status server for the irrigation controller:
// an HTML status page, the JSON status, Prometheus metrics and the manual
// control endpoints.
package web

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/sweeney/irrigation-controller/internal/control"
	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/metrics"
	"github.com/sweeney/irrigation-controller/internal/status"
)

// Defaults for the manual control limiter: one command per second with a
// small burst, enough for a person and not for a script hammering the relay.
const (
	DefaultControlRate  = rate.Limit(1)
	DefaultControlBurst = 3
)

// Options wires the optional parts of the server. A nil Commands queue
// disables the control endpoints; a nil Gatherer disables /metrics.
type Options struct {
	Commands     *control.Queue
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	ControlRate  rate.Limit
	ControlBurst int
	AccessLog    io.Writer // nil disables access logging
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	commands   *control.Queue
	limiter    *rate.Limiter
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, opts Options) *Server {
	if opts.ControlRate == 0 {
		opts.ControlRate = DefaultControlRate
	}
	if opts.ControlBurst == 0 {
		opts.ControlBurst = DefaultControlBurst
	}
	s := &Server{
		tracker:  tracker,
		commands: opts.Commands,
		limiter:  rate.NewLimiter(opts.ControlRate, opts.ControlBurst),
	}

	m := opts.Metrics
	r := mux.NewRouter()
	r.Handle("/", m.WrapHandler("/", http.HandlerFunc(s.handleIndex))).Methods(http.MethodGet)
	r.Handle("/index.html", m.WrapHandler("/", http.HandlerFunc(s.handleIndex))).Methods(http.MethodGet)
	r.Handle("/index.json", m.WrapHandler("/index.json", http.HandlerFunc(s.handleJSON))).Methods(http.MethodGet)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if opts.Commands != nil {
		r.Handle("/api/{command}", m.WrapHandler("/api", http.HandlerFunc(s.handleCommand))).Methods(http.MethodPost)
	}

	var h http.Handler = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(r)
	if opts.AccessLog != nil {
		h = handlers.LoggingHandler(opts.AccessLog, h)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: h,
	}
	return s
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap, s.commands != nil)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	typ, err := control.ParseCommand(mux.Vars(r)["command"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	// Emergency stop is never rate limited.
	if typ != logic.CommandEmergencyStop && !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, errors.New("too many control requests"))
		return
	}

	cmd := logic.Command{Type: typ, Source: "http"}
	if err := s.commands.Submit(cmd); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusAccepted, CommandResponse{Accepted: true, Command: string(typ)})
}
