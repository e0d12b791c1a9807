// Package server implements the HTTP receiver (spec §6): a single
// POST /log route that parses the request body into a
// model.ParsedRequest and hands it to the queue, plus an audit SSE
// stream and this package's AuditLog for operator visibility.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/provtrace/provtrace/model"
	"github.com/provtrace/provtrace/queue"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// Server is the provenance receiver HTTP API: POST /log for ingestion,
// GET /events for the audit stream.
type Server struct {
	mux   *http.ServeMux
	queue *queue.ParsedRequestQueue
	audit *AuditLog

	// OnActivity, if set, is called once per successfully parsed and
	// queued request. cmd/provd wires this to the -idle timer so the
	// countdown restarts on every ingested event.
	OnActivity func()

	// bodyLogLimiter rate-limits the raw-body diagnostic dump (spec §6)
	// so a flood of large or rapid POSTs cannot blow out the log. This
	// only throttles the dump, never the request itself — ingestion
	// keeps accepting POSTs even while the limiter is suppressing log
	// lines.
	bodyLogLimiter *rate.Limiter

	// sem bounds the number of concurrently in-flight POST /log
	// handlers (the "-workers" flag, see cmd/provd). net/http already
	// parallelizes handlers per connection; this gives that flag real
	// effect as a concurrency cap rather than a no-op.
	sem chan struct{}
}

// New returns a Server that pushes parsed requests onto q and records
// audit events to audit. workers bounds concurrent POST /log handling;
// workers <= 0 means unbounded.
func New(q *queue.ParsedRequestQueue, audit *AuditLog, workers int) *Server {
	s := &Server{
		mux:            http.NewServeMux(),
		queue:          q,
		audit:          audit,
		OnActivity:     func() {},
		bodyLogLimiter: rate.NewLimiter(rate.Limit(50), 100),
	}
	if workers > 0 {
		s.sem = make(chan struct{}, workers)
	}

	s.mux.HandleFunc("POST /log", s.handleLog)
	s.mux.HandleFunc("GET /events", s.handleSSE)
	s.mux.HandleFunc("GET /health", s.handleHealth)

	return s
}

// Handler returns the Server wrapped with otelhttp instrumentation,
// suitable for passing to http.Serve/http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s, "provd")
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET /health. Returns 200 with {"status":"ok"}.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleLog handles POST /log (spec §6): read the raw body, log the
// mandated diagnostic line, parse it into a model.ParsedRequest, push
// it onto the queue, and respond 200.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if s.sem != nil {
		s.sem <- struct{}{}
		defer func() { <-s.sem }()
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	fmt.Fprintf(os.Stderr, "[http] POST /log size=%d\n", len(body))
	if s.bodyLogLimiter.Allow() {
		fmt.Fprintf(os.Stderr, "%s\n", body)
	}

	req, err := model.ParseRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "parse: "+err.Error())
		return
	}

	s.queue.Push(req)
	s.OnActivity()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
