// Package api provides HTTP handlers and the API server for ClinicDesk.
//
// It exposes the conversational /turn endpoint, patient CRUD, session
// inspection, and the Twilio inbound webhook.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/dialogue"
	"github.com/clinicdesk/clinicdesk/internal/messaging"
	"github.com/clinicdesk/clinicdesk/internal/scheduling"
	"github.com/clinicdesk/clinicdesk/internal/store"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server serves the ClinicDesk HTTP API.
type Server struct {
	coordinator *dialogue.Coordinator
	engine      *scheduling.Engine
	st          store.Store
	responder   *messaging.Responder // nil when no Twilio channel is configured
	addr        string
}

// NewServer wires the API surface. responder may be nil; the webhook then
// answers 503.
func NewServer(coordinator *dialogue.Coordinator, engine *scheduling.Engine, st store.Store, responder *messaging.Responder, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	slog.Debug("NewServer invoked", "addr", addr, "hasResponder", responder != nil)
	return &Server{
		coordinator: coordinator,
		engine:      engine,
		st:          st,
		responder:   responder,
		addr:        addr,
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /turn", s.turnHandler)
	mux.HandleFunc("POST /patients", s.createPatientHandler)
	mux.HandleFunc("GET /patients/{id}", s.getPatientHandler)
	mux.HandleFunc("PUT /patients/{id}", s.updatePatientHandler)
	mux.HandleFunc("GET /patients/{id}/appointments", s.appointmentsHandler)
	mux.HandleFunc("GET /sessions/{id}", s.getSessionHandler)
	mux.HandleFunc("DELETE /sessions/{id}", s.deleteSessionHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("POST /webhooks/twilio", s.twilioWebhookHandler)
	return mux
}

// Run starts the HTTP server and blocks until it exits.
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("ClinicDesk API listening", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("API server exited", "error", err)
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}
