// Package app composes the case service: storage, token codec, audit
// ledger, realtime hub, metrics and HTTP routes behind one server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/louisbranch/counterdesk/internal/platform/httpx"
	"github.com/louisbranch/counterdesk/internal/platform/timeouts"
	"github.com/louisbranch/counterdesk/internal/services/casework/api"
	"github.com/louisbranch/counterdesk/internal/services/casework/audit"
	"github.com/louisbranch/counterdesk/internal/services/casework/domain"
	"github.com/louisbranch/counterdesk/internal/services/casework/metrics"
	"github.com/louisbranch/counterdesk/internal/services/casework/realtime"
	"github.com/louisbranch/counterdesk/internal/services/casework/storage/sqlite"
	"github.com/louisbranch/counterdesk/internal/services/casework/token"
)

// Config is everything the server needs to start.
type Config struct {
	HTTPAddr           string
	DBPath             string
	ExchangeWindowDays int
	ReturnWindowDays   int
	Keyring            *token.Keyring

	AuditKafkaBrokers []string
	AuditKafkaTopic   string
	AuditLedgerPath   string
	AuditTimeout      time.Duration

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server owns the HTTP server and every resource behind it.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server

	store   *sqlite.Store
	service *domain.Service
	hub     *realtime.Hub
	closers []io.Closer
}

// NewServer opens storage and wires the case engine. A missing keyring is
// an error; there is no default signing key.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.Keyring == nil {
		return nil, errors.New("case token keyring is required")
	}
	if strings.TrimSpace(config.DBPath) == "" {
		return nil, errors.New("database path is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	codec, err := token.NewCodec(config.Keyring, time.Now)
	if err != nil {
		return nil, fmt.Errorf("init token codec: %w", err)
	}
	if dir := filepath.Dir(config.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open case store: %w", err)
	}

	server := &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		store:           store,
	}
	sink, err := openAuditSink(config, &server.closers)
	if err != nil {
		server.Close()
		return nil, err
	}

	registry := metrics.New()
	// The hub and service reference each other; the hub only loads
	// snapshots once connections arrive, after svc is assigned.
	var svc *domain.Service
	hub := realtime.NewHub(realtime.SnapshotFunc(func(ctx context.Context, kind domain.Kind, caseID string) (domain.CaseView, error) {
		return svc.Snapshot(ctx, kind, caseID)
	}), realtime.WithRecorder(registry))

	opts := []domain.Option{
		domain.WithWindows(config.ExchangeWindowDays, config.ReturnWindowDays),
		domain.WithBroadcaster(hub),
		domain.WithRecorder(registry),
		domain.WithAuditTimeout(config.AuditTimeout),
	}
	if sink != nil {
		opts = append(opts, domain.WithAuditLogger(audit.NewLedger(sink)))
	} else {
		log.Printf("casework: audit ledger disabled, no sink configured")
	}
	svc = domain.NewService(store, codec, opts...)

	server.service = svc
	server.hub = hub
	server.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           NewHandler(svc, hub, registry, store),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
	return server, nil
}

// Pinger reports storage health for /up.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHandler mounts operational routes, the websocket hub and the case API.
func NewHandler(svc api.Service, hub *realtime.Hub, registry *metrics.Registry, health Pinger) http.Handler {
	r := chi.NewRouter()
	r.Get("/up", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health.Ping(r.Context()); err != nil {
				log.Printf("casework: health check failed: %v", err)
				http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if registry != nil {
		r.Method(http.MethodGet, "/metrics", registry.Handler())
	}
	if hub != nil {
		r.Handle("/ws", hub.Handler())
	}
	api.NewHandler(svc).Routes(r)
	return httpx.Chain(r, httpx.RecoverPanic(), httpx.RequestID())
}

func openAuditSink(config Config, closers *[]io.Closer) (audit.Sink, error) {
	var sinks audit.MultiSink
	if path := strings.TrimSpace(config.AuditLedgerPath); path != "" {
		file, err := audit.OpenFileSink(path)
		if err != nil {
			return nil, fmt.Errorf("open audit ledger: %w", err)
		}
		*closers = append(*closers, file)
		sinks = append(sinks, file)
	}
	if len(config.AuditKafkaBrokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(config.AuditKafkaBrokers, config.AuditKafkaTopic)
		if err != nil {
			return nil, fmt.Errorf("init audit kafka sink: %w", err)
		}
		*closers = append(*closers, kafkaSink)
		sinks = append(sinks, kafkaSink)
	}
	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	default:
		return sinks, nil
	}
}

// Run creates and serves a case server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init counterdesk server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve counterdesk: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return errors.New("counterdesk server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("counterdesk server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close disconnects realtime peers, drains audit hand-offs and releases
// storage, in that order.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.hub != nil {
		if err := s.hub.Close(); err != nil {
			log.Printf("close realtime hub: %v", err)
		}
	}
	if s.service != nil {
		s.service.Wait()
	}
	for _, closer := range s.closers {
		if err := closer.Close(); err != nil {
			log.Printf("close audit sink: %v", err)
		}
	}
	s.closers = nil
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close case store: %v", err)
		}
	}
}
