// ABOUTME: Server wires storage, the backend client, sessions, and the relay behind an HTTP mux
// ABOUTME: Owns listener setup (TCP or tailnet) and graceful shutdown

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/its-lightning/light-assistant/internal/auth"
	"github.com/its-lightning/light-assistant/internal/config"
	"github.com/its-lightning/light-assistant/internal/conversation"
	"github.com/its-lightning/light-assistant/internal/ollama"
	"github.com/its-lightning/light-assistant/internal/prompt"
	"github.com/its-lightning/light-assistant/internal/relay"
	"github.com/its-lightning/light-assistant/internal/store"
	"github.com/its-lightning/light-assistant/internal/streams"
)

const shutdownTimeout = 5 * time.Second

// Backend is the language model backend as seen by the server
type Backend interface {
	relay.ChatBackend
	Ping(ctx context.Context) error
}

// Server is the light-assistant HTTP server
type Server struct {
	config *config.Config
	logger *slog.Logger

	store         store.Backend
	backend       Backend
	conversations *conversation.Store
	prompts       *prompt.Builder
	streams       *streams.Registry
	relay         *relay.Relay
	sessions      *auth.Sessions

	httpServer  *http.Server
	tsnetServer *tsnet.Server
}

// New opens the configured store and backend client and builds a Server.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	backendStore, err := store.Open(cfg.Storage.Backend, cfg.Storage.Path, cfg.Storage.SQLiteDriver, logger)
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", cfg.Storage.Backend, err)
	}
	logger.Info("storage ready", "backend", cfg.Storage.Backend, "path", cfg.Storage.Path)

	client := ollama.NewClient(cfg.Backend.URL, cfg.Backend.Timeout, logger)

	s, err := NewWithBackends(cfg, backendStore, client, logger)
	if err != nil {
		_ = backendStore.Close()
		return nil, err
	}
	return s, nil
}

// NewWithBackends builds a Server over an already opened store and backend.
// The Server takes ownership of backendStore and closes it on Shutdown.
func NewWithBackends(cfg *config.Config, backendStore store.Backend, backend Backend, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sessions, err := auth.NewSessions([]byte(cfg.Auth.SessionSecret), cfg.Auth.SessionTTL, cfg.Auth.AllowedEmails)
	if err != nil {
		return nil, fmt.Errorf("configuring sessions: %w", err)
	}

	registry := streams.NewRegistry()
	conversations := conversation.NewStore(backendStore, logger)

	s := &Server{
		config:        cfg,
		logger:        logger.With("component", "server"),
		store:         backendStore,
		backend:       backend,
		conversations: conversations,
		prompts:       prompt.NewBuilder(cfg.Chat.SystemPrompt, cfg.Chat.Window),
		streams:       registry,
		sessions:      sessions,
		relay: relay.New(backend, registry, conversations, relay.Options{
			Model:       cfg.Backend.Model,
			Temperature: cfg.Backend.Temperature,
			MaxTokens:   cfg.Backend.MaxTokens,
			Timeout:     cfg.Backend.Timeout,
		}, logger),
	}

	readHeaderTimeout := cfg.Server.ReadHeaderTimeout
	if readHeaderTimeout <= 0 {
		readHeaderTimeout = 10 * time.Second
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return mux
}

// Sessions exposes the session issuer, used by the token command.
func (s *Server) Sessions() *auth.Sessions {
	return s.sessions
}

// Run starts serving and blocks until ctx is canceled or the server fails.
// Returns nil on graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.setupListener(ctx)
	if err != nil {
		if closeErr := s.store.Close(); closeErr != nil {
			s.logger.Warn("closing store after listen failure", "error", closeErr)
		}
		return err
	}

	errCh := s.startServer(ln)
	serverErr := s.waitForShutdownSignal(ctx, errCh)

	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

func (s *Server) setupListener(ctx context.Context) (net.Listener, error) {
	if s.config.Tailscale.Enabled {
		if s.config.Server.HTTPAddr != "" {
			s.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", s.config.Server.HTTPAddr)
		}
		return s.setupTailscaleListener(ctx)
	}

	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

func (s *Server) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "model", s.config.Backend.Model)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown uses a fresh context since the run context is already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops accepting requests, waits for in-flight ones up to ctx, and
// releases the listener node and storage.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down", "live_streams", s.streams.Len())

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))
	if s.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", s.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", s.store.Close())

	return errors.Join(errs...)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "light-assistant", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
// An empty key is allowed when the node state is already logged in.
func resolveTailscaleAuthKey(configured string) string {
	if configured != "" {
		return configured
	}
	return os.Getenv("TS_AUTHKEY")
}

// setupTailscaleListener joins the tailnet and listens on :80 of the node.
func (s *Server) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := s.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	s.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   resolveTailscaleAuthKey(tsCfg.AuthKey),
		UserLogf: func(format string, args ...any) {
			s.logger.Debug(fmt.Sprintf(format, args...), "source", "tsnet")
		},
	}

	s.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := s.tsnetServer.Up(ctx)
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	s.logTailscaleStatus(tsCfg.Hostname, status)

	ln, err := s.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return ln, nil
}

func (s *Server) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		s.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	s.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}
