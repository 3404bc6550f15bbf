// ABOUTME: Wires the session manager, dispatch queue and broadcaster behind one HTTP server.
// ABOUTME: Owns startup order and graceful shutdown of every component.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/blueriver/tars-gateway/internal/broadcast"
	"github.com/blueriver/tars-gateway/internal/config"
	"github.com/blueriver/tars-gateway/internal/credstore"
	"github.com/blueriver/tars-gateway/internal/dispatch"
	"github.com/blueriver/tars-gateway/internal/session"
)

const shutdownTimeout = 5 * time.Second

// Gateway bridges one chat-network session to many WebSocket clients.
type Gateway struct {
	config  *config.Config
	session *session.Manager
	queue   *dispatch.Queue
	bus     *broadcast.Broadcaster
	clients *Registry
	creds   credstore.Store

	httpServer *http.Server
	logger     *slog.Logger
}

// New builds a gateway from configuration and a chat-network backend. The
// credential store is opened here so a bad path fails at startup, not on
// the first dial.
func New(cfg *config.Config, network session.Network, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	creds, err := credstore.NewSQLiteStore(cfg.Session.CredentialsPath, logger.With("component", "credstore"))
	if err != nil {
		return nil, fmt.Errorf("opening credential store: %w", err)
	}

	mgr := session.NewManager(network, creds, cfg.Session.DialRetryWait, logger.With("component", "session"))
	queue := dispatch.New(mgr, cfg.Send.Timeout, logger.With("component", "dispatch"))
	bus := broadcast.New(logger.With("component", "broadcast"))
	clients := NewRegistry(logger.With("component", "registry"))

	g := &Gateway{
		config:  cfg,
		session: mgr,
		queue:   queue,
		bus:     bus,
		clients: clients,
		creds:   creds,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)
	r.Get("/ws", g.handleWS)

	g.httpServer = &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: r,
	}

	return g, nil
}

// Run listens on the configured address and serves until ctx is canceled.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}
	return g.RunListener(ctx, ln)
}

// RunListener serves on an existing listener. Split out from Run so tests
// can bind an ephemeral port.
func (g *Gateway) RunListener(ctx context.Context, ln net.Listener) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.Run(runCtx, g.session.Notices())

	go func() {
		if err := g.session.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			g.logger.Error("session loop exited", "error", err)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	g.logger.Info("gateway listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		g.logger.Info("shutting down")
		return g.shutdown()
	case err := <-serveErr:
		_ = g.shutdown()
		return fmt.Errorf("http server: %w", err)
	}
}

// shutdown tears components down in dependency order: stop accepting,
// drop clients, close the broadcaster, then release the credential store.
func (g *Gateway) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var firstErr error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		firstErr = err
	}

	g.clients.CloseAll()
	g.bus.Close()

	if err := g.creds.Close(); err != nil {
		g.logger.Warn("closing credential store", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","clients":%d}`, g.clients.Count())
}

// handleReady reports 200 only while the chat-network session is connected.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	st := g.session.State()
	w.Header().Set("Content-Type", "application/json")
	if st != session.StateConnected {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	fmt.Fprintf(w, `{"status":%q}`, st.String())
}
