// Package ipc exposes the engine to desktop and browser shells over a
// local HTTP + WebSocket bridge: REST endpoints for workspace, thread,
// approval, and git operations, and an event stream that mirrors store
// updates and engine signals.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/odvcencio/overseer/pkg/engine"
	"github.com/odvcencio/overseer/pkg/eventlog"
	"github.com/odvcencio/overseer/pkg/notify"
	"github.com/odvcencio/overseer/pkg/observability"
	"github.com/odvcencio/overseer/pkg/telemetry"
	"github.com/odvcencio/overseer/pkg/workspace"
)

// DefaultBindAddress is the loopback address the bridge binds when the
// config does not override it.
const DefaultBindAddress = "127.0.0.1:4399"

const shutdownTimeout = 5 * time.Second

// Config controls the bridge's bind address and authentication.
type Config struct {
	BindAddress    string
	AuthToken      string
	RequireToken   bool
	AllowedOrigins []string
	// SessionSecret signs browser session tokens. Empty means a random
	// per-process secret, which invalidates sessions on restart.
	SessionSecret string
	SessionTTL    time.Duration
	PublicMetrics bool
	Version       string
}

// Deps are the engine-side collaborators the bridge serves.
type Deps struct {
	Manager *workspace.Manager
	Engine  *engine.Engine
	Signals *telemetry.Hub
	Events  *eventlog.Log
	// Observer receives focus reports; nil when notifications are off.
	Observer *notify.Observer
	// Push serves the VAPID public key; nil when web push is off.
	Push   *notify.WebPush
	Logger *observability.Logger
}

// Server hosts the HTTP + WebSocket bridge.
type Server struct {
	cfg        Config
	manager    *workspace.Manager
	engine     *engine.Engine
	signals    *telemetry.Hub
	events     *eventlog.Log
	observer   *notify.Observer
	push       *notify.WebPush
	logger     *observability.Logger
	hub        *Hub
	sessions   *sessionIssuer
	httpServer *http.Server
}

// NewServer constructs a bridge. Deps.Manager, Deps.Engine, and
// Deps.Logger are required; the rest degrade to 503 responses.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if cfg.BindAddress == "" {
		cfg.BindAddress = DefaultBindAddress
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost", "http://127.0.0.1"}
	}
	if deps.Manager == nil || deps.Engine == nil || deps.Logger == nil {
		return nil, errors.New("ipc: manager, engine, and logger are required")
	}

	sessions, err := newSessionIssuer(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("ipc: session issuer: %w", err)
	}

	return &Server{
		cfg:      cfg,
		manager:  deps.Manager,
		engine:   deps.Engine,
		signals:  deps.Signals,
		events:   deps.Events,
		observer: deps.Observer,
		push:     deps.Push,
		logger:   deps.Logger.WithComponent("ipc"),
		hub:      NewHub(deps.Logger),
		sessions: sessions,
	}, nil
}

// Router builds the chi router with all routes and middleware attached.
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(s.corsMiddleware)
	router.Use(s.securityHeadersMiddleware)

	router.Get("/healthz", s.handleHealthz)
	router.Get("/metrics", s.handleMetrics)
	router.Get("/ws/events", s.handleEventSocket)

	api := chi.NewRouter()
	api.Post("/session", s.handleCreateSession)

	api.Route("/workspaces", func(r chi.Router) {
		r.Get("/", s.handleListWorkspaces)
		r.Post("/", s.handleAddWorkspace)
		r.Route("/{workspaceID}", func(r chi.Router) {
			r.Delete("/", s.handleRemoveWorkspace)
			r.Post("/connect", s.handleConnectWorkspace)
			r.Get("/events", s.handleWorkspaceEvents)
			// Sends on the active thread, creating one when none exists.
			r.Post("/messages", s.handleSendActiveMessage)

			r.Route("/threads", func(r chi.Router) {
				r.Get("/", s.handleListThreads)
				r.Post("/", s.handleStartThread)
				r.Route("/{threadID}", func(r chi.Router) {
					r.Get("/items", s.handleThreadItems)
					r.Post("/resume", s.handleResumeThread)
					r.Post("/archive", s.handleArchiveThread)
					r.Post("/messages", s.handleSendMessage)
					r.Post("/review", s.handleStartReview)
					r.Post("/interrupt", s.handleInterrupt)
				})
			})

			r.Route("/git", func(r chi.Router) {
				r.Get("/status", s.handleGitStatus)
				r.Get("/log", s.handleGitLog)
				r.Get("/branches", s.handleGitBranches)
				r.Get("/diff", s.handleGitDiff)
			})
		})
	})

	api.Get("/approvals", s.handleListApprovals)
	api.Post("/approvals/{workspaceID}/{requestID}", s.handleDecideApproval)
	api.Post("/focus", s.handleFocus)

	api.Get("/models", s.handleListModels)
	api.Get("/rate-limits", s.handleRateLimits)
	api.Get("/skills", s.handleListSkills)

	api.Route("/push", func(r chi.Router) {
		r.Get("/vapid-public-key", s.handleVAPIDPublicKey)
		r.Post("/subscriptions", s.handlePushSubscribe)
		r.Delete("/subscriptions", s.handlePushUnsubscribe)
	})

	router.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Mount("/", api)
	})

	// WebSocket over HTTP/2 cleartext keeps the bridge usable behind
	// reverse proxies that strip HTTP/1.1 upgrade headers.
	return h2c.NewHandler(router, &http2.Server{})
}

// Start serves until the context is cancelled. Store updates and engine
// signals are forwarded to connected event-stream clients for the
// lifetime of the call.
func (s *Server) Start(ctx context.Context) error {
	if err := s.validateStartupConfig(); err != nil {
		return err
	}
	return s.serve(ctx)
}

func (s *Server) serve(ctx context.Context) error {
	stopStore := s.engine.Store().Subscribe(s.broadcastSnapshot)
	defer stopStore()

	if s.signals != nil {
		ch, cancel := s.signals.Subscribe()
		defer cancel()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case sig, ok := <-ch:
					if !ok {
						return
					}
					s.hub.Broadcast(Event{Type: EventTypeSignal, Timestamp: sig.Timestamp, Payload: sig})
				}
			}
		}()
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.BindAddress,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("bridge listening", "addr", s.cfg.BindAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.hub.Close()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-serverErr:
		s.hub.Close()
		return err
	}
}

// validateStartupConfig refuses unauthenticated non-loopback binds.
func (s *Server) validateStartupConfig() error {
	if !isLoopbackBindAddress(s.cfg.BindAddress) && !s.cfg.RequireToken {
		return fmt.Errorf("ipc: refusing to bind %q without authentication (set ipc.require_token)", s.cfg.BindAddress)
	}
	return nil
}

func isLoopbackBindAddress(addr string) bool {
	host, _, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		host = strings.TrimSpace(addr)
	}
	return isLoopbackHost(host)
}

func isLoopbackHost(host string) bool {
	if host == "" {
		return false
	}
	switch strings.ToLower(host) {
	case "localhost":
		return true
	case "0.0.0.0", "::":
		return false
	default:
		ip := net.ParseIP(host)
		return ip != nil && ip.IsLoopback()
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, map[string]string{
		"status":  "ok",
		"version": s.cfg.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}
