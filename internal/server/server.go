// Package server exposes the synchronizer over HTTP.
package server

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
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/l10nsync/internal/engine"
	"github.com/leapstack-labs/l10nsync/internal/server/notifier"
)

// Authenticator maps a bearer token to a user name.
type Authenticator interface {
	Authenticate(token string) (user string, ok bool)
}

// Server is the HTTP front end of the engine.
type Server struct {
	engine            *engine.Engine
	auth              Authenticator
	sessionStore      *sessions.CookieStore
	addr              string
	readHeaderTimeout time.Duration
	logger            *slog.Logger
	notifier          *notifier.Notifier
}

// Config holds configuration for the HTTP server.
type Config struct {
	Engine            *engine.Engine
	Auth              Authenticator
	Addr              string
	SessionSecret     string
	ReadHeaderTimeout time.Duration
	Logger            *slog.Logger
}

// NewServer creates a server and subscribes its notifier to the engine.
func NewServer(cfg Config) *Server {
	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.MaxAge(86400 * 30) // 30 days
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	readHeaderTimeout := cfg.ReadHeaderTimeout
	if readHeaderTimeout == 0 {
		readHeaderTimeout = 10 * time.Second
	}

	n := notifier.New()
	cfg.Engine.SetPublisher(n)

	return &Server{
		engine:            cfg.Engine,
		auth:              cfg.Auth,
		sessionStore:      sessionStore,
		addr:              cfg.Addr,
		readHeaderTimeout: readHeaderTimeout,
		logger:            logger,
		notifier:          n,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		requestLogger(s.logger),
		middleware.Recoverer,
	)
	s.setupRoutes(r)
	return r
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting HTTP server", "addr", s.addr)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: s.readHeaderTimeout,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down HTTP server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// Notifier returns the server's notifier for SSE updates.
func (s *Server) Notifier() *notifier.Notifier {
	return s.notifier
}
