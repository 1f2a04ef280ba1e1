package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/upbeat/internal/shared"
	"github.com/desertthunder/upbeat/internal/tasks"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
	oauthStateTTL     = 10 * time.Minute
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
// Common middleware includes logging, caller identity, CORS, rate limiting, etc.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers that own their routes.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// UserStore records callers so their names can be shown on community playlists.
// [repositories.UserRepository] implements it.
type UserStore interface {
	Ensure(ctx context.Context, id, name string) error
}

// Options holds the dependencies of a [Server].
type Options struct {
	Config   shared.ServerConfig
	Engine   *tasks.PlaylistEngine
	Exporter *tasks.Exporter
	Users    UserStore
	Logger   *log.Logger
}

// Server exposes the playlist engine and exporter as a JSON API.
type Server struct {
	config    shared.ServerConfig
	engine    *tasks.PlaylistEngine
	exporter  *tasks.Exporter
	users     UserStore
	states    *StateStore
	validator *Validator
	logger    *log.Logger
	handler   http.Handler
}

// New creates a Server and registers its routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}

	s := &Server{
		config:    opts.Config,
		engine:    opts.Engine,
		exporter:  opts.Exporter,
		users:     opts.Users,
		states:    NewStateStore(oauthStateTTL),
		validator: NewValidator(),
		logger:    opts.Logger,
	}

	router := NewBasicRouter()
	router.Use(Logging(s.logger), Identify(s.users, s.logger))
	s.routes(router)

	var handler http.Handler = router
	handler = CORS(opts.Config.AllowedOrigins)(handler)
	if opts.Config.RateLimitPerSecond > 0 {
		limiter := NewIPRateLimiter(opts.Config.RateLimitPerSecond, opts.Config.RateLimitBurst)
		handler = RateLimit(limiter)(handler)
	}
	s.handler = handler
	return s
}

func (s *Server) routes(r *BasicRouter) {
	r.HandleFunc(http.MethodGet, "/health", s.handleHealth)

	r.Group("/api", func(api *BasicRouter) {
		api.HandleFunc(http.MethodGet, "/search", s.handleSearch)
		api.HandleFunc(http.MethodGet, "/share/{token}", s.handleShare)

		api.Group("/playlists", func(p *BasicRouter) {
			p.HandleFunc(http.MethodPost, "/generate", s.handleGenerate)
			p.HandleFunc(http.MethodGet, "/mine", s.handleMine)
			p.HandleFunc(http.MethodGet, "/public", s.handlePublic)
			p.HandleFunc(http.MethodGet, "/trending", s.handleTrending)
			p.HandleFunc(http.MethodGet, "/filtered", s.handleFiltered)
			p.HandleFunc(http.MethodGet, "/{id}/songs", s.handleSongs)
			p.HandleFunc(http.MethodDelete, "/{id}", s.handleDelete)
			p.HandleFunc(http.MethodPut, "/{id}/visibility", s.handleVisibility)
			p.HandleFunc(http.MethodPut, "/{id}/dislikes", s.handleDislikes)
			p.HandleFunc(http.MethodPost, "/{id}/clone", s.handleClone)
			p.HandleFunc(http.MethodPost, "/{id}/export", s.handleExport)
		})

		api.Group("/spotify", func(sp *BasicRouter) {
			sp.HandleFunc(http.MethodGet, "/status", s.handleSpotifyStatus)
			sp.HandleFunc(http.MethodGet, "/connect", s.handleSpotifyConnect)
			sp.HandleFunc(http.MethodGet, "/callback", s.handleSpotifyCallback)
			sp.HandleFunc(http.MethodDelete, "/connection", s.handleSpotifyDisconnect)
		})
	})
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		close(serverErrors)
	}()

	select {
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down api server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
