// Package http implements the REST API used by the Alpha Wulf Mini App:
// Telegram login, progress reads, experience awards, health and metrics.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/alphawulf/alphawulf-hub/internal/application/command"
	"github.com/alphawulf/alphawulf-hub/internal/application/query"
	"github.com/alphawulf/alphawulf-hub/internal/domain/account"
	"github.com/alphawulf/alphawulf-hub/internal/infrastructure/auth"
	"github.com/alphawulf/alphawulf-hub/internal/interface/http/handlers"
	"github.com/alphawulf/alphawulf-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config is the listener and policy configuration of the API server.
type Config struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RequestTimeout bounds the context handed to store calls.
	RequestTimeout time.Duration

	// MaxBodyBytes limits request bodies.
	MaxBodyBytes int64

	// AllowedOrigins for CORS. "*" allows any origin.
	AllowedOrigins []string

	// RateLimitRequests per RateLimitWindow per client IP on /api (0 = disabled).
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// TrustProxyHeaders takes the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool

	// Version is reported by /health.
	Version string
}

func DefaultConfig() Config {
	return Config{
		Host:              "0.0.0.0",
		Port:              8080,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		RequestTimeout:    10 * time.Second,
		MaxBodyBytes:      64 << 10,
		AllowedOrigins:    []string{"*"},
		RateLimitRequests: 100,
		RateLimitWindow:   15 * time.Minute,
	}
}

// Address is host:port for net.Listen.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// IdentityVerifier checks signed Mini App initData.
type IdentityVerifier interface {
	Verify(raw string) (account.Identity, error)
}

// SessionManager issues and validates session tokens.
type SessionManager interface {
	Issue(acc *account.Account) (auth.Token, error)
	Validate(token string) (*auth.Claims, error)
}

// AccountReader loads accounts for /api/auth/me.
type AccountReader interface {
	GetByID(ctx context.Context, id string) (*account.Account, error)
}

// Dependencies are the collaborators of the handlers. Verifier, Sessions,
// Accounts and the four use-case handlers are required.
type Dependencies struct {
	Verifier IdentityVerifier
	Sessions SessionManager
	Accounts AccountReader

	ProvisionAccount *command.ProvisionAccountHandler
	AwardExperience  *command.AwardExperienceHandler
	GetProgress      *query.GetProgressHandler
	GetAchievements  *query.GetAchievementsHandler

	// ProgressSync is optional: nil (bot disabled) leaves
	// /api/progress/sync-telegram unregistered.
	ProgressSync ProgressSyncer

	HealthChecker handlers.HealthChecker

	// RateLimiter defaults to a MemoryRateLimiter built from Config.
	RateLimiter RateLimiter

	// Metrics is optional: nil disables /metrics.
	Metrics MetricsCollector

	Logger *slog.Logger
}

// ProgressSyncer pushes the progress summary of an account to its Telegram chat.
type ProgressSyncer interface {
	Sync(ctx context.Context, accountID string) (delivered bool, err error)
}

// MetricsCollector instruments routes and exposes the scrape endpoint.
type MetricsCollector interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

type Server struct {
	config  Config
	deps    Dependencies
	logger  *slog.Logger
	router  *mux.Router
	handler http.Handler
	srv     *http.Server

	ownLimiter *MemoryRateLimiter
	closeOnce  sync.Once

	serving   atomic.Bool
	startedAt time.Time
}

func NewServer(config Config, deps Dependencies) *Server {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		config:    config,
		deps:      deps,
		logger:    log.With(logger.Component("http")),
		router:    mux.NewRouter(),
		startedAt: time.Now(),
	}

	if s.deps.HealthChecker == nil {
		s.deps.HealthChecker = handlers.NewCompositeHealthChecker(config.Version)
	}
	if s.deps.RateLimiter == nil && config.RateLimitRequests > 0 {
		s.ownLimiter = NewMemoryRateLimiter(config.RateLimitRequests, config.RateLimitWindow)
		s.deps.RateLimiter = s.ownLimiter
	}

	s.routes()
	s.handler = chain(s.router,
		s.requestIDMiddleware,
		s.recoveryMiddleware,
		s.loggingMiddleware,
		s.corsMiddleware(),
		handlers.SecurityHeadersMiddleware,
	)
	s.srv = &http.Server{
		Addr:              config.Address(),
		Handler:           s.handler,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	return s
}

// Handler is the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }

// chain applies mw outermost first: chain(h, a, b) serves a(b(h)).
func chain(h http.Handler, mw ...mux.MiddlewareFunc) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) routes() {
	r := s.router
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})
	if s.deps.Metrics != nil {
		r.Use(s.deps.Metrics.Middleware)
		r.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.handleLive).Methods(http.MethodGet)

	// /api: rate limit, deadline and body cap for everything below
	api := r.PathPrefix("/api").Subrouter()
	if s.deps.RateLimiter != nil {
		api.Use(s.rateLimitMiddleware)
	}
	api.Use(s.timeoutMiddleware, s.bodyLimitMiddleware)
	api.HandleFunc("/auth/telegram", s.handleTelegramAuth).Methods(http.MethodPost)
	api.HandleFunc("/achievements", s.handleCatalog).Methods(http.MethodGet)

	// session required
	me := api.NewRoute().Subrouter()
	me.Use(s.authMiddleware)
	me.HandleFunc("/auth/me", s.handleMe).Methods(http.MethodGet)
	me.HandleFunc("/progress", s.handleGetProgress).Methods(http.MethodGet)
	me.HandleFunc("/progress/experience", s.handleAwardExperience).Methods(http.MethodPost)
	me.HandleFunc("/progress/achievements", s.handleGetAchievements).Methods(http.MethodGet)
	if s.deps.ProgressSync != nil {
		me.HandleFunc("/progress/sync-telegram", s.handleSyncTelegram).Methods(http.MethodPost)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start binds the listener and serves until Shutdown. A bind failure is
// returned immediately.
func (s *Server) Start() error {
	if !s.serving.CompareAndSwap(false, true) {
		return errors.New("http: server already started")
	}
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		s.serving.Store(false)
		return fmt.Errorf("http: listen %s: %w", s.srv.Addr, err)
	}
	s.logger.Info("HTTP server listening", slog.String("address", ln.Addr().String()))

	if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http: serve: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx ends. Safe to call when the
// server never started.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if s.ownLimiter != nil {
			s.ownLimiter.Close()
		}
	})
	if !s.serving.Swap(false) {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return s.srv.Shutdown(ctx)
}

// Uptime counts from NewServer.
func (s *Server) Uptime() time.Duration { return time.Since(s.startedAt) }
