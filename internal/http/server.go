package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Clark-Hu/restroom-finder/internal/config"
	"github.com/Clark-Hu/restroom-finder/internal/domain"
	"github.com/Clark-Hu/restroom-finder/internal/logging"
	"github.com/Clark-Hu/restroom-finder/internal/metrics"
	"github.com/Clark-Hu/restroom-finder/internal/repository"
	"github.com/Clark-Hu/restroom-finder/internal/service"
)

// AuthAPI registers accounts and issues tokens.
type AuthAPI interface {
	Register(ctx context.Context, email, password string) (domain.User, error)
	Login(ctx context.Context, email, password string) (string, error)
}

// RestroomAPI answers nearby queries.
type RestroomAPI interface {
	Nearby(ctx context.Context, longitude, latitude float64) ([]service.RestroomView, error)
}

// RatingAPI drives rating transitions.
type RatingAPI interface {
	PostRating(ctx context.Context, userID, restroomID int64, score *float64) (repository.RatingTransition, error)
	EditRating(ctx context.Context, userID, restroomID int64, score *float64) (repository.RatingTransition, error)
	HasRated(ctx context.Context, userID, restroomID int64) (bool, error)
}

// TokenVerifier resolves a bearer token to a user identifier.
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Auth      AuthAPI
	Restrooms RestroomAPI
	Ratings   RatingAPI
	Tokens    TokenVerifier
	Health    HealthChecker
	Metrics   *metrics.Metrics
	// RateLimit wraps the credential endpoints when set.
	RateLimit func(http.Handler) http.Handler
	Logger    *zap.Logger
}

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg       config.Config
	auth      AuthAPI
	restrooms RestroomAPI
	ratings   RatingAPI
	tokens    TokenVerifier
	health    HealthChecker
	metrics   *metrics.Metrics
	rateLimit func(http.Handler) http.Handler
	logger    *zap.Logger
	router    chi.Router
	httpSrv   *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, deps Deps) *Server {
	logger := logging.OrNop(deps.Logger).Named("http")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(logger, deps.Metrics))
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:       cfg,
		auth:      deps.Auth,
		restrooms: deps.Restrooms,
		ratings:   deps.Ratings,
		tokens:    deps.Tokens,
		health:    deps.Health,
		metrics:   deps.Metrics,
		rateLimit: deps.RateLimit,
		logger:    logger,
		router:    r,
	}
	s.registerRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router.Group(func(r chi.Router) {
		if s.rateLimit != nil {
			r.Use(s.rateLimit)
		}
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
	})

	s.router.Post("/nearby_toilet", s.handleNearby)

	s.router.Post("/rate/{restroom_id}", s.authenticated(s.handlePostRating))
	s.router.Put("/edit_rating/{restroom_id}", s.authenticated(s.handleEditRating))
	s.router.Get("/has_rated/{restroom_id}", s.authenticated(s.handleHasRated))
}

// Start boots the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.httpSrv.Addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.health != nil {
		if err := s.health.HealthCheck(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "database unreachable")
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
