package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/tour-booking/internal/config"
	"github.com/Clark-Hu/tour-booking/internal/listquery"
	"github.com/Clark-Hu/tour-booking/internal/metrics"
	"github.com/Clark-Hu/tour-booking/internal/ratings"
	"github.com/Clark-Hu/tour-booking/internal/repository"
	"github.com/Clark-Hu/tour-booking/internal/store"
)

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg     config.Config
	store   *store.Store
	repo    *repository.Repository
	reviews *ratings.Service
	metrics *metrics.Metrics
	limiter *ipRateLimiter
	logger  zerolog.Logger
	router  chi.Router
	httpSrv *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, st *store.Store, repo *repository.Repository, reviews *ratings.Service, m *metrics.Metrics, logger zerolog.Logger) *Server {
	if m == nil {
		m = metrics.New()
	}

	s := &Server{
		cfg:     cfg,
		store:   st,
		repo:    repo,
		reviews: reviews,
		metrics: m,
		logger:  logger.With().Str("component", "http").Logger(),
		router:  chi.NewRouter(),
	}
	if cfg.RateLimitPerHour > 0 {
		s.limiter = newIPRateLimiter(cfg.RateLimitPerHour, cfg.RateLimitBurst)
	}

	s.router.Use(middleware.RequestID)
	if cfg.TrustProxyHeaders {
		s.router.Use(middleware.RealIP)
	}
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(m.Instrument)
	s.registerRoutes()
	return s
}

// Handler exposes the root router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) listOptions() listquery.Options {
	return listquery.Options{
		DefaultLimit: s.cfg.ListDefaultLimit,
		MaxLimit:     s.cfg.ListMaxLimit,
	}
}

func (s *Server) registerRoutes() {
	s.router.NotFound(s.handleNotFound)
	s.router.MethodNotAllowed(s.handleMethodNotAllowed)

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.rateLimit)
		}

		r.Route("/tours", func(r chi.Router) {
			r.Get("/", s.handleListTours)
			r.With(s.requireBearer).Post("/", s.handleCreateTour)
			r.With(aliasQuery(topCheapQuery)).Get("/top-5-cheap", s.handleListTours)
			r.Get("/tour-stats", s.handleTourStats)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetTour)
				r.With(s.requireBearer).Patch("/", s.handleUpdateTour)
				r.With(s.requireBearer).Delete("/", s.handleDeleteTour)
				r.Route("/reviews", func(r chi.Router) {
					r.Use(s.tourScope)
					r.Get("/", s.handleListReviews)
					r.With(s.requireUser).Post("/", s.handleCreateReview)
				})
			})
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Get("/", s.handleListReviews)
			r.With(s.requireUser).Post("/", s.handleCreateReview)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetReview)
				r.With(s.requireUser).Patch("/", s.handleUpdateReview)
				r.With(s.requireActor).Delete("/", s.handleDeleteReview)
			})
		})
	})
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
		s.logger.Info().Str("addr", s.httpSrv.Addr).Msg("http server listening")
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

	if err := s.store.HealthCheck(ctx); err != nil {
		s.respondError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Database is not reachable")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Can't find "+r.URL.Path+" on this server")
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", r.Method+" is not supported on "+r.URL.Path)
}
