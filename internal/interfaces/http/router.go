// Package http assembles the gateway's gin engine and HTTP server.
package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/linkguard/internal/application/dto"
	"github.com/turtacn/linkguard/internal/config"
	"github.com/turtacn/linkguard/internal/domain/service"
	"github.com/turtacn/linkguard/internal/infrastructure/ratelimit"
	"github.com/turtacn/linkguard/internal/interfaces/http/handlers"
	"github.com/turtacn/linkguard/internal/interfaces/http/middleware"
	"github.com/turtacn/linkguard/pkg/constants"
	apperrors "github.com/turtacn/linkguard/pkg/errors"
	"github.com/turtacn/linkguard/pkg/logger"
)

// Dependencies are the collaborators the routes are wired to.
type Dependencies struct {
	Limiter  service.RateLimiter
	Policies *ratelimit.PolicySet
	Verifier service.TokenVerifier
	Registry handlers.SessionRegistry
	Health   *handlers.HealthHandler
	Metrics  middleware.HTTPMetrics
	Tracer   middleware.Tracer
	Gatherer prometheus.Gatherer
}

// NewRouter builds the gin engine.
func NewRouter(cfg *config.Config, deps Dependencies, log logger.Logger) (*gin.Engine, error) {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, apperrors.ErrInvalidConfig("invalid server.trusted_proxies").WithCause(err)
	}

	engine.Use(middleware.RequestID(), middleware.Recovery(log))
	if deps.Tracer != nil {
		engine.Use(middleware.Tracing(deps.Tracer))
	}
	if deps.Metrics != nil {
		engine.Use(middleware.Metrics(deps.Metrics))
	}
	engine.Use(middleware.Logger(log))
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", constants.HeaderRequestID},
		ExposeHeaders: []string{
			constants.HeaderRequestID,
			constants.HeaderRetryAfter,
			constants.HeaderRateLimitLimit,
			constants.HeaderRateLimitRemaining,
			constants.HeaderRateLimitReset,
		},
		MaxAge: 12 * time.Hour,
	}))

	engine.GET("/health/live", deps.Health.Live)
	engine.GET("/health/ready", deps.Health.Ready)
	if cfg.Monitoring.MetricsEnabled && deps.Gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
	if cfg.Monitoring.PprofEnabled {
		pprof.Register(engine)
	}

	forward := handlers.Unavailable
	if cfg.Upstream.URL != "" {
		target, err := url.Parse(cfg.Upstream.URL)
		if err != nil {
			return nil, apperrors.ErrInvalidConfig("invalid upstream.url").WithCause(err)
		}
		forward = handlers.NewUpstreamProxy(target, cfg.Upstream.Timeout, log).Forward
	}

	limit := func(name constants.PolicyName, identity middleware.IdentityFunc) (gin.HandlerFunc, error) {
		if !cfg.RateLimit.Enabled {
			return func(c *gin.Context) { c.Next() }, nil
		}
		policy, err := deps.Policies.Require(string(name))
		if err != nil {
			return nil, err
		}
		return middleware.RateLimit(deps.Limiter, policy, identity, log), nil
	}
	authLimit, err := limit(constants.PolicyAuth, middleware.ClientRouteIdentity)
	if err != nil {
		return nil, err
	}
	createLimit, err := limit(constants.PolicyURLCreate, middleware.UserOrClientIdentity)
	if err != nil {
		return nil, err
	}

	requireAuth := middleware.RequireAuth(deps.Verifier, deps.Registry, log)
	sessions := handlers.NewSessionHandler(deps.Registry, log)

	v1 := engine.Group("/api/v1")
	{
		v1.POST("/auth/login", authLimit, forward)

		auth := v1.Group("/auth", requireAuth)
		{
			auth.POST("/logout", sessions.Logout)
			auth.POST("/sessions/revoke-all", sessions.RevokeAll)
			auth.DELETE("/sessions/current", sessions.ForgetCurrent)
			auth.GET("/sessions", sessions.ListSessions)
		}

		v1.POST("/urls", requireAuth, createLimit, forward)
	}

	engine.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/v1/") {
			requireAuth(c)
			if c.IsAborted() {
				return
			}
			forward(c)
			return
		}
		dto.SendError(c, apperrors.NewError(apperrors.CodeNotFound, http.StatusNotFound,
			"The requested resource was not found.", ""))
	})
	return engine, nil
}

// Server runs the gateway's HTTP server.
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	log             logger.Logger
}

// NewServer creates a server for handler on cfg's address.
func NewServer(cfg config.ServerConfig, handler http.Handler, log logger.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:           cfg.Addr(),
			Handler:        handler,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			IdleTimeout:    cfg.IdleTimeout,
			MaxHeaderBytes: 1 << 20,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             log.WithComponent("http_server"),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "Starting HTTP server", logger.String("address", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info(context.Background(), "Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error(shutdownCtx, "Server forced to shutdown", err)
		return err
	}
	s.log.Info(shutdownCtx, "HTTP server stopped")
	return nil
}
