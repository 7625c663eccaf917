// Package api provides the HTTP API server for idbroker source management.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/janovincze/idbroker/internal/api/handlers"
	"github.com/janovincze/idbroker/internal/api/middleware"
	"github.com/janovincze/idbroker/internal/api/models"
	"github.com/janovincze/idbroker/internal/api/services"
	"github.com/janovincze/idbroker/internal/config"
	"github.com/janovincze/idbroker/internal/health"
	"github.com/janovincze/idbroker/internal/metrics"
)

// corsMaxAge is how long browsers may cache preflight results.
const corsMaxAge = 12 * time.Hour

// Server is the HTTP API server.
type Server struct {
	cfg           *config.Config
	logger        *slog.Logger
	healthManager *health.Manager
	sourceService *services.OAuthSourceService
	auth          middleware.AuthConfig
	rateLimit     middleware.RateLimitConfig
	httpServer    *http.Server
	router        *gin.Engine
}

// ServerConfig holds server configuration options.
type ServerConfig struct {
	// Config is the application configuration.
	Config *config.Config

	// Logger is the structured logger.
	Logger *slog.Logger

	// HealthManager is the health check manager.
	HealthManager *health.Manager

	// SourceService backs the /api/v1/sources/oauth routes. The routes are
	// not registered when it is nil.
	SourceService *services.OAuthSourceService

	// TokenVerifier checks admin bearer tokens. Required when
	// Config.Auth.Enabled is set.
	TokenVerifier middleware.TokenVerifier
}

// NewServer creates a new API server. The context bounds background work
// started for the server, such as rate limiter cleanup.
func NewServer(ctx context.Context, serverCfg ServerConfig) (*Server, error) {
	cfg := serverCfg.Config
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger := serverCfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Auth.Enabled && serverCfg.TokenVerifier == nil {
		return nil, errors.New("auth is enabled but no token verifier was provided")
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.API.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	if cfg.Metrics.Enabled {
		metrics.Register()
	}

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(logger))
	if cfg.Metrics.Enabled {
		router.Use(middleware.Metrics())
	}
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS(cfg.API.CORSOrigins, corsMaxAge))

	rateLimit := middleware.DefaultRateLimitConfig()
	if cfg.API.RateLimitRPS > 0 {
		rateLimit.RequestsPerSecond = cfg.API.RateLimitRPS
	}
	if cfg.API.RateLimitBurst > 0 {
		rateLimit.BurstSize = cfg.API.RateLimitBurst
	}

	s := &Server{
		cfg:           cfg,
		logger:        logger.With("component", "api-server"),
		healthManager: serverCfg.HealthManager,
		sourceService: serverCfg.SourceService,
		auth: middleware.AuthConfig{
			Enabled:  cfg.Auth.Enabled,
			Verifier: serverCfg.TokenVerifier,
		},
		rateLimit: rateLimit,
		router:    router,
	}

	s.registerRoutes(ctx)

	s.httpServer = &http.Server{
		Addr:         cfg.API.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.ReadTimeout * 4,
	}

	return s, nil
}

// registerRoutes registers all API routes.
func (s *Server) registerRoutes(ctx context.Context) {
	healthHandler := handlers.NewHealthHandler(s.healthManager, s.cfg.Version)

	s.router.GET("/health", healthHandler.GetHealth)
	s.router.GET("/health/live", healthHandler.GetLiveness)
	s.router.GET("/health/ready", healthHandler.GetReadiness)

	if s.cfg.Metrics.Enabled {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	v1.GET("/version", handlers.GetVersion(s.cfg.Version))

	if s.sourceService == nil {
		return
	}

	sourceHandler := handlers.NewOAuthSourceHandler(s.sourceService)
	read := middleware.RequirePermission(s.auth, models.PermissionSourcesRead)
	write := middleware.RequirePermission(s.auth, models.PermissionSourcesWrite)
	// Writes may fetch remote documents, so they share one limiter.
	limited := middleware.RateLimiter(ctx, s.rateLimit)

	sources := v1.Group("/sources/oauth")
	sources.Use(middleware.Authenticate(s.auth), middleware.RequireAuth(s.auth))
	{
		sources.GET("/source_types", read, sourceHandler.SourceTypes)
		sources.GET("", read, sourceHandler.List)
		sources.GET("/by-id/:id", read, sourceHandler.GetByID)
		sources.GET("/:slug", read, sourceHandler.Get)

		sources.POST("/discover", write, limited, sourceHandler.Discover)
		sources.POST("", write, limited, sourceHandler.Create)
		sources.PUT("/:slug", write, limited, sourceHandler.Update)
		sources.PATCH("/:slug", write, limited, sourceHandler.Patch)
		sources.DELETE("/:slug", write, sourceHandler.Delete)
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.cfg.API.ListenAddr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the underlying Gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}
