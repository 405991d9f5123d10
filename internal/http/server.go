// Package http provides the HTTP API for ragd.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/indexer"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/synthesis"
)

// Answerer is the RAG service behind the API.
type Answerer interface {
	GenerateAnswer(ctx context.Context, query, tenant string) (*synthesis.Answer, error)
	Index(ctx context.Context, text, tenant string) (indexer.Result, error)
	CanIndex() bool
}

// KeyResolver maps an API key to the tenant it authenticates.
type KeyResolver interface {
	Resolve(apiKey string) (string, bool)
}

// Server provides HTTP endpoints for ragd.
type Server struct {
	echo    *echo.Echo
	service Answerer
	keys    KeyResolver
	limiter *tenantLimiter
	metrics *HTTPMetrics
	logger  *logging.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// RateLimitRPS is the sustained per-tenant request rate. Zero disables
	// rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int

	// BodyLimit caps request bodies, in echo's size notation ("1M").
	BodyLimit string

	// Metrics overrides the instruments created on the global meter.
	Metrics *HTTPMetrics
}

// NewServer creates a new HTTP server.
func NewServer(service Answerer, keys KeyResolver, logger *logging.Logger, cfg *Config) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if keys == nil {
		return nil, fmt.Errorf("key resolver cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8000,
		}
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "1M"
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewHTTPMetrics(logger.Underlying())
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	s := &Server{
		echo:    e,
		service: service,
		keys:    keys,
		limiter: newTenantLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		metrics: metrics,
		logger:  logger,
		config:  cfg,
	}
	e.HTTPErrorHandler = s.handleError

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger())
	e.Use(metrics.MetricsMiddleware())

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	guarded := []echo.MiddlewareFunc{
		middleware.BodyLimit(s.config.BodyLimit),
		s.authenticate(),
		s.rateLimit(),
	}

	s.echo.POST("/chat", s.handleChat, guarded...)

	v1 := s.echo.Group("/api/v1", guarded...)
	v1.POST("/chat", s.handleChat)
	if s.service.CanIndex() {
		v1.POST("/documents", s.handleDocuments)
	}
}

// requestLogger logs one line per request with the request id and, once
// authenticated, the tenant.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), requestID)))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			s.logger.Info(c.Request().Context(), "http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	}
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// ChatRequest is the request body for POST /chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the response for POST /chat.
type ChatResponse struct {
	Answer *synthesis.Answer `json:"answer"`
}

// handleChat handles POST /chat and POST /api/v1/chat.
func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	ctx := c.Request().Context()
	answer, err := s.service.GenerateAnswer(ctx, req.Message, tenantOf(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ChatResponse{Answer: answer})
}

// DocumentRequest is the request body for POST /api/v1/documents.
type DocumentRequest struct {
	Text string `json:"text"`
}

// handleDocuments handles POST /api/v1/documents.
func (s *Server) handleDocuments(c echo.Context) error {
	var req DocumentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}

	result, err := s.service.Index(c.Request().Context(), req.Text, tenantOf(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting HTTP server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}
