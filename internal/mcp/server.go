package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/indexer"
	"github.com/fyrsmithlabs/ragd/internal/synthesis"
	"github.com/fyrsmithlabs/ragd/internal/tenant"
)

// Answerer is the RAG service behind the tools.
type Answerer interface {
	GenerateAnswer(ctx context.Context, query, tenant string) (*synthesis.Answer, error)
	Index(ctx context.Context, text, tenant string) (indexer.Result, error)
	CanIndex() bool
}

// Server is an MCP server bound to a single tenant.
type Server struct {
	mcp     *mcp.Server
	service Answerer
	tenant  string
	metrics *Metrics
	logger  *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "ragd")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	// Tenant scopes every tool call. Required.
	Tenant string

	// Logger for structured logging. It must not write to stdout.
	Logger *zap.Logger

	// Metrics defaults to instruments on the global meter.
	Metrics *Metrics
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "ragd",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates an MCP server that answers for cfg.Tenant.
func NewServer(cfg *Config, service Answerer) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if service == nil {
		return nil, fmt.Errorf("service is required")
	}
	if err := tenant.Validate(cfg.Tenant); err != nil {
		return nil, fmt.Errorf("tenant: %w", err)
	}
	if cfg.Name == "" {
		cfg.Name = "ragd"
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(cfg.Logger)
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:     mcpServer,
		service: service,
		tenant:  cfg.Tenant,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.With(zap.String("tenant", cfg.Tenant)),
	}

	s.registerTools()

	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
