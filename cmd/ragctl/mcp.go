package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/app"
	"github.com/fyrsmithlabs/ragd/internal/mcp"
)

var mcpTenant string

func init() {
	mcpCmd.Flags().StringVar(&mcpTenant, "tenant", "", "tenant whose documents the tools answer from (required)")
	_ = mcpCmd.MarkFlagRequired("tenant")

	rootCmd.AddCommand(mcpCmd)
}

// mcpCmd runs an MCP server on stdio
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run an MCP server on stdio for one tenant",
	Long: `Run a Model Context Protocol server on stdin/stdout.

The server exposes the ask_documents tool, answering from the --tenant
documents in the configured vector store, and index_document for adding
text to that tenant. Logs go to stderr.

Examples:
  ragctl mcp --tenant tenantA
  ragctl mcp --config ragd.yaml --tenant tenantB`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

// runMCP handles the mcp command
func runMCP(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}

	obs, err := app.NewObservability(ctx, cfg, version, app.LogOptions{Stderr: true})
	if err != nil {
		return err
	}
	defer shutdown(cfg, obs)

	pipeline, err := app.NewPipeline(ctx, cfg, obs.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			obs.Logger.Underlying().Warn("failed to close pipeline", zap.Error(err))
		}
	}()

	server, err := mcp.NewServer(&mcp.Config{
		Name:    "ragd",
		Version: version,
		Tenant:  mcpTenant,
		Logger:  obs.Logger.Underlying().Named("mcp"),
	}, pipeline.Service)
	if err != nil {
		return err
	}
	return server.Run(ctx)
}
