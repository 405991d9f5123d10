// Package main implements the ragctl CLI: document ingestion into the
// ragd vector store, queries against a running server, and an MCP stdio
// server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragd/internal/app"
	"github.com/fyrsmithlabs/ragd/internal/config"
)

var (
	// configPath is an optional YAML config file
	configPath string
	// serverURL is the base URL for the ragd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "CLI for ragd ingestion and queries",
	Long: `ragctl indexes documents into the ragd vector store and queries a running
ragd server.

Documents are organized one directory per tenant:

  docs/
    tenantA/policy.pdf
    tenantB/contract.md

Every chunk is tagged with the directory it came from, and answers for a
tenant are drawn only from that tenant's chunks.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8000", "ragd server URL")
}

// loadConfig loads configuration. Full validation is only needed by commands
// that call the generative model.
func loadConfig(generation bool) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadWithFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if generation {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return cfg, nil
}

// shutdown flushes telemetry with the configured timeout.
func shutdown(cfg *config.Config, obs *app.Observability) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := obs.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry shutdown: %v\n", err)
	}
}
