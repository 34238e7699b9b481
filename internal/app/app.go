package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/RobinCoderZhao/bitcoin-data-mcp/internal/tools"
	"github.com/RobinCoderZhao/bitcoin-data-mcp/pkg/fetch"
	"github.com/RobinCoderZhao/bitcoin-data-mcp/pkg/mcpserver"
)

// NewServer builds the MCP server for cfg. A nil fetcher uses HTTP with
// cfg.Fetch. The catalog is validated here, so a bad tool definition stops
// startup instead of failing on first use.
func NewServer(cfg Config, version string, logger *slog.Logger, fetcher fetch.Fetcher) (*mcpserver.Server, error) {
	table, err := cfg.Table()
	if err != nil {
		return nil, err
	}
	if fetcher == nil {
		fetcher = fetch.NewHTTPFetcher(cfg.Fetch)
	}

	registry, err := mcpserver.NewRegistry(tools.Catalog(table, fetcher)...)
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}

	server := mcpserver.New(cfg.Server.Name, version, registry,
		mcpserver.WithLogger(logger),
		mcpserver.WithInstructions(cfg.Server.Instructions),
	)
	server.Use(mcpserver.LoggingMiddleware(logger))
	server.Use(mcpserver.RecoveryMiddleware(logger))
	return server, nil
}

// Run serves on the configured transport until ctx is cancelled or, for
// stdio, until the input closes.
func Run(ctx context.Context, cfg Config, server *mcpserver.Server) error {
	switch cfg.Server.Transport {
	case "http":
		return server.RunHTTP(ctx, cfg.HTTP.Addr,
			mcpserver.WithAuthSecret(cfg.HTTP.AuthSecret),
			mcpserver.WithMaxConnections(cfg.HTTP.MaxConns),
		)
	case "stdio":
		return server.RunStdio(ctx)
	default:
		return fmt.Errorf("unknown transport %q", cfg.Server.Transport)
	}
}
