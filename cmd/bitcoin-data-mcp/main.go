// bitcoin-data-mcp serves read-only Bitcoin blockchain data to MCP clients.
//
// Usage:
//
//	bitcoin-data-mcp serve                       # stdio transport
//	bitcoin-data-mcp serve --transport http      # streamable HTTP on :8080
//	bitcoin-data-mcp tools                       # print the tool catalog as JSON
//	bitcoin-data-mcp token --ttl 24h             # mint a bearer token for HTTP auth
//	bitcoin-data-mcp version
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/RobinCoderZhao/bitcoin-data-mcp/internal/app"
	"github.com/RobinCoderZhao/bitcoin-data-mcp/pkg/mcpserver"
)

var version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "bitcoin-data-mcp",
		Short:         "MCP server for Bitcoin blockchain data",
		Long:          "bitcoin-data-mcp exposes mempool.space and blockstream.info lookups as MCP tools.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(toolsCmd(&configPath))
	rootCmd.AddCommand(tokenCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	var transport, addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Load(*configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("transport") {
				cfg.Server.Transport = transport
			}
			if cmd.Flags().Changed("addr") {
				cfg.HTTP.Addr = addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := cfg.NewLogger(os.Stderr)
			server, err := app.NewServer(cfg, version, logger, nil)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx, cfg, server)
		},
	}

	cmd.Flags().StringVarP(&transport, "transport", "t", "stdio", "transport: stdio or http")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address for the http transport")
	return cmd
}

func toolsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalog as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Load(*configPath)
			if err != nil {
				return err
			}
			server, err := app.NewServer(cfg, version, cfg.NewLogger(os.Stderr), nil)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(&mcpserver.ToolsListResult{Tools: server.Registry().List()})
		},
	}
}

func tokenCmd(configPath *string) *cobra.Command {
	var subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP transport",
		Long:  "Signs an HS256 token with http.auth_secret (or BTCMCP_AUTH_SECRET).",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.HTTP.AuthSecret == "" {
				return fmt.Errorf("no auth secret configured; set http.auth_secret or BTCMCP_AUTH_SECRET")
			}
			token, err := mcpserver.IssueToken(cfg.HTTP.AuthSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "bitcoin-data-mcp-client", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime; 0 for no expiry")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bitcoin-data-mcp %s\n", version)
		},
	}
}
