// Package app wires configuration, logging and the tool catalog into a
// runnable MCP server.
package app

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/RobinCoderZhao/bitcoin-data-mcp/internal/endpoint"
	appconfig "github.com/RobinCoderZhao/bitcoin-data-mcp/pkg/config"
	"github.com/RobinCoderZhao/bitcoin-data-mcp/pkg/fetch"
)

// Config is the bitcoin-data-mcp configuration file.
type Config struct {
	Server    ServerConfig                 `yaml:"server"`
	Log       LogConfig                    `yaml:"log"`
	HTTP      HTTPConfig                   `yaml:"http"`
	Fetch     fetch.Options                `yaml:"fetch"`
	Endpoints map[string]map[string]string `yaml:"endpoints"` // family -> network -> base URL
}

// ServerConfig is the identity reported in initialize.
type ServerConfig struct {
	Name         string `yaml:"name" env:"BTCMCP_SERVER_NAME"`
	Instructions string `yaml:"instructions"`
	Transport    string `yaml:"transport" env:"BTCMCP_TRANSPORT"` // "stdio" or "http"
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" env:"BTCMCP_LOG_LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"BTCMCP_LOG_FORMAT"` // text or json
}

// HTTPConfig holds settings for the HTTP transport.
type HTTPConfig struct {
	Addr       string `yaml:"addr" env:"BTCMCP_HTTP_ADDR"`
	AuthSecret string `yaml:"auth_secret" env:"BTCMCP_AUTH_SECRET"`
	// MaxConns caps concurrent connections; 0 disables the limit.
	MaxConns int `yaml:"max_conns" env:"BTCMCP_HTTP_MAX_CONNS"`
}

const defaultInstructions = "Read-only Bitcoin blockchain data from mempool.space and blockstream.info. " +
	"Every tool takes an optional network argument; omit it to query mainnet."

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:         "bitcoin-data-mcp",
			Instructions: defaultInstructions,
			Transport:    "stdio",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		HTTP: HTTPConfig{
			Addr:     ":8080",
			MaxConns: 256,
		},
		Fetch: fetch.DefaultOptions(),
	}
}

// Load reads path on top of DefaultConfig. A missing or empty path yields
// the defaults with environment overrides applied.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if err := appconfig.LoadOrDefault(path, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the fields the server cannot start without.
func (c Config) Validate() error {
	if c.Server.Name == "" {
		return fmt.Errorf("config: server.name is required")
	}
	switch c.Server.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("config: unknown transport %q (want stdio or http)", c.Server.Transport)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if c.Server.Transport == "http" && c.HTTP.Addr == "" {
		return fmt.Errorf("config: http.addr is required for the http transport")
	}
	if c.HTTP.MaxConns < 0 {
		return fmt.Errorf("config: http.max_conns must not be negative")
	}
	if _, err := c.Table(); err != nil {
		return err
	}
	return nil
}

// Table builds the endpoint table from the defaults and Endpoints.
func (c Config) Table() (*endpoint.Table, error) {
	overrides := make(map[endpoint.Family]map[string]string, len(c.Endpoints))
	for family, byNetwork := range c.Endpoints {
		overrides[endpoint.Family(family)] = byNetwork
	}
	table, err := endpoint.NewTable(overrides)
	if err != nil {
		return nil, fmt.Errorf("config: endpoints: %w", err)
	}
	return table, nil
}

// NewLogger builds the process logger. Logs go to w, which is stderr in
// practice since stdout carries the stdio transport.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("config: unknown log level %q", s)
	}
	return level, nil
}
