package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	api "github.com/go-training/clickup-mcp/pkg/clickup"
	"github.com/go-training/clickup-mcp/pkg/logger"
	"github.com/go-training/clickup-mcp/pkg/oauth"
	"github.com/go-training/clickup-mcp/pkg/server"
	"github.com/go-training/clickup-mcp/pkg/session"
	"github.com/go-training/clickup-mcp/pkg/store"

	"github.com/appleboy/graceful"
	"github.com/gin-gonic/gin"
	"github.com/gptscript-ai/cmd"
	"github.com/spf13/cobra"
)

var version = "dev"

const (
	transportHTTP  = "http"
	transportStdio = "stdio"

	stateSweepInterval   = time.Minute
	limiterSweepInterval = 5 * time.Minute
	shutdownTimeout      = 10 * time.Second
)

// RootCmd holds every setting; each field is a flag and an environment variable.
type RootCmd struct {
	// OAuth client registered with ClickUp
	ClientID     string `name:"client-id" env:"CLICKUP_CLIENT_ID" usage:"OAuth client ID of the ClickUp app"`
	ClientSecret string `name:"client-secret" env:"CLICKUP_CLIENT_SECRET" usage:"OAuth client secret of the ClickUp app"`
	AuthorizeURL string `name:"oauth-authorize-url" env:"OAUTH_AUTHORIZE_URL" usage:"Authorization endpoint" default:"https://app.clickup.com/api"`
	TokenURL     string `name:"oauth-token-url" env:"OAUTH_TOKEN_URL" usage:"Token endpoint" default:"https://api.clickup.com/api/v2/oauth/token"`
	RevokeURL    string `name:"oauth-revoke-url" env:"OAUTH_REVOKE_URL" usage:"Revocation endpoint; revocation is skipped when empty"`
	CallbackPath string `name:"oauth-callback-path" env:"OAUTH_CALLBACK_PATH" usage:"Path the authorization server redirects back to" default:"/callback"`
	Scope        string `name:"oauth-scope" env:"OAUTH_SCOPE" usage:"Space separated scopes to request"`
	StateTTL     string `name:"oauth-state-ttl" env:"OAUTH_STATE_TTL" usage:"Lifetime of a pending authorization" default:"10m"`

	// HTTP surface
	Host                string `name:"host" env:"HOST" usage:"Host to bind the server to" default:"localhost"`
	Port                string `name:"port" env:"PORT" usage:"Port to run the server on" default:"8095"`
	BaseURL             string `name:"base-url" env:"BASE_URL" usage:"Externally reachable URL of this server (default http://<host>:<port>)"`
	Transport           string `name:"transport" env:"TRANSPORT" usage:"MCP transport: http or stdio" default:"http"`
	RedirectAfter       string `name:"redirect-after" env:"REDIRECT_AFTER" usage:"Redirect here with ?session_id= after sign-in instead of showing a page"`
	AllowedRedirectURIs string `name:"allowed-redirect-uris" env:"ALLOWED_REDIRECT_URIS" usage:"Comma separated redirect_uri prefixes accepted besides the callback"`
	RateLimit           int    `name:"rate-limit" env:"RATE_LIMIT" usage:"Requests per second per IP on the OAuth routes, 0 disables" default:"10"`
	ReadOnly            bool   `name:"read-only" env:"READ_ONLY" usage:"Hide the tools that create, update or delete tasks"`

	// Pending authorization storage
	StateStore    string `name:"state-store" env:"STATE_STORE" usage:"State store: memory or redis" default:"memory"`
	RedisAddr     string `name:"redis-addr" env:"REDIS_ADDR" usage:"Redis address (only used when state-store=redis)" default:"localhost:6379"`
	RedisPassword string `name:"redis-password" env:"REDIS_PASSWORD" usage:"Redis password (only used when state-store=redis)"`
	RedisDB       int    `name:"redis-db" env:"REDIS_DB" usage:"Redis database (only used when state-store=redis)" default:"0"`

	// Sessions
	SessionMaxIdle       string `name:"session-max-idle" env:"SESSION_MAX_IDLE" usage:"Evict sessions unused for this long, 0 keeps them until restart" default:"24h"`
	SessionSweepInterval string `name:"session-sweep-interval" env:"SESSION_SWEEP_INTERVAL" usage:"How often idle sessions are evicted" default:"5m"`

	// ClickUp API
	ClickUpAPIURL     string `name:"clickup-api-url" env:"CLICKUP_API_URL" usage:"ClickUp REST API base URL" default:"https://api.clickup.com/api/v2"`
	ClickUpAuthScheme string `name:"clickup-auth-scheme" env:"CLICKUP_AUTH_SCHEME" usage:"Authorization header scheme: bearer or raw" default:"bearer"`
	RequestTimeout    string `name:"request-timeout" env:"REQUEST_TIMEOUT" usage:"Timeout for token endpoint and ClickUp API calls" default:"30s"`

	LogLevel string `name:"log-level" env:"LOG_LEVEL" usage:"Log level (DEBUG, INFO, WARN, ERROR). Defaults to DEBUG in development, INFO in production"`
}

type durations struct {
	stateTTL       time.Duration
	maxIdle        time.Duration
	sweepInterval  time.Duration
	requestTimeout time.Duration
}

func (c *RootCmd) durations() (durations, error) {
	var d durations
	var errs []error
	parse := func(name, value string, dst *time.Duration) {
		v, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
			return
		}
		*dst = v
	}
	parse("oauth-state-ttl", c.StateTTL, &d.stateTTL)
	parse("session-max-idle", c.SessionMaxIdle, &d.maxIdle)
	parse("session-sweep-interval", c.SessionSweepInterval, &d.sweepInterval)
	parse("request-timeout", c.RequestTimeout, &d.requestTimeout)
	return d, errors.Join(errs...)
}

func (c *RootCmd) validateConfig() error {
	if c.ClientID == "" {
		return errors.New("client-id is required")
	}
	if c.ClientSecret == "" {
		return errors.New("client-secret is required")
	}
	if c.Transport != transportHTTP && c.Transport != transportStdio {
		return fmt.Errorf("invalid transport %q, use http or stdio", c.Transport)
	}
	if !store.ParseStoreType(c.StateStore).IsValid() {
		return fmt.Errorf("invalid state store %q, use memory or redis", c.StateStore)
	}
	return nil
}

func (c *RootCmd) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	host := c.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, c.Port)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (c *RootCmd) Run(cobraCmd *cobra.Command, args []string) error {
	// Initialize logger with the specified log level
	logger.NewWithLevel(c.LogLevel)
	if os.Getenv("ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := c.validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	d, err := c.durations()
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	scheme, err := api.ParseAuthScheme(c.ClickUpAuthScheme)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	storeConfig := store.Config{
		Type: store.ParseStoreType(c.StateStore),
		TTL:  d.stateTTL,
		Redis: store.RedisOptions{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		},
	}
	states, err := store.NewStore(storeConfig)
	if err != nil {
		return fmt.Errorf("failed to create state store: %w", err)
	}
	switch storeConfig.Type {
	case store.StoreTypeMemory:
		slog.Info("Using in-memory state store")
	case store.StoreTypeRedis:
		slog.Info("Using Redis state store", "addr", c.RedisAddr, "db", c.RedisDB)
	}

	broker, err := oauth.NewBroker(oauth.Config{
		ClientID:       c.ClientID,
		ClientSecret:   c.ClientSecret,
		AuthorizeURL:   c.AuthorizeURL,
		TokenURL:       c.TokenURL,
		RevokeURL:      c.RevokeURL,
		CallbackPath:   c.CallbackPath,
		Scope:          c.Scope,
		RequestTimeout: d.requestTimeout,
	}, states)
	if err != nil {
		return fmt.Errorf("failed to create oauth broker: %w", err)
	}

	registry := session.NewRegistry(nil)
	resolver := session.NewResolver(registry, broker)
	client := api.NewClient(c.ClickUpAPIURL, api.WithAuthScheme(scheme), api.WithTimeout(d.requestTimeout))

	srv, err := server.New(server.Config{
		Name:                server.DefaultName,
		Version:             version,
		BaseURL:             c.baseURL(),
		RedirectAfter:       c.RedirectAfter,
		AllowedRedirectURIs: splitList(c.AllowedRedirectURIs),
		ReadOnly:            c.ReadOnly,
		RateLimit:           c.RateLimit,
	}, broker, resolver, client)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	addr := net.JoinHostPort(c.Host, c.Port)
	httpServer := srv.HTTPServer(addr)

	m := graceful.NewManager()

	m.AddRunningJob(func(ctx context.Context) error {
		slog.Info("HTTP server listening",
			"addr", addr,
			"authorize_url", srv.AuthorizeURL(),
			"callback_url", srv.CallbackURL(),
			"transport", c.Transport,
			"read_only", c.ReadOnly,
			"clickup_auth_scheme", client.Scheme(),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "err", err)
			return err
		}
		return nil
	})
	m.AddShutdownJob(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Error("Server forced to shutdown", "err", err)
			return err
		}
		slog.Info("Server shutdown gracefully")
		return nil
	})

	if c.Transport == transportStdio {
		m.AddRunningJob(func(ctx context.Context) error {
			slog.Info("MCP stdio transport started")
			err := srv.MCP().ServeStdio(ctx, os.Stdin, os.Stdout)
			if ctx.Err() == nil {
				// The client closed stdin: stop the whole process.
				slog.Info("MCP stdio transport closed", "err", err)
				if p, perr := os.FindProcess(os.Getpid()); perr == nil {
					_ = p.Signal(os.Interrupt)
				}
			}
			return err
		})
	}

	switch s := states.(type) {
	case *store.MemoryStore:
		m.AddRunningJob(func(ctx context.Context) error {
			return s.Run(ctx, stateSweepInterval)
		})
	case *store.RedisStore:
		// Ensure Redis connection is closed on shutdown
		m.AddShutdownJob(func() error {
			s.Close()
			return nil
		})
	}

	m.AddRunningJob(func(ctx context.Context) error {
		return registry.Run(ctx, d.sweepInterval, d.maxIdle)
	})
	m.AddRunningJob(func(ctx context.Context) error {
		return srv.Limiter().Run(ctx, limiterSweepInterval)
	})

	<-m.Done()
	return nil
}

// Customize sets the command metadata shown in help output.
func (c *RootCmd) Customize(cobraCmd *cobra.Command) {
	cobraCmd.Use = "clickup-mcp"
	cobraCmd.Short = "MCP server for ClickUp tasks with OAuth2 sign-in"
	cobraCmd.Long = `clickup-mcp exposes ClickUp workspaces, lists and tasks as MCP tools.

Users sign in through ClickUp's OAuth2 flow at /authorize. The callback page
shows a session id; MCP clients send it as "Authorization: Bearer <session-id>"
on /mcp, or set MCP_SESSION_ID when using the stdio transport.

Examples:
  # Start with environment variables
  export CLICKUP_CLIENT_ID="your-client-id"
  export CLICKUP_CLIENT_SECRET="your-secret"
  clickup-mcp

  # Serve MCP over stdio, keeping the OAuth routes on :8095
  clickup-mcp --transport=stdio --client-id=... --client-secret=...

  # Share pending authorizations through Redis
  clickup-mcp --state-store=redis --redis-addr=localhost:6379

Configuration values are loaded in this order (later values override earlier ones):
  1. Default values
  2. Environment variables
  3. Command line flags`

	cobraCmd.Version = version
	cobraCmd.SilenceUsage = true
}

// Execute is the main entry point for the CLI
func Execute() error {
	rootCmd := &RootCmd{}
	cobraCmd := cmd.Command(rootCmd)
	return cobraCmd.Execute()
}
