// Package server wires the OAuth routes, the session registry and the MCP
// transports into one gin router.
package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	api "github.com/go-training/clickup-mcp/pkg/clickup"
	"github.com/go-training/clickup-mcp/pkg/oauth"
	"github.com/go-training/clickup-mcp/pkg/operation/clickup"
	"github.com/go-training/clickup-mcp/pkg/session"

	ginslog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"
)

const (
	// DefaultName is the MCP server name reported to clients.
	DefaultName = "clickup-mcp"
	// DefaultRateLimit is the per-IP request rate on the OAuth routes.
	DefaultRateLimit = 10

	protectedResourcePath = "/.well-known/oauth-protected-resource"
)

// ErrMissingBaseURL is returned when Config.BaseURL is empty or not absolute.
var ErrMissingBaseURL = errors.New("base url must be an absolute http(s) url")

// Config holds the HTTP surface settings.
type Config struct {
	Name    string
	Version string
	// BaseURL is the externally reachable origin, e.g. http://localhost:8095.
	BaseURL string
	// RedirectAfter, when set, receives the browser after a successful
	// callback with ?session_id= appended instead of the HTML page.
	RedirectAfter string
	// AllowedRedirectURIs extends the callback URL as accepted redirect_uri values.
	AllowedRedirectURIs []string
	// ReadOnly hides the tools that change ClickUp data.
	ReadOnly bool
	// RateLimit is requests per second per client IP on the OAuth routes; 0 disables it.
	RateLimit int
}

// Server is the orchestrator behind every HTTP route.
type Server struct {
	cfg      Config
	broker   *oauth.Broker
	resolver *session.Resolver
	registry *session.Registry
	clickup  *api.Client
	mcp      *MCPServer
	limiter  *RateLimiter

	allowedRedirects []string
}

// New builds a Server. The broker's callback path decides where the
// authorization server redirects back to.
func New(cfg Config, broker *oauth.Broker, resolver *session.Resolver, client *api.Client) (*Server, error) {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrMissingBaseURL
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		cfg:      cfg,
		broker:   broker,
		resolver: resolver,
		registry: resolver.Registry(),
		clickup:  client,
		limiter:  NewRateLimiter(cfg.RateLimit, cfg.RateLimit*2),
	}
	s.allowedRedirects = append([]string{s.CallbackURL()}, cfg.AllowedRedirectURIs...)
	s.mcp = NewMCPServer(cfg.Name, cfg.Version, clickup.NewHandler(resolver, client, s.AuthorizeURL()), cfg.ReadOnly)
	return s, nil
}

// AuthorizeURL is where users start the sign-in flow.
func (s *Server) AuthorizeURL() string {
	return s.cfg.BaseURL + "/authorize"
}

// CallbackURL is the default redirect_uri registered with the authorization server.
func (s *Server) CallbackURL() string {
	return s.cfg.BaseURL + s.broker.Config().CallbackPath
}

// MCP returns the MCP server for the stdio transport.
func (s *Server) MCP() *MCPServer {
	return s.mcp
}

// Limiter returns the OAuth route rate limiter so its cleanup can be scheduled.
func (s *Server) Limiter() *RateLimiter {
	return s.limiter
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(requestIDMiddleware, ginslog.SetLogger(), gin.Recovery(), corsMiddleware())
	router.SetHTMLTemplate(pages)

	router.GET("/healthz", s.handleHealth)
	router.GET(protectedResourcePath, s.handleProtectedResource)

	flow := router.Group("", rateLimitMiddleware(s.limiter))
	flow.GET("/authorize", s.handleAuthorize)
	flow.GET(s.broker.Config().CallbackPath, s.handleCallback)
	flow.POST("/logout", s.handleLogout)

	// One streamable server for all methods so MCP sessions are shared.
	mcpHandler := gin.WrapH(s.mcp.ServeHTTP())
	router.POST("/mcp", s.sessionAuthMiddleware, mcpHandler)
	router.GET("/mcp", s.sessionAuthMiddleware, mcpHandler)
	router.DELETE("/mcp", s.sessionAuthMiddleware, mcpHandler)

	return router
}

// HTTPServer returns an http.Server for addr serving Router.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:        addr,
		Handler:     s.Router(),
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: GET /mcp holds an event stream open.
		IdleTimeout: 60 * time.Second,
	}
}

func isValidRedirectURI(redirectURI string, allowedURIs []string) bool {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return false
	}

	for _, allowed := range allowedURIs {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}

		if u.Scheme == allowedURL.Scheme &&
			u.Host == allowedURL.Host &&
			strings.HasPrefix(u.Path, allowedURL.Path) {
			return true
		}
	}

	return false
}
