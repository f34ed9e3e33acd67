package oauth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	// DefaultAuthorizeURL is ClickUp's consent page.
	DefaultAuthorizeURL = "https://app.clickup.com/api"
	// DefaultTokenURL is ClickUp's token endpoint.
	DefaultTokenURL = "https://api.clickup.com/api/v2/oauth/token"
	// DefaultCallbackPath is where the authorization server redirects back to.
	DefaultCallbackPath = "/callback"
	// DefaultRequestTimeout bounds every call to the authorization server.
	DefaultRequestTimeout = 30 * time.Second
)

// Config is the process-wide OAuth2 client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthorizeURL string
	TokenURL     string
	// RevokeURL is optional; revocation is skipped when empty.
	RevokeURL    string
	CallbackPath string
	Scope        string
	// AuthStyle selects how client credentials reach the token endpoint.
	// ClickUp expects them as form parameters.
	AuthStyle      oauth2.AuthStyle
	RequestTimeout time.Duration
}

// WithDefaults fills the unset fields with ClickUp defaults.
func (c Config) WithDefaults() Config {
	if c.AuthorizeURL == "" {
		c.AuthorizeURL = DefaultAuthorizeURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.CallbackPath == "" {
		c.CallbackPath = DefaultCallbackPath
	}
	if !strings.HasPrefix(c.CallbackPath, "/") {
		c.CallbackPath = "/" + c.CallbackPath
	}
	if c.AuthStyle == oauth2.AuthStyleAutoDetect {
		c.AuthStyle = oauth2.AuthStyleInParams
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	return c
}

// Validate checks that the configuration can drive a full authorization flow.
func (c Config) Validate() error {
	var errs []error
	if c.ClientID == "" {
		errs = append(errs, errors.New("client id is required"))
	}
	if c.ClientSecret == "" {
		errs = append(errs, errors.New("client secret is required"))
	}
	if err := validateAbsoluteURL(c.AuthorizeURL); err != nil {
		errs = append(errs, fmt.Errorf("authorize url: %w", err))
	}
	if err := validateAbsoluteURL(c.TokenURL); err != nil {
		errs = append(errs, fmt.Errorf("token url: %w", err))
	}
	if c.RevokeURL != "" {
		if err := validateAbsoluteURL(c.RevokeURL); err != nil {
			errs = append(errs, fmt.Errorf("revoke url: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c Config) scopes() []string {
	return strings.Fields(strings.ReplaceAll(c.Scope, ",", " "))
}

func (c Config) oauth2Config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.AuthorizeURL,
			TokenURL:  c.TokenURL,
			AuthStyle: c.AuthStyle,
		},
		RedirectURL: redirectURI,
		Scopes:      c.scopes(),
	}
}

func validateAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}
