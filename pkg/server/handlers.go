package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-training/clickup-mcp/pkg/core"
	"github.com/go-training/clickup-mcp/pkg/oauth"
	"github.com/go-training/clickup-mcp/pkg/session"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/client/transport"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": s.registry.Len(),
	})
}

func (s *Server) handleProtectedResource(c *gin.Context) {
	c.JSON(http.StatusOK, &transport.OAuthProtectedResource{
		AuthorizationServers: []string{s.cfg.BaseURL},
		Resource:             s.cfg.BaseURL + "/mcp",
		ResourceName:         s.cfg.Name,
	})
}

// handleAuthorize starts the authorization-code flow and redirects the user agent.
// A bearer session id re-authorizes that session instead of creating a new one.
func (s *Server) handleAuthorize(c *gin.Context) {
	ctx := c.Request.Context()
	logger := core.LoggerFromCtx(ctx)

	redirectURI := c.DefaultQuery("redirect_uri", s.CallbackURL())
	if !isValidRedirectURI(redirectURI, s.allowedRedirects) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "redirect_uri is not allowed"})
		return
	}

	// Only the bearer credential binds the flow to an existing session; a
	// session_id query parameter must match it.
	sessionID := core.SessionIDFromRequest(c.Request)
	if q := c.Query("session_id"); q != "" && q != sessionID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "session_id must be sent as the bearer credential"})
		return
	}
	if sessionID != "" {
		if _, err := s.registry.Get(sessionID); err != nil {
			c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "unknown session"})
			return
		}
	}

	resp, err := s.broker.CreateAuthorizationURL(ctx, oauth.AuthorizeRequest{
		RedirectURI: redirectURI,
		SessionID:   sessionID,
	})
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidRedirectURI) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "redirect_uri must be an absolute url"})
			return
		}
		logger.Error("Failed to create authorization url", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	logger.Info("Authorization started", "session_bound", sessionID != "")
	c.Redirect(http.StatusFound, resp.URL)
}

// handleCallback completes the flow: it exchanges the code, binds the token
// to a session and shows the session id to the user.
func (s *Server) handleCallback(c *gin.Context) {
	ctx := c.Request.Context()
	logger := core.LoggerFromCtx(ctx)
	state := c.Query("state")

	if upstream := c.Query("error"); upstream != "" {
		if state != "" {
			// Consume the pending state so it cannot be reused.
			_, _ = s.broker.ValidateState(ctx, state)
		}
		logger.Warn("Authorization was not granted",
			"error", upstream,
			"error_description", c.Query("error_description"),
		)
		s.renderError(c, http.StatusBadRequest, "Authorization was not granted.")
		return
	}

	code := c.Query("code")
	if code == "" || state == "" {
		s.renderError(c, http.StatusBadRequest, "The callback is missing the code or state parameter.")
		return
	}

	result, err := s.broker.ExchangeCodeForToken(ctx, code, state)
	if err != nil {
		var tokenErr *oauth.TokenError
		switch {
		case errors.Is(err, oauth.ErrInvalidState):
			logger.Warn("Callback with invalid or expired state")
			s.renderError(c, http.StatusBadRequest, "This sign-in link has expired or was already used.")
		case errors.As(err, &tokenErr):
			logger.Error("Token exchange failed",
				"status", tokenErr.StatusCode,
				"code", tokenErr.Code,
				"detail", tokenErr.Detail,
			)
			s.renderError(c, http.StatusBadGateway, "The authorization server did not issue a token.")
		default:
			logger.Error("Token exchange failed", "error", err)
			s.renderError(c, http.StatusBadGateway, "The authorization server did not issue a token.")
		}
		return
	}

	binding := s.lookupBinding(ctx, result.Token.AccessToken)
	sess, err := s.bind(ctx, result.Pending.SessionID, result.Token, binding)
	if err != nil {
		logger.Error("Failed to bind token to session", "error", err)
		s.renderError(c, http.StatusInternalServerError, "The session could not be created.")
		return
	}

	logger.Info("Session authenticated",
		"session", core.MaskSecret(sess.ID),
		"workspace_id", sess.WorkspaceID,
		"user_id", sess.UserID,
	)

	if s.cfg.RedirectAfter != "" {
		target, err := url.Parse(s.cfg.RedirectAfter)
		if err == nil {
			q := target.Query()
			q.Set("session_id", sess.ID)
			target.RawQuery = q.Encode()
			c.Redirect(http.StatusFound, target.String())
			return
		}
		logger.Warn("Invalid redirect_after url", "error", err)
	}

	c.HTML(http.StatusOK, "success", gin.H{
		"SessionID":   sess.ID,
		"MCPURL":      s.cfg.BaseURL + "/mcp",
		"WorkspaceID": sess.WorkspaceID,
		"Reattached":  sess.ID == result.Pending.SessionID,
	})
}

// handleLogout revokes the bearer session's tokens and removes the session.
func (s *Server) handleLogout(c *gin.Context) {
	id := core.SessionIDFromRequest(c.Request)
	if id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctx := core.WithSessionID(c.Request.Context(), id)
	if err := s.resolver.Logout(ctx, id); err != nil {
		if errors.Is(err, session.ErrUnknownSession) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
			return
		}
		core.LoggerFromCtx(ctx).Error("Logout failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	core.LoggerFromCtx(ctx).Info("Session logged out")
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

// lookupBinding asks ClickUp who the token belongs to. Failures leave the
// binding empty; the session is still usable.
func (s *Server) lookupBinding(ctx context.Context, accessToken string) core.Binding {
	logger := core.LoggerFromCtx(ctx)
	var binding core.Binding

	if user, err := s.clickup.GetAuthorizedUser(ctx, accessToken); err != nil {
		logger.Warn("Failed to look up the authorized user", "error", err)
	} else {
		binding.UserID = strconv.FormatInt(user.ID, 10)
	}

	if workspaces, err := s.clickup.GetWorkspaces(ctx, accessToken); err != nil {
		logger.Warn("Failed to look up workspaces", "error", err)
	} else if len(workspaces) > 0 {
		binding.WorkspaceID = workspaces[0].ID
	}

	return binding
}

// bind attaches token to the session the flow was started for, or to a new
// session when none was requested or it no longer exists.
func (s *Server) bind(ctx context.Context, sessionID string, token *core.TokenRecord, binding core.Binding) (*core.Session, error) {
	if sessionID != "" {
		err := s.registry.AttachToken(sessionID, token, binding)
		switch {
		case err == nil:
			return s.registry.Get(sessionID)
		case errors.Is(err, session.ErrStaleToken):
			core.LoggerFromCtx(ctx).Warn("A newer token is already attached", "session", core.MaskSecret(sessionID))
			return s.registry.Get(sessionID)
		case !errors.Is(err, session.ErrUnknownSession):
			return nil, err
		}
		core.LoggerFromCtx(ctx).Info("Requested session is gone, creating a new one")
	}

	sess := s.registry.Create()
	if err := s.registry.AttachToken(sess.ID, token, binding); err != nil {
		return nil, err
	}
	return s.registry.Get(sess.ID)
}

func (s *Server) renderError(c *gin.Context, status int, message string) {
	c.HTML(status, "error", gin.H{
		"Message":      message,
		"AuthorizeURL": s.AuthorizeURL(),
	})
}
