package oauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-training/clickup-mcp/pkg/core"
)

// Token type hints from RFC 7009.
const (
	HintAccessToken  = "access_token"
	HintRefreshToken = "refresh_token"
)

// RevokeToken asks the authorization server to invalidate token. Failures come
// back as ErrTokenRevocationFailed for the caller to log; they must not block
// local session teardown. Without a configured revocation endpoint this is a no-op.
func (b *Broker) RevokeToken(ctx context.Context, token, hint string) (err error) {
	ctx, span := b.telemetry.start(ctx, "oauth.revoke")
	defer func() { b.telemetry.finish(ctx, span, b.telemetry.revocations, err) }()

	logger := core.LoggerFromCtx(ctx)

	if b.cfg.RevokeURL == "" {
		logger.Debug("No revocation endpoint configured, skipping revoke")
		return nil
	}
	if token == "" {
		return nil
	}

	form := url.Values{}
	form.Set("token", token)
	if hint != "" {
		form.Set("token_type_hint", hint)
	}
	form.Set("client_id", b.cfg.ClientID)
	form.Set("client_secret", b.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return &TokenError{Op: "revoke", kind: ErrTokenRevocationFailed, cause: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return &TokenError{Op: "revoke", kind: ErrTokenRevocationFailed, cause: fmt.Errorf("revocation request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Debug("Token revocation rejected", "status", resp.StatusCode, "detail", string(body))
		return &TokenError{
			Op:         "revoke",
			StatusCode: resp.StatusCode,
			Detail:     string(body),
			kind:       ErrTokenRevocationFailed,
		}
	}

	logger.Info("Token revoked", "hint", hint)
	return nil
}
