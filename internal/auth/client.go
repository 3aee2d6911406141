// Package auth runs provider-specific authorization flows on top of the flow
// manager.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcogenualdo/sso-relay/internal/cache"
	"github.com/marcogenualdo/sso-relay/internal/flow"
)

// attachmentGrace keeps an attachment alive a little past its flow deadline
// so a redirect that wins at the last moment still finds it.
const attachmentGrace = 30 * time.Second

type Client struct {
	manager  *flow.Manager
	provider Provider
	cache    cache.Cache
	logger   *slog.Logger
}

func NewClient(manager *flow.Manager, provider Provider, c cache.Cache, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		manager:  manager,
		provider: provider,
		cache:    c,
		logger:   logger.With("provider", provider.ID()),
	}
}

func (c *Client) Provider() Provider {
	return c.provider
}

// Authorize presents the provider's authorization request, waits for the
// matching redirect and completes it.
func (c *Client) Authorize(ctx context.Context, req AuthorizeRequest) (*Grant, error) {
	var redirectURI string
	if rt, ok := c.provider.(RedirectTarget); ok {
		redirectURI = rt.RedirectURL()
	}

	attachment, result, err := c.run(ctx, redirectURI, req.Timeout, func(ctx context.Context, state string) (*AuthRedirect, error) {
		return c.provider.AuthorizationRequest(ctx, state, &req)
	})
	if err != nil {
		return nil, err
	}

	grant, err := c.provider.CompleteAuthorization(ctx, attachment, result)
	if err != nil {
		c.logger.Error("failed to complete authorization", "error", err)
		return nil, err
	}
	grant.ProviderID = c.provider.ID()
	grant.ProviderType = c.provider.Type()

	c.logger.Info("authorization completed", "exchanged", grant.AccessToken != "")
	return grant, nil
}

// Logout sends the user to the provider's end-session endpoint and waits for
// the post-logout redirect.
func (c *Client) Logout(ctx context.Context, req LogoutRequest) (*EndSessionResult, error) {
	esp, ok := c.provider.(EndSessionProvider)
	if !ok {
		return nil, fmt.Errorf("end session: %w", ErrUnsupported)
	}
	if req.PostLogoutRedirectURL == "" {
		return nil, errors.New("post logout redirect URL is required")
	}
	if !c.manager.Registered(req.PostLogoutRedirectURL) {
		return nil, fmt.Errorf("post logout redirect URL %s: %w", req.PostLogoutRedirectURL, flow.ErrUnregisteredRedirect)
	}

	attachment, result, err := c.run(ctx, req.PostLogoutRedirectURL, req.Timeout, func(ctx context.Context, state string) (*AuthRedirect, error) {
		return esp.EndSessionRequest(ctx, state, &req)
	})
	if err != nil {
		return nil, err
	}

	return esp.CompleteEndSession(ctx, attachment, result)
}

func (c *Client) Revoke(ctx context.Context, req RevokeRequest) error {
	r, ok := c.provider.(Revoker)
	if !ok {
		return fmt.Errorf("revoke: %w", ErrUnsupported)
	}
	if req.Token == "" {
		return errors.New("token is required")
	}
	if err := r.Revoke(ctx, &req); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	c.logger.Info("token revoked", "token_type_hint", req.TokenTypeHint)
	return nil
}

type requestFunc func(ctx context.Context, state string) (*AuthRedirect, error)

// run drives one flow. The attachment is stored under the correlation token
// before the user-agent is launched and taken back atomically once the flow
// resolves, so it is consumed at most once.
func (c *Client) run(ctx context.Context, redirectURI string, timeout time.Duration, build requestFunc) ([]byte, *flow.Result, error) {
	var key string

	flowReq := flow.Request{RedirectURI: redirectURI, Timeout: timeout}
	ttl := c.manager.Timeout(flowReq) + attachmentGrace
	flowReq.Build = func(ctx context.Context, state string) (string, error) {
		redirect, err := build(ctx, state)
		if err != nil {
			return "", err
		}

		key = attachmentKey(c.provider.Type(), state)
		if err := c.cache.Set(ctx, key, redirect.Attachment, ttl); err != nil {
			return "", fmt.Errorf("failed to store flow attachment: %w", err)
		}
		return redirect.URL, nil
	}

	f, err := c.manager.Begin(ctx, flowReq)
	if err != nil {
		c.discard(key)
		return nil, nil, err
	}

	result, err := f.Wait(ctx)
	if err != nil {
		c.discard(key)
		return nil, nil, err
	}

	attachment, err := c.cache.Take(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, nil, ErrAttachmentMissing
		}
		return nil, nil, fmt.Errorf("failed to load flow attachment: %w", err)
	}

	return attachment, result, nil
}

// discard drops an attachment whose flow will never complete. The caller's
// context may already be done.
func (c *Client) discard(key string) {
	if key == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.cache.Delete(ctx, key); err != nil {
		c.logger.Warn("failed to delete flow attachment", "error", err)
	}
}

func attachmentKey(providerType, state string) string {
	return providerType + ":state:" + state
}
