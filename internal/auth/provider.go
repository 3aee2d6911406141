package auth

import (
	"context"

	"github.com/marcogenualdo/sso-relay/internal/flow"
)

// Provider builds authorization requests for one identity provider and turns
// the redirect that answers them into a Grant.
type Provider interface {
	ID() string
	Type() string

	// AuthorizationRequest returns the request URI for the flow correlated by
	// state, plus whatever the provider needs to keep until the redirect.
	AuthorizationRequest(ctx context.Context, state string, req *AuthorizeRequest) (*AuthRedirect, error)
	CompleteAuthorization(ctx context.Context, attachment []byte, result *flow.Result) (*Grant, error)
}

// RedirectTarget is implemented by providers whose authorization responses
// come back on one fixed redirect URI.
type RedirectTarget interface {
	RedirectURL() string
}

// EndSessionProvider is implemented by providers with an end-session endpoint.
type EndSessionProvider interface {
	EndSessionRequest(ctx context.Context, state string, req *LogoutRequest) (*AuthRedirect, error)
	CompleteEndSession(ctx context.Context, attachment []byte, result *flow.Result) (*EndSessionResult, error)
}

// Revoker is implemented by providers with an RFC 7009 revocation endpoint.
type Revoker interface {
	Revoke(ctx context.Context, req *RevokeRequest) error
}
