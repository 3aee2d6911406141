// Package oidc implements the authorization code flow against an OpenID
// Connect provider, with PKCE and nonce by default.
package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/marcogenualdo/sso-relay/internal/auth"
	"github.com/marcogenualdo/sso-relay/internal/config"
	"github.com/marcogenualdo/sso-relay/internal/flow"
	"github.com/marcogenualdo/sso-relay/pkg/security"
)

const nonceBytes = 16

// discoveryClaims are the metadata fields go-oidc does not surface itself.
type discoveryClaims struct {
	RevocationEndpoint string `json:"revocation_endpoint"`
	EndSessionEndpoint string `json:"end_session_endpoint"`
}

type Provider struct {
	id          string
	cfg         config.OIDCConfig
	redirectURL string
	logger      *slog.Logger
	httpClient  *http.Client
	transport   *headerTransport

	issuer             string
	oauth2Config       oauth2.Config
	verifier           *oidc.IDTokenVerifier
	revocationEndpoint string
	endSessionEndpoint string
}

// NewProvider runs issuer discovery, or uses the static service
// configuration when one is given. Without a JWKS URI static configurations
// skip ID token verification.
func NewProvider(ctx context.Context, providerCfg config.ProviderConfig, redirectURL string, logger *slog.Logger) (*Provider, error) {
	if providerCfg.OIDC == nil {
		return nil, fmt.Errorf("OIDC config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg := *providerCfg.OIDC

	// TokenURL is filled in once the endpoints are known.
	transport := &headerTransport{
		base:         http.DefaultTransport,
		headers:      cfg.AdditionalHeaders,
		tokenHeaders: cfg.TokenHeaders,
	}

	p := &Provider{
		id:          providerCfg.ID,
		cfg:         cfg,
		redirectURL: redirectURL,
		logger:      logger.With("provider", providerCfg.ID),
		httpClient:  &http.Client{Timeout: cfg.HTTPTimeout, Transport: transport},
		transport:   transport,
		issuer:      cfg.Issuer,
	}
	ctx = oidc.ClientContext(ctx, p.httpClient)

	var (
		endpoint oauth2.Endpoint
		provider *oidc.Provider
	)
	if cfg.Endpoints != nil {
		endpoint = oauth2.Endpoint{
			AuthURL:  cfg.Endpoints.AuthorizationEndpoint,
			TokenURL: cfg.Endpoints.TokenEndpoint,
		}
		p.revocationEndpoint = cfg.Endpoints.RevocationEndpoint
		p.endSessionEndpoint = cfg.Endpoints.EndSessionEndpoint

		if cfg.Endpoints.JWKSURI != "" {
			provider = (&oidc.ProviderConfig{
				IssuerURL: cfg.Issuer,
				AuthURL:   cfg.Endpoints.AuthorizationEndpoint,
				TokenURL:  cfg.Endpoints.TokenEndpoint,
				JWKSURL:   cfg.Endpoints.JWKSURI,
			}).NewProvider(ctx)
		}
	} else {
		var err error
		provider, err = oidc.NewProvider(ctx, cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
		}
		endpoint = provider.Endpoint()

		var extra discoveryClaims
		if err := provider.Claims(&extra); err != nil {
			return nil, fmt.Errorf("failed to parse discovery document: %w", err)
		}
		p.revocationEndpoint = extra.RevocationEndpoint
		p.endSessionEndpoint = extra.EndSessionEndpoint
	}

	transport.tokenURL = endpoint.TokenURL

	switch cfg.ClientAuthMethod {
	case "basic":
		endpoint.AuthStyle = oauth2.AuthStyleInHeader
	default:
		endpoint.AuthStyle = oauth2.AuthStyleInParams
	}

	p.oauth2Config = oauth2.Config{
		ClientID:    cfg.ClientID,
		Endpoint:    endpoint,
		RedirectURL: redirectURL,
		Scopes:      cfg.Scopes,
	}
	if cfg.ClientAuthMethod != "none" {
		p.oauth2Config.ClientSecret = cfg.ClientSecret
	}

	if provider != nil {
		p.verifier = provider.Verifier(&oidc.Config{
			ClientID:        cfg.ClientID,
			SkipIssuerCheck: cfg.Issuer == "",
		})
	} else {
		p.logger.Warn("no JWKS URI configured, ID tokens will not be verified")
	}

	return p, nil
}

func (p *Provider) ID() string {
	return p.id
}

func (p *Provider) Type() string {
	return "oidc"
}

func (p *Provider) RedirectURL() string {
	return p.redirectURL
}

func (p *Provider) usePKCE() bool {
	return p.cfg.UsePKCE == nil || *p.cfg.UsePKCE
}

func (p *Provider) useNonce() bool {
	return p.cfg.UseNonce == nil || *p.cfg.UseNonce
}

func (p *Provider) AuthorizationRequest(ctx context.Context, state string, req *auth.AuthorizeRequest) (*auth.AuthRedirect, error) {
	cfg := p.oauth2Config
	if len(req.Scopes) > 0 {
		cfg.Scopes = req.Scopes
	}

	flowState := &auth.FlowState{
		ProviderID:  p.id,
		RedirectURL: cfg.RedirectURL,
		CreatedAt:   time.Now(),
	}

	var opts []oauth2.AuthCodeOption
	for k, v := range p.cfg.AdditionalParameters {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	for k, v := range req.AdditionalParameters {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	if req.Prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", req.Prompt))
	}
	if req.LoginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", req.LoginHint))
	}

	if p.usePKCE() {
		flowState.CodeVerifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(flowState.CodeVerifier))
	}
	if p.useNonce() {
		nonce, err := security.GenerateRandomString(nonceBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to generate nonce: %w", err)
		}
		flowState.Nonce = nonce
		opts = append(opts, oidc.Nonce(nonce))
	}

	data, err := json.Marshal(flowState)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}

	return &auth.AuthRedirect{
		URL:        cfg.AuthCodeURL(state, opts...),
		Attachment: data,
	}, nil
}

func (p *Provider) CompleteAuthorization(ctx context.Context, attachment []byte, result *flow.Result) (*auth.Grant, error) {
	var flowState auth.FlowState
	if err := json.Unmarshal(attachment, &flowState); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if flowState.ProviderID != p.id {
		return nil, fmt.Errorf("provider mismatch")
	}

	// RFC 9207: a server that sends iss must send its own.
	if iss := result.Params.Get("iss"); iss != "" && p.issuer != "" && iss != p.issuer {
		return nil, fmt.Errorf("%w: got %q", auth.ErrIssuerMismatch, iss)
	}

	code := result.Code()
	if code == "" {
		return nil, auth.ErrMissingCode
	}

	grant := &auth.Grant{
		AuthorizationCode:             code,
		CodeVerifier:                  flowState.CodeVerifier,
		AuthorizeAdditionalParameters: additionalParameters(result),
	}
	if p.cfg.SkipCodeExchange {
		return grant, nil
	}

	cfg := p.oauth2Config
	cfg.RedirectURL = flowState.RedirectURL

	var opts []oauth2.AuthCodeOption
	if flowState.CodeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(flowState.CodeVerifier))
	}

	capture := &tokenResponseCapture{base: p.httpClient.Transport, tokenURL: cfg.Endpoint.TokenURL}
	exchangeClient := &http.Client{Timeout: p.httpClient.Timeout, Transport: capture}
	token, err := cfg.Exchange(context.WithValue(ctx, oauth2.HTTPClient, exchangeClient), code, opts...)
	if err != nil {
		exchangeErr := &auth.ExchangeError{Err: err}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			exchangeErr.Code = retrieveErr.ErrorCode
			exchangeErr.Description = retrieveErr.ErrorDescription
		}
		return nil, exchangeErr
	}

	grant.AccessToken = token.AccessToken
	grant.AccessTokenExpiry = token.Expiry
	grant.RefreshToken = token.RefreshToken
	grant.TokenType = token.Type()
	grant.TokenAdditionalParameters = capture.additionalParameters()
	if scope, ok := token.Extra("scope").(string); ok && scope != "" {
		grant.Scopes = strings.Fields(scope)
	}

	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		if p.useNonce() {
			return nil, fmt.Errorf("no id_token in token response")
		}
		return grant, nil
	}
	grant.IDToken = rawIDToken

	if p.verifier == nil {
		return grant, nil
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}
	if flowState.Nonce != "" && !security.Equal(idToken.Nonce, flowState.Nonce) {
		return nil, auth.ErrNonceMismatch
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	grant.Claims = claims

	return grant, nil
}

// additionalParameters returns what the redirect carried besides the
// standard response parameters.
func additionalParameters(result *flow.Result) map[string]string {
	extra := make(map[string]string)
	for k, v := range result.Params {
		switch k {
		case "code", "state", "iss":
			continue
		}
		if len(v) > 0 {
			extra[k] = v[0]
		}
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}
