package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/marcogenualdo/sso-relay/internal/auth"
	"github.com/marcogenualdo/sso-relay/internal/flow"
)

type endSessionState struct {
	IDTokenHint           string `json:"id_token_hint,omitempty"`
	PostLogoutRedirectURI string `json:"post_logout_redirect_uri"`
}

func (p *Provider) EndSessionRequest(ctx context.Context, state string, req *auth.LogoutRequest) (*auth.AuthRedirect, error) {
	if p.endSessionEndpoint == "" {
		return nil, fmt.Errorf("end session: %w", auth.ErrUnsupported)
	}

	params := url.Values{}
	params.Set("post_logout_redirect_uri", req.PostLogoutRedirectURL)
	if req.IDToken != "" {
		params.Set("id_token_hint", req.IDToken)
	} else {
		params.Set("client_id", p.cfg.ClientID)
	}

	uri, err := flow.BuildRequestURI(p.endSessionEndpoint, params, state)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(&endSessionState{
		IDTokenHint:           req.IDToken,
		PostLogoutRedirectURI: req.PostLogoutRedirectURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}

	return &auth.AuthRedirect{URL: uri, Attachment: data}, nil
}

func (p *Provider) CompleteEndSession(ctx context.Context, attachment []byte, result *flow.Result) (*auth.EndSessionResult, error) {
	var state endSessionState
	if err := json.Unmarshal(attachment, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return &auth.EndSessionResult{
		IDTokenHint:           state.IDTokenHint,
		PostLogoutRedirectURI: state.PostLogoutRedirectURI,
		State:                 result.Token,
	}, nil
}

// Revoke calls the RFC 7009 revocation endpoint.
func (p *Provider) Revoke(ctx context.Context, req *auth.RevokeRequest) error {
	if p.revocationEndpoint == "" {
		return fmt.Errorf("revoke: %w", auth.ErrUnsupported)
	}

	form := url.Values{"token": {req.Token}}
	if req.TokenTypeHint != "" {
		form.Set("token_type_hint", req.TokenTypeHint)
	}
	if req.SendClientID {
		form.Set("client_id", p.cfg.ClientID)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revocationEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create revocation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if req.IncludeBasicAuth {
		httpReq.SetBasicAuth(url.QueryEscape(p.cfg.ClientID), url.QueryEscape(p.cfg.ClientSecret))
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call revocation endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &auth.RevocationError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return nil
}
