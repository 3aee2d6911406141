package auth

import "time"

// AuthRedirect is a request URI ready for the user-agent. Attachment is
// stored in the cache for the lifetime of the flow and handed back to the
// provider on completion.
type AuthRedirect struct {
	URL        string
	Attachment []byte
}

type AuthorizeRequest struct {
	// Scopes overrides the configured scopes when set.
	Scopes               []string
	Prompt               string
	LoginHint            string
	AdditionalParameters map[string]string
	Timeout              time.Duration
}

type LogoutRequest struct {
	IDToken               string
	PostLogoutRedirectURL string
	Timeout               time.Duration
}

type RevokeRequest struct {
	Token         string
	TokenTypeHint string
	// SendClientID adds client_id to the form, for public clients.
	SendClientID bool
	// IncludeBasicAuth authenticates with the client secret.
	IncludeBasicAuth bool
}

// FlowState is the OIDC attachment kept across the redirect.
type FlowState struct {
	ProviderID   string    `json:"provider_id"`
	CodeVerifier string    `json:"code_verifier,omitempty"`
	Nonce        string    `json:"nonce,omitempty"`
	RedirectURL  string    `json:"redirect_url"`
	CreatedAt    time.Time `json:"created_at"`
}

// SAMLRequest is the SAML attachment kept across the redirect.
type SAMLRequest struct {
	ID         string    `json:"id"`
	ProviderID string    `json:"provider_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Grant is the outcome of a completed authorization. Which fields are set
// depends on the provider and on whether the code was exchanged.
type Grant struct {
	ProviderID   string `json:"provider_id"`
	ProviderType string `json:"provider_type"`

	AccessToken       string    `json:"access_token,omitempty"`
	AccessTokenExpiry time.Time `json:"access_token_expiry,omitempty"`
	RefreshToken      string    `json:"refresh_token,omitempty"`
	IDToken           string    `json:"id_token,omitempty"`
	TokenType         string    `json:"token_type,omitempty"`
	Scopes            []string  `json:"scopes,omitempty"`

	// TokenAdditionalParameters are the non-standard members of the token
	// response.
	TokenAdditionalParameters map[string]string `json:"token_additional_parameters,omitempty"`

	AuthorizationCode             string            `json:"authorization_code,omitempty"`
	CodeVerifier                  string            `json:"code_verifier,omitempty"`
	AuthorizeAdditionalParameters map[string]string `json:"authorize_additional_parameters,omitempty"`

	Claims    map[string]interface{} `json:"claims,omitempty"`
	Assertion string                 `json:"assertion,omitempty"`
}

type EndSessionResult struct {
	IDTokenHint           string `json:"id_token_hint,omitempty"`
	PostLogoutRedirectURI string `json:"post_logout_redirect_uri"`
	State                 string `json:"state"`
}
