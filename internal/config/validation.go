package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.validateFlow(); err != nil {
		return fmt.Errorf("flow config: %w", err)
	}

	if err := c.validateProvider(); err != nil {
		return fmt.Errorf("provider config: %w", err)
	}

	if err := c.validateUserAgent(); err != nil {
		return fmt.Errorf("user_agent config: %w", err)
	}

	if err := c.validateCache(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

func (c *Config) validateFlow() error {
	if err := validateRedirectURL("redirect_url", c.Flow.RedirectURL); err != nil {
		return err
	}

	if c.Flow.PostLogoutRedirectURL != "" {
		if err := validateRedirectURL("post_logout_redirect_url", c.Flow.PostLogoutRedirectURL); err != nil {
			return err
		}
	}

	if c.Flow.Timeout < time.Second {
		return fmt.Errorf("timeout must be at least 1s")
	}

	return nil
}

func validateRedirectURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("invalid %s: %q has no scheme", field, raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid %s: must not carry a query or fragment", field)
	}

	return nil
}

func (c *Config) validateProvider() error {
	p := c.Provider

	if p.ID == "" {
		return fmt.Errorf("id is required")
	}

	switch p.Type {
	case "oidc":
		return validateOIDCConfig(p.ID, p.OIDC)
	case "saml":
		return validateSAMLConfig(p.ID, p.SAML)
	default:
		return fmt.Errorf("provider %s: invalid type: %s (must be oidc or saml)", p.ID, p.Type)
	}
}

func validateOIDCConfig(providerID string, cfg *OIDCConfig) error {
	if cfg == nil {
		return fmt.Errorf("provider %s: oidc config is required", providerID)
	}

	if cfg.Issuer == "" {
		if cfg.Endpoints == nil || cfg.Endpoints.AuthorizationEndpoint == "" || cfg.Endpoints.TokenEndpoint == "" {
			return fmt.Errorf("provider %s: you must provide either an issuer or service endpoints", providerID)
		}
	}

	if cfg.Issuer != "" {
		if err := validateAbsoluteURL(cfg.Issuer); err != nil {
			return fmt.Errorf("provider %s: invalid issuer URL: %w", providerID, err)
		}
	}

	if cfg.Endpoints != nil {
		for name, endpoint := range map[string]string{
			"authorization_endpoint": cfg.Endpoints.AuthorizationEndpoint,
			"token_endpoint":         cfg.Endpoints.TokenEndpoint,
			"revocation_endpoint":    cfg.Endpoints.RevocationEndpoint,
			"end_session_endpoint":   cfg.Endpoints.EndSessionEndpoint,
			"jwks_uri":               cfg.Endpoints.JWKSURI,
		} {
			if endpoint == "" {
				continue
			}
			if err := validateAbsoluteURL(endpoint); err != nil {
				return fmt.Errorf("provider %s: invalid %s: %w", providerID, name, err)
			}
		}
	}

	if cfg.ClientID == "" {
		return fmt.Errorf("provider %s: client_id is required", providerID)
	}

	if len(cfg.Scopes) == 0 {
		return fmt.Errorf("provider %s: at least one scope is required", providerID)
	}

	if cfg.UseNonce != nil && *cfg.UseNonce && !slices.Contains(cfg.Scopes, "openid") {
		return fmt.Errorf("provider %s: 'openid' scope is required when use_nonce is enabled", providerID)
	}

	method := strings.ToLower(cfg.ClientAuthMethod)
	if method != "none" && method != "basic" && method != "post" {
		return fmt.Errorf("provider %s: invalid client_auth_method: %s (must be basic, post, or none)", providerID, cfg.ClientAuthMethod)
	}
	if method != "none" && cfg.ClientSecret == "" {
		return fmt.Errorf("provider %s: client_secret is required for client_auth_method %s", providerID, method)
	}

	if cfg.HTTPTimeout <= 0 {
		return fmt.Errorf("provider %s: http_timeout must be positive", providerID)
	}

	for field, headers := range map[string]map[string]string{
		"additional_headers": cfg.AdditionalHeaders,
		"token_headers":      cfg.TokenHeaders,
	} {
		for name := range headers {
			if name == "" || strings.ContainsAny(name, " :\r\n") {
				return fmt.Errorf("provider %s: invalid header name in %s: %q", providerID, field, name)
			}
		}
	}

	return nil
}

func validateAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}

func validateSAMLConfig(providerID string, cfg *SAMLConfig) error {
	if cfg == nil {
		return fmt.Errorf("provider %s: saml config is required", providerID)
	}

	if cfg.IDPMetadataURL == "" && cfg.IDPMetadataXML == "" {
		return fmt.Errorf("provider %s: either idp_metadata_url or idp_metadata_xml is required", providerID)
	}

	if cfg.IDPMetadataURL != "" {
		if err := validateAbsoluteURL(cfg.IDPMetadataURL); err != nil {
			return fmt.Errorf("provider %s: invalid idp_metadata_url: %w", providerID, err)
		}
	}

	if cfg.SPEntityID == "" {
		return fmt.Errorf("provider %s: sp_entity_id is required", providerID)
	}

	if err := validateAbsoluteURL(cfg.ACSURL); err != nil {
		return fmt.Errorf("provider %s: invalid acs_url: %w", providerID, err)
	}
	if err := validateRedirectURL("acs_url", cfg.ACSURL); err != nil {
		return fmt.Errorf("provider %s: %w", providerID, err)
	}

	if cfg.CertificatePath == "" {
		return fmt.Errorf("provider %s: certificate_path is required", providerID)
	}

	if cfg.PrivateKeyPath == "" {
		return fmt.Errorf("provider %s: private_key_path is required", providerID)
	}

	return nil
}

func (c *Config) validateUserAgent() error {
	switch c.UserAgent.Type {
	case "browser", "print":
		return nil
	case "command":
		if len(c.UserAgent.Command) == 0 {
			return fmt.Errorf("command is required when type is command")
		}
		return nil
	default:
		return fmt.Errorf("invalid type: %s (must be browser, command, or print)", c.UserAgent.Type)
	}
}

func (c *Config) validateCache() error {
	if c.Cache.Type != "memory" && c.Cache.Type != "redis" {
		return fmt.Errorf("invalid type: %s (must be memory or redis)", c.Cache.Type)
	}

	if c.Cache.Type == "redis" {
		if c.Cache.Redis == nil {
			return fmt.Errorf("redis config is required when type is redis")
		}
		if c.Cache.Redis.Address == "" {
			return fmt.Errorf("redis address is required")
		}
	}

	return nil
}

func (c *Config) validateLogging() error {
	level := strings.ToLower(c.Logging.Level)
	if level != "debug" && level != "info" && level != "warn" && level != "error" {
		return fmt.Errorf("invalid level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	format := strings.ToLower(c.Logging.Format)
	if format != "json" && format != "text" {
		return fmt.Errorf("invalid format: %s (must be json or text)", c.Logging.Format)
	}

	output := strings.ToLower(c.Logging.Output)
	if output != "stdout" && output != "stderr" {
		return fmt.Errorf("invalid output: %s (must be stdout or stderr)", c.Logging.Output)
	}

	return nil
}
