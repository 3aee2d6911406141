package config

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFlowTimeout = 300 * time.Second
	DefaultHTTPTimeout = 60 * time.Second
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Flow      FlowConfig      `yaml:"flow"`
	Provider  ProviderConfig  `yaml:"provider"`
	UserAgent UserAgentConfig `yaml:"user_agent"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig is the loopback listener receiving redirects and forwarded URIs.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type FlowConfig struct {
	RedirectURL           string        `yaml:"redirect_url"`
	PostLogoutRedirectURL string        `yaml:"post_logout_redirect_url,omitempty"`
	Timeout               time.Duration `yaml:"timeout"`
}

type ProviderConfig struct {
	ID   string      `yaml:"id"`
	Name string      `yaml:"name"`
	Type string      `yaml:"type"`
	OIDC *OIDCConfig `yaml:"oidc,omitempty"`
	SAML *SAMLConfig `yaml:"saml,omitempty"`
}

type OIDCConfig struct {
	Issuer               string            `yaml:"issuer,omitempty"`
	Endpoints            *ServiceEndpoints `yaml:"service_configuration,omitempty"`
	ClientID             string            `yaml:"client_id"`
	ClientSecret         string            `yaml:"client_secret,omitempty"`
	Scopes               []string          `yaml:"scopes"`
	AdditionalParameters map[string]string `yaml:"additional_parameters,omitempty"`
	UsePKCE              *bool             `yaml:"use_pkce,omitempty"`
	UseNonce             *bool             `yaml:"use_nonce,omitempty"`
	SkipCodeExchange     bool              `yaml:"skip_code_exchange"`
	ClientAuthMethod     string            `yaml:"client_auth_method"`
	HTTPTimeout          time.Duration     `yaml:"http_timeout"`

	// AdditionalHeaders go on every request to the provider. TokenHeaders
	// only go to the token endpoint.
	AdditionalHeaders map[string]string `yaml:"additional_headers,omitempty"`
	TokenHeaders      map[string]string `yaml:"token_headers,omitempty"`
}

// ServiceEndpoints replaces issuer discovery when the server does not publish
// an openid-configuration document.
type ServiceEndpoints struct {
	AuthorizationEndpoint string `yaml:"authorization_endpoint"`
	TokenEndpoint         string `yaml:"token_endpoint"`
	RevocationEndpoint    string `yaml:"revocation_endpoint,omitempty"`
	EndSessionEndpoint    string `yaml:"end_session_endpoint,omitempty"`
	JWKSURI               string `yaml:"jwks_uri,omitempty"`
}

type SAMLConfig struct {
	IDPMetadataURL  string `yaml:"idp_metadata_url,omitempty"`
	IDPMetadataXML  string `yaml:"idp_metadata_xml,omitempty"`
	SPEntityID      string `yaml:"sp_entity_id"`
	ACSURL          string `yaml:"acs_url,omitempty"`
	CertificatePath string `yaml:"certificate_path"`
	PrivateKeyPath  string `yaml:"private_key_path"`
}

type UserAgentConfig struct {
	Type    string   `yaml:"type"`
	Command []string `yaml:"command,omitempty"`
}

type CacheConfig struct {
	Type            string        `yaml:"type"`
	CleanupInterval time.Duration `yaml:"cleanup_interval,omitempty"`
	Redis           *RedisConfig  `yaml:"redis,omitempty"`
}

type RedisConfig struct {
	Address    string `yaml:"address"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	PoolSize   int    `yaml:"pool_size"`
	MaxRetries int    `yaml:"max_retries"`
	KeyPrefix  string `yaml:"key_prefix"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type envOverrides struct {
	ClientID      string `env:"SSO_RELAY_CLIENT_ID"`
	ClientSecret  string `env:"SSO_RELAY_CLIENT_SECRET"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	LogLevel      string `env:"SSO_RELAY_LOG_LEVEL"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load overrides from environment: %w", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8765
	}

	if c.Flow.RedirectURL == "" {
		c.Flow.RedirectURL = fmt.Sprintf("http://%s:%d/callback", c.Server.Host, c.Server.Port)
	}
	if c.Flow.Timeout == 0 {
		c.Flow.Timeout = DefaultFlowTimeout
	}

	if c.Provider.ID == "" {
		c.Provider.ID = "default"
	}
	if c.Provider.Type == "" {
		c.Provider.Type = "oidc"
	}
	if c.Provider.OIDC != nil {
		oidc := c.Provider.OIDC
		if len(oidc.Scopes) == 0 {
			oidc.Scopes = []string{"openid"}
		}
		if oidc.UsePKCE == nil {
			enabled := true
			oidc.UsePKCE = &enabled
		}
		if oidc.UseNonce == nil {
			enabled := true
			oidc.UseNonce = &enabled
		}
		if oidc.ClientAuthMethod == "" {
			oidc.ClientAuthMethod = "none"
		}
		if oidc.HTTPTimeout == 0 {
			oidc.HTTPTimeout = DefaultHTTPTimeout
		}
	}
	if c.Provider.SAML != nil && c.Provider.SAML.ACSURL == "" {
		c.Provider.SAML.ACSURL = c.Flow.RedirectURL
	}

	if c.UserAgent.Type == "" {
		c.UserAgent.Type = "browser"
	}

	if c.Cache.Type == "" {
		c.Cache.Type = "memory"
	}
	if c.Cache.CleanupInterval == 0 {
		c.Cache.CleanupInterval = time.Minute
	}
	if c.Cache.Type == "redis" && c.Cache.Redis != nil {
		if c.Cache.Redis.PoolSize == 0 {
			c.Cache.Redis.PoolSize = 10
		}
		if c.Cache.Redis.MaxRetries == 0 {
			c.Cache.Redis.MaxRetries = 3
		}
		if c.Cache.Redis.KeyPrefix == "" {
			c.Cache.Redis.KeyPrefix = "sso-relay:"
		}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stderr"
	}
}

func (c *Config) loadFromEnv() error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return err
	}

	if c.Provider.OIDC != nil {
		if overrides.ClientID != "" {
			c.Provider.OIDC.ClientID = overrides.ClientID
		}
		if overrides.ClientSecret != "" {
			c.Provider.OIDC.ClientSecret = overrides.ClientSecret
		}
	}

	if c.Cache.Type == "redis" && c.Cache.Redis != nil && overrides.RedisPassword != "" {
		c.Cache.Redis.Password = overrides.RedisPassword
	}

	if overrides.LogLevel != "" {
		c.Logging.Level = overrides.LogLevel
	}

	return nil
}

// RedirectURLs lists every redirect URI a flow may legitimately come back on.
func (c *Config) RedirectURLs() []string {
	urls := []string{c.Flow.RedirectURL}
	if c.Flow.PostLogoutRedirectURL != "" && !slices.Contains(urls, c.Flow.PostLogoutRedirectURL) {
		urls = append(urls, c.Flow.PostLogoutRedirectURL)
	}
	if c.Provider.Type == "saml" && c.Provider.SAML != nil && c.Provider.SAML.ACSURL != "" && !slices.Contains(urls, c.Provider.SAML.ACSURL) {
		urls = append(urls, c.Provider.SAML.ACSURL)
	}
	return urls
}

// ServerURL is the base URL of the loopback listener.
func (c *Config) ServerURL() string {
	return fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
}
