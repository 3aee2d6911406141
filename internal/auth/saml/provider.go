// Package saml implements SP-initiated SAML login over the HTTP-Redirect
// binding. The correlation token travels as RelayState.
package saml

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/crewjam/saml"
	"github.com/google/uuid"

	"github.com/marcogenualdo/sso-relay/internal/auth"
	"github.com/marcogenualdo/sso-relay/internal/config"
	"github.com/marcogenualdo/sso-relay/internal/flow"
)

const metadataPath = "/saml/metadata"

type Provider struct {
	id     string
	cfg    config.SAMLConfig
	logger *slog.Logger

	sp *saml.ServiceProvider
}

// NewProvider loads the SP key pair and the IdP metadata. serverURL is the
// loopback listener that publishes the SP metadata.
func NewProvider(ctx context.Context, providerCfg config.ProviderConfig, serverURL string, logger *slog.Logger) (*Provider, error) {
	if providerCfg.SAML == nil {
		return nil, fmt.Errorf("SAML config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg := *providerCfg.SAML

	key, cert, err := loadKeyPair(cfg.CertificatePath, cfg.PrivateKeyPath)
	if err != nil {
		return nil, err
	}

	idpMetadata, err := fetchIDPMetadata(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch IdP metadata: %w", err)
	}

	acsURL, err := url.Parse(cfg.ACSURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ACS URL: %w", err)
	}

	metadataURL, err := url.Parse(strings.TrimSuffix(serverURL, "/") + metadataPath)
	if err != nil {
		return nil, fmt.Errorf("invalid metadata URL: %w", err)
	}

	sp := &saml.ServiceProvider{
		EntityID:    cfg.SPEntityID,
		Key:         key,
		Certificate: cert,
		MetadataURL: *metadataURL,
		AcsURL:      *acsURL,
		IDPMetadata: idpMetadata,
	}

	return &Provider{
		id:     providerCfg.ID,
		cfg:    cfg,
		logger: logger.With("provider", providerCfg.ID),
		sp:     sp,
	}, nil
}

func (p *Provider) ID() string {
	return p.id
}

func (p *Provider) Type() string {
	return "saml"
}

// RedirectURL is the assertion consumer service URL the IdP posts back to.
func (p *Provider) RedirectURL() string {
	return p.sp.AcsURL.String()
}

// MetadataPath is where the SP metadata is served.
func (p *Provider) MetadataPath() string {
	return metadataPath
}

func (p *Provider) Metadata() *saml.EntityDescriptor {
	return p.sp.Metadata()
}

func (p *Provider) AuthorizationRequest(ctx context.Context, state string, req *auth.AuthorizeRequest) (*auth.AuthRedirect, error) {
	authReq, err := p.sp.MakeAuthenticationRequest(
		p.sp.GetSSOBindingLocation(saml.HTTPRedirectBinding),
		saml.HTTPRedirectBinding,
		saml.HTTPPostBinding,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authentication request: %w", err)
	}

	// xs:ID values may not start with a digit.
	authReq.ID = "id-" + uuid.New().String()
	if req.Prompt == "login" {
		forceAuthn := true
		authReq.ForceAuthn = &forceAuthn
	}

	data, err := json.Marshal(&auth.SAMLRequest{
		ID:         authReq.ID,
		ProviderID: p.id,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	redirectURL, err := authReq.Redirect(state, p.sp)
	if err != nil {
		return nil, fmt.Errorf("failed to create redirect: %w", err)
	}

	return &auth.AuthRedirect{
		URL:        redirectURL.String(),
		Attachment: data,
	}, nil
}

func (p *Provider) CompleteAuthorization(ctx context.Context, attachment []byte, result *flow.Result) (*auth.Grant, error) {
	var samlReq auth.SAMLRequest
	if err := json.Unmarshal(attachment, &samlReq); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request: %w", err)
	}
	if samlReq.ProviderID != p.id {
		return nil, fmt.Errorf("provider mismatch")
	}

	samlResponse := result.Params.Get("SAMLResponse")
	if samlResponse == "" {
		return nil, fmt.Errorf("missing SAMLResponse")
	}

	// The response arrived over the POST binding and was folded into the
	// redirect URI; replay it as the form post the library expects.
	form := url.Values{"SAMLResponse": {samlResponse}, "RelayState": {result.Token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.sp.AcsURL.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build response request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	assertion, err := p.sp.ParseResponse(req, []string{samlReq.ID})
	if err != nil {
		var invalid *saml.InvalidResponseError
		if errors.As(err, &invalid) {
			p.logger.Warn("rejected SAML response", "error", invalid.PrivateErr)
		}
		return nil, fmt.Errorf("failed to parse SAML response: %w", err)
	}

	assertionData, err := xml.Marshal(assertion)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal assertion: %w", err)
	}

	return &auth.Grant{
		Claims:    assertionClaims(assertion),
		Assertion: string(assertionData),
	}, nil
}

func assertionClaims(assertion *saml.Assertion) map[string]interface{} {
	claims := make(map[string]interface{})

	if assertion.Subject != nil && assertion.Subject.NameID != nil {
		claims["name_id"] = assertion.Subject.NameID.Value
		claims["name_id_format"] = assertion.Subject.NameID.Format
	}
	if assertion.Conditions != nil && !assertion.Conditions.NotOnOrAfter.IsZero() {
		claims["not_on_or_after"] = assertion.Conditions.NotOnOrAfter
	}

	for _, stmt := range assertion.AttributeStatements {
		for _, attr := range stmt.Attributes {
			switch len(attr.Values) {
			case 0:
			case 1:
				claims[attr.Name] = attr.Values[0].Value
			default:
				values := make([]string, len(attr.Values))
				for i, v := range attr.Values {
					values[i] = v.Value
				}
				claims[attr.Name] = values
			}
		}
	}

	return claims
}

func loadKeyPair(certPath, keyPath string) (*rsa.PrivateKey, *x509.Certificate, error) {
	certData, err := os.ReadFile(certPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read certificate: %w", err)
	}

	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read private key: %w", err)
	}

	certBlock, _ := pem.Decode(certData)
	if certBlock == nil {
		return nil, nil, fmt.Errorf("failed to decode certificate PEM")
	}

	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	keyBlock, _ := pem.Decode(keyData)
	if keyBlock == nil {
		return nil, nil, fmt.Errorf("failed to decode private key PEM")
	}

	key, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err == nil {
		return key, cert, nil
	}

	key8, err8 := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
	if err8 != nil {
		return nil, nil, fmt.Errorf("failed to parse private key: %w (PKCS1: %v)", err8, err)
	}
	rsaKey, ok := key8.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, fmt.Errorf("private key is not RSA")
	}
	return rsaKey, cert, nil
}

func fetchIDPMetadata(ctx context.Context, cfg config.SAMLConfig) (*saml.EntityDescriptor, error) {
	if cfg.IDPMetadataXML != "" {
		metadata := &saml.EntityDescriptor{}
		if err := xml.Unmarshal([]byte(cfg.IDPMetadataXML), metadata); err != nil {
			return nil, fmt.Errorf("failed to parse IdP metadata XML: %w", err)
		}
		return metadata, nil
	}

	if cfg.IDPMetadataURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.IDPMetadataURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create metadata request: %w", err)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch metadata: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("metadata request returned status %d", resp.StatusCode)
		}

		metadata := &saml.EntityDescriptor{}
		if err := xml.NewDecoder(resp.Body).Decode(metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}

		return metadata, nil
	}

	return nil, fmt.Errorf("either idp_metadata_url or idp_metadata_xml must be provided")
}
