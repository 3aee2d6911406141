package saml

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcogenualdo/sso-relay/internal/auth"
	"github.com/marcogenualdo/sso-relay/internal/config"
	"github.com/marcogenualdo/sso-relay/internal/flow"
)

const idpMetadataXML = `<EntityDescriptor xmlns="urn:oasis:names:tc:SAML:2.0:metadata" entityID="https://idp.example.com/metadata">
  <IDPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
    <SingleSignOnService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect" Location="https://idp.example.com/sso"/>
  </IDPSSODescriptor>
</EntityDescriptor>`

// writeKeyPair writes a self-signed certificate and its PKCS8 key.
func writeKeyPair(t *testing.T) (string, string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "sso-relay"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	certPath := filepath.Join(dir, "sp.crt")
	keyPath := filepath.Join(dir, "sp.key")
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}), 0o600))

	return certPath, keyPath
}

func newTestProvider(t *testing.T, mutate func(*config.SAMLConfig)) *Provider {
	t.Helper()

	certPath, keyPath := writeKeyPair(t)
	cfg := &config.SAMLConfig{
		IDPMetadataXML:  idpMetadataXML,
		SPEntityID:      "urn:sso-relay:test",
		ACSURL:          "http://127.0.0.1:8765/callback",
		CertificatePath: certPath,
		PrivateKeyPath:  keyPath,
	}
	if mutate != nil {
		mutate(cfg)
	}

	p, err := NewProvider(context.Background(), config.ProviderConfig{ID: "corp", Type: "saml", SAML: cfg}, "http://127.0.0.1:8765", nil)
	require.NoError(t, err)
	return p
}

func TestAuthorizationRequest_RelayStateCarriesToken(t *testing.T) {
	p := newTestProvider(t, nil)

	redirect, err := p.AuthorizationRequest(context.Background(), "STATE", &auth.AuthorizeRequest{})
	require.NoError(t, err)

	u, err := url.Parse(redirect.URL)
	require.NoError(t, err)
	assert.Equal(t, "idp.example.com", u.Host)
	assert.Equal(t, "/sso", u.Path)
	assert.Equal(t, "STATE", u.Query().Get("RelayState"))
	assert.NotEmpty(t, u.Query().Get("SAMLRequest"))

	var req auth.SAMLRequest
	require.NoError(t, json.Unmarshal(redirect.Attachment, &req))
	assert.Equal(t, "corp", req.ProviderID)
	assert.True(t, strings.HasPrefix(req.ID, "id-"))

	// The resolver must find the token in the redirect URL the IdP answers on.
	event, err := flow.ParseRedirect("http://127.0.0.1:8765/callback?RelayState=" + url.QueryEscape(u.Query().Get("RelayState")))
	require.NoError(t, err)
	assert.Equal(t, "STATE", event.Token)
	assert.Equal(t, "http://127.0.0.1:8765/callback", p.RedirectURL())
}

func TestCompleteAuthorization_Rejects(t *testing.T) {
	p := newTestProvider(t, nil)

	attachment, err := json.Marshal(&auth.SAMLRequest{ID: "id-1", ProviderID: "corp"})
	require.NoError(t, err)

	_, err = p.CompleteAuthorization(context.Background(), attachment, &flow.Result{Token: "STATE", Params: url.Values{}})
	assert.ErrorContains(t, err, "missing SAMLResponse")

	garbage := base64.StdEncoding.EncodeToString([]byte("<Response/>"))
	_, err = p.CompleteAuthorization(context.Background(), attachment, &flow.Result{
		Token:  "STATE",
		Params: url.Values{"SAMLResponse": {garbage}},
	})
	assert.ErrorContains(t, err, "failed to parse SAML response")

	other, err := json.Marshal(&auth.SAMLRequest{ID: "id-1", ProviderID: "other"})
	require.NoError(t, err)
	_, err = p.CompleteAuthorization(context.Background(), other, &flow.Result{Params: url.Values{"SAMLResponse": {garbage}}})
	assert.ErrorContains(t, err, "provider mismatch")
}

func TestMetadata(t *testing.T) {
	p := newTestProvider(t, nil)

	md := p.Metadata()
	assert.Equal(t, "urn:sso-relay:test", md.EntityID)
	require.NotEmpty(t, md.SPSSODescriptors)
	assert.Equal(t, "/saml/metadata", p.MetadataPath())
}

func TestNewProvider_MetadataURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/samlmetadata+xml")
		_, _ = w.Write([]byte(idpMetadataXML))
	}))
	defer server.Close()

	p := newTestProvider(t, func(c *config.SAMLConfig) {
		c.IDPMetadataXML = ""
		c.IDPMetadataURL = server.URL
	})
	assert.Equal(t, "https://idp.example.com/sso", p.sp.GetSSOBindingLocation("urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect"))
}

func TestNewProvider_Errors(t *testing.T) {
	_, err := NewProvider(context.Background(), config.ProviderConfig{ID: "corp"}, "", nil)
	assert.ErrorContains(t, err, "SAML config is required")

	_, err = NewProvider(context.Background(), config.ProviderConfig{ID: "corp", SAML: &config.SAMLConfig{
		CertificatePath: filepath.Join(t.TempDir(), "missing.crt"),
	}}, "", nil)
	assert.ErrorContains(t, err, "failed to read certificate")

	certPath, keyPath := writeKeyPair(t)
	_, err = NewProvider(context.Background(), config.ProviderConfig{ID: "corp", SAML: &config.SAMLConfig{
		CertificatePath: certPath,
		PrivateKeyPath:  keyPath,
	}}, "", nil)
	assert.ErrorContains(t, err, "either idp_metadata_url or idp_metadata_xml must be provided")
}
