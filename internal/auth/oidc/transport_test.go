package oidc

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenResponseCapture_FormEncoded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		_, _ = w.Write([]byte("access_token=a&token_type=bearer&expires_in=60&tenant=acme"))
	}))
	t.Cleanup(server.Close)

	capture := &tokenResponseCapture{base: http.DefaultTransport, tokenURL: server.URL + "/token"}
	client := &http.Client{Transport: capture}

	resp, err := client.Post(server.URL+"/token", "application/x-www-form-urlencoded", strings.NewReader("grant_type=authorization_code"))
	require.NoError(t, err)
	defer resp.Body.Close()

	// The body is still readable after capture.
	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "tenant=acme")

	assert.Equal(t, map[string]string{"tenant": "acme"}, capture.additionalParameters())
}

func TestTokenResponseCapture_IgnoresOtherEndpoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"keys":[]}`))
	}))
	t.Cleanup(server.Close)

	capture := &tokenResponseCapture{base: http.DefaultTransport, tokenURL: server.URL + "/token"}
	resp, err := (&http.Client{Transport: capture}).Get(server.URL + "/keys")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Nil(t, capture.additionalParameters())
}

func TestHeaderTransport_DoesNotMutateRequest(t *testing.T) {
	received := make(chan http.Header, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Clone()
	}))
	t.Cleanup(server.Close)

	transport := &headerTransport{
		base:         http.DefaultTransport,
		headers:      map[string]string{"X-Tenant": "acme"},
		tokenURL:     server.URL + "/token",
		tokenHeaders: map[string]string{"X-Token-Only": "1"},
	}

	req, err := http.NewRequest(http.MethodPost, server.URL+"/token", nil)
	require.NoError(t, err)
	resp, err := (&http.Client{Transport: transport}).Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	got := <-received
	assert.Equal(t, "acme", got.Get("X-Tenant"))
	assert.Equal(t, "1", got.Get("X-Token-Only"))
	assert.Empty(t, req.Header.Get("X-Tenant"))
}
