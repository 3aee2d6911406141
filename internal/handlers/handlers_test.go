package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/crewjam/saml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcogenualdo/sso-relay/internal/cache"
	"github.com/marcogenualdo/sso-relay/internal/host"
)

type recorder struct {
	uris    []string
	handled bool
}

func (r *recorder) HandleRedirect(uri string) bool {
	r.uris = append(r.uris, uri)
	return r.handled
}

func TestCallbackHandler_RebuildsRegisteredURI(t *testing.T) {
	target := &recorder{handled: true}
	h, err := NewCallbackHandler(target, []string{
		"http://127.0.0.1:8765/callback",
		"https://localhost:8443/logout",
		"com.example.app:/oauth2redirect",
	}, slog.Default())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/callback", "/logout"}, h.Paths())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://evil.example.com/logout?state=abc", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"https://localhost:8443/logout?state=abc"}, target.uris)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/elsewhere?state=abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCallbackHandler_FormOverridesQuery(t *testing.T) {
	target := &recorder{handled: true}
	h, err := NewCallbackHandler(target, []string{"http://127.0.0.1:8765/callback"}, slog.Default())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/callback?state=query", strings.NewReader("state=form&code=ABC"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, target.uris, 1)
	u, err := url.Parse(target.uris[0])
	require.NoError(t, err)
	assert.Equal(t, "form", u.Query().Get("state"))
	assert.Equal(t, "ABC", u.Query().Get("code"))
}

func TestCallbackHandler_NotHandled(t *testing.T) {
	h, err := NewCallbackHandler(&recorder{}, []string{"http://127.0.0.1:8765/callback"}, slog.Default())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=gone", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestForwardHandler(t *testing.T) {
	target := &recorder{handled: true}
	h := NewForwardHandler(target, slog.Default())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, host.RedirectPath, strings.NewReader(`{"uri":"myapp://cb?state=x"}`)))

	var resp host.ForwardResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Handled)
	assert.Equal(t, []string{"myapp://cb?state=x"}, target.uris)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, host.RedirectPath, strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type brokenCache struct {
	cache.Cache
}

func (brokenCache) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}

type pending int

func (p pending) Pending() int { return int(p) }

func TestHealthHandler(t *testing.T) {
	mc := cache.NewMemoryCache(time.Hour)
	defer mc.Close()

	rec := httptest.NewRecorder()
	NewHealthHandler("memory", mc, pending(2), "default (oidc)", slog.Default()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.PendingFlows)
	assert.Equal(t, "default (oidc)", resp.Provider)

	rec = httptest.NewRecorder()
	NewHealthHandler("redis", brokenCache{}, nil, "", slog.Default()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Contains(t, resp.Cache.Status, "connection refused")
}

type staticMetadata struct{}

func (staticMetadata) MetadataPath() string { return "/saml/metadata" }

func (staticMetadata) Metadata() *saml.EntityDescriptor {
	return &saml.EntityDescriptor{EntityID: "urn:sso-relay:test"}
}

func TestMetadataHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewMetadataHandler(staticMetadata{}, slog.Default()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/saml/metadata", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/samlmetadata+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `entityID="urn:sso-relay:test"`)
}
