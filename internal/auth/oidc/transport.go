package oidc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sync"
)

// maxTokenResponseBytes matches the limit x/oauth2 applies when it reads a
// token response.
const maxTokenResponseBytes = 1 << 20

// standardTokenFields are the token response members already mapped onto the
// Grant.
var standardTokenFields = map[string]bool{
	"access_token":  true,
	"token_type":    true,
	"expires_in":    true,
	"refresh_token": true,
	"id_token":      true,
	"scope":         true,
}

// headerTransport sets the configured headers on every outgoing request.
// tokenHeaders only go to the token endpoint.
type headerTransport struct {
	base         http.RoundTripper
	headers      map[string]string
	tokenURL     string
	tokenHeaders map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	isToken := t.tokenURL != "" && sameEndpoint(req.URL, t.tokenURL)
	if len(t.headers) == 0 && !(isToken && len(t.tokenHeaders) > 0) {
		return t.base.RoundTrip(req)
	}

	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	if isToken {
		for k, v := range t.tokenHeaders {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}

// tokenResponseCapture keeps the body of the token endpoint response for one
// exchange and hands an identical copy on to x/oauth2.
type tokenResponseCapture struct {
	base     http.RoundTripper
	tokenURL string

	mu          sync.Mutex
	body        []byte
	contentType string
}

func (c *tokenResponseCapture) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := c.base.RoundTrip(req)
	if err != nil || !sameEndpoint(req.URL, c.tokenURL) {
		return resp, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	c.mu.Lock()
	c.body = body
	c.contentType = resp.Header.Get("Content-Type")
	c.mu.Unlock()

	return resp, nil
}

// additionalParameters returns the members of the captured response that are
// not standard token fields. Non-string JSON values keep their JSON encoding.
func (c *tokenResponseCapture) additionalParameters() map[string]string {
	c.mu.Lock()
	body, contentType := c.body, c.contentType
	c.mu.Unlock()

	if len(body) == 0 {
		return nil
	}

	extra := make(map[string]string)
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "application/x-www-form-urlencoded", "text/plain":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil
		}
		for k, v := range values {
			if !standardTokenFields[k] && len(v) > 0 {
				extra[k] = v[0]
			}
		}
	default:
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil
		}
		for k, raw := range fields {
			if standardTokenFields[k] {
				continue
			}
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				extra[k] = s
				continue
			}
			extra[k] = string(raw)
		}
	}

	if len(extra) == 0 {
		return nil
	}
	return extra
}

func sameEndpoint(u *url.URL, endpoint string) bool {
	e, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	return u.Scheme == e.Scheme && u.Host == e.Host && u.Path == e.Path
}
