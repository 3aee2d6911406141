package flow

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// stateParams are the parameters that may carry the correlation token back.
// RelayState is used by SAML responses.
var stateParams = []string{"state", "RelayState"}

// Result is the success payload of a resolved flow.
type Result struct {
	Token       string
	RedirectURI string
	Params      url.Values
	ReceivedAt  time.Time
}

// Code returns the authorization code, if the redirect carried one.
func (r *Result) Code() string {
	return r.Params.Get("code")
}

// RedirectEvent is one inbound redirect, parsed.
type RedirectEvent struct {
	URI    string
	Token  string
	Params url.Values
}

func (e *RedirectEvent) IsError() bool {
	return e.Params.Get("error") != ""
}

func (e *RedirectEvent) serverError() *ServerError {
	return &ServerError{
		Code:        e.Params.Get("error"),
		Description: e.Params.Get("error_description"),
		URI:         e.Params.Get("error_uri"),
	}
}

// ParseRedirect extracts the correlation token and result parameters from a
// redirect URI. Parameters are read from the fragment and the query, the query
// taking precedence.
func ParseRedirect(raw string) (*RedirectEvent, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &MalformedRedirectError{URI: raw, Reason: "unparseable URI", Err: err}
	}
	return parseRedirectURL(raw, u)
}

func parseRedirectURL(raw string, u *url.URL) (*RedirectEvent, error) {
	if u.Scheme == "" {
		return nil, &MalformedRedirectError{URI: raw, Reason: "missing scheme"}
	}

	params := url.Values{}
	if fragment := u.EscapedFragment(); fragment != "" {
		values, err := url.ParseQuery(fragment)
		if err != nil {
			return nil, &MalformedRedirectError{URI: raw, Reason: "invalid fragment", Err: err}
		}
		for k, v := range values {
			params[k] = v
		}
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil, &MalformedRedirectError{URI: raw, Reason: "invalid query", Err: err}
	}
	for k, v := range query {
		params[k] = v
	}

	var token string
	for _, name := range stateParams {
		if token = params.Get(name); token != "" {
			break
		}
	}
	if token == "" {
		return nil, &MalformedRedirectError{URI: raw, Reason: "missing state parameter"}
	}

	return &RedirectEvent{URI: raw, Token: token, Params: params}, nil
}

// matcher decides whether a URI is addressed to one of the registered
// redirect URIs: same scheme and host (case-insensitive) and same path.
type matcher struct {
	targets []*url.URL
}

func newMatcher(uris []string) (*matcher, error) {
	m := &matcher{}
	for _, raw := range uris {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid redirect URI %q: %w", raw, err)
		}
		if u.Scheme == "" {
			return nil, fmt.Errorf("invalid redirect URI %q: missing scheme", raw)
		}
		m.targets = append(m.targets, u)
	}
	return m, nil
}

func (m *matcher) matches(u *url.URL) bool {
	for _, target := range m.targets {
		if sameTarget(u, target) {
			return true
		}
	}
	return false
}

// sameTarget compares scheme and host case-insensitively and the path with a
// trailing slash ignored. Query and fragment are not part of the target.
func sameTarget(u, target *url.URL) bool {
	return strings.EqualFold(u.Scheme, target.Scheme) &&
		strings.EqualFold(u.Host, target.Host) &&
		u.Opaque == target.Opaque &&
		normalizePath(u.Path) == normalizePath(target.Path)
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}
