package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/marcogenualdo/sso-relay/internal/useragent"
)

const (
	DefaultTimeout = 300 * time.Second

	dismissTimeout = 5 * time.Second
)

// BuildFunc builds the authorization request URI for a freshly generated
// correlation token.
type BuildFunc func(ctx context.Context, token string) (string, error)

// Request describes one authorization attempt. Either Build is set, or the
// request URI is Endpoint with Params merged into its query and the token
// set as state.
type Request struct {
	Endpoint string
	Params   url.Values
	Build    BuildFunc

	// RedirectURI narrows the flow to one of the registered redirect URIs.
	// Empty accepts any of them.
	RedirectURI string

	// Timeout overrides the manager's default deadline.
	Timeout time.Duration
}

type Config struct {
	// RedirectURIs are the only URIs HandleRedirect will consume.
	RedirectURIs []string
	Timeout      time.Duration
}

type Manager struct {
	cfg      Config
	table    *Table
	matcher  *matcher
	launcher useragent.Launcher
	logger   *slog.Logger
}

func NewManager(cfg Config, launcher useragent.Launcher, logger *slog.Logger) (*Manager, error) {
	if launcher == nil {
		return nil, fmt.Errorf("user agent launcher is required")
	}
	if len(cfg.RedirectURIs) == 0 {
		return nil, fmt.Errorf("at least one redirect URI is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	m, err := newMatcher(cfg.RedirectURIs)
	if err != nil {
		return nil, err
	}

	mgr := &Manager{
		cfg:      cfg,
		matcher:  m,
		launcher: launcher,
		logger:   logger,
	}
	mgr.table = NewTable(mgr.expired)

	return mgr, nil
}

// Timeout returns the deadline a request would get.
func (m *Manager) Timeout(req Request) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	return m.cfg.Timeout
}

// Registered reports whether HandleRedirect would consume redirects to uri.
func (m *Manager) Registered(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return m.matcher.matches(u)
}

// Begin starts a flow and returns once the user-agent has been asked to
// present the request. The caller then waits on the returned Flow.
func (m *Manager) Begin(ctx context.Context, req Request) (*Flow, error) {
	var expect *url.URL
	if req.RedirectURI != "" {
		u, err := url.Parse(req.RedirectURI)
		if err != nil || !m.matcher.matches(u) {
			return nil, fmt.Errorf("%w: %s", ErrUnregisteredRedirect, req.RedirectURI)
		}
		expect = u
	}

	token, err := NewToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate correlation token: %w", err)
	}

	requestURI, err := m.build(ctx, req, token)
	if err != nil {
		return nil, fmt.Errorf("failed to build authorization request: %w", err)
	}

	now := time.Now()
	pending := newPendingFlow(token, now, now.Add(m.Timeout(req)), expect)
	if err := m.table.Insert(pending); err != nil {
		return nil, err
	}

	m.logger.Debug("authorization flow started",
		"token", shortToken(token),
		"deadline", pending.Deadline,
	)

	if err := m.launcher.Present(ctx, requestURI); err != nil {
		launchErr := &LaunchError{URI: requestURI, Err: err}
		if p, ok := m.table.Take(token); ok {
			p.resume(nil, launchErr)
		}
		m.logger.Error("failed to launch user agent", "token", shortToken(token), "error", err)
		return nil, launchErr
	}

	return &Flow{
		token:      token,
		requestURI: requestURI,
		deadline:   pending.Deadline,
		done:       pending.done,
		manager:    m,
	}, nil
}

// Authorize runs a flow to completion.
func (m *Manager) Authorize(ctx context.Context, req Request) (*Result, error) {
	f, err := m.Begin(ctx, req)
	if err != nil {
		return nil, err
	}
	return f.Wait(ctx)
}

// HandleRedirect consumes a redirect URI delivered by the host runtime. It
// reports false, without side effects, for URIs that are foreign, malformed or
// whose flow is no longer pending; the host may pass those to other handlers.
func (m *Manager) HandleRedirect(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		m.logger.Debug("ignoring unparseable redirect", "error", err)
		return false
	}
	if !m.matcher.matches(u) {
		m.logger.Debug("ignoring redirect for foreign URI", "scheme", u.Scheme, "host", u.Host, "path", u.Path)
		return false
	}

	event, err := parseRedirectURL(uri, u)
	if err != nil {
		m.logger.Warn("ignoring malformed redirect", "error", err)
		return false
	}

	pending, ok := m.table.TakeIf(event.Token, func(p *PendingFlow) bool {
		return p.accepts(u)
	})
	if !ok {
		m.logger.Info("ignoring late, duplicate, or foreign redirect", "token", shortToken(event.Token), "path", u.Path)
		return false
	}

	var outcomeErr error
	if event.IsError() {
		serverErr := event.serverError()
		m.logger.Info("authorization flow failed", "token", shortToken(event.Token), "error", serverErr.Code)
		pending.resume(nil, serverErr)
		outcomeErr = serverErr
	} else {
		m.logger.Info("authorization flow completed", "token", shortToken(event.Token))
		pending.resume(&Result{
			Token:       event.Token,
			RedirectURI: uri,
			Params:      event.Params,
			ReceivedAt:  time.Now(),
		}, nil)
	}

	m.dismiss(outcomeErr)
	return true
}

// Cancel aborts a pending flow. It reports whether this call resumed it.
func (m *Manager) Cancel(token string) bool {
	return m.cancel(token, nil)
}

func (m *Manager) cancel(token string, cause error) bool {
	pending, ok := m.table.Take(token)
	if !ok {
		return false
	}

	m.logger.Info("authorization flow cancelled", "token", shortToken(token))
	err := cancelledError(cause)
	pending.resume(nil, err)
	m.dismiss(err)
	return true
}

// Pending reports how many flows are waiting for a redirect.
func (m *Manager) Pending() int {
	return m.table.Len()
}

// Close cancels every pending flow and rejects new ones.
func (m *Manager) Close() error {
	pending := m.table.Close()
	for _, p := range pending {
		p.resume(nil, cancelledError(ErrClosed))
	}
	if len(pending) > 0 {
		m.logger.Info("cancelled pending authorization flows", "count", len(pending))
	}
	return nil
}

func (m *Manager) expired(p *PendingFlow) {
	m.logger.Warn("authorization flow timed out",
		"token", shortToken(p.Token),
		"age", time.Since(p.CreatedAt).Round(time.Millisecond),
	)
	m.dismiss(ErrTimeout)
}

func (m *Manager) build(ctx context.Context, req Request, token string) (string, error) {
	if req.Build != nil {
		return req.Build(ctx, token)
	}
	return BuildRequestURI(req.Endpoint, req.Params, token)
}

// BuildRequestURI merges params into endpoint's query and sets state to token.
func BuildRequestURI(endpoint string, params url.Values, token string) (string, error) {
	if endpoint == "" {
		return "", errors.New("authorization endpoint is required")
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid authorization endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid authorization endpoint: %q is not absolute", endpoint)
	}

	query := u.Query()
	for k, values := range params {
		query.Del(k)
		for _, v := range values {
			query.Add(k, v)
		}
	}
	query.Set("state", token)
	u.RawQuery = query.Encode()

	return u.String(), nil
}

// dismiss asks the user-agent to close once no flow needs it any more,
// without holding up resumption. outcome is nil for a successful redirect.
func (m *Manager) dismiss(outcome error) {
	d, ok := m.launcher.(useragent.Dismisser)
	if !ok {
		return
	}
	if n := m.table.Len(); n > 0 {
		m.logger.Debug("keeping user agent open", "pending", n)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dismissTimeout)
		defer cancel()
		if err := d.Dismiss(ctx, outcome); err != nil {
			m.logger.Debug("failed to dismiss user agent", "error", err)
		}
	}()
}
