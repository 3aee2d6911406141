package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/marcogenualdo/sso-relay/internal/auth"
	"github.com/marcogenualdo/sso-relay/internal/auth/oidc"
	"github.com/marcogenualdo/sso-relay/internal/auth/saml"
	"github.com/marcogenualdo/sso-relay/internal/cache"
	"github.com/marcogenualdo/sso-relay/internal/config"
	"github.com/marcogenualdo/sso-relay/internal/flow"
	"github.com/marcogenualdo/sso-relay/internal/host"
	"github.com/marcogenualdo/sso-relay/internal/server"
	"github.com/marcogenualdo/sso-relay/internal/useragent"
)

// app is everything a flow command needs, built from one config file.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	cache   cache.Cache
	manager *flow.Manager
	client  *auth.Client
	server  *server.Server
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func newApp(ctx context.Context, path string, stderr io.Writer) (*app, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}

	logger := setupLogger(cfg.Logging)
	logger.Debug("starting sso-relay", "version", version)

	cacheInstance, err := cache.New(cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	provider, err := newProvider(ctx, cfg, logger)
	if err != nil {
		_ = cacheInstance.Close()
		return nil, err
	}
	logger.Debug("provider initialized", "id", cfg.Provider.ID, "type", cfg.Provider.Type)

	launcher, err := useragent.New(cfg.UserAgent, stderr)
	if err != nil {
		_ = cacheInstance.Close()
		return nil, err
	}

	manager, err := flow.NewManager(flow.Config{
		RedirectURIs: cfg.RedirectURLs(),
		Timeout:      cfg.Flow.Timeout,
	}, launcher, logger)
	if err != nil {
		_ = cacheInstance.Close()
		return nil, fmt.Errorf("failed to create flow manager: %w", err)
	}

	dispatcher := host.NewDispatcher(logger, manager)

	return &app{
		cfg:     cfg,
		logger:  logger,
		cache:   cacheInstance,
		manager: manager,
		client:  auth.NewClient(manager, provider, cacheInstance, logger),
		server:  server.New(*cfg, dispatcher, manager, cacheInstance, provider, logger),
	}, nil
}

// newProvider is given the command's root context, which outlives every
// flow; go-oidc keeps it for JWKS refreshes.
func newProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.Provider, error) {
	switch cfg.Provider.Type {
	case "oidc":
		p, err := oidc.NewProvider(ctx, cfg.Provider, cfg.Flow.RedirectURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create OIDC provider %s: %w", cfg.Provider.ID, err)
		}
		return p, nil
	case "saml":
		p, err := saml.NewProvider(ctx, cfg.Provider, cfg.ServerURL(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SAML provider %s: %w", cfg.Provider.ID, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Provider.Type)
	}
}

// withServer runs fn while the loopback listener receives redirects. The
// listener is bound before fn starts and stops once fn returns.
func (a *app) withServer(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := a.server.Listen(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)

	g.Go(func() error {
		return a.server.Serve(serverCtx)
	})
	g.Go(func() error {
		defer stopServer()
		return fn(gctx)
	})

	return g.Wait()
}

func (a *app) Close() {
	if err := a.manager.Close(); err != nil {
		a.logger.Error("error closing flow manager", "error", err)
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Error("error closing cache", "error", err)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	// stdout is kept for command output unless configured otherwise.
	var out io.Writer = os.Stderr
	if cfg.Output == "stdout" {
		out = os.Stdout
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}
