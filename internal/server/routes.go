package server

import (
	"net/http"

	"github.com/marcogenualdo/sso-relay/internal/handlers"
	"github.com/marcogenualdo/sso-relay/internal/host"
	"github.com/marcogenualdo/sso-relay/internal/middleware"
)

const healthPath = "/health"

func (s *Server) setupRoutes() (http.Handler, error) {
	mux := http.NewServeMux()

	callbackHandler, err := handlers.NewCallbackHandler(s.target, s.cfg.RedirectURLs(), s.logger)
	if err != nil {
		return nil, err
	}

	providerID := ""
	if s.provider != nil {
		providerID = s.provider.ID() + " (" + s.provider.Type() + ")"
	}
	healthHandler := handlers.NewHealthHandler(s.cfg.Cache.Type, s.cache, s.flows, providerID, s.logger)

	mux.Handle(host.RedirectPath, handlers.NewForwardHandler(s.target, s.logger))
	mux.Handle(healthPath, healthHandler)

	if source, ok := s.provider.(handlers.MetadataSource); ok {
		mux.Handle(source.MetadataPath(), handlers.NewMetadataHandler(source, s.logger))
	}

	for _, path := range callbackHandler.Paths() {
		if path == host.RedirectPath || path == healthPath {
			s.logger.Warn("redirect path collides with a built-in route, not serving it", "path", path)
			continue
		}
		mux.Handle(path, callbackHandler)
	}

	handler := middleware.RequestID(
		middleware.Recovery(s.logger)(
			middleware.Logging(s.logger)(
				addSecurityHeaders(mux),
			),
		),
	)

	return handler, nil
}

// addSecurityHeaders keeps callback pages, whose URLs carry codes, out of
// caches and referrers.
func addSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Referrer-Policy", "no-referrer")

		next.ServeHTTP(w, r)
	})
}
