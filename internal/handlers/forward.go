package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/marcogenualdo/sso-relay/internal/host"
)

// ForwardHandler accepts redirect URIs relayed by a second process, typically
// one the OS launched for a custom-scheme redirect.
type ForwardHandler struct {
	target host.RedirectHandler
	logger *slog.Logger
}

func NewForwardHandler(target host.RedirectHandler, logger *slog.Logger) *ForwardHandler {
	return &ForwardHandler{target: target, logger: logger}
}

func (h *ForwardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req host.ForwardRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBytes)).Decode(&req); err != nil || req.URI == "" {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	handled := h.target.HandleRedirect(req.URI)
	h.logger.Debug("forwarded redirect received", "handled", handled)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(&host.ForwardResponse{Handled: handled}); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
