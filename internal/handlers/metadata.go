package handlers

import (
	"encoding/xml"
	"log/slog"
	"net/http"

	"github.com/crewjam/saml"
)

// MetadataSource is implemented by SAML providers.
type MetadataSource interface {
	MetadataPath() string
	Metadata() *saml.EntityDescriptor
}

type MetadataHandler struct {
	source MetadataSource
	logger *slog.Logger
}

func NewMetadataHandler(source MetadataSource, logger *slog.Logger) *MetadataHandler {
	return &MetadataHandler{source: source, logger: logger}
}

func (h *MetadataHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	buf, err := xml.MarshalIndent(h.source.Metadata(), "", "  ")
	if err != nil {
		h.logger.Error("failed to marshal metadata", "error", err)
		http.Error(w, "Failed to generate metadata", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/samlmetadata+xml")
	_, _ = w.Write(buf)
}
