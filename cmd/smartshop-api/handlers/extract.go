package handlers

import (
	"net/http"
	"strings"

	"github.com/spherical-ai/smartshop-engine/internal/features"
	"github.com/spherical-ai/smartshop-engine/internal/observability"
)

// ExtractHandler exposes title feature extraction.
type ExtractHandler struct {
	logger    *observability.Logger
	extractor *features.Extractor
}

// NewExtractHandler creates a new extract handler.
func NewExtractHandler(logger *observability.Logger, extractor *features.Extractor) *ExtractHandler {
	return &ExtractHandler{logger: logger, extractor: extractor}
}

// ExtractRequestDTO is the body of POST /extract.
type ExtractRequestDTO struct {
	Title string `json:"title"`
}

// ExtractResponseDTO lists the attributes found in a title.
type ExtractResponseDTO struct {
	Title      string                           `json:"title"`
	Attributes features.AttributeMap            `json:"attributes"`
	Groups     map[string]features.AttributeMap `json:"groups"`
}

// Extract handles POST /extract.
func (h *ExtractHandler) Extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required", "")
		return
	}

	attrs := h.extractor.Extract(req.Title)
	h.logger.WithContext(r.Context()).Debug().
		Int("attributes", len(attrs)).
		Msg("Extracted title attributes")

	writeJSON(w, http.StatusOK, ExtractResponseDTO{
		Title:      req.Title,
		Attributes: attrs,
		Groups:     features.Group(attrs),
	})
}
