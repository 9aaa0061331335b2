package validators

import (
	"encoding/json"
	"net/http"
	"strings"

	apperrors "github.com/lehrershow/songsubmit/internal/errors"
)

const maxValidateBodyBytes = 8 << 10

// Handlers provides HTTP handlers for URL validation
type Handlers struct {
	registry *Registry
}

// NewHandlers creates a new Handlers instance
func NewHandlers(registry *Registry) *Handlers {
	return &Handlers{
		registry: registry,
	}
}

// ValidateURLRequest is the request body for URL validation
type ValidateURLRequest struct {
	URL string `json:"url"`
}

// SupportedSourcesResponse is the response for listing supported sources
type SupportedSourcesResponse struct {
	Sources []SourceType `json:"sources"`
}

// ValidateURL handles POST /api/v1/validate/url
func (h *Handlers) ValidateURL(w http.ResponseWriter, r *http.Request) error {
	var req ValidateURLRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxValidateBodyBytes)).Decode(&req); err != nil {
		return apperrors.BadRequest("invalid JSON body")
	}

	return h.writeResult(w, r, req.URL, "url field is required")
}

// ValidateURLQuery handles GET /api/v1/validate/url?url=...
func (h *Handlers) ValidateURLQuery(w http.ResponseWriter, r *http.Request) error {
	return h.writeResult(w, r, r.URL.Query().Get("url"), "url query parameter is required")
}

func (h *Handlers) writeResult(w http.ResponseWriter, r *http.Request, raw, missingMsg string) error {
	if strings.TrimSpace(raw) == "" {
		return apperrors.ValidationError(missingMsg)
	}

	result := h.registry.Validate(raw)

	status := http.StatusOK
	if !result.Valid {
		status = http.StatusUnprocessableEntity
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), status, result)
	return nil
}

// GetSupportedSources handles GET /api/v1/validate/sources
func (h *Handlers) GetSupportedSources(w http.ResponseWriter, r *http.Request) error {
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, SupportedSourcesResponse{
		Sources: h.registry.GetSupportedSources(),
	})
	return nil
}
