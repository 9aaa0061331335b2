package settings

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/lehrershow/songsubmit/internal/errors"
)

const maxBodyBytes = 4 << 10

// Handlers exposes settings to the staff dashboard
type Handlers struct {
	service *Service
}

// NewHandlers creates a new Handlers instance
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// UpdateRequest is the body of PUT /api/v1/settings. The field is a pointer
// so a missing value is rejected instead of closing submissions.
type UpdateRequest struct {
	AllowNewSubmissions *bool `json:"allowNewSubmissions"`
}

// Get handles GET /api/v1/settings
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) error {
	settings, err := h.service.Get(r.Context())
	if err != nil {
		return err
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, settings)
	return nil
}

// Update handles PUT /api/v1/settings
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) error {
	var req UpdateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		return apperrors.BadRequest("invalid JSON request body")
	}
	if req.AllowNewSubmissions == nil {
		return apperrors.ValidationError("allowNewSubmissions is required")
	}

	settings, err := h.service.Update(r.Context(), *req.AllowNewSubmissions)
	if err != nil {
		return err
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, settings)
	return nil
}
