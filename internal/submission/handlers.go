package submission

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/lehrershow/songsubmit/internal/db"
	apperrors "github.com/lehrershow/songsubmit/internal/errors"
	"github.com/lehrershow/songsubmit/internal/logger"
)

const maxBodyBytes = 16 << 10

// Handlers exposes the submission service over HTTP
type Handlers struct {
	service *Service
}

// NewHandlers creates a new Handlers instance
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// ListResponse wraps a submission list
type ListResponse struct {
	Submissions []View `json:"submissions"`
	Count       int    `json:"count"`
}

// ApproveRequest is the optional body of the approve action
type ApproveRequest struct {
	Notes string `json:"notes"`
}

// Submit handles POST /api/v1/submissions
func (h *Handlers) Submit(w http.ResponseWriter, r *http.Request) error {
	var req Request
	if err := decodeJSON(w, r, &req, false); err != nil {
		return err
	}

	sub, err := h.service.Submit(r.Context(), req, logger.ClientIP(r))
	if err != nil {
		return err
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusCreated, NewPublicView(sub))
	return nil
}

// ListApproved handles GET /api/v1/submissions/approved
func (h *Handlers) ListApproved(w http.ResponseWriter, r *http.Request) error {
	subs, err := h.service.ListApproved(r.Context())
	if err != nil {
		return err
	}
	writeList(w, r, subs)
	return nil
}

// ListPending handles GET /api/v1/submissions/pending
func (h *Handlers) ListPending(w http.ResponseWriter, r *http.Request) error {
	subs, err := h.service.ListPending(r.Context())
	if err != nil {
		return err
	}
	writeList(w, r, subs)
	return nil
}

// Get handles GET /api/v1/submissions/{id}
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}

	sub, err := h.service.Get(r.Context(), id)
	if err != nil {
		return err
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, NewView(sub))
	return nil
}

// Approve handles POST /api/v1/submissions/{id}/approve
func (h *Handlers) Approve(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}

	var req ApproveRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		return err
	}

	sub, err := h.service.Approve(r.Context(), id, req.Notes)
	if err != nil {
		return err
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, NewView(sub))
	return nil
}

// Export handles POST /api/v1/submissions/approved/export
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) error {
	result, err := h.service.ExportApproved(r.Context())
	if err != nil {
		return err
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, result)
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, apperrors.ValidationError("invalid submission id")
	}
	return id, nil
}

func writeList(w http.ResponseWriter, r *http.Request, subs []*db.Submission) {
	views := NewViews(subs)
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, ListResponse{
		Submissions: views,
		Count:       len(views),
	})
}

// decodeJSON reads a bounded JSON body. With optional set an empty body
// leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperrors.BadRequest("request body too large")
		}
		return apperrors.BadRequest("invalid JSON request body")
	}
	return nil
}
