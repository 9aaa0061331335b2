package spotify

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	apperrors "github.com/lehrershow/songsubmit/internal/errors"
	"github.com/lehrershow/songsubmit/internal/logger"
)

const maxQueryLength = 200

var trackIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,64}$`)

// Searcher is the subset of Client used by the HTTP handlers
type Searcher interface {
	Search(ctx context.Context, query string) ([]Track, error)
	GetTrack(ctx context.Context, id string) (*TrackDetails, error)
}

// Handlers exposes music search to the submission form
type Handlers struct {
	client Searcher
	log    *logger.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(client Searcher) *Handlers {
	return &Handlers{
		client: client,
		log:    logger.Default().WithComponent("spotify"),
	}
}

// SearchResponse wraps search hits
type SearchResponse struct {
	Tracks []Track `json:"tracks"`
}

// Search handles GET /api/v1/music/search?q=
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) error {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		return apperrors.ValidationError("q query parameter is required")
	}
	if utf8.RuneCountInString(query) > maxQueryLength {
		return apperrors.ValidationError("q must be at most 200 characters")
	}

	tracks, err := h.client.Search(r.Context(), query)
	if err != nil {
		return h.mapError(r.Context(), "music search failed", err)
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, SearchResponse{Tracks: tracks})
	return nil
}

// GetTrack handles GET /api/v1/music/tracks/{id}
func (h *Handlers) GetTrack(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")
	if !trackIDPattern.MatchString(id) {
		return apperrors.ValidationError("invalid track id")
	}

	track, err := h.client.GetTrack(r.Context(), id)
	if err != nil {
		return h.mapError(r.Context(), "track lookup failed", err)
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, track)
	return nil
}

func (h *Handlers) mapError(ctx context.Context, msg string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperrors.TrackNotFound()
	case errors.Is(err, context.DeadlineExceeded):
		h.log.Warn(ctx, msg, logger.Fields{"error": err.Error()})
		return apperrors.ExternalTimeout("music search").WithCause(err)
	case errors.Is(err, context.Canceled):
		return apperrors.BadRequest("request cancelled").WithCause(err)
	default:
		h.log.Error(ctx, msg, err)
		return apperrors.MusicSearchError("music search is currently unavailable").WithCause(err)
	}
}
