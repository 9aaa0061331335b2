package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lehrershow/songsubmit/internal/errors"
)

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) Search(ctx context.Context, query string) ([]Track, error) {
	args := m.Called(ctx, query)
	tracks, _ := args.Get(0).([]Track)
	return tracks, args.Error(1)
}

func (m *mockSearcher) GetTrack(ctx context.Context, id string) (*TrackDetails, error) {
	args := m.Called(ctx, id)
	track, _ := args.Get(0).(*TrackDetails)
	return track, args.Error(1)
}

func serve(h apperrors.Handler, pattern, target string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, apperrors.HandleFunc(h))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp apperrors.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp.Error.Code
}

func TestHandlers_Search(t *testing.T) {
	m := &mockSearcher{}
	m.On("Search", mock.Anything, "abba").Return([]Track{{ID: "1", Title: "Waterloo", Artist: "ABBA"}}, nil)
	h := NewHandlers(m)

	w := serve(h.Search, "GET /api/v1/music/search", "/api/v1/music/search?q=abba")

	require.Equal(t, http.StatusOK, w.Code)
	var resp SearchResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "Waterloo", resp.Tracks[0].Title)
	m.AssertExpectations(t)
}

func TestHandlers_SearchValidation(t *testing.T) {
	h := NewHandlers(&mockSearcher{})

	w := serve(h.Search, "GET /api/v1/music/search", "/api/v1/music/search?q=%20")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(h.Search, "GET /api/v1/music/search", "/api/v1/music/search?q="+strings.Repeat("a", 201))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_SearchUpstreamFailure(t *testing.T) {
	m := &mockSearcher{}
	m.On("Search", mock.Anything, "abba").Return(nil, fmt.Errorf("%w: unexpected status code: 503", ErrUpstream))
	h := NewHandlers(m)

	w := serve(h.Search, "GET /api/v1/music/search", "/api/v1/music/search?q=abba")

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, apperrors.CodeMusicSearchError, errorCode(t, w))
}

func TestHandlers_SearchTimeout(t *testing.T) {
	m := &mockSearcher{}
	m.On("Search", mock.Anything, "abba").Return(nil, context.DeadlineExceeded)
	h := NewHandlers(m)

	w := serve(h.Search, "GET /api/v1/music/search", "/api/v1/music/search?q=abba")

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, apperrors.CodeExternalTimeout, errorCode(t, w))
}

func TestHandlers_GetTrack(t *testing.T) {
	m := &mockSearcher{}
	m.On("GetTrack", mock.Anything, "abc123").Return(&TrackDetails{Track: Track{ID: "abc123"}, AlbumName: "Arrival"}, nil)
	m.On("GetTrack", mock.Anything, "gone").Return(nil, ErrNotFound)
	h := NewHandlers(m)

	w := serve(h.GetTrack, "GET /api/v1/music/tracks/{id}", "/api/v1/music/tracks/abc123")
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(h.GetTrack, "GET /api/v1/music/tracks/{id}", "/api/v1/music/tracks/gone")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperrors.CodeTrackNotFound, errorCode(t, w))

	w = serve(h.GetTrack, "GET /api/v1/music/tracks/{id}", "/api/v1/music/tracks/bad-id!")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
