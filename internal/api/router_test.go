package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehrershow/songsubmit/internal/auth"
	"github.com/lehrershow/songsubmit/internal/cache"
	"github.com/lehrershow/songsubmit/internal/db"
	apperrors "github.com/lehrershow/songsubmit/internal/errors"
	"github.com/lehrershow/songsubmit/internal/health"
	"github.com/lehrershow/songsubmit/internal/logger"
	"github.com/lehrershow/songsubmit/internal/metrics"
	"github.com/lehrershow/songsubmit/internal/settings"
	"github.com/lehrershow/songsubmit/internal/spotify"
	"github.com/lehrershow/songsubmit/internal/submission"
	"github.com/lehrershow/songsubmit/internal/validators"
	"github.com/lehrershow/songsubmit/internal/websocket"
)

const testSecret = "router-test-secret"

type settingsStore struct {
	allow bool
}

func (s *settingsStore) Get(ctx context.Context) (*db.Settings, error) {
	return &db.Settings{AllowNewSubmissions: s.allow, UpdatedAt: time.Now()}, nil
}

func (s *settingsStore) Upsert(ctx context.Context, allow bool, updatedBy string) (*db.Settings, error) {
	s.allow = allow
	return s.Get(ctx)
}

type nopSearcher struct{}

func (nopSearcher) Search(ctx context.Context, query string) ([]spotify.Track, error) {
	return []spotify.Track{}, nil
}

func (nopSearcher) GetTrack(ctx context.Context, id string) (*spotify.TrackDetails, error) {
	return nil, spotify.ErrNotFound
}

func newTestRouter(t *testing.T, limiter *cache.Cache, trusted ...string) *Router {
	t.Helper()

	uploads := validators.NewUploadValidator("abc123", "")
	settingsSvc := settings.NewService(&settingsStore{allow: false})
	// the closed gate rejects before the store or captcha are touched
	submissions := submission.NewService(nil, settingsSvc, nil, nil, uploads)

	deps := Deps{
		Verifier:    auth.NewVerifier(testSecret, ""),
		Health:      health.NewHandler(health.NewChecker(&health.CheckerConfig{Version: "test"})),
		Metrics:     metrics.New(),
		Submissions: submission.NewHandlers(submissions),
		Settings:    settings.NewHandlers(settingsSvc),
		Validators:  validators.NewHandlers(validators.DefaultRegistry(uploads)),
		Music:       spotify.NewHandlers(nopSearcher{}),
		WebSocket:   websocket.NewHandler(websocket.NewHub(nil), nil),
		RateLimits:  RateLimits{Submit: 2, Search: 30, Window: time.Minute},
	}
	if limiter != nil {
		deps.Limiter = limiter
	}
	proxies, err := logger.ParseTrustedProxies(trusted)
	require.NoError(t, err)
	deps.TrustedProxies = proxies
	return NewRouter(deps)
}

func staffToken(t *testing.T) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "staff-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

func do(h http.Handler, method, target string, body io.Reader, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp apperrors.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp.Error.Code
}

func TestRouter_Health(t *testing.T) {
	r := newTestRouter(t, nil)

	w := do(r, http.MethodGet, "/health/live", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(apperrors.RequestIDHeader))
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
}

func TestRouter_Metrics(t *testing.T) {
	r := newTestRouter(t, nil)
	do(r, http.MethodGet, "/api/v1/validate/sources", nil, nil)

	w := do(r, http.MethodGet, "/metrics", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `endpoint="/api/v1/validate/sources"`)
}

func TestRouter_StaffRoutesRequireToken(t *testing.T) {
	r := newTestRouter(t, nil)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/submissions/approved"},
		{http.MethodGet, "/api/v1/submissions/pending"},
		{http.MethodGet, "/api/v1/submissions/0b6f2a54-7c1e-4d8a-9b57-2f1e0c3d4a5b"},
		{http.MethodPost, "/api/v1/submissions/0b6f2a54-7c1e-4d8a-9b57-2f1e0c3d4a5b/approve"},
		{http.MethodPost, "/api/v1/submissions/approved/export"},
		{http.MethodGet, "/api/v1/settings"},
		{http.MethodPut, "/api/v1/settings"},
		{http.MethodGet, "/api/v1/ws"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := do(r, rt.method, rt.path, nil, nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, apperrors.CodeUnauthorized, errorCode(t, w))
		})
	}
}

func TestRouter_SettingsWithToken(t *testing.T) {
	r := newTestRouter(t, nil)
	header := http.Header{"Authorization": {"Bearer " + staffToken(t)}}

	w := do(r, http.MethodPut, "/api/v1/settings", bytes.NewBufferString(`{"allowNewSubmissions":true}`), header)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/v1/settings", nil, header)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"allowNewSubmissions":true`)
}

func TestRouter_SubmitClosed(t *testing.T) {
	r := newTestRouter(t, nil)

	w := do(r, http.MethodPost, "/api/v1/submissions", bytes.NewBufferString(`{"name":"Anna"}`), nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, apperrors.CodeSubmissionsClosed, errorCode(t, w))
}

func TestRouter_SubmitRateLimited(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	limiter := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { limiter.Close() })

	// httptest requests arrive from 192.0.2.1
	r := newTestRouter(t, limiter, "192.0.2.0/24")
	header := http.Header{"X-Forwarded-For": {"203.0.113.9"}}

	for i := 0; i < 2; i++ {
		w := do(r, http.MethodPost, "/api/v1/submissions", bytes.NewBufferString(`{}`), header)
		assert.Equal(t, http.StatusForbidden, w.Code)
	}

	w := do(r, http.MethodPost, "/api/v1/submissions", bytes.NewBufferString(`{}`), header)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	// a different client has its own window
	w = do(r, http.MethodPost, "/api/v1/submissions", bytes.NewBufferString(`{}`), http.Header{"X-Forwarded-For": {"203.0.113.10"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_SubmitRateLimitIgnoresUntrustedForwardedFor(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	limiter := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { limiter.Close() })

	r := newTestRouter(t, limiter)

	var limited int
	for i := 0; i < 10; i++ {
		header := http.Header{"X-Forwarded-For": {fmt.Sprintf("198.51.100.%d", i)}}
		w := do(r, http.MethodPost, "/api/v1/submissions", bytes.NewBufferString(`{}`), header)
		if w.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 8, limited)
}

func TestRouter_MusicTrackNotFound(t *testing.T) {
	r := newTestRouter(t, nil)

	w := do(r, http.MethodGet, "/api/v1/music/tracks/abc123", nil, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperrors.CodeTrackNotFound, errorCode(t, w))
}
