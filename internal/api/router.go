package api

import (
	"net/http"
	"time"

	"github.com/lehrershow/songsubmit/internal/auth"
	apperrors "github.com/lehrershow/songsubmit/internal/errors"
	"github.com/lehrershow/songsubmit/internal/health"
	"github.com/lehrershow/songsubmit/internal/logger"
	"github.com/lehrershow/songsubmit/internal/metrics"
	"github.com/lehrershow/songsubmit/internal/middleware"
	"github.com/lehrershow/songsubmit/internal/settings"
	"github.com/lehrershow/songsubmit/internal/spotify"
	"github.com/lehrershow/songsubmit/internal/submission"
	"github.com/lehrershow/songsubmit/internal/validators"
	"github.com/lehrershow/songsubmit/internal/websocket"
)

// RateLimits caps anonymous traffic per client IP
type RateLimits struct {
	Submit int
	Search int
	Window time.Duration
}

// Deps are the handlers and shared services the router mounts
type Deps struct {
	Verifier    *auth.Verifier
	Health      *health.Handler
	Metrics     *metrics.Metrics
	Submissions *submission.Handlers
	Settings    *settings.Handlers
	Validators  *validators.Handlers
	Music       *spotify.Handlers
	WebSocket   *websocket.Handler

	// Limiter may be nil, which disables rate limiting
	Limiter        middleware.Limiter
	RateLimits     RateLimits
	AllowedOrigins []string

	// TrustedProxies may be nil, in which case forwarding headers are ignored
	TrustedProxies *logger.TrustedProxies
}

type Router struct {
	mux     *http.ServeMux
	deps    Deps
	handler http.Handler
}

func NewRouter(deps Deps) *Router {
	r := &Router{
		mux:  http.NewServeMux(),
		deps: deps,
	}
	r.setupRoutes()
	// Metrics wraps the mux directly so it sees the matched route pattern.
	r.handler = middleware.Chain(r.mux,
		apperrors.RequestIDMiddleware,
		logger.ClientIPMiddleware(deps.TrustedProxies),
		logger.RecoveryMiddleware,
		logger.LoggingMiddleware,
		middleware.Timing,
		middleware.CORS(deps.AllowedOrigins),
		metrics.MetricsMiddleware(deps.Metrics),
	)
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

func (r *Router) setupRoutes() {
	d := r.deps

	// Health and metrics
	r.mux.HandleFunc("GET /health", d.Health.HealthHandler)
	r.mux.HandleFunc("GET /health/live", d.Health.LivenessHandler)
	r.mux.HandleFunc("GET /health/ready", d.Health.ReadinessHandler)
	r.mux.Handle("GET /metrics", d.Metrics.Handler())

	// Public intake
	r.mux.Handle("POST /api/v1/submissions",
		r.limited("submit", d.RateLimits.Submit, apperrors.HandleFunc(d.Submissions.Submit)))

	r.mux.HandleFunc("GET /api/v1/validate/url", apperrors.HandleFunc(d.Validators.ValidateURLQuery))
	r.mux.HandleFunc("POST /api/v1/validate/url", apperrors.HandleFunc(d.Validators.ValidateURL))
	r.mux.HandleFunc("GET /api/v1/validate/sources", apperrors.HandleFunc(d.Validators.GetSupportedSources))

	r.mux.Handle("GET /api/v1/music/search",
		r.limited("search", d.RateLimits.Search, apperrors.HandleFunc(d.Music.Search)))
	r.mux.HandleFunc("GET /api/v1/music/tracks/{id}", apperrors.HandleFunc(d.Music.GetTrack))

	// Staff routes (auth required)
	r.mux.Handle("GET /api/v1/submissions/approved", r.withAuth(d.Submissions.ListApproved))
	r.mux.Handle("GET /api/v1/submissions/pending", r.withAuth(d.Submissions.ListPending))
	r.mux.Handle("GET /api/v1/submissions/{id}", r.withAuth(d.Submissions.Get))
	r.mux.Handle("POST /api/v1/submissions/{id}/approve", r.withAuth(d.Submissions.Approve))
	r.mux.Handle("POST /api/v1/submissions/approved/export", r.withAuth(d.Submissions.Export))

	r.mux.Handle("GET /api/v1/settings", r.withAuth(d.Settings.Get))
	r.mux.Handle("PUT /api/v1/settings", r.withAuth(d.Settings.Update))

	r.mux.Handle("GET /api/v1/ws",
		auth.QueryTokenMiddleware(d.Verifier)(http.HandlerFunc(d.WebSocket.ServeWS)))
}

func (r *Router) withAuth(next apperrors.Handler) http.Handler {
	return auth.Middleware(r.deps.Verifier)(apperrors.HandleFunc(next))
}

func (r *Router) limited(scope string, limit int, next http.Handler) http.Handler {
	return middleware.RateLimit(r.deps.Limiter, limit, r.deps.RateLimits.Window, middleware.ByClientIP(scope))(next)
}
