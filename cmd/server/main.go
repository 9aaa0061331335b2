package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lehrershow/songsubmit/internal/api"
	"github.com/lehrershow/songsubmit/internal/auth"
	"github.com/lehrershow/songsubmit/internal/cache"
	"github.com/lehrershow/songsubmit/internal/config"
	"github.com/lehrershow/songsubmit/internal/db"
	apperrors "github.com/lehrershow/songsubmit/internal/errors"
	"github.com/lehrershow/songsubmit/internal/health"
	"github.com/lehrershow/songsubmit/internal/logger"
	"github.com/lehrershow/songsubmit/internal/metrics"
	"github.com/lehrershow/songsubmit/internal/middleware"
	"github.com/lehrershow/songsubmit/internal/settings"
	"github.com/lehrershow/songsubmit/internal/spotify"
	"github.com/lehrershow/songsubmit/internal/storage"
	"github.com/lehrershow/songsubmit/internal/submission"
	"github.com/lehrershow/songsubmit/internal/turnstile"
	"github.com/lehrershow/songsubmit/internal/validators"
	"github.com/lehrershow/songsubmit/internal/websocket"
	"github.com/lehrershow/songsubmit/internal/youtube"
)

var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error(ctx, "failed to load configuration", err)
		os.Exit(1)
	}
	logger.SetDefault(logger.New(os.Stdout, logger.ParseLevel(cfg.LogLevel), "server"))
	log := logger.Default()

	if err := cfg.Validate(); err != nil {
		log.Error(ctx, "invalid configuration", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "server stopped with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	database, err := apperrors.RetryWithResult(ctx, apperrors.StartupRetryConfig(), func(ctx context.Context) (*db.DB, error) {
		return db.New(ctx, cfg.DSN())
	})
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return err
	}

	m := metrics.Default()

	// Optional backends stay untyped nil when unconfigured so the consumers'
	// nil checks see them as absent.
	var (
		lookupCache  *cache.Cache
		limiter      middleware.Limiter
		redisCheck   health.CheckFunc
		storageCheck health.CheckFunc
		exporter     submission.ObjectStore
	)

	if cfg.RedisAddr != "" {
		lookupCache, err = cache.New(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Warn(ctx, "redis unavailable, caching and rate limiting disabled", logger.Fields{"error": err.Error()})
			lookupCache = nil
		} else {
			defer lookupCache.Close()
			limiter = lookupCache
			redisCheck = lookupCache.Ping
		}
	}

	if cfg.MinioEndpoint != "" {
		store, err := storage.New(&storage.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Region:    cfg.MinioRegion,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			log.Warn(ctx, "export bucket unavailable, export disabled", logger.Fields{"error": err.Error()})
		} else {
			exporter = store
			storageCheck = store.Ping
		}
	}

	var (
		spotifyCache spotify.Cache
		youtubeCache youtube.Cache
	)
	if lookupCache != nil {
		spotifyCache = lookupCache
		youtubeCache = lookupCache
	}

	tokens := spotify.NewTokenCache(
		spotify.NewClientCredentials(cfg.SpotifyClientID, cfg.SpotifyClientSecret, ""),
		cfg.SpotifyTokenTTL,
	)
	tokens.OnRefresh(func() { m.IncCounter("spotify_token_refresh") })
	music := spotify.NewClient(tokens, spotifyCache)

	uploads := validators.NewUploadValidator(cfg.UploadThingID, cfg.UploadThingDomain)

	hub := websocket.NewHub(m)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hubDone := make(chan struct{})
	go func() {
		hub.Run(hubCtx)
		close(hubDone)
	}()

	settingsSvc := settings.NewService(db.NewSettingsRepository(database))
	submissions := submission.NewService(
		db.NewSubmissionRepository(database),
		settingsSvc,
		turnstile.NewClient(cfg.TurnstileSecretKey),
		youtube.NewClient(cfg.YouTubeAPIKey, youtubeCache),
		uploads,
	).WithPublisher(hub).WithMetrics(m)
	if exporter != nil {
		submissions.WithExporter(exporter)
	}

	// already checked by cfg.Validate
	proxies, err := logger.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}

	checker := health.NewChecker(&health.CheckerConfig{
		DB:           database.DB,
		RedisCheck:   redisCheck,
		StorageCheck: storageCheck,
		Version:      version,
	})

	router := api.NewRouter(api.Deps{
		Verifier:    auth.NewVerifier(cfg.AuthJWTSecret, cfg.AuthIssuer),
		Health:      health.NewHandler(checker),
		Metrics:     m,
		Submissions: submission.NewHandlers(submissions),
		Settings:    settings.NewHandlers(settingsSvc),
		Validators:  validators.NewHandlers(validators.DefaultRegistry(uploads)),
		Music:       spotify.NewHandlers(music),
		WebSocket:   websocket.NewHandler(hub, cfg.CORSAllowedOrigins),
		Limiter:     limiter,
		RateLimits: api.RateLimits{
			Submit: cfg.SubmitRateLimit,
			Search: cfg.SearchRateLimit,
			Window: cfg.SubmitRateWindow,
		},
		AllowedOrigins: cfg.CORSAllowedOrigins,
		TrustedProxies: proxies,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting server", logger.Fields{
			"addr":    cfg.ServerAddr,
			"version": version,
			"redis":   lookupCache != nil,
			"export":  exporter != nil,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown, so the hub
	// closes them first.
	stopHub()
	<-hubDone
	return srv.Shutdown(shutdownCtx)
}
