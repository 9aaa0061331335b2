package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/lehrershow/songsubmit/internal/logger"
)

type Config struct {
	ServerAddr string
	LogLevel   string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis backs the lookup caches and the submit rate limiter. Empty disables both.
	RedisAddr     string
	RedisPassword string

	// MinIO/S3 configuration for approved-list exports. Empty endpoint disables export.
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	// Bearer tokens issued by the hosted identity provider
	AuthJWTSecret string
	AuthIssuer    string

	TurnstileSecretKey string

	UploadThingID     string
	UploadThingDomain string

	YouTubeAPIKey string

	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyTokenTTL     time.Duration

	CORSAllowedOrigins []string
	// Peers allowed to set X-Forwarded-For / X-Real-IP. Empty trusts nobody.
	TrustedProxies     []string
	SubmitRateLimit    int
	SubmitRateWindow   time.Duration
	SearchRateLimit    int
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return fromViper(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "lehrershow")
	v.SetDefault("DB_PASSWORD", "lehrershow_dev_password")
	v.SetDefault("DB_NAME", "songsubmit")
	v.SetDefault("DB_SSLMODE", "disable")

	v.SetDefault("MINIO_BUCKET", "lehrershow-exports")
	v.SetDefault("MINIO_REGION", "us-east-1")
	v.SetDefault("MINIO_USE_SSL", false)

	v.SetDefault("UPLOADTHING_DOMAIN", "ufs.sh")
	v.SetDefault("SPOTIFY_TOKEN_TTL", 50*time.Minute)

	v.SetDefault("SUBMIT_RATE_LIMIT", 5)
	v.SetDefault("SUBMIT_RATE_WINDOW", time.Minute)
	v.SetDefault("SEARCH_RATE_LIMIT", 30)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		ServerAddr: v.GetString("SERVER_ADDR"),
		LogLevel:   v.GetString("LOG_LEVEL"),

		DBHost:     v.GetString("DB_HOST"),
		DBPort:     v.GetString("DB_PORT"),
		DBUser:     v.GetString("DB_USER"),
		DBPassword: v.GetString("DB_PASSWORD"),
		DBName:     v.GetString("DB_NAME"),
		DBSSLMode:  v.GetString("DB_SSLMODE"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),

		MinioEndpoint:  v.GetString("MINIO_ENDPOINT"),
		MinioAccessKey: v.GetString("MINIO_ACCESS_KEY"),
		MinioSecretKey: v.GetString("MINIO_SECRET_KEY"),
		MinioBucket:    v.GetString("MINIO_BUCKET"),
		MinioRegion:    v.GetString("MINIO_REGION"),
		MinioUseSSL:    v.GetBool("MINIO_USE_SSL"),

		AuthJWTSecret: v.GetString("AUTH_JWT_SECRET"),
		AuthIssuer:    v.GetString("AUTH_ISSUER"),

		TurnstileSecretKey: v.GetString("TURNSTILE_SECRET_KEY"),

		UploadThingID:     v.GetString("UPLOADTHING_ID"),
		UploadThingDomain: v.GetString("UPLOADTHING_DOMAIN"),

		YouTubeAPIKey: v.GetString("YOUTUBE_API_KEY"),

		SpotifyClientID:     v.GetString("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: v.GetString("SPOTIFY_CLIENT_SECRET"),
		SpotifyTokenTTL:     v.GetDuration("SPOTIFY_TOKEN_TTL"),

		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		TrustedProxies:     splitList(v.GetString("TRUSTED_PROXIES")),
		SubmitRateLimit:    v.GetInt("SUBMIT_RATE_LIMIT"),
		SubmitRateWindow:   v.GetDuration("SUBMIT_RATE_WINDOW"),
		SearchRateLimit:    v.GetInt("SEARCH_RATE_LIMIT"),
	}
}

// Validate reports every missing credential at once so a misconfigured
// deployment fails on boot instead of on the first submission.
func (c *Config) Validate() error {
	var errs []error

	required := []struct {
		key   string
		value string
	}{
		{"TURNSTILE_SECRET_KEY", c.TurnstileSecretKey},
		{"UPLOADTHING_ID", c.UploadThingID},
		{"AUTH_JWT_SECRET", c.AuthJWTSecret},
		{"SPOTIFY_CLIENT_ID", c.SpotifyClientID},
		{"SPOTIFY_CLIENT_SECRET", c.SpotifyClientSecret},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.key))
		}
	}

	if c.SpotifyTokenTTL <= 0 {
		errs = append(errs, errors.New("SPOTIFY_TOKEN_TTL must be positive"))
	}
	if c.SubmitRateLimit < 0 {
		errs = append(errs, errors.New("SUBMIT_RATE_LIMIT cannot be negative"))
	}
	if c.SearchRateLimit < 0 {
		errs = append(errs, errors.New("SEARCH_RATE_LIMIT cannot be negative"))
	}
	if (c.SubmitRateLimit > 0 || c.SearchRateLimit > 0) && c.SubmitRateWindow <= 0 {
		errs = append(errs, errors.New("SUBMIT_RATE_WINDOW must be positive when rate limiting is enabled"))
	}
	if _, err := logger.ParseTrustedProxies(c.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: %w", err))
	}
	if c.MinioEndpoint != "" && (c.MinioAccessKey == "" || c.MinioSecretKey == "") {
		errs = append(errs, errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when MINIO_ENDPOINT is set"))
	}

	return errors.Join(errs...)
}

// DSN returns the lib/pq connection URL. Credentials are escaped, so any
// character is allowed in the password.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": {c.DBSSLMode}}.Encode(),
	}
	return u.String()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
