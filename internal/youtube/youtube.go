package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/lehrershow/songsubmit/internal/logger"
)

const (
	// DefaultBaseURL is the YouTube Data API v3 root
	DefaultBaseURL   = "https://www.googleapis.com/youtube/v3"
	requestTimeout   = 5 * time.Second
	maxResponseBytes = 1 << 20

	cacheTTL       = 24 * time.Hour
	cacheKeyPrefix = "yt:meta:"
)

// Metadata is the best-effort enrichment for a video. Either field may be empty.
type Metadata struct {
	Title       string `json:"title,omitempty"`
	ChannelName string `json:"channelName,omitempty"`
}

// Empty reports whether nothing was found
func (m Metadata) Empty() bool {
	return m.Title == "" && m.ChannelName == ""
}

// Cache stores metadata between lookups
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) bool
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// Client fetches video metadata from the YouTube Data API
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	cache      Cache
	log        *logger.Logger
}

// NewClient creates a metadata client. A nil cache disables caching and an
// empty apiKey makes every lookup return empty metadata.
func NewClient(apiKey string, cache Cache) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		cache:      cache,
		log:        logger.Default().WithComponent("youtube"),
	}
}

// WithBaseURL returns the client pointed at another API root
func (c *Client) WithBaseURL(baseURL string, hc *http.Client) *Client {
	c.baseURL = baseURL
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// ytVideosResponse is the raw videos.list response
type ytVideosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
		} `json:"snippet"`
	} `json:"items"`
}

// VideoMetadata looks up title and channel for videoID. It never fails: any
// problem is logged and yields empty Metadata.
func (c *Client) VideoMetadata(ctx context.Context, videoID string) Metadata {
	if videoID == "" {
		return Metadata{}
	}

	if c.cache != nil {
		var cached Metadata
		if c.cache.GetJSON(ctx, cacheKeyPrefix+videoID, &cached) {
			return cached
		}
	}

	if c.apiKey == "" {
		c.log.Debug(ctx, "youtube api key not configured, skipping metadata lookup", logger.Fields{"video_id": videoID})
		return Metadata{}
	}

	meta, err := c.fetch(ctx, videoID)
	if err != nil {
		c.log.Warn(ctx, "youtube metadata lookup failed", logger.Fields{
			"video_id": videoID,
			"error":    err.Error(),
		})
		return Metadata{}
	}

	if c.cache != nil && !meta.Empty() {
		c.cache.SetJSON(ctx, cacheKeyPrefix+videoID, meta, cacheTTL)
	}
	return meta
}

func (c *Client) fetch(ctx context.Context, videoID string) (Metadata, error) {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("id", videoID)
	q.Set("key", c.apiKey)
	endpoint := fmt.Sprintf("%s/videos?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// the URL carries the API key; keep it out of the log
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return Metadata{}, fmt.Errorf("request failed: %w", uerr.Err)
		}
		return Metadata{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Metadata{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var raw ytVideosResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&raw); err != nil {
		return Metadata{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(raw.Items) == 0 {
		return Metadata{}, fmt.Errorf("video %s not found", videoID)
	}

	return Metadata{
		Title:       raw.Items[0].Snippet.Title,
		ChannelName: raw.Items[0].Snippet.ChannelTitle,
	}, nil
}
