package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lehrershow/songsubmit/internal/logger"
)

const (
	// DefaultBaseURL is the Web API root
	DefaultBaseURL   = "https://api.spotify.com/v1"
	requestTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20

	searchLimit       = 5
	searchCacheTTL    = 10 * time.Minute
	searchCachePrefix = "spotify:search:"
)

var (
	// ErrNotFound is returned when the API has no such track
	ErrNotFound = errors.New("track not found")

	// ErrUpstream is returned for any other failed API call
	ErrUpstream = errors.New("spotify request failed")
)

// Track is a search hit
type Track struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	AlbumArt   *string `json:"albumArt"`
	SpotifyURL string  `json:"spotifyUrl"`
}

// TrackDetails is a single track lookup
type TrackDetails struct {
	Track
	AlbumName  string  `json:"albumName"`
	DurationMs int     `json:"durationMs"`
	PreviewURL *string `json:"previewUrl"`
}

// Cache stores search results between lookups
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) bool
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// Tokens hands out bearer tokens. *TokenCache satisfies it.
type Tokens interface {
	Token(ctx context.Context) (string, error)
	Invalidate(stale string)
}

// Client calls the Spotify Web API
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     Tokens
	cache      Cache
	log        *logger.Logger
}

// NewClient creates a new API client. A nil cache disables result caching.
func NewClient(tokens Tokens, cache Cache) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    DefaultBaseURL,
		tokens:     tokens,
		cache:      cache,
		log:        logger.Default().WithComponent("spotify"),
	}
}

// WithBaseURL returns the client pointed at another API root
func (c *Client) WithBaseURL(baseURL string, hc *http.Client) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// raw Web API objects, only the fields we read
type spImage struct {
	URL string `json:"url"`
}

type spTrack struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DurationMs int    `json:"duration_ms"`
	PreviewURL string `json:"preview_url"`
	Artists    []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name   string    `json:"name"`
		Images []spImage `json:"images"`
	} `json:"album"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

type spSearchResponse struct {
	Tracks struct {
		Items []spTrack `json:"items"`
	} `json:"tracks"`
}

func (t spTrack) toTrack() Track {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}

	var albumArt *string
	if len(t.Album.Images) > 0 && t.Album.Images[0].URL != "" {
		u := t.Album.Images[0].URL
		albumArt = &u
	}

	return Track{
		ID:         t.ID,
		Title:      t.Name,
		Artist:     strings.Join(names, ", "),
		AlbumArt:   albumArt,
		SpotifyURL: t.ExternalURLs.Spotify,
	}
}

// Search returns up to five tracks matching query
func (c *Client) Search(ctx context.Context, query string) ([]Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Track{}, nil
	}

	cacheKey := searchCachePrefix + strings.ToLower(query)
	if c.cache != nil {
		var cached []Track
		if c.cache.GetJSON(ctx, cacheKey, &cached) {
			return cached, nil
		}
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("type", "track")
	q.Set("limit", fmt.Sprint(searchLimit))

	var raw spSearchResponse
	if err := c.get(ctx, "/search?"+q.Encode(), &raw); err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(raw.Tracks.Items))
	for _, item := range raw.Tracks.Items {
		tracks = append(tracks, item.toTrack())
	}

	if c.cache != nil {
		c.cache.SetJSON(ctx, cacheKey, tracks, searchCacheTTL)
	}
	return tracks, nil
}

// GetTrack fetches a single track by ID
func (c *Client) GetTrack(ctx context.Context, id string) (*TrackDetails, error) {
	var raw spTrack
	if err := c.get(ctx, "/tracks/"+url.PathEscape(id), &raw); err != nil {
		return nil, err
	}

	details := &TrackDetails{
		Track:      raw.toTrack(),
		AlbumName:  raw.Album.Name,
		DurationMs: raw.DurationMs,
	}
	if raw.PreviewURL != "" {
		p := raw.PreviewURL
		details.PreviewURL = &p
	}
	return details, nil
}

// get performs an authorized GET. A 401 invalidates the token and the call
// is repeated once with a fresh one.
func (c *Client) get(ctx context.Context, pathAndQuery string, dst any) error {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}

		status, err := c.do(ctx, pathAndQuery, token, dst)
		if err != nil {
			return err
		}

		switch {
		case status == http.StatusOK:
			return nil
		case status == http.StatusUnauthorized && attempt == 0:
			c.log.Info(ctx, "spotify rejected token, refreshing")
			c.tokens.Invalidate(token)
			continue
		case status == http.StatusNotFound:
			return ErrNotFound
		default:
			return fmt.Errorf("%w: unexpected status code: %d", ErrUpstream, status)
		}
	}
	return fmt.Errorf("%w: unauthorized after token refresh", ErrUpstream)
}

func (c *Client) do(ctx context.Context, pathAndQuery, token string, dst any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathAndQuery, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return resp.StatusCode, nil
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(dst); err != nil {
		return 0, fmt.Errorf("%w: failed to decode response: %v", ErrUpstream, err)
	}
	return resp.StatusCode, nil
}
