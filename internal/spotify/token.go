package spotify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTokenURL is the accounts service token endpoint
	DefaultTokenURL = "https://accounts.spotify.com/api/token"

	// DefaultTokenTTL bounds how long a token is reused even when the
	// provider grants a longer lifetime.
	DefaultTokenTTL = 50 * time.Minute

	expiryMargin = time.Minute
	fetchTimeout = 10 * time.Second
)

// ErrTokenUnavailable is returned when no bearer token could be obtained
var ErrTokenUnavailable = errors.New("spotify token unavailable")

// TokenFetcher obtains a fresh token. *clientcredentials.Config satisfies it.
type TokenFetcher interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

// NewClientCredentials returns the client-credentials fetcher for the
// accounts service. Credentials go in the Basic auth header.
func NewClientCredentials(clientID, clientSecret, tokenURL string) *clientcredentials.Config {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	return &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
}

// TokenCache shares one bearer token across all requests. Readers never
// block each other while the token is valid, and an expired token is
// refreshed by exactly one caller while the rest wait for its result.
type TokenCache struct {
	fetcher   TokenFetcher
	ttl       time.Duration
	now       func() time.Time
	onRefresh func()

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

// NewTokenCache creates a cache around fetcher. A non-positive ttl selects
// DefaultTokenTTL.
func NewTokenCache(fetcher TokenFetcher, ttl time.Duration) *TokenCache {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenCache{
		fetcher: fetcher,
		ttl:     ttl,
		now:     time.Now,
	}
}

// OnRefresh registers fn to run after every successful refresh
func (c *TokenCache) OnRefresh(fn func()) {
	c.onRefresh = fn
}

// Token returns a valid bearer token, fetching one if needed.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		return tok, nil
	}

	ch := c.group.DoChan("token", func() (any, error) {
		// another flight may have finished between our read and this one
		if tok, ok := c.cached(); ok {
			return tok, nil
		}
		// the result is shared, so one caller's cancellation must not fail the others
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		return c.refresh(fctx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops stale if it is still the cached token. A token that was
// already replaced by a concurrent refresh is kept.
func (c *TokenCache) Invalidate(stale string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == stale {
		c.token = ""
		c.expiresAt = time.Time{}
	}
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, true
	}
	return "", false
}

func (c *TokenCache) refresh(ctx context.Context) (string, error) {
	tok, err := c.fetcher.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	if tok == nil || tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrTokenUnavailable)
	}

	now := c.now()
	expiresAt := now.Add(c.ttl)
	if !tok.Expiry.IsZero() {
		if providerExpiry := tok.Expiry.Add(-expiryMargin); providerExpiry.Before(expiresAt) {
			expiresAt = providerExpiry
		}
	}

	c.mu.Lock()
	c.token = tok.AccessToken
	c.expiresAt = expiresAt
	c.mu.Unlock()

	if c.onRefresh != nil {
		c.onRefresh()
	}
	return tok.AccessToken, nil
}
