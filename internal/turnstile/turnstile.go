package turnstile

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
)

const (
	// DefaultVerifyURL is Cloudflare's siteverify endpoint
	DefaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
	requestTimeout   = 10 * time.Second
	maxResponseBytes = 64 << 10

	// ErrorMissingInputResponse is the provider's code for an empty token
	ErrorMissingInputResponse = "missing-input-response"
)

// ErrVerificationUnavailable is returned when the provider could not be asked
// or its answer could not be read. The caller must treat it as a rejection.
var ErrVerificationUnavailable = errors.New("captcha verification unavailable")

// Result is the provider's verdict for one token
type Result struct {
	Success     bool     `json:"success"`
	ChallengeTS string   `json:"challenge_ts,omitempty"`
	Hostname    string   `json:"hostname,omitempty"`
	ErrorCodes  []string `json:"error-codes,omitempty"`
	Action      string   `json:"action,omitempty"`
}

// Client verifies Turnstile tokens
type Client struct {
	httpClient *http.Client
	secret     string
	verifyURL  string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithVerifyURL points the client at a different endpoint
func WithVerifyURL(u string) Option {
	return func(c *Client) { c.verifyURL = u }
}

// NewClient creates a new Turnstile client for the given server secret
func NewClient(secret string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		secret:     secret,
		verifyURL:  DefaultVerifyURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Verify asks the provider whether token is a solved challenge. It issues at
// most one request and never retries.
func (c *Client) Verify(ctx context.Context, token, remoteIP string) (*Result, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return &Result{Success: false, ErrorCodes: []string{ErrorMissingInputResponse}}, nil
	}

	form := url.Values{}
	form.Set("secret", c.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrVerificationUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", ErrVerificationUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("%w: unexpected status code: %d", ErrVerificationUnavailable, resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrVerificationUnavailable, err)
	}

	return &result, nil
}
