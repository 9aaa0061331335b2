package validators

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// youtubeURLPattern is anchored at the start so an 11 character run elsewhere
	// in an arbitrary string is never mistaken for a video ID.
	youtubeURLPattern = regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.|m\.|music\.)?(?:youtu\.be/|youtube\.com/(?:embed/|v/|shorts/|live/|watch\?v=|watch\?.+&v=))([A-Za-z0-9_-]{11})(?:\S+)?$`)

	videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
)

// ExtractVideoID returns the 11 character video ID from a YouTube URL or a
// bare ID. The second return value is false when input matches neither form.
func ExtractVideoID(input string) (string, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", false
	}

	if m := youtubeURLPattern.FindStringSubmatch(input); m != nil {
		return m[1], true
	}

	if videoIDPattern.MatchString(input) {
		return input, true
	}

	return "", false
}

// CanonicalVideoURL returns the watch URL for a video ID
func CanonicalVideoURL(videoID string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
}

// YouTubeValidator validates YouTube URLs
type YouTubeValidator struct{}

// NewYouTubeValidator creates a new YouTube URL validator
func NewYouTubeValidator() *YouTubeValidator {
	return &YouTubeValidator{}
}

// SourceType returns the source type for this validator
func (v *YouTubeValidator) SourceType() SourceType {
	return SourceYouTube
}

// CanHandle returns true for YouTube hosts and for bare video IDs
func (v *YouTubeValidator) CanHandle(rawURL string) bool {
	rawURL = strings.TrimSpace(rawURL)
	if videoIDPattern.MatchString(rawURL) {
		return true
	}

	host, ok := youtubeHost(rawURL)
	return ok && host != ""
}

// Validate validates a YouTube URL and extracts the video ID
func (v *YouTubeValidator) Validate(rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)

	if _, ok := youtubeHost(rawURL); !ok && !videoIDPattern.MatchString(rawURL) {
		return ValidationResult{
			Valid:      false,
			SourceType: SourceYouTube,
			URL:        rawURL,
			Error:      "not a YouTube URL",
		}
	}

	videoID, ok := ExtractVideoID(rawURL)
	if !ok {
		return ValidationResult{
			Valid:      false,
			SourceType: SourceYouTube,
			URL:        rawURL,
			Error:      "could not extract video ID from URL",
		}
	}

	return ValidationResult{
		Valid:      true,
		SourceType: SourceYouTube,
		MediaID:    videoID,
		MediaType:  mediaTypeFor(rawURL),
		URL:        rawURL,
		Canonical:  CanonicalVideoURL(videoID),
	}
}

// youtubeHost returns the normalized host of rawURL if it belongs to YouTube
func youtubeHost(rawURL string) (string, bool) {
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", false
	}

	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")

	switch host {
	case "youtube.com", "youtu.be", "music.youtube.com":
		return host, true
	}
	return "", false
}

func mediaTypeFor(rawURL string) string {
	lower := strings.ToLower(rawURL)
	switch {
	case strings.Contains(lower, "/shorts/"):
		return "short"
	case strings.Contains(lower, "/live/"):
		return "live"
	default:
		return "video"
	}
}
