package validators

import (
	"net/url"
	"regexp"
	"strings"
)

// DefaultUploadDomain is the file host of the upload provider
const DefaultUploadDomain = "ufs.sh"

var uploadPathPattern = regexp.MustCompile(`^/f/([A-Za-z0-9_-]+)(?:/.*)?$`)

const (
	minUploadTokenLength = 8
	maxUploadTokenLength = 256
)

// UploadValidator accepts only file URLs served from our own upload tenant,
// i.e. https://<tenant>.<domain>/f/<token>.
type UploadValidator struct {
	host string
}

// NewUploadValidator creates a validator for the given tenant. An empty
// domain selects DefaultUploadDomain.
func NewUploadValidator(tenantID, domain string) *UploadValidator {
	if domain == "" {
		domain = DefaultUploadDomain
	}
	return &UploadValidator{
		host: strings.ToLower(tenantID + "." + domain),
	}
}

// ValidURL reports whether raw points at a file in our upload tenant
func (v *UploadValidator) ValidURL(raw string) bool {
	_, ok := v.token(raw)
	return ok
}

func (v *UploadValidator) token(raw string) (string, bool) {
	if v.host == "" || strings.HasPrefix(v.host, ".") {
		return "", false
	}

	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	if parsed.Scheme != "https" || parsed.User != nil {
		return "", false
	}
	// Host includes any port, so an explicit port never matches.
	if strings.ToLower(parsed.Host) != v.host {
		return "", false
	}

	m := uploadPathPattern.FindStringSubmatch(parsed.Path)
	if m == nil {
		return "", false
	}
	if n := len(m[1]); n < minUploadTokenLength || n > maxUploadTokenLength {
		return "", false
	}
	return m[1], true
}

// SourceType returns the source type for this validator
func (v *UploadValidator) SourceType() SourceType {
	return SourceUpload
}

// CanHandle returns true if the URL is on the upload provider's file domain
func (v *UploadValidator) CanHandle(rawURL string) bool {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	domain := v.host[strings.Index(v.host, ".")+1:]
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// Validate checks the URL against our tenant and extracts the file token
func (v *UploadValidator) Validate(rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)

	token, ok := v.token(rawURL)
	if !ok {
		return ValidationResult{
			Valid:      false,
			SourceType: SourceUpload,
			URL:        rawURL,
			Error:      "not a file from our upload storage",
		}
	}

	return ValidationResult{
		Valid:      true,
		SourceType: SourceUpload,
		MediaID:    token,
		MediaType:  "file",
		URL:        rawURL,
		Canonical:  "https://" + v.host + "/f/" + token,
	}
}
