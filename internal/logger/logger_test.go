package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "github.com/lehrershow/songsubmit/internal/errors"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) LogEntry {
	t.Helper()
	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v (%q)", err, buf.String())
	}
	return entry
}

func TestLogger_BasicLogging(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelDebug, "submission")

	log.Info(context.Background(), "submission stored", Fields{"type": "youtube"})

	entry := decodeEntry(t, &buf)
	if entry.Level != "info" {
		t.Errorf("expected level info, got %s", entry.Level)
	}
	if entry.Component != "submission" {
		t.Errorf("expected component submission, got %s", entry.Component)
	}
	if entry.Fields["type"] != "youtube" {
		t.Errorf("expected field type=youtube, got %v", entry.Fields["type"])
	}
}

func TestLogger_RequestIDPropagation(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelDebug, "")

	ctx := apperrors.WithRequestID(context.Background(), "test-request-id")
	log.Info(ctx, "test message")

	if entry := decodeEntry(t, &buf); entry.RequestID != "test-request-id" {
		t.Errorf("expected request_id 'test-request-id', got %s", entry.RequestID)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelWarn, "")

	log.Debug(context.Background(), "dropped")
	log.Info(context.Background(), "dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %q", buf.String())
	}

	log.Warn(context.Background(), "kept")
	if entry := decodeEntry(t, &buf); entry.Level != "warn" {
		t.Errorf("expected warn, got %s", entry.Level)
	}
}

func TestLogger_ErrorDetails(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelDebug, "")

	log.Error(context.Background(), "insert failed", apperrors.DatabaseError("insert failed").WithCause(errors.New("conn reset")))

	entry := decodeEntry(t, &buf)
	if entry.Error == nil {
		t.Fatal("expected error details")
	}
	if entry.Error.Code != apperrors.CodeDatabaseError {
		t.Errorf("expected code DATABASE_ERROR, got %s", entry.Error.Code)
	}
	if entry.Error.StackTrace == "" {
		t.Error("expected stack trace for server error")
	}
	if entry.Caller == "" {
		t.Error("expected caller for error level")
	}
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelInfo, "").With(Fields{"service": "songsubmit"})

	log.Info(context.Background(), "hello", Fields{"k": "v"})

	entry := decodeEntry(t, &buf)
	if entry.Fields["service"] != "songsubmit" || entry.Fields["k"] != "v" {
		t.Errorf("expected merged fields, got %v", entry.Fields)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSanitizeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"q=abba", "q=abba"},
		{"token=eyJhbGciOi&foo=bar", "token=[REDACTED]&foo=bar"},
		{"api_key=123", "api_key=[REDACTED]"},
		{"flag", "flag"},
	}
	for _, tt := range tests {
		if got := sanitizeQuery(tt.in); got != tt.want {
			t.Errorf("sanitizeQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTrustedProxies_Resolve(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.10"})
	if err != nil {
		t.Fatalf("ParseTrustedProxies: %v", err)
	}

	tests := []struct {
		name    string
		trusted *TrustedProxies
		remote  string
		xff     []string
		realIP  string
		want    string
	}{
		{name: "no headers", trusted: trusted, remote: "203.0.113.9:5555", want: "203.0.113.9"},
		{name: "spoofed header from untrusted peer", trusted: trusted, remote: "203.0.113.9:5555", xff: []string{"10.9.9.9"}, want: "203.0.113.9"},
		{name: "spoofed real ip from untrusted peer", trusted: trusted, remote: "203.0.113.9:5555", realIP: "198.51.100.1", want: "203.0.113.9"},
		{name: "nobody trusted", trusted: nil, remote: "10.0.0.1:5555", xff: []string{"198.51.100.1"}, want: "10.0.0.1"},
		{name: "trusted proxy", trusted: trusted, remote: "10.0.0.1:5555", xff: []string{"198.51.100.1"}, want: "198.51.100.1"},
		{name: "client prepends a fake hop", trusted: trusted, remote: "10.0.0.1:5555", xff: []string{"1.2.3.4, 198.51.100.1"}, want: "198.51.100.1"},
		{name: "proxy chain", trusted: trusted, remote: "192.0.2.10:443", xff: []string{"198.51.100.1, 10.1.2.3"}, want: "198.51.100.1"},
		{name: "repeated header lines", trusted: trusted, remote: "10.0.0.1:5555", xff: []string{"1.2.3.4", "198.51.100.1"}, want: "198.51.100.1"},
		{name: "real ip from trusted proxy", trusted: trusted, remote: "10.0.0.1:5555", realIP: "198.51.100.1", want: "198.51.100.1"},
		{name: "all hops trusted", trusted: trusted, remote: "10.0.0.1:5555", xff: []string{"10.0.0.7"}, want: "10.0.0.7"},
		{name: "garbage hop stops the walk", trusted: trusted, remote: "10.0.0.1:5555", xff: []string{"198.51.100.1, not-an-ip"}, want: "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for _, v := range tt.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}

			if got := tt.trusted.Resolve(req); got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	if p, err := ParseTrustedProxies(nil); err != nil || p != nil {
		t.Errorf("expected nil for no entries, got %v, %v", p, err)
	}
	if _, err := ParseTrustedProxies([]string{"10.0.0.0/33"}); err == nil {
		t.Error("expected error for bad prefix")
	}
	if _, err := ParseTrustedProxies([]string{"proxy.internal"}); err == nil {
		t.Error("expected error for hostname")
	}
}

func TestClientIPMiddleware(t *testing.T) {
	var got string
	handler := ClientIPMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIP(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got != "203.0.113.9" {
		t.Errorf("expected peer address, got %q", got)
	}

	// without the middleware the peer address is used
	if ip := ClientIP(req); ip != "203.0.113.9" {
		t.Errorf("expected peer address fallback, got %q", ip)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	prev := Default()
	SetDefault(New(&buf, LevelDebug, ""))
	defer SetDefault(prev)

	handler := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/submissions", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(buf.String(), "kaboom") {
		t.Errorf("expected panic value in log, got %q", buf.String())
	}
}

func TestLoggingMiddleware_CapturesStatus(t *testing.T) {
	var buf bytes.Buffer
	prev := Default()
	SetDefault(New(&buf, LevelInfo, ""))
	defer SetDefault(prev)

	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/music/search?q=x", nil))

	entry := decodeEntry(t, &buf)
	if status, _ := entry.Fields["status"].(float64); int(status) != http.StatusTeapot {
		t.Errorf("expected logged status 418, got %v", entry.Fields["status"])
	}
}
