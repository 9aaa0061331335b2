package youtube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type memCache struct {
	mu   sync.Mutex
	data map[string]Metadata
	ttl  time.Duration
}

func newMemCache() *memCache { return &memCache{data: map[string]Metadata{}} }

func (m *memCache) GetJSON(ctx context.Context, key string, dst any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if ok {
		*dst.(*Metadata) = v
	}
	return ok
}

func (m *memCache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = v.(Metadata)
	m.ttl = ttl
	return nil
}

func newTestClient(t *testing.T, apiKey string, cache Cache, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewClient(apiKey, cache).WithBaseURL(srv.URL, srv.Client()), &calls
}

func TestVideoMetadata_Success(t *testing.T) {
	client, _ := newTestClient(t, "key", nil, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/videos" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("part") != "snippet" || q.Get("id") != "dQw4w9WgXcQ" || q.Get("key") != "key" {
			t.Errorf("unexpected query %v", q)
		}
		w.Write([]byte(`{"items":[{"id":"dQw4w9WgXcQ","snippet":{"title":"Never Gonna Give You Up","channelTitle":"Rick Astley"}}]}`))
	})

	meta := client.VideoMetadata(context.Background(), "dQw4w9WgXcQ")
	if meta.Title != "Never Gonna Give You Up" || meta.ChannelName != "Rick Astley" {
		t.Errorf("unexpected metadata %+v", meta)
	}
}

func TestVideoMetadata_FailuresYieldEmpty(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found status", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }},
		{"quota exceeded", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) }},
		{"empty items", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"items":[]}`)) }},
		{"malformed", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{`)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, "key", nil, tt.handler)
			if meta := client.VideoMetadata(context.Background(), "dQw4w9WgXcQ"); !meta.Empty() {
				t.Errorf("expected empty metadata, got %+v", meta)
			}
		})
	}
}

func TestVideoMetadata_NoAPIKey(t *testing.T) {
	client, calls := newTestClient(t, "", nil, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[{"snippet":{"title":"x"}}]}`))
	})

	if meta := client.VideoMetadata(context.Background(), "dQw4w9WgXcQ"); !meta.Empty() {
		t.Errorf("expected empty metadata, got %+v", meta)
	}
	if atomic.LoadInt32(calls) != 0 {
		t.Error("expected no request without api key")
	}
}

func TestVideoMetadata_Cached(t *testing.T) {
	cache := newMemCache()
	client, calls := newTestClient(t, "key", cache, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[{"snippet":{"title":"Song","channelTitle":"Band"}}]}`))
	})

	first := client.VideoMetadata(context.Background(), "dQw4w9WgXcQ")
	second := client.VideoMetadata(context.Background(), "dQw4w9WgXcQ")

	if first != second {
		t.Errorf("cached result differs: %+v vs %+v", first, second)
	}
	if n := atomic.LoadInt32(calls); n != 1 {
		t.Errorf("expected one upstream call, got %d", n)
	}
	if cache.ttl != 24*time.Hour {
		t.Errorf("expected 24h ttl, got %v", cache.ttl)
	}
}

func TestVideoMetadata_FailureNotCached(t *testing.T) {
	cache := newMemCache()
	client, calls := newTestClient(t, "key", cache, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	client.VideoMetadata(context.Background(), "dQw4w9WgXcQ")
	client.VideoMetadata(context.Background(), "dQw4w9WgXcQ")

	if n := atomic.LoadInt32(calls); n != 2 {
		t.Errorf("expected failures to be retried on next lookup, got %d calls", n)
	}
}
