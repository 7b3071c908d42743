package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/isp-mcp-gateway/internal/apperr"
	"github.com/mmeshcher/isp-mcp-gateway/internal/clock"
)

func newTestClient(t *testing.T, url string, retries int) (*Client, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	c := NewClient(Config{
		BaseURL:       url,
		APIKey:        "secret",
		Timeout:       time.Second,
		RetryAttempts: retries,
	}, WithClock(fc))
	return c, fc
}

func TestGet_SendsAuthAndQuery(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/clientes/" {
			t.Fatalf("path = %s, want /api/clientes/", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Api-Key secret" {
			t.Fatalf("Authorization = %q", got)
		}
		if got := r.URL.Query().Get("search"); got != "juan" {
			t.Fatalf("search = %q, want juan", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"count":1,"results":[{"id_servicio":1}]}`)
	}))
	defer ts.Close()

	c, _ := newTestClient(t, ts.URL+"/api/", 0)

	body, err := c.Get(context.Background(), "clientes/", url.Values{"search": {"juan"}}, 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":1,"results":[{"id_servicio":1}]}`, string(body))
}

func TestGet_CacheAside(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"id_servicio":5}`)
	}))
	defer ts.Close()

	c, fc := newTestClient(t, ts.URL, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Get(ctx, "clientes/5/", nil, time.Minute)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load(), "cache hits must not reach the network")

	_, err := c.Get(ctx, "clientes/5/", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "zero TTL bypasses the cache")

	fc.Advance(2 * time.Minute)
	_, err = c.Get(ctx, "clientes/5/", nil, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load(), "expired entry refetched")

	s := c.Cache().Stats()
	assert.Equal(t, int64(2), s.Hits)
	assert.Equal(t, int64(2), s.Sets)
}

func TestWritesBypassCache(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodGet {
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Fatalf("content-type = %q", ct)
			}
			var payload map[string]any
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Fatalf("decode: %v", err)
			}
		}
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer ts.Close()

	c, _ := newTestClient(t, ts.URL, 0)
	ctx := context.Background()

	_, err := c.Put(ctx, "clientes/5/", map[string]any{"comentarios": "x"})
	require.NoError(t, err)
	_, err = c.Patch(ctx, "clientes/5/", map[string]any{"comentarios": "x"})
	require.NoError(t, err)
	_, err = c.Post(ctx, "tickets/", map[string]any{"asunto": "x"})
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 0, c.Cache().Stats().Size)
}

func TestRetry_SucceedsAfterServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, `{"id_servicio":5}`)
	}))
	defer ts.Close()

	c, fc := newTestClient(t, ts.URL, 3)

	body, err := c.Get(context.Background(), "clientes/5/", nil, 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id_servicio":5}`, string(body))
	assert.Equal(t, int32(3), calls.Load())

	sleeps := fc.Sleeps()
	require.Len(t, sleeps, 2)
	assert.Equal(t, time.Second, sleeps[0])
	assert.Equal(t, 2*time.Second, sleeps[1])
	assert.GreaterOrEqual(t, sleeps[1], sleeps[0])
}

func TestRetry_ExhaustedReturnsAPIError(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c, fc := newTestClient(t, ts.URL, 3)

	_, err := c.Get(context.Background(), "clientes/5/", nil, 0)
	require.Error(t, err)
	assert.Equal(t, apperr.KindAPI, apperr.KindOf(err))
	assert.Equal(t, http.StatusServiceUnavailable, apperr.StatusOf(err))
	assert.Equal(t, int32(4), calls.Load(), "three retries plus the first attempt")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, fc.Sleeps())
}

func TestRetry_ClientErrorsNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"No encontrado."}`)
	}))
	defer ts.Close()

	c, fc := newTestClient(t, ts.URL, 3)

	_, err := c.Get(context.Background(), "clientes/99/", nil, time.Minute)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, fc.Sleeps())
	assert.Equal(t, http.StatusNotFound, apperr.StatusOf(err))
	assert.Contains(t, err.Error(), "No encontrado.")
	assert.Equal(t, 0, c.Cache().Stats().Size, "errors are never cached")
}

func TestNetworkErrorIsRetriedAndClassified(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := ts.URL
	ts.Close()

	c, fc := newTestClient(t, addr, 2)

	_, err := c.Get(context.Background(), "clientes/", nil, 0)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNetwork, apperr.KindOf(err))
	assert.Len(t, fc.Sleeps(), 2)
}

func TestTimeoutClassified(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(time.Second):
		}
	}))
	defer ts.Close()
	defer close(release)

	c := NewClient(Config{BaseURL: ts.URL, APIKey: "k", RetryAttempts: 0},
		WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}))

	_, err := c.Get(context.Background(), "clientes/", nil, 0)
	require.Error(t, err)
	assert.Equal(t, apperr.KindTimeout, apperr.KindOf(err))
}

func TestExtractMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "message", body: `{"message":"Invalid API key"}`, want: "Invalid API key"},
		{name: "error", body: `{"error":"rate limited"}`, want: "rate limited"},
		{name: "detail", body: `{"detail":"Not found."}`, want: "Not found."},
		{name: "nested detail", body: `{"detail":{"email":["invalid"]}}`, want: `{"email":["invalid"]}`},
		{name: "unknown shape dumped", body: `{"email":["Enter a valid email."]}`, want: `{"email":["Enter a valid email."]}`},
		{name: "html page", body: "<html><body><h1>502 Bad Gateway</h1></body></html>", want: "502 Bad Gateway"},
		{name: "plain text", body: "Service Unavailable\n", want: "Service Unavailable"},
		{name: "empty", body: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractMessage([]byte(tt.body)))
		})
	}
}

func TestNonJSONSuccessBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>login</html>")
	}))
	defer ts.Close()

	c, _ := newTestClient(t, ts.URL, 0)
	_, err := c.Get(context.Background(), "clientes/", nil, 0)
	require.Error(t, err)
	assert.Equal(t, apperr.KindAPI, apperr.KindOf(err))
}

func TestEmptySuccessBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	c, _ := newTestClient(t, ts.URL, 0)
	body, err := c.Delete(context.Background(), "tickets/1/")
	require.NoError(t, err)
	assert.Equal(t, "null", string(body))
}

func TestCacheKeySortsParams(t *testing.T) {
	a := CacheKey(http.MethodGet, "/clientes/", url.Values{"b": {"2"}, "a": {"1"}})
	b := CacheKey(http.MethodGet, "clientes/", url.Values{"a": {"1"}, "b": {"2"}})
	assert.Equal(t, a, b)
	assert.Equal(t, "GET clientes/?a=1&b=2", a)
}

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, "http://isp.local/api", normalizeBaseURL("isp.local/api/"))
	assert.Equal(t, "https://isp.local", normalizeBaseURL("https://isp.local"))
}
