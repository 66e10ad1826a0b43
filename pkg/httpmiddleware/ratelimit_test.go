package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, remoteAddr string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_UnderLimit(t *testing.T) {
	h := RateLimit(NewLimiter(5, time.Minute), nil)(okHandler())

	for i := range 5 {
		w := serve(h, "192.168.1.1:12345", nil)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	h := RateLimit(NewLimiter(2, time.Minute), nil)(okHandler())

	for range 2 {
		require.Equal(t, http.StatusOK, serve(h, "10.0.0.1:9999", nil).Code)
	}

	w := serve(h, "10.0.0.1:9999", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var message string
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		if key == "message" {
			var err error
			message, err = d.Str()
			return err
		}
		return d.Skip()
	}))
	assert.Equal(t, "rate limit exceeded", message)
}

func TestRateLimit_DifferentIPs(t *testing.T) {
	h := RateLimit(NewLimiter(1, time.Minute), nil)(okHandler())

	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1:1234", nil).Code)
	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.2:1234", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, "10.0.0.1:5678", nil).Code)
}

func TestRateLimit_CustomKeyFunc(t *testing.T) {
	h := RateLimit(NewLimiter(1, time.Minute), func(r *http.Request) string {
		return r.Header.Get("api_key")
	})(okHandler())

	assert.Equal(t, http.StatusOK, serve(h, "", map[string]string{"api_key": "key-a"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, "", map[string]string{"api_key": "key-a"}).Code)
	assert.Equal(t, http.StatusOK, serve(h, "", map[string]string{"api_key": "key-b"}).Code)
}

func TestClientIP(t *testing.T) {
	for _, tc := range []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"RemoteAddr", "192.168.1.1:4444", nil, "192.168.1.1"},
		{"NoPort", "192.168.1.1", nil, "192.168.1.1"},
		{"ForwardedFor", "192.168.1.1:4444", map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}, "203.0.113.50"},
		{"RealIP", "192.168.1.1:4444", map[string]string{"X-Real-IP": "198.51.100.7"}, "198.51.100.7"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, ClientIP(req))
		})
	}
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l := NewLimiter(10, time.Minute)
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	for range 10 {
		require.True(t, l.Allow("k", start).Allowed)
	}
	require.False(t, l.Allow("k", start.Add(30*time.Second)).Allowed)

	// A quarter into the next window three quarters of the previous count
	// still applies: 10*0.75 = 7.5, so three more requests fit.
	next := start.Add(75 * time.Second)
	for range 3 {
		assert.True(t, l.Allow("k", next).Allowed)
	}
	assert.False(t, l.Allow("k", next).Allowed)

	// Two windows later the history is gone.
	d := l.Allow("k", start.Add(3*time.Minute))
	assert.True(t, d.Allowed)
	assert.Equal(t, 9, d.Remaining)
}

func TestLimiter_Evict(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l.Allow("a", now)
	l.Allow("b", now.Add(90*time.Second))
	require.Equal(t, 2, l.Len())

	l.Evict(now.Add(2 * time.Minute))
	assert.Equal(t, 1, l.Len())
}
