package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
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

func serve(h http.Handler, mutate func(r *http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeErrorBody(t *testing.T, body []byte) (code int, kind, message string) {
	t.Helper()
	require.NoError(t, jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			code, err = d.Int()
		case "kind":
			kind, err = d.Str()
		case "message":
			message, err = d.Str()
		default:
			return d.Skip()
		}
		return err
	}))
	return code, kind, message
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 3, Window: time.Minute})(okHandler())

	for i := range 3 {
		w := serve(h, nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(2-i), w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := serve(h, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	code, kind, msg := decodeErrorBody(t, w.Body.Bytes())
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate_limited", kind)
	assert.Equal(t, "rate limit exceeded", msg)
}

func TestRateLimit_Disabled(t *testing.T) {
	h := RateLimit(RateLimitConfig{})(okHandler())
	for range 10 {
		w := serve(h, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimit_Keys(t *testing.T) {
	tests := []struct {
		name    string
		first   func(*http.Request)
		second  func(*http.Request)
		limited bool
	}{
		{
			name:    "same ip",
			first:   func(r *http.Request) { r.RemoteAddr = "10.0.0.1:1" },
			second:  func(r *http.Request) { r.RemoteAddr = "10.0.0.1:2" },
			limited: true,
		},
		{
			name:   "different ip",
			first:  func(r *http.Request) { r.RemoteAddr = "10.0.0.1:1" },
			second: func(r *http.Request) { r.RemoteAddr = "10.0.0.2:1" },
		},
		{
			name:    "forwarded for first hop",
			first:   func(r *http.Request) { r.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18") },
			second:  func(r *http.Request) { r.RemoteAddr = "10.9.9.9:1"; r.Header.Set("X-Forwarded-For", "203.0.113.50") },
			limited: true,
		},
		{
			name:   "tokens behind one ip",
			first:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer a") },
			second: func(r *http.Request) { r.Header.Set("Authorization", "Bearer b") },
		},
		{
			name:    "same token from two ips",
			first:   func(r *http.Request) { r.Header.Set("Authorization", "Bearer a") },
			second:  func(r *http.Request) { r.RemoteAddr = "10.0.0.7:1"; r.Header.Set("Authorization", "Bearer a") },
			limited: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())
			require.Equal(t, http.StatusOK, serve(h, tt.first).Code)

			want := http.StatusOK
			if tt.limited {
				want = http.StatusTooManyRequests
			}
			assert.Equal(t, want, serve(h, tt.second).Code)
		})
	}
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 10, Window: time.Minute})
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for range 10 {
		require.True(t, l.take("k", start).allowed)
	}
	require.False(t, l.take("k", start.Add(30*time.Second)).allowed)

	// A quarter into the next window, 75% of the previous 10 still count.
	d := l.take("k", start.Add(75*time.Second))
	require.True(t, d.allowed)
	assert.Equal(t, 1, d.remaining)

	// Two windows later everything is forgotten.
	d = l.take("k", start.Add(3*time.Minute))
	require.True(t, d.allowed)
	assert.Equal(t, 9, d.remaining)
}

func TestLimiter_Evict(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.take("old", now)
	l.take("new", now.Add(2*time.Minute))

	l.evict(now.Add(2*time.Minute + time.Second))
	assert.NotContains(t, l.windows, "old")
	assert.Contains(t, l.windows, "new")
}
