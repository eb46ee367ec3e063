package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opticavillalba/authcore/pkg/httpx"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = addr
	return req
}

func TestCompositeKeyExtractor(t *testing.T) {
	static := func(v string) httpx.KeyExtractor {
		return func(*http.Request) string { return v }
	}

	t.Run("combines multiple extractors", func(t *testing.T) {
		extractor := httpx.CompositeKeyExtractor(":", static("192.168.1.1"), static("alice"))
		require.Equal(t, "192.168.1.1:alice", extractor(requestFrom("192.168.1.1:1")))
	})

	t.Run("skips empty values", func(t *testing.T) {
		extractor := httpx.CompositeKeyExtractor(":", static("192.168.1.1"), static(""))
		require.Equal(t, "192.168.1.1", extractor(requestFrom("192.168.1.1:1")))
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("allows requests under limit", func(t *testing.T) {
		config := httpx.RateLimitConfig{RequestsPerWindow: 5, Window: time.Second, Burst: 5}
		limited := httpx.RateLimitByIP(config)(okHandler)

		for i := range 5 {
			rec := httptest.NewRecorder()
			limited.ServeHTTP(rec, requestFrom("192.168.1.1:12345"))
			require.Equal(t, http.StatusOK, rec.Code, "request %d should succeed", i+1)
		}
	})

	t.Run("blocks requests over limit", func(t *testing.T) {
		var rejected atomic.Int32
		config := httpx.RateLimitConfig{
			RequestsPerWindow: 3,
			Window:            time.Minute,
			Burst:             3,
			OnReject:          func(*http.Request, string) { rejected.Add(1) },
		}
		limited := httpx.RateLimitByIP(config)(okHandler)

		for range 3 {
			rec := httptest.NewRecorder()
			limited.ServeHTTP(rec, requestFrom("192.168.1.1:12345"))
			require.Equal(t, http.StatusOK, rec.Code)
		}

		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, requestFrom("192.168.1.1:12345"))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
		require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		require.Equal(t, "1m0s", rec.Header().Get("X-RateLimit-Window"))
		require.Contains(t, rec.Body.String(), `"error":"rate_limited"`)
		require.EqualValues(t, 1, rejected.Load())
	})

	t.Run("different keys are tracked separately", func(t *testing.T) {
		config := httpx.RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2}
		limited := httpx.RateLimitByIP(config)(okHandler)

		for range 2 {
			rec := httptest.NewRecorder()
			limited.ServeHTTP(rec, requestFrom("192.168.1.1:12345"))
			require.Equal(t, http.StatusOK, rec.Code)
		}

		rec1 := httptest.NewRecorder()
		limited.ServeHTTP(rec1, requestFrom("192.168.1.1:12345"))
		require.Equal(t, http.StatusTooManyRequests, rec1.Code)

		rec2 := httptest.NewRecorder()
		limited.ServeHTTP(rec2, requestFrom("192.168.1.2:12345"))
		require.Equal(t, http.StatusOK, rec2.Code)
	})

	t.Run("allows request when key extractor returns empty", func(t *testing.T) {
		config := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}
		limited := httpx.RateLimitMiddleware(config, func(*http.Request) string { return "" })(okHandler)

		for range 3 {
			rec := httptest.NewRecorder()
			limited.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			require.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("uses the address resolved by ClientIPMiddleware", func(t *testing.T) {
		config := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}
		h := httpx.Chain(okHandler, httpx.ClientIPMiddleware(true), httpx.RateLimitByIP(config))

		first := requestFrom("10.0.0.1:1")
		first.Header.Set("X-Forwarded-For", "203.0.113.7")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, first)
		require.Equal(t, http.StatusOK, rec.Code)

		// Same proxy, different client: separate bucket.
		second := requestFrom("10.0.0.1:1")
		second.Header.Set("X-Forwarded-For", "203.0.113.8")
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, second)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestParseRateLimitFromEnv(t *testing.T) {
	defaults := httpx.RateLimitConfig{RequestsPerWindow: 5, Window: time.Minute, Burst: 5}

	t.Setenv("RATELIMIT_TEST_REQUESTS", "50")
	t.Setenv("RATELIMIT_TEST_WINDOW_SEC", "10")
	t.Setenv("RATELIMIT_TEST_BURST", "not-a-number")

	cfg := httpx.ParseRateLimitFromEnv("TEST", defaults)
	require.Equal(t, 50, cfg.RequestsPerWindow)
	require.Equal(t, 10*time.Second, cfg.Window)
	require.Equal(t, 5, cfg.Burst, "invalid values keep the default")
}

func TestRateLimitProfiles(t *testing.T) {
	for name, config := range map[string]httpx.RateLimitConfig{
		"auth":    httpx.AuthLimit,
		"session": httpx.SessionLimit,
		"public":  httpx.PublicLimit,
	} {
		t.Run(name, func(t *testing.T) {
			require.Greater(t, config.RequestsPerWindow, 0)
			require.Greater(t, config.Window, time.Duration(0))
			require.Greater(t, config.Burst, 0)
		})
	}
	require.Less(t, httpx.AuthLimit.RequestsPerWindow, httpx.PublicLimit.RequestsPerWindow)
}

func BenchmarkRateLimitMiddleware(b *testing.B) {
	config := httpx.RateLimitConfig{RequestsPerWindow: 1000000, Window: time.Minute, Burst: 1000}
	limited := httpx.RateLimitByIP(config)(okHandler)

	b.ResetTimer()
	for range b.N {
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, requestFrom("192.168.1.1:12345"))
	}
}
