package ratelimit

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(rules []Rule) (*Limiter, *time.Time) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	l := NewLimiter(rules)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllow_SlidingWindow(t *testing.T) {
	l, now := newTestLimiter([]Rule{
		{PathPrefix: "/token", MaxRequests: 20, Window: time.Minute},
	})

	for i := 0; i < 20; i++ {
		require.True(t, l.Allow("10.0.0.1", "/token"), "request %d should pass", i)
	}

	assert.False(t, l.Allow("10.0.0.1", "/token"), "21st request in window should be rejected")

	// A different client has its own window.
	assert.True(t, l.Allow("10.0.0.2", "/token"))

	// After the window has passed, requests succeed again.
	*now = now.Add(61 * time.Second)
	assert.True(t, l.Allow("10.0.0.1", "/token"))
}

func TestAllow_RejectedRequestsNotRecorded(t *testing.T) {
	l, now := newTestLimiter([]Rule{
		{PathPrefix: "/register", MaxRequests: 2, Window: time.Minute},
	})

	require.True(t, l.Allow("10.0.0.1", "/register"))
	*now = now.Add(30 * time.Second)
	require.True(t, l.Allow("10.0.0.1", "/register"))

	// Hammering while limited must not extend the penalty.
	for i := 0; i < 50; i++ {
		assert.False(t, l.Allow("10.0.0.1", "/register"))
	}

	// The first timestamp expires at +60s; one slot opens up.
	*now = now.Add(31 * time.Second)
	assert.True(t, l.Allow("10.0.0.1", "/register"))
}

func TestAllow_FirstMatchingRuleWins(t *testing.T) {
	l, _ := newTestLimiter([]Rule{
		{PathPrefix: "/consent", MaxRequests: 1, Window: time.Minute},
		{PathPrefix: "/consent/approve", MaxRequests: 100, Window: time.Minute},
	})

	require.True(t, l.Allow("10.0.0.1", "/consent/approve"))
	// The broader /consent rule matched first and its budget is spent.
	assert.False(t, l.Allow("10.0.0.1", "/consent/approve"))
}

func TestAllow_UnmatchedPathPasses(t *testing.T) {
	l, _ := newTestLimiter([]Rule{
		{PathPrefix: "/token", MaxRequests: 1, Window: time.Minute},
	})

	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("10.0.0.1", "/health"))
	}
}

func TestStaleWindowEviction(t *testing.T) {
	l, now := newTestLimiter([]Rule{
		{PathPrefix: "/mcp", MaxRequests: 120, Window: time.Minute},
	})
	l.maxTracked = 10

	for i := 0; i < 10; i++ {
		require.True(t, l.Allow(fmt.Sprintf("10.0.0.%d", i), "/mcp"))
	}

	// Past twice the largest window, a new client triggers the sweep and
	// the old windows are reclaimed.
	*now = now.Add(3 * time.Minute)
	require.True(t, l.Allow("10.0.1.1", "/mcp"))

	l.mu.Lock()
	n := len(l.windows)
	l.mu.Unlock()
	assert.Equal(t, 1, n)
}

func TestMiddleware(t *testing.T) {
	l, _ := newTestLimiter([]Rule{
		{PathPrefix: "/token", MaxRequests: 1, Window: time.Minute},
	})

	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = "192.0.2.7:51234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do("/token").Code)

	rec := do("/token")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error": "Rate limit exceeded. Try again later."}`, rec.Body.String())
}

func TestLoadRules(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - path_prefix: /token
    max_requests: 20
    window_seconds: 60
  - path_prefix: /mcp
    max_requests: 120
    window_seconds: 60
`), 0o600))

		rules, err := LoadRules(path)
		require.NoError(t, err)
		require.Len(t, rules, 2)
		assert.Equal(t, Rule{PathPrefix: "/token", MaxRequests: 20, Window: time.Minute}, rules[0])
	})

	t.Run("rejects non-positive limits", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - path_prefix: /token
    max_requests: 0
    window_seconds: 60
`), 0o600))

		_, err := LoadRules(path)
		require.Error(t, err)
	})
}
