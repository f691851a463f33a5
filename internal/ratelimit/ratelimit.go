// Package ratelimit implements in-memory sliding-window rate limiting for
// a single-instance deployment. Requests are classified by path prefix;
// first matching rule wins, unmatched paths pass unthrottled.
package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// Rule limits requests matching a path prefix to MaxRequests per Window.
type Rule struct {
	PathPrefix  string
	MaxRequests int
	Window      time.Duration
}

// DefaultRules mirror the documented per-endpoint policy: registration
// 10/min, token exchange 20/min, authorize and consent 20/min, MCP
// tool-invocation 120/min.
func DefaultRules() []Rule {
	return []Rule{
		{PathPrefix: "/register", MaxRequests: 10, Window: time.Minute},
		{PathPrefix: "/token", MaxRequests: 20, Window: time.Minute},
		{PathPrefix: "/authorize", MaxRequests: 20, Window: time.Minute},
		{PathPrefix: "/consent", MaxRequests: 20, Window: time.Minute},
		{PathPrefix: "/mcp", MaxRequests: 120, Window: time.Minute},
	}
}

// DefaultMaxTrackedWindows caps the number of (client, rule) windows held
// in memory before stale entries are swept.
const DefaultMaxTrackedWindows = 1000

type windowKey struct {
	client string
	prefix string
}

// Limiter tracks sliding request windows per (client address, rule). Safe
// for concurrent use.
type Limiter struct {
	rules      []Rule
	maxTracked int
	maxWindow  time.Duration

	mu      sync.Mutex
	windows map[windowKey][]time.Time

	now func() time.Time
}

// NewLimiter creates a limiter for the given rules, falling back to
// DefaultRules when none are provided.
func NewLimiter(rules []Rule) *Limiter {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	var maxWindow time.Duration
	for _, r := range rules {
		if r.Window > maxWindow {
			maxWindow = r.Window
		}
	}
	return &Limiter{
		rules:      rules,
		maxTracked: DefaultMaxTrackedWindows,
		maxWindow:  maxWindow,
		windows:    make(map[windowKey][]time.Time),
		now:        time.Now,
	}
}

// Allow classifies path against the rules and records the request when it
// is within the limit. It reports false when the request must be rejected;
// rejected requests are not recorded.
func (l *Limiter) Allow(clientAddr, path string) bool {
	var rule *Rule
	for i := range l.rules {
		if hasPrefix(path, l.rules[i].PathPrefix) {
			rule = &l.rules[i]
			break
		}
	}
	if rule == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := windowKey{client: clientAddr, prefix: rule.PathPrefix}

	// Evict timestamps that fell out of the window.
	cutoff := now.Add(-rule.Window)
	window := l.windows[key]
	kept := window[:0]
	for _, ts := range window {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= rule.MaxRequests {
		l.windows[key] = kept
		return false
	}

	l.windows[key] = append(kept, now)

	if len(l.windows) > l.maxTracked {
		l.evictStaleLocked(now)
	}
	return true
}

// evictStaleLocked removes windows whose most recent request is older than
// twice the largest configured window, bounding memory under
// distinct-client churn.
func (l *Limiter) evictStaleLocked(now time.Time) {
	cutoff := now.Add(-2 * l.maxWindow)
	for key, window := range l.windows {
		if len(window) == 0 || window[len(window)-1].Before(cutoff) {
			delete(l.windows, key)
		}
	}
}

func hasPrefix(path, prefix string) bool {
	return len(path) >= len(prefix) && path[:len(prefix)] == prefix
}

// Middleware enforces the limiter per client IP and answers rejected
// requests with a 429 JSON error.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientAddr := clientIP(r)
		if !l.Allow(clientAddr, r.URL.Path) {
			slog.Warn("rate limited",
				"client", clientAddr,
				"path", r.URL.Path,
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "Rate limit exceeded. Try again later.",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
	return host
}
