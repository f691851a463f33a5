// Package auth guards protected routes with opaque bearer tokens validated
// against the authorization server's token store.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/tradewire/broker-mcp/internal/oauth"
)

type contextKey string

// ClientContextKey holds the authenticated token record on the request
// context.
const ClientContextKey contextKey = "oauth_client"

// Middleware validates Bearer tokens on every request it wraps.
type Middleware struct {
	provider *oauth.Provider
}

// NewMiddleware creates bearer-token middleware backed by the provider.
func NewMiddleware(provider *oauth.Provider) *Middleware {
	return &Middleware{provider: provider}
}

// Handler wraps an HTTP handler with bearer authentication.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS preflight passes through without auth
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token := ExtractTokenFromHeader(r)
		if token == "" {
			http.Error(w, "Unauthorized: missing bearer token", http.StatusUnauthorized)
			return
		}

		record, ok := m.provider.LoadToken(token)
		if !ok {
			http.Error(w, "Unauthorized: invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ClientContextKey, record)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ExtractTokenFromHeader pulls the bearer token from the Authorization
// header, returning "" when absent or malformed.
func ExtractTokenFromHeader(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// ClientIDFromRequest returns the authenticated client id, or "" when the
// request carries no validated token.
func ClientIDFromRequest(r *http.Request) string {
	record, ok := r.Context().Value(ClientContextKey).(*oauth.AccessToken)
	if !ok {
		return ""
	}
	return record.ClientID
}
