package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewire/broker-mcp/internal/oauth"
)

func issueToken(t *testing.T, p *oauth.Provider) string {
	t.Helper()

	client := &oauth.Client{
		ClientID:                "cli",
		RedirectURIs:            []string{"https://example.com/cb"},
		TokenEndpointAuthMethod: "none",
	}
	require.NoError(t, p.RegisterClient(client))

	_, err := p.BeginAuthorization(client, oauth.AuthorizeParams{
		State:       "st",
		RedirectURI: "https://example.com/cb",
	})
	require.NoError(t, err)
	redirect, err := p.ApproveConsent("st")
	require.NoError(t, err)

	code := codeFromRedirect(t, redirect)
	token, err := p.ExchangeCode(client, code, "")
	require.NoError(t, err)
	return token.AccessToken
}

func codeFromRedirect(t *testing.T, redirect string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, redirect, nil)
	code := req.URL.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

func TestMiddlewareValidToken(t *testing.T) {
	p := oauth.NewProvider(oauth.Config{Issuer: "https://mcp.example.com"})
	token := issueToken(t, p)

	var gotClientID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClientID = ClientIDFromRequest(r)
	})

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	NewMiddleware(p).Handler(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cli", gotClientID)
}

func TestMiddlewareMissingToken(t *testing.T) {
	p := oauth.NewProvider(oauth.Config{Issuer: "https://mcp.example.com"})

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	rec := httptest.NewRecorder()
	NewMiddleware(p).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareUnknownToken(t *testing.T) {
	p := oauth.NewProvider(oauth.Config{Issuer: "https://mcp.example.com"})

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer bmcp_at_forged")
	rec := httptest.NewRecorder()
	NewMiddleware(p).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareRevokedToken(t *testing.T) {
	p := oauth.NewProvider(oauth.Config{Issuer: "https://mcp.example.com"})
	token := issueToken(t, p)
	p.Revoke(token)

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	NewMiddleware(p).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareOptionsPassesThrough(t *testing.T) {
	p := oauth.NewProvider(oauth.Config{Issuer: "https://mcp.example.com"})

	called := false
	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	rec := httptest.NewRecorder()
	NewMiddleware(p).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})).ServeHTTP(rec, req)

	assert.True(t, called)
}

func TestExtractTokenFromHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, ExtractTokenFromHeader(req))

	req.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, ExtractTokenFromHeader(req))

	req.Header.Set("Authorization", "Bearer bmcp_at_x")
	assert.Equal(t, "bmcp_at_x", ExtractTokenFromHeader(req))
}
