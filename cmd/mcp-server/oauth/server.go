// Package oauth exposes the authorization server over HTTP.
package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tradewire/broker-mcp/internal/oauth"
)

// Server provides OAuth 2.1 endpoints backed by the in-memory provider.
type Server struct {
	cfg      oauth.Config
	provider *oauth.Provider
}

// NewServer creates a new OAuth HTTP server.
func NewServer(cfg oauth.Config, provider *oauth.Provider) *Server {
	return &Server{cfg: cfg, provider: provider}
}

// HandleRegister registers dynamic clients.
func (s *Server) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		RedirectURIs            []string `json:"redirect_uris"`
		ClientName              string   `json:"client_name"`
		GrantTypes              []string `json:"grant_types"`
		ResponseTypes           []string `json:"response_types"`
		Scope                   string   `json:"scope"`
		TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", "invalid JSON body")
		return
	}

	if len(req.RedirectURIs) == 0 {
		writeOAuthError(w, http.StatusBadRequest, "invalid_redirect_uri", "redirect_uris is required")
		return
	}
	for _, uri := range req.RedirectURIs {
		if err := validateRedirectURI(uri); err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_redirect_uri", err.Error())
			return
		}
	}

	if len(req.GrantTypes) == 0 {
		req.GrantTypes = []string{"authorization_code", "refresh_token"}
	}
	if len(req.ResponseTypes) == 0 {
		req.ResponseTypes = []string{"code"}
	}
	if req.TokenEndpointAuthMethod == "" {
		req.TokenEndpointAuthMethod = "none"
	}

	clientID, err := randomID("client")
	if err != nil {
		http.Error(w, "Failed to generate client_id", http.StatusInternalServerError)
		return
	}

	var clientSecret string
	var clientSecretHash string
	if req.TokenEndpointAuthMethod != "none" {
		clientSecret, err = oauth.RandomString(48)
		if err != nil {
			http.Error(w, "Failed to generate client_secret", http.StatusInternalServerError)
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(clientSecret), bcrypt.DefaultCost)
		if err != nil {
			http.Error(w, "Failed to hash client_secret", http.StatusInternalServerError)
			return
		}
		clientSecretHash = string(hash)
	}

	client := &oauth.Client{
		ClientID:                clientID,
		ClientSecretHash:        clientSecretHash,
		RedirectURIs:            req.RedirectURIs,
		GrantTypes:              req.GrantTypes,
		ResponseTypes:           req.ResponseTypes,
		Scope:                   req.Scope,
		TokenEndpointAuthMethod: req.TokenEndpointAuthMethod,
		ClientName:              req.ClientName,
	}

	if err := s.provider.RegisterClient(client); err != nil {
		if errors.Is(err, oauth.ErrClientCapacity) {
			writeOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", err.Error())
			return
		}
		http.Error(w, "Failed to store client", http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{
		"client_id":                  clientID,
		"client_id_issued_at":        time.Now().Unix(),
		"client_secret_expires_at":   0,
		"redirect_uris":              req.RedirectURIs,
		"grant_types":                req.GrantTypes,
		"response_types":             req.ResponseTypes,
		"token_endpoint_auth_method": req.TokenEndpointAuthMethod,
		"client_name":                req.ClientName,
		"scope":                      req.Scope,
	}
	if clientSecret != "" {
		resp["client_secret"] = clientSecret
	}

	writeJSON(w, http.StatusCreated, resp)
}

// HandleAuthorize validates the authorization request and redirects the
// requester to the consent page.
func (s *Server) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	if rt := query.Get("response_type"); rt != "code" {
		http.Error(w, "unsupported response_type", http.StatusBadRequest)
		return
	}

	clientID := query.Get("client_id")
	if clientID == "" {
		http.Error(w, "client_id required", http.StatusBadRequest)
		return
	}
	client, ok := s.provider.GetClient(clientID)
	if !ok {
		http.Error(w, "invalid client_id", http.StatusBadRequest)
		return
	}

	redirectURI := query.Get("redirect_uri")
	explicit := redirectURI != ""
	if redirectURI == "" {
		// A client with exactly one registered URI may omit it.
		if len(client.RedirectURIs) != 1 {
			http.Error(w, "redirect_uri required", http.StatusBadRequest)
			return
		}
		redirectURI = client.RedirectURIs[0]
	} else if !redirectAllowed(redirectURI, client.RedirectURIs) {
		http.Error(w, "redirect_uri not allowed", http.StatusBadRequest)
		return
	}

	codeChallenge := query.Get("code_challenge")
	if codeChallenge == "" || strings.ToUpper(query.Get("code_challenge_method")) != "S256" {
		http.Error(w, "PKCE S256 is required", http.StatusBadRequest)
		return
	}

	consentURL, err := s.provider.BeginAuthorization(client, oauth.AuthorizeParams{
		State:                         query.Get("state"),
		RedirectURI:                   redirectURI,
		RedirectURIProvidedExplicitly: explicit,
		CodeChallenge:                 codeChallenge,
		Scopes:                        splitScope(query.Get("scope")),
		Resource:                      query.Get("resource"),
	})
	if err != nil {
		slog.Error("authorize failed", "client_id", clientID, "error", err)
		http.Error(w, "Failed to begin authorization", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, consentURL, http.StatusFound)
}

// HandleConsent renders the consent page for a pending authorization.
func (s *Server) HandleConsent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state := r.URL.Query().Get("state")
	cs, ok := s.provider.LookupConsent(state)
	if !ok {
		http.Error(w, "Invalid or expired state", http.StatusBadRequest)
		return
	}

	clientName := cs.ClientID
	if client, ok := s.provider.GetClient(cs.ClientID); ok && client.ClientName != "" {
		clientName = client.ClientName
	}

	s.renderConsentPage(w, state, clientName, cs.Scopes)
}

// HandleConsentDecision finalizes the consent form submission.
func (s *Server) HandleConsentDecision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form body", http.StatusBadRequest)
		return
	}

	state := r.FormValue("state")
	action := r.FormValue("action")

	var redirectURL string
	var err error
	switch action {
	case "approve":
		redirectURL, err = s.provider.ApproveConsent(state)
	case "deny":
		redirectURL, err = s.provider.DenyConsent(state)
	default:
		http.Error(w, "action must be approve or deny", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, "Invalid or expired state", http.StatusBadRequest)
		return
	}

	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// HandleToken exchanges authorization codes or refresh tokens.
func (s *Server) HandleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "invalid form body")
		return
	}

	grantType := r.FormValue("grant_type")
	switch grantType {
	case "authorization_code":
		s.handleAuthorizationCodeGrant(w, r)
	case "refresh_token":
		s.handleRefreshTokenGrant(w, r)
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", grantType)
	}
}

// HandleRevoke revokes an access or refresh token. Unknown tokens revoke
// silently per RFC 7009.
func (s *Server) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "invalid form body")
		return
	}

	token := r.FormValue("token")
	if token == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}

	s.provider.Revoke(token)
	w.WriteHeader(http.StatusOK)
}

// HandleWellKnown serves OAuth discovery metadata.
func (s *Server) HandleWellKnown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	issuer := s.cfg.Issuer
	data := map[string]interface{}{
		"issuer":                                issuer,
		"authorization_endpoint":                issuer + "/authorize",
		"token_endpoint":                        issuer + "/token",
		"registration_endpoint":                 issuer + "/register",
		"revocation_endpoint":                   issuer + "/revoke",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
		"code_challenge_methods_supported":      []string{"S256"},
		"token_endpoint_auth_methods_supported": []string{"none", "client_secret_post"},
	}

	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")
	if code == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "code is required")
		return
	}

	client, err := s.authenticateClient(r)
	if err != nil {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", err.Error())
		return
	}

	token, err := s.provider.ExchangeCode(client, code, r.FormValue("code_verifier"))
	if err != nil {
		slog.Warn("code exchange rejected", "client_id", client.ClientID, "error", err)
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, token)
}

func (s *Server) handleRefreshTokenGrant(w http.ResponseWriter, r *http.Request) {
	refreshToken := r.FormValue("refresh_token")
	if refreshToken == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	client, err := s.authenticateClient(r)
	if err != nil {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", err.Error())
		return
	}

	token, err := s.provider.Refresh(client, refreshToken, splitScope(r.FormValue("scope")))
	if err != nil {
		slog.Warn("refresh rejected", "client_id", client.ClientID, "error", err)
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, token)
}

func (s *Server) authenticateClient(r *http.Request) (*oauth.Client, error) {
	clientID := r.FormValue("client_id")
	if clientID == "" {
		return nil, fmt.Errorf("client_id required")
	}

	client, ok := s.provider.GetClient(clientID)
	if !ok {
		return nil, fmt.Errorf("invalid client_id")
	}

	if client.TokenEndpointAuthMethod == "none" {
		return client, nil
	}

	secret := r.FormValue("client_secret")
	if secret == "" {
		return nil, fmt.Errorf("client_secret required")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.ClientSecretHash), []byte(secret)); err != nil {
		return nil, fmt.Errorf("invalid client_secret")
	}
	return client, nil
}

var consentTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1.0" />
  <title>Authorize broker-mcp</title>
  <style>
    body { font-family: Arial, sans-serif; background:#0f172a; color:#e2e8f0; display:flex; align-items:center; justify-content:center; height:100vh; margin:0; }
    .card { background:#111827; border:1px solid #1f2937; padding:32px; border-radius:12px; max-width:420px; text-align:center; }
    h1 { margin:0 0 12px; font-size:22px; }
    p { margin:0 0 18px; color:#94a3b8; }
    ul { text-align:left; color:#94a3b8; }
    button { padding:10px 24px; border-radius:8px; border:none; font-size:15px; cursor:pointer; margin:0 6px; }
    .approve { background:#16a34a; color:#fff; }
    .deny { background:#334155; color:#e2e8f0; }
  </style>
</head>
<body>
  <div class="card">
    <h1>Authorize access</h1>
    <p><strong>{{.ClientName}}</strong> is requesting access to your brokerage tools.</p>
    {{if .Scopes}}<ul>{{range .Scopes}}<li>{{.}}</li>{{end}}</ul>{{end}}
    <form method="POST" action="/consent/approve">
      <input type="hidden" name="state" value="{{.State}}" />
      <button class="approve" type="submit" name="action" value="approve">Approve</button>
      <button class="deny" type="submit" name="action" value="deny">Deny</button>
    </form>
  </div>
</body>
</html>`))

func (s *Server) renderConsentPage(w http.ResponseWriter, state, clientName string, scopes []string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = consentTemplate.Execute(w, struct {
		State      string
		ClientName string
		Scopes     []string
	}{State: state, ClientName: clientName, Scopes: scopes})
}

func redirectAllowed(redirectURI string, allowed []string) bool {
	for _, uri := range allowed {
		if uri == redirectURI {
			return true
		}
	}
	return false
}

func validateRedirectURI(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid redirect_uri: %s", raw)
	}
	if parsed.Scheme == "https" {
		return nil
	}
	host := strings.Split(parsed.Host, ":")[0]
	if parsed.Scheme == "http" && (host == "localhost" || host == "127.0.0.1") {
		return nil
	}
	return fmt.Errorf("redirect_uri must use https (or localhost http): %s", raw)
}

func splitScope(scope string) []string {
	return strings.Fields(scope)
}

func randomID(prefix string) (string, error) {
	id, err := oauth.RandomString(18)
	if err != nil {
		return "", err
	}
	return prefix + "_" + id, nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}
