package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

var (
	// ErrClientCapacity is returned when the registered-client cap is hit.
	ErrClientCapacity = errors.New("maximum number of registered clients reached")
	// ErrInvalidGrant is returned for absent, expired, or mismatched codes
	// and refresh tokens.
	ErrInvalidGrant = errors.New("invalid grant")
	// ErrUnknownState is returned for a consent state that was never
	// issued, already consumed, or evicted by capacity pressure.
	ErrUnknownState = errors.New("invalid or expired state")
)

// Provider is the single-tenant OAuth 2.1 authorization server. All state
// lives in bounded in-memory stores owned by the instance; it is lost on
// restart and clients re-authenticate transparently. Safe for concurrent
// use.
type Provider struct {
	cfg Config

	mu            sync.Mutex
	clients       map[string]*Client
	consentStates *boundedMap[*ConsentState]
	authCodes     *boundedMap[*AuthCode]
	accessTokens  *boundedMap[*AccessToken]
	refreshTokens *boundedMap[*RefreshToken]

	now func() time.Time
}

// NewProvider creates a provider with the given config, applying defaults
// for unset lifetimes and caps.
func NewProvider(cfg Config) *Provider {
	cfg = cfg.withDefaults()
	return &Provider{
		cfg:           cfg,
		clients:       make(map[string]*Client, cfg.MaxClients),
		consentStates: newBoundedMap[*ConsentState](cfg.MaxConsentStates),
		authCodes:     newBoundedMap[*AuthCode](cfg.MaxAuthCodes),
		accessTokens:  newBoundedMap[*AccessToken](cfg.MaxAccessTokens),
		refreshTokens: newBoundedMap[*RefreshToken](cfg.MaxRefreshTokens),
		now:           time.Now,
	}
}

// GetClient returns the registered client for id.
func (p *Provider) GetClient(clientID string) (*Client, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.clients[clientID]
	return c, ok
}

// RegisterClient stores a client registration. Re-registering an existing
// client id updates it in place and never counts against the cap; a new id
// beyond the cap is rejected rather than evicting an existing client.
func (p *Provider) RegisterClient(client *Client) error {
	if client.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.clients[client.ClientID]; !exists && len(p.clients) >= p.cfg.MaxClients {
		return ErrClientCapacity
	}

	now := p.now()
	if client.CreatedAt.IsZero() {
		client.CreatedAt = now
	}
	client.UpdatedAt = now
	p.clients[client.ClientID] = client
	return nil
}

// BeginAuthorization stores a pending consent state for the request and
// returns the URL of the human consent page. The single-tenant trust model
// validates nothing about the requester beyond the client lookup done by
// the caller.
func (p *Provider) BeginAuthorization(client *Client, params AuthorizeParams) (string, error) {
	state := params.State
	if state == "" {
		var err error
		state, err = RandomString(16)
		if err != nil {
			return "", err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.evictExpiredLocked()

	p.consentStates.set(state, &ConsentState{
		State:                         state,
		ClientID:                      client.ClientID,
		RedirectURI:                   params.RedirectURI,
		RedirectURIProvidedExplicitly: params.RedirectURIProvidedExplicitly,
		CodeChallenge:                 params.CodeChallenge,
		Scopes:                        params.Scopes,
		Resource:                      params.Resource,
	})

	return fmt.Sprintf("%s/consent?state=%s", p.cfg.Issuer, url.QueryEscape(state)), nil
}

// LookupConsent returns the pending consent state without consuming it,
// for rendering the consent page.
func (p *Provider) LookupConsent(state string) (*ConsentState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cs, ok := p.consentStates.get(state)
	return cs, ok
}

// DenyConsent consumes the consent state and returns the redirect URL
// carrying error=access_denied and the original state.
func (p *Provider) DenyConsent(state string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cs, ok := p.consentStates.get(state)
	if !ok {
		return "", ErrUnknownState
	}
	p.consentStates.delete(state)

	return buildRedirect(cs.RedirectURI, map[string]string{
		"error": "access_denied",
		"state": state,
	}), nil
}

// ApproveConsent consumes the consent state, mints a single-use
// authorization code bound to the stored PKCE challenge, and returns the
// redirect URL carrying code and state. The state is deleted atomically
// with code issuance, so a second submission observes ErrUnknownState and
// no double-issuance is possible.
func (p *Provider) ApproveConsent(state string) (string, error) {
	code, err := newAuthCode()
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cs, ok := p.consentStates.get(state)
	if !ok {
		return "", ErrUnknownState
	}

	p.authCodes.set(code, &AuthCode{
		Code:          code,
		ClientID:      cs.ClientID,
		RedirectURI:   cs.RedirectURI,
		CodeChallenge: cs.CodeChallenge,
		Scopes:        cs.Scopes,
		Resource:      cs.Resource,
		ExpiresAt:     p.now().Add(p.cfg.AuthCodeTTL),
	})
	p.consentStates.delete(state)

	return buildRedirect(cs.RedirectURI, map[string]string{
		"code":  code,
		"state": state,
	}), nil
}

// ExchangeCode redeems an authorization code for a token pair. The code is
// consumed whether or not validation succeeds, so two concurrent exchanges
// of the same code resolve to exactly one success. A lazy sweep of all
// time-bounded stores runs on every exchange.
func (p *Provider) ExchangeCode(client *Client, code, codeVerifier string) (*Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.evictExpiredLocked()

	ac, ok := p.authCodes.get(code)
	if !ok {
		return nil, fmt.Errorf("%w: unknown authorization code", ErrInvalidGrant)
	}
	p.authCodes.delete(code)

	if ac.ClientID != client.ClientID {
		return nil, fmt.Errorf("%w: client mismatch", ErrInvalidGrant)
	}
	if err := verifyPKCE(ac.CodeChallenge, codeVerifier); err != nil {
		return nil, err
	}

	return p.issueTokensLocked(client.ClientID, ac.Scopes, ac.Resource)
}

// LoadToken returns the access token record, lazily evicting it when found
// but expired.
func (p *Provider) LoadToken(token string) (*AccessToken, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	at, ok := p.accessTokens.get(token)
	if !ok {
		return nil, false
	}
	if !p.now().Before(at.ExpiresAt) {
		p.accessTokens.delete(token)
		return nil, false
	}
	return at, true
}

// Refresh rotates a refresh token: the presented token is revoked and a
// new access/refresh pair is issued. Requested scopes narrow the grant
// when provided; otherwise the original scopes are inherited.
func (p *Provider) Refresh(client *Client, refreshToken string, scopes []string) (*Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.evictExpiredLocked()

	rt, ok := p.refreshTokens.get(refreshToken)
	if !ok {
		return nil, fmt.Errorf("%w: unknown refresh token", ErrInvalidGrant)
	}
	if rt.ClientID != client.ClientID {
		return nil, fmt.Errorf("%w: client mismatch", ErrInvalidGrant)
	}
	p.refreshTokens.delete(refreshToken)

	effective := scopes
	if len(effective) == 0 {
		effective = rt.Scopes
	}
	return p.issueTokensLocked(client.ClientID, effective, "")
}

// Revoke removes the token from whichever store contains it. Revoking an
// absent token is a silent success.
func (p *Provider) Revoke(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessTokens.delete(token)
	p.refreshTokens.delete(token)
}

func (p *Provider) issueTokensLocked(clientID string, scopes []string, resource string) (*Token, error) {
	accessToken, err := newAccessToken()
	if err != nil {
		return nil, err
	}
	refreshToken, err := newRefreshToken()
	if err != nil {
		return nil, err
	}

	now := p.now()
	p.accessTokens.set(accessToken, &AccessToken{
		Token:     accessToken,
		ClientID:  clientID,
		Scopes:    scopes,
		Resource:  resource,
		ExpiresAt: now.Add(p.cfg.AccessTokenTTL),
	})
	p.refreshTokens.set(refreshToken, &RefreshToken{
		Token:     refreshToken,
		ClientID:  clientID,
		Scopes:    scopes,
		ExpiresAt: now.Add(p.cfg.RefreshTokenTTL),
	})

	return &Token{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(p.cfg.AccessTokenTTL.Seconds()),
		RefreshToken: refreshToken,
		Scope:        strings.Join(scopes, " "),
	}, nil
}

func (p *Provider) evictExpiredLocked() {
	now := p.now()
	p.authCodes.evictExpired(now, func(c *AuthCode) time.Time { return c.ExpiresAt })
	p.accessTokens.evictExpired(now, func(t *AccessToken) time.Time { return t.ExpiresAt })
	p.refreshTokens.evictExpired(now, func(t *RefreshToken) time.Time { return t.ExpiresAt })
}

func verifyPKCE(challenge, verifier string) error {
	if challenge == "" {
		return nil
	}
	if verifier == "" {
		return fmt.Errorf("%w: code_verifier required", ErrInvalidGrant)
	}
	sum := sha256.Sum256([]byte(verifier))
	if base64.RawURLEncoding.EncodeToString(sum[:]) != challenge {
		return fmt.Errorf("%w: invalid code_verifier", ErrInvalidGrant)
	}
	return nil
}

func buildRedirect(base string, params map[string]string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
