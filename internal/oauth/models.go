package oauth

import "time"

// Client represents a dynamically registered OAuth client.
type Client struct {
	ClientID                string
	ClientSecretHash        string
	RedirectURIs            []string
	GrantTypes              []string
	ResponseTypes           []string
	Scope                   string
	TokenEndpointAuthMethod string
	ClientName              string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// AuthorizeParams carries the validated query parameters of an
// authorization request into the provider.
type AuthorizeParams struct {
	State                         string
	RedirectURI                   string
	RedirectURIProvidedExplicitly bool
	CodeChallenge                 string
	Scopes                        []string
	Resource                      string
}

// ConsentState is the ephemeral record correlating a pending authorization
// request to its eventual approval or denial. Keyed by the opaque state
// token and consumed exactly once.
type ConsentState struct {
	State                         string
	ClientID                      string
	RedirectURI                   string
	RedirectURIProvidedExplicitly bool
	CodeChallenge                 string
	Scopes                        []string
	Resource                      string
}

// AuthCode is a single-use authorization code record.
type AuthCode struct {
	Code          string
	ClientID      string
	RedirectURI   string
	CodeChallenge string
	Scopes        []string
	Resource      string
	ExpiresAt     time.Time
}

// AccessToken is an opaque bearer credential record.
type AccessToken struct {
	Token     string
	ClientID  string
	Scopes    []string
	Resource  string
	ExpiresAt time.Time
}

// RefreshToken is a long-lived rotation credential record. Using it once
// revokes it and issues a fresh access/refresh pair.
type RefreshToken struct {
	Token     string
	ClientID  string
	Scopes    []string
	ExpiresAt time.Time
}

// Token is the token endpoint response pair.
type Token struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}
