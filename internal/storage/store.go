// Package storage persists the upstream brokerage OAuth credential. The
// MCP server's own OAuth state is deliberately in-memory; only the broker
// token survives restarts, so tools keep working without a manual
// re-authentication against the brokerage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrNotFound is returned when no broker token has been stored yet.
var ErrNotFound = errors.New("broker token not found")

// BrokerToken is the upstream brokerage credential as obtained from the
// brokerage's own OAuth flow.
type BrokerToken struct {
	AccessToken  string    `json:"access_token" yaml:"access_token"`
	RefreshToken string    `json:"refresh_token" yaml:"refresh_token"`
	TokenType    string    `json:"token_type" yaml:"token_type"`
	Scope        string    `json:"scope,omitempty" yaml:"scope,omitempty"`
	ExpiresAt    time.Time `json:"expires_at" yaml:"expires_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// TokenStore persists the broker token.
type TokenStore interface {
	Load(ctx context.Context) (*BrokerToken, error)
	Save(ctx context.Context, token *BrokerToken) error
	Ping() error
	Close() error
}

// NewTokenStoreFromEnv selects Postgres when a database URL is configured,
// falling back to a local token file.
func NewTokenStoreFromEnv() (TokenStore, error) {
	if connString := os.Getenv("BROKER_DATABASE_URL"); connString != "" {
		return NewPostgresTokenStore(connString)
	}
	if connString := os.Getenv("DATABASE_URL"); connString != "" {
		return NewPostgresTokenStore(connString)
	}

	path := os.Getenv("BROKER_TOKEN_FILE")
	if path == "" {
		return nil, fmt.Errorf("BROKER_DATABASE_URL, DATABASE_URL, or BROKER_TOKEN_FILE is required")
	}
	return NewFileTokenStore(path)
}

// Source adapts a TokenStore into a per-request token supplier for the
// brokerage HTTP client. Every call re-reads the store so a token
// refreshed out of band is picked up immediately.
type Source struct {
	store TokenStore
}

// NewSource wraps store.
func NewSource(store TokenStore) *Source {
	return &Source{store: store}
}

// AccessToken returns the current broker access token, or an error when
// the token is missing or expired.
func (s *Source) AccessToken(ctx context.Context) (string, error) {
	token, err := s.store.Load(ctx)
	if err != nil {
		return "", err
	}
	if !token.ExpiresAt.IsZero() && !time.Now().Before(token.ExpiresAt) {
		return "", fmt.Errorf("broker token expired at %s", token.ExpiresAt.Format(time.RFC3339))
	}
	return token.AccessToken, nil
}
