package oauth

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default lifetimes and capacity limits for the in-memory provider.
const (
	DefaultAccessTokenTTL  = 24 * time.Hour
	DefaultAuthCodeTTL     = 5 * time.Minute
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour

	DefaultMaxClients       = 10
	DefaultMaxAuthCodes     = 50
	DefaultMaxAccessTokens  = 50
	DefaultMaxRefreshTokens = 50
	DefaultMaxConsentStates = 50
)

// Config holds authorization server settings.
type Config struct {
	// Issuer is the externally visible base URL of this server, used for
	// discovery metadata and consent redirects.
	Issuer string

	AccessTokenTTL  time.Duration
	AuthCodeTTL     time.Duration
	RefreshTokenTTL time.Duration

	MaxClients       int
	MaxAuthCodes     int
	MaxAccessTokens  int
	MaxRefreshTokens int
	MaxConsentStates int
}

// LoadConfigFromEnv loads authorization server config from environment
// variables, applying the documented defaults.
func LoadConfigFromEnv() (Config, error) {
	issuer := strings.TrimSpace(os.Getenv("OAUTH_ISSUER"))
	if issuer == "" {
		return Config{}, fmt.Errorf("OAUTH_ISSUER is required")
	}

	return Config{
		Issuer:           strings.TrimRight(issuer, "/"),
		AccessTokenTTL:   parseDurationEnv("OAUTH_ACCESS_TOKEN_TTL", DefaultAccessTokenTTL),
		AuthCodeTTL:      parseDurationEnv("OAUTH_AUTH_CODE_TTL", DefaultAuthCodeTTL),
		RefreshTokenTTL:  parseDurationEnv("OAUTH_REFRESH_TOKEN_TTL", DefaultRefreshTokenTTL),
		MaxClients:       parseIntEnv("OAUTH_MAX_CLIENTS", DefaultMaxClients),
		MaxAuthCodes:     parseIntEnv("OAUTH_MAX_AUTH_CODES", DefaultMaxAuthCodes),
		MaxAccessTokens:  parseIntEnv("OAUTH_MAX_ACCESS_TOKENS", DefaultMaxAccessTokens),
		MaxRefreshTokens: parseIntEnv("OAUTH_MAX_REFRESH_TOKENS", DefaultMaxRefreshTokens),
		MaxConsentStates: parseIntEnv("OAUTH_MAX_CONSENT_STATES", DefaultMaxConsentStates),
	}, nil
}

func (c Config) withDefaults() Config {
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.AuthCodeTTL <= 0 {
		c.AuthCodeTTL = DefaultAuthCodeTTL
	}
	if c.RefreshTokenTTL <= 0 {
		c.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if c.MaxClients <= 0 {
		c.MaxClients = DefaultMaxClients
	}
	if c.MaxAuthCodes <= 0 {
		c.MaxAuthCodes = DefaultMaxAuthCodes
	}
	if c.MaxAccessTokens <= 0 {
		c.MaxAccessTokens = DefaultMaxAccessTokens
	}
	if c.MaxRefreshTokens <= 0 {
		c.MaxRefreshTokens = DefaultMaxRefreshTokens
	}
	if c.MaxConsentStates <= 0 {
		c.MaxConsentStates = DefaultMaxConsentStates
	}
	return c
}

func parseDurationEnv(key string, fallback time.Duration) time.Duration {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if dur, err := time.ParseDuration(val); err == nil {
			return dur
		}
	}
	return fallback
}

func parseIntEnv(key string, fallback int) int {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}
