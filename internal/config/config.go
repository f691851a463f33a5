// Package config loads server configuration from the environment, with
// optional AWS Secrets Manager hydration and .env support for local
// development.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Server holds process-level settings. OAuth timing and capacity settings
// live in internal/oauth and are loaded separately.
type Server struct {
	Port          string
	BrokerBaseURL string

	// ApprovalBypass auto-approves write tools without human review.
	// Every bypassed call is logged at warning level.
	ApprovalBypass bool

	// AMQPURL enables the human-review approval channel when set.
	AMQPURL         string
	ReviewerIDs     []string
	ApprovalTimeout time.Duration

	RateLimitRulesPath string
}

// LoadServer reads server settings from the environment.
func LoadServer() (Server, error) {
	cfg := Server{
		Port:               getEnv("PORT", "8000"),
		BrokerBaseURL:      os.Getenv("BROKER_API_BASE_URL"),
		ApprovalBypass:     strings.EqualFold(os.Getenv("APPROVAL_BYPASS"), "true"),
		AMQPURL:            os.Getenv("AMQP_URL"),
		ReviewerIDs:        splitCSV(os.Getenv("APPROVAL_REVIEWER_IDS")),
		RateLimitRulesPath: os.Getenv("RATE_LIMIT_RULES_PATH"),
	}

	timeout, err := parseDuration("APPROVAL_TIMEOUT", 5*time.Minute)
	if err != nil {
		return Server{}, err
	}
	cfg.ApprovalTimeout = timeout

	if cfg.AMQPURL != "" && len(cfg.ReviewerIDs) == 0 {
		return Server{}, fmt.Errorf("AMQP_URL is set but APPROVAL_REVIEWER_IDS is empty")
	}

	return cfg, nil
}

// HumanReviewConfigured reports whether the reviewer channel is usable.
func (s Server) HumanReviewConfigured() bool {
	return s.AMQPURL != "" && len(s.ReviewerIDs) > 0
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}
