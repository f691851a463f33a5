package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/tradewire/broker-mcp/cmd/mcp-server/auth"
	"github.com/tradewire/broker-mcp/cmd/mcp-server/handlers"
	oauthhttp "github.com/tradewire/broker-mcp/cmd/mcp-server/oauth"
	"github.com/tradewire/broker-mcp/internal/approvals"
	"github.com/tradewire/broker-mcp/internal/broker"
	"github.com/tradewire/broker-mcp/internal/cache"
	"github.com/tradewire/broker-mcp/internal/config"
	"github.com/tradewire/broker-mcp/internal/oauth"
	"github.com/tradewire/broker-mcp/internal/ratelimit"
	"github.com/tradewire/broker-mcp/internal/storage"
	"github.com/tradewire/broker-mcp/pkg/mcp"
)

const serviceVersion = "1.0.0"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	config.LoadEnv("../../.env")

	serverCfg, err := config.LoadServer()
	if err != nil {
		slog.Error("invalid server configuration", "error", err)
		os.Exit(1)
	}

	oauthCfg, err := oauth.LoadConfigFromEnv()
	if err != nil {
		slog.Error("invalid OAuth configuration", "error", err)
		os.Exit(1)
	}
	provider := oauth.NewProvider(oauthCfg)

	limiter, err := buildLimiter(serverCfg)
	if err != nil {
		slog.Error("invalid rate limit rules", "error", err)
		os.Exit(1)
	}

	gate, allowWrite := buildApprovalGate(serverCfg)
	if err := gate.Start(context.Background()); err != nil {
		slog.Error("failed to start approval gate", "error", err)
		os.Exit(1)
	}
	defer gate.Stop()

	brokerClient, tokenStore := buildBrokerClient(serverCfg)
	if tokenStore != nil {
		defer tokenStore.Close()
	}

	quoteCache, err := cache.NewFromEnv()
	if err != nil {
		slog.Warn("quote cache unavailable, using in-memory", "error", err)
		quoteCache = cache.NewMemoryCache()
	}

	// MCP surface
	mcpServer := mcp.NewServer("broker-mcp", serviceVersion)
	tradingHandler := handlers.NewTradingHandler(brokerClient, gate, quoteCache, allowWrite)
	tradingHandler.Register(mcpServer)

	mcpHandler := mcp.NewHTTPHandler(mcpServer, auth.ClientIDFromRequest)
	authMiddleware := auth.NewMiddleware(provider)

	// OAuth surface
	oauthServer := oauthhttp.NewServer(oauthCfg, provider)

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", oauthServer.HandleWellKnown)
	mux.HandleFunc("/register", oauthServer.HandleRegister)
	mux.HandleFunc("/authorize", oauthServer.HandleAuthorize)
	mux.HandleFunc("/consent", oauthServer.HandleConsent)
	mux.HandleFunc("/consent/approve", oauthServer.HandleConsentDecision)
	mux.HandleFunc("/token", oauthServer.HandleToken)
	mux.HandleFunc("/revoke", oauthServer.HandleRevoke)
	mux.Handle("/mcp", authMiddleware.Handler(mcpHandler))
	mux.HandleFunc("/health", handleHealth)

	// Rate limiting wraps everything so rejected requests never reach a
	// handler; CORS sits outside so 429 responses still carry the headers.
	handler := corsMiddleware(limiter.Middleware(mux))

	addr := ":" + serverCfg.Port
	slog.Info("starting broker-mcp server",
		"addr", addr,
		"issuer", oauthCfg.Issuer,
		"write_tools", allowWrite,
		"approval_bypass", serverCfg.ApprovalBypass,
	)
	if err := http.ListenAndServe(addr, handler); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func buildLimiter(cfg config.Server) (*ratelimit.Limiter, error) {
	rules := ratelimit.DefaultRules()
	if cfg.RateLimitRulesPath != "" {
		loaded, err := ratelimit.LoadRules(cfg.RateLimitRulesPath)
		if err != nil {
			return nil, err
		}
		rules = loaded
	}
	return ratelimit.NewLimiter(rules), nil
}

// buildApprovalGate picks the gate from configuration. With neither the
// bypass flag nor a reviewer channel, write tools are disabled outright
// rather than silently auto-approved.
func buildApprovalGate(cfg config.Server) (approvals.Gate, bool) {
	if cfg.ApprovalBypass {
		slog.Warn("approval bypass is active: write operations will be auto-approved and logged")
		return approvals.NewAutoApprover(nil), true
	}

	if cfg.HumanReviewConfigured() {
		channel, err := approvals.DialAMQPChannel(approvals.AMQPSettings{URL: cfg.AMQPURL}, nil)
		if err != nil {
			slog.Error("reviewer channel unavailable, disabling write tools", "error", err)
			return approvals.NewAutoApprover(nil), false
		}
		reviewer := approvals.NewHumanReviewer(channel, approvals.HumanReviewSettings{
			ReviewerIDs: cfg.ReviewerIDs,
			Timeout:     cfg.ApprovalTimeout,
		}, nil)
		return reviewer, true
	}

	slog.Info("no approval backend configured, write tools disabled")
	return approvals.NewAutoApprover(nil), false
}

// buildBrokerClient wires broker credentials from storage. The server still
// starts when no credential is available; tool calls then fail with an
// explicit not-ready error until the broker account is connected.
func buildBrokerClient(cfg config.Server) (broker.Client, storage.TokenStore) {
	if cfg.BrokerBaseURL == "" {
		slog.Warn("BROKER_API_BASE_URL not set, brokerage tools will report not ready")
		return broker.NotReadyClient{}, nil
	}

	store, err := storage.NewTokenStoreFromEnv()
	if err != nil {
		slog.Warn("broker token store unavailable, brokerage tools will report not ready", "error", err)
		return broker.NotReadyClient{}, nil
	}

	if _, err := store.Load(context.Background()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			slog.Warn("no broker token stored yet, brokerage tools will report not ready until one is saved")
		} else {
			slog.Warn("broker token load failed", "error", err)
		}
	}

	return broker.NewHTTPClient(cfg.BrokerBaseURL, storage.NewSource(store), 30*time.Second), store
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "broker-mcp",
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
