// Local stdio transport for the brokerage tool surface. OAuth and rate
// limiting do not apply here: the process is spawned by a trusted local
// client, so only the approval gate guards write tools.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/tradewire/broker-mcp/cmd/mcp-server/handlers"
	"github.com/tradewire/broker-mcp/internal/approvals"
	"github.com/tradewire/broker-mcp/internal/broker"
	"github.com/tradewire/broker-mcp/internal/cache"
	"github.com/tradewire/broker-mcp/internal/config"
	"github.com/tradewire/broker-mcp/internal/storage"
	"github.com/tradewire/broker-mcp/pkg/mcp"
)

func main() {
	// stdout carries the protocol, so logs must go to stderr
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	config.LoadEnv("../../.env")

	serverCfg, err := config.LoadServer()
	if err != nil {
		slog.Error("invalid server configuration", "error", err)
		os.Exit(1)
	}

	gate, allowWrite := buildApprovalGate(serverCfg)
	if err := gate.Start(context.Background()); err != nil {
		slog.Error("failed to start approval gate", "error", err)
		os.Exit(1)
	}
	defer gate.Stop()

	server := mcp.NewServer("broker-mcp", "1.0.0")
	handler := handlers.NewTradingHandler(buildBrokerClient(serverCfg), gate, cache.NewMemoryCache(), allowWrite)
	handler.Register(server)

	stdio := mcp.NewStdioServer(server, os.Stdin, os.Stdout)
	if err := stdio.Run(context.Background()); err != nil {
		slog.Error("stdio transport failed", "error", err)
		os.Exit(1)
	}
}

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

func buildBrokerClient(cfg config.Server) broker.Client {
	if cfg.BrokerBaseURL == "" {
		slog.Warn("BROKER_API_BASE_URL not set, brokerage tools will report not ready")
		return broker.NotReadyClient{}
	}
	store, err := storage.NewTokenStoreFromEnv()
	if err != nil {
		slog.Warn("broker token store unavailable, tools will report not ready", "error", err)
		return broker.NotReadyClient{}
	}
	return broker.NewHTTPClient(cfg.BrokerBaseURL, storage.NewSource(store), 30*time.Second)
}
