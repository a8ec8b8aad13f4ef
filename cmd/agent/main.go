// Command agent runs the arecibo Agent sidecar: it bootstraps against a
// Collector, drains the local ingest socket, and runs the
// heartbeat/policy-refresh/flush control loop until terminated.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/contrived-com/arecibo/config"
	"github.com/contrived-com/arecibo/internal/agent"
	"github.com/contrived-com/arecibo/internal/tracing"
)

func main() {
	logger := log.New(os.Stdout, "[arecibo-agent] ", log.LstdFlags|log.Lmicroseconds)

	color.New(color.FgCyan, color.Bold).Println("arecibo agent starting")

	cfg := config.LoadAgent()
	if cfg.APIKey == "" {
		color.Yellow("ARECIBO_AGENT_API_KEY is not set; authenticated collector calls will likely be rejected")
	}

	tracingConfig := tracing.DefaultConfig(cfg.ServiceName)
	tracingConfig.Environment = cfg.Environment
	tracingConfig.OTLPEndpoint = cfg.OTLPEndpoint
	tracingConfig.Enabled = cfg.TracingEnabled
	shutdownTracing, err := tracing.InitTracer(tracingConfig)
	if err != nil {
		logger.Fatalf("initializing tracing: %v", err)
	}

	rt := agent.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer shutdownTracing(context.Background())

	logger.Printf("starting agent serviceName=%s environment=%s instanceId=%s candidates=%v",
		cfg.ServiceName, cfg.Environment, cfg.InstanceID, cfg.CollectorCandidates)

	if err := rt.Run(ctx); err != nil {
		logger.Fatalf("agent runtime exited with error: %v", err)
	}
	logger.Println("agent shut down cleanly")
}
