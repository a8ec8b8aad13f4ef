// Command collector runs the arecibo Collector control plane: the
// announce/policy/heartbeat/events:batch HTTP surface, the event fan-out
// publisher, the audit log, and the admin dashboard.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/contrived-com/arecibo/config"
	"github.com/contrived-com/arecibo/internal/admin"
	"github.com/contrived-com/arecibo/internal/auditlog"
	"github.com/contrived-com/arecibo/internal/auth"
	"github.com/contrived-com/arecibo/internal/collector"
	"github.com/contrived-com/arecibo/internal/eventbus"
	"github.com/contrived-com/arecibo/internal/policystore"
	"github.com/contrived-com/arecibo/internal/schema"
	"github.com/contrived-com/arecibo/internal/secret"
	arserver "github.com/contrived-com/arecibo/internal/server"
	"github.com/contrived-com/arecibo/internal/tracing"
	"github.com/contrived-com/arecibo/internal/websocket"
)

func main() {
	logger := log.New(os.Stdout, "[arecibo-collector] ", log.LstdFlags|log.Lmicroseconds)

	color.New(color.FgCyan, color.Bold).Println("arecibo collector starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadCollector(ctx, secret.NewEnvProvider())
	if err != nil {
		logger.Fatalf("loading configuration: %v", err)
	}

	tracingConfig := tracing.DefaultConfig("arecibo-collector")
	tracingConfig.OTLPEndpoint = cfg.OTLPEndpoint
	tracingConfig.Enabled = cfg.TracingEnabled
	shutdownTracing, err := tracing.InitTracer(tracingConfig)
	if err != nil {
		logger.Fatalf("initializing tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	validator, err := schema.NewRegistry()
	if err != nil {
		logger.Fatalf("compiling schemas: %v", err)
	}

	policies := policystore.New(cfg.PolicyTTLSec, policystore.DefaultPolicies())

	var bus *eventbus.Publisher
	if cfg.NATSURL != "" {
		bus, err = eventbus.NewPublisher(cfg.NATSURL, cfg.NATSStream, logger)
		if err != nil {
			logger.Fatalf("connecting to event bus: %v", err)
		}
		defer bus.Close()
	} else {
		logger.Println("ARECIBO_NATS_URL not set; event fan-out disabled")
	}

	var audit collector.AuditSink
	if cfg.AuditDBDSN != "" {
		conn, err := auditlog.NewConnection(auditlog.DefaultConnectionConfig(cfg.AuditDBDSN))
		if err != nil {
			logger.Fatalf("connecting to audit database: %v", err)
		}
		defer conn.Close()
		repo := auditlog.NewAuditRepository(conn)
		audit = auditlog.NewSink(repo, logger, 2*time.Second)
	} else {
		logger.Println("ARECIBO_AUDIT_DB_DSN not set; audit logging disabled")
	}

	jwtManager := auth.NewJWTManager(cfg.AdminJWTSecret, time.Hour, 7*24*time.Hour)
	users := auth.NewInMemoryUserStore()
	if err := auth.InitializeAdminUsers(users, cfg.AdminUsersRaw); err != nil {
		logger.Fatalf("loading admin users: %v", err)
	}

	hub := websocket.NewHub()
	go hub.Run(ctx)

	adminService := admin.NewService(jwtManager, users, hub, false)

	srv := collector.New(cfg, validator, policies, bus, audit, logger).
		WithAdmin(adminService, adminService)

	router := mux.NewRouter()
	srv.MountRoutes(router)
	adminService.RegisterRoutes(router)
	router.Handle("/api/v1/admin/ws", adminService.WSHandler()).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	handler := otelhttp.NewHandler(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "X-API-Key", "Authorization"},
	}).Handler(router), "collector")

	tlsConfig := &arserver.TLSConfig{
		Enabled:  cfg.TLSEnabled,
		CertFile: cfg.TLSCertFile,
		KeyFile:  cfg.TLSKeyFile,
	}
	httpServer := arserver.NewServer(":"+strconv.Itoa(cfg.HTTPPort), handler, tlsConfig)

	go func() {
		<-ctx.Done()
		logger.Println("shutting down collector...")
		if err := httpServer.Shutdown(10 * time.Second); err != nil {
			logger.Printf("server shutdown error: %v", err)
		}
	}()

	logger.Printf("collector listening on :%d (tls=%t)", cfg.HTTPPort, cfg.TLSEnabled)
	if err := httpServer.Start(); err != nil {
		logger.Fatalf("server error: %v", err)
	}
	logger.Println("collector shut down cleanly")
}
