package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/agent"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/cache"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/config"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/ingestion"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/provider"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/stream"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/usecase"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/utils"
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	// Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metricsEnabled := cfg.Metrics.Enabled
	observer.InitMetrics(metricsEnabled)

	logger.Log.Info("Starting Daisi WA Reply Orchestrator",
		zap.String("environment", cfg.Environment),
		zap.String("company_id", cfg.Company.ID),
		zap.String("nats_url", cfg.NATS.URL),
	)

	// Initialize repositories
	postgresRepo, err := initPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	// Initialize transition event publisher
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	publisher, err := stream.NewPublisher(startupCtx, cfg.NATS)
	startupCancel()
	if err != nil {
		logger.Log.Fatal("Failed to initialize transition publisher", zap.Error(err))
	}

	// Create repository adapters for the pipeline
	contactRepo := storage.NewContactRepoAdapter(postgresRepo)
	conversationRepo := storage.NewConversationRepoAdapter(postgresRepo)
	messageRepo := storage.NewMessageRepoAdapter(postgresRepo)
	handoffRepo := storage.NewHandoffRepoAdapter(postgresRepo)

	// External collaborators
	agentClient := agent.NewHTTPClient(cfg.Agent)
	providerClient := provider.NewHTTPClient(cfg.Provider)

	// Pipeline components
	optOutCache := cache.NewOptOutCache(cfg.Company.ID, 100_000, 1_000_000, 0.01)
	optOut := usecase.NewOptOutRegistry(contactRepo, optOutCache, publisher, cfg.OptOut.Keywords, cfg.OptOut.AckText)
	identity := usecase.NewIdentityResolver(contactRepo, conversationRepo, cfg.Session.Window)
	session := usecase.NewSessionTracker(conversationRepo, publisher, cfg.Session.Window)
	gate := usecase.NewOutboundGate(providerClient, messageRepo, conversationRepo, optOut, session)
	handoff := usecase.NewHandoffCoordinator(handoffRepo, conversationRepo, gate, publisher)
	orchestrator := usecase.NewOrchestrator(agentClient, messageRepo, cfg.Agent)

	// Create reply worker pool
	replyWorker, err := usecase.NewReplyWorker(
		cfg.WorkerPools.Reply,
		orchestrator,
		handoff,
		gate,
		contactRepo,
		logger.Log,
	)
	if err != nil {
		logger.Log.Fatal("Failed to initialize reply worker pool", zap.Error(err))
	}

	// Create service, injecting the worker pool
	service := usecase.NewInboundService(identity, session, optOut, handoff, gate, replyWorker, messageRepo, conversationRepo, publisher, logger.Log)

	// Create webhook server (also serves /health, /ready and /metrics)
	webhookServer := ingestion.NewServer(strconv.Itoa(cfg.Server.Port), service, logger.Log)

	// Register metrics handler if enabled BEFORE starting the server
	if metricsEnabled {
		webhookServer.RegisterMetricsHandler(promhttp.Handler())
		logger.Log.Info("Metrics endpoint enabled", zap.String("path", "/metrics"), zap.Int("port", cfg.Server.Port))
	} else {
		logger.Log.Info("Metrics endpoint disabled for environment", zap.String("environment", cfg.Environment))
	}

	webhookServer.Start()

	logger.Log.Info("Webhook endpoint available",
		zap.String("webhook", fmt.Sprintf("http://localhost:%d/v1/webhook/{companyID}", cfg.Server.Port)),
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
	)

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", 30*time.Second))

	var wg sync.WaitGroup
	wg.Add(3)

	// Shutdown webhook server first so no new deliveries enter the pipeline
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping webhook server")
		start := time.Now()
		if err := webhookServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping webhook server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] Webhook server stopped",
				zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping webhook server",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Shutdown reply worker pool
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping reply worker pool")
		start := time.Now()
		replyWorker.Stop()
		logger.Log.Info("[shutdown] Reply worker pool stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping reply worker pool",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Close database and stream connections
	utils.SafeGo(func() {
		defer wg.Done()

		logger.Log.Info("[shutdown] Closing PostgreSQL connection")
		pgStart := time.Now()
		if err := postgresRepo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] PostgreSQL connection closed",
				zap.Duration("duration", time.Since(pgStart)))
		}

		logger.Log.Info("[shutdown] Closing NATS connection")
		natsStart := time.Now()
		publisher.Close()
		logger.Log.Info("[shutdown] NATS connection closed",
			zap.Duration("duration", time.Since(natsStart)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while closing connections",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Wait with a timeout for all components to shut down
	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] All components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	logger.Log.Info("Daisi WA Reply Orchestrator shutdown complete")
}

// Initialize PostgreSQL repository
func initPostgresRepo(dsn string, autoMigrate bool) (*storage.PostgresRepo, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	repo, err := storage.NewPostgresRepo(dsn, autoMigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}

	logger.Log.Info("Initialized PostgreSQL repository")
	return repo, nil
}
