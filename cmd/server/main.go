package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/imyashkale/mcphub/internal/authgate"
	"github.com/imyashkale/mcphub/internal/config"
	"github.com/imyashkale/mcphub/internal/database"
	"github.com/imyashkale/mcphub/internal/draft"
	"github.com/imyashkale/mcphub/internal/handlers"
	"github.com/imyashkale/mcphub/internal/logger"
	"github.com/imyashkale/mcphub/internal/migrate"
	"github.com/imyashkale/mcphub/internal/queue"
	"github.com/imyashkale/mcphub/internal/repository"
	"github.com/imyashkale/mcphub/internal/router"
	"github.com/imyashkale/mcphub/internal/services"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {

	ctx := context.Background()

	// Load application configuration
	cfg := config.New()

	logger.Init(cfg.LogLevel)
	logger.WithFields(map[string]interface{}{
		"version": version,
		"backend": cfg.StoreBackend,
	}).Info("Configuration loaded successfully")

	// Initialize the row store
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize %s store: %v", cfg.StoreBackend, err)
	}
	defer closeStore()

	// Initialize repositories
	serverRepo := repository.NewServerRepository(store)
	profileRepo := repository.NewProfileRepository(store)
	logger.Infof("Repositories initialized with %s backend", cfg.StoreBackend)

	// Initialize services
	fetcher := services.NewReadmeFetcher(cfg.GitHubRawBaseURL, cfg.ReadmeFetchTimeout)
	var testerOpts []services.TesterOption
	if cfg.TesterAllowPrivate {
		logger.Warn("Endpoint tests may reach private addresses")
		testerOpts = append(testerOpts, services.WithPrivateAddresses())
	}
	tester := services.NewTester(0, version, testerOpts...)
	providers := authgate.Parse(cfg.AuthProviders)
	logger.WithField("providers", providers.Enabled()).Info("Sign-in providers configured")

	// Initialize enrichment queue and workers
	jobQueue := queue.NewJobQueue(cfg.EnrichQueueSize)
	workerPool := queue.NewWorkerPool(jobQueue, cfg.EnrichWorkers)
	workerPool.Start()
	logger.Infof("Enrichment workers started (%d workers)", cfg.EnrichWorkers)

	drafts := draft.NewStore(cfg.DraftTTL)

	// Setup router
	r := router.Setup(router.Handlers{
		Health:   handlers.NewHealthHandler(),
		Auth:     handlers.NewAuthHandler(providers, profileRepo),
		Servers:  handlers.NewServerHandler(serverRepo, tester),
		Profiles: handlers.NewProfileHandler(profileRepo),
		Readme:   handlers.NewReadmeHandler(fetcher),
		Drafts: handlers.NewDraftHandler(drafts, serverRepo, draft.Deps{
			Fetcher:   fetcher,
			Scheduler: jobQueue,
		}),
	}, router.Options{
		CorsAllowedOrigin: cfg.CorsAllowedOrigin,
		JWTSecret:         cfg.AuthJWTSecret,
		JWTAudience:       cfg.AuthJWTAudience,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Setup graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutting down server gracefully...")

		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("HTTP server shutdown failed")
		}

		// Drafts are gone after a restart, cancel their pending fetches
		drafts.Close()

		// Close job queue to stop accepting new tasks
		jobQueue.Close()
		logger.Info("Job queue closed, waiting for workers to finish...")

		// Wait for workers to finish processing queued tasks
		workerPool.Wait()
		logger.Info("All workers stopped")
	}()

	// Start server
	logger.Infof("Starting server on :%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Failed to start server: %v", err)
	}
	<-done
}

// openStore selects the row store for the configured backend
func openStore(ctx context.Context, cfg *config.Config) (database.RowStore, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		if cfg.AutoMigrate {
			if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
				return nil, nil, err
			}
			logger.Info("Database migrations applied")
		}
		pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Postgres pool initialized")
		return database.NewPostgresStore(pool), pool.Close, nil

	case config.BackendDynamoDB:
		dbConfig := database.NewConfig(cfg)
		logger.WithFields(map[string]interface{}{
			"region": dbConfig.Region,
			"tables": dbConfig.Tables,
		}).Info("Initializing DynamoDB client")

		dbClient, err := database.NewClient(ctx, dbConfig)
		if err != nil {
			return nil, nil, err
		}
		return dbClient.Store(), func() {}, nil

	default:
		logger.Warn("Using the in-memory store, data is lost on restart")
		return database.NewMemoryStore(), func() {}, nil
	}
}
