package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"archie-core-sync-layer/internal/application"
	"archie-core-sync-layer/internal/application/webhook_handlers"
	"archie-core-sync-layer/internal/config"
	"archie-core-sync-layer/internal/infrastructure/api"
	"archie-core-sync-layer/internal/infrastructure/auth"
	"archie-core-sync-layer/internal/infrastructure/claims"
	"archie-core-sync-layer/internal/infrastructure/connectors"
	"archie-core-sync-layer/internal/infrastructure/encryption"
	"archie-core-sync-layer/internal/infrastructure/metrics"
	"archie-core-sync-layer/internal/infrastructure/pubsub"
	"archie-core-sync-layer/internal/infrastructure/repository"
	"archie-core-sync-layer/internal/infrastructure/repository/memory"
	shopifyinfra "archie-core-sync-layer/internal/infrastructure/shopify"
	"archie-core-sync-layer/internal/ports"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	shutdownTimeout = 30 * time.Second
	sourcePageSize  = 100
	wooTimeout      = 30 * time.Second
	jobRetryBase    = 30 * time.Second
	jobRetryMax     = 10 * time.Minute
)

// stores bundles the persistence adapters selected by STORE_DRIVER.
type stores struct {
	installations ports.InstallationRepository
	states        ports.OAuthStateRepository
	connections   ports.ConnectionRepository
	jobs          ports.JobRepository
	logs          ports.LogRepository
	templates     ports.TemplateRepository
	invites       ports.InviteRepository
	close         func(context.Context) error
}

func main() {
	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger = logger.Level(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("Failed to open stores")
	}
	defer st.close(context.Background())

	claimStore, err := openClaims(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}

	encryptionService, err := encryption.NewService(cfg.EncryptionKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}

	// Infrastructure
	recorder := metrics.NewRecorder()
	jobEvents := pubsub.NewJobPubSub(logger, 32)
	limiter := shopifyinfra.NewRateLimiter(cfg.APIRatePerSecond, 4)
	shopifyApp := shopifyinfra.NewApp(shopifyinfra.AppConfig{
		APIKey:    cfg.ShopifyAPIKey,
		APISecret: cfg.ShopifyAPISecret,
		AppURL:    cfg.AppURL,
	}, limiter, logger)
	factory := connectors.NewFactory(shopifyApp, cfg.APIRatePerSecond, wooTimeout, logger)

	// Application services
	vault := application.NewCredentialVault(encryptionService, logger)
	activity := application.NewActivityLog(st.logs, logger)
	itemRetry := application.RetryPolicy{
		MaxAttempts: cfg.MaxItemAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}
	planner := application.NewPlanner(st.installations, factory, vault, itemRetry, sourcePageSize, logger)

	executor := application.NewExecutor(application.ExecutorConfig{
		ItemConcurrency:     cfg.ItemConcurrency,
		ItemRetry:           itemRetry,
		PartialFailureRatio: cfg.PartialFailureRatio,
		LeaseTTL:            cfg.JobLeaseTTL,
	}, st.connections, st.installations, st.jobs, claimStore, planner, activity, recorder, jobEvents, logger)

	scheduler := application.NewScheduler(application.SchedulerConfig{
		Workers:        cfg.WorkerCount,
		MaxJobAttempts: cfg.MaxJobAttempts,
		JobRetry: application.RetryPolicy{
			MaxAttempts: cfg.MaxJobAttempts,
			BaseDelay:   jobRetryBase,
			MaxDelay:    jobRetryMax,
		},
		LeaseTTL:        cfg.JobLeaseTTL,
		LivenessTimeout: cfg.JobLivenessTimeout,
		SyncSchedule:    cfg.SyncSchedule,
		LogRetention:    cfg.LogRetention,
	}, st.connections, st.installations, st.jobs, claimStore, executor, activity, recorder, jobEvents, logger)

	connectionService := application.NewConnectionService(st.connections, st.installations, st.jobs, vault, scheduler, activity, logger)
	telemetryService := application.NewTelemetryService(st.connections, st.jobs, st.logs, planner, activity, logger, cfg.HealthErrorRatio, cfg.PreviewLimit)
	templateService := application.NewTemplateService(st.templates, st.connections, connectionService, logger)
	inviteService := application.NewInviteService(
		st.invites,
		auth.InviteSigner{Secret: []byte(cfg.InviteSigningKey)},
		connectionService,
		shopifyApp,
		activity,
		logger,
		cfg.AppURL,
		cfg.InviteTTL,
	)
	installationService := application.NewInstallationService(
		st.installations,
		st.states,
		st.connections,
		shopifyApp,
		shopifyApp,
		vault,
		inviteService,
		activity,
		logger,
		cfg.ShopifyScopes,
		cfg.HandshakeTTL,
	)

	// Initialize webhook dispatcher and register handlers
	webhookDispatcher := application.NewWebhookDispatcher(logger,
		webhook_handlers.NewProductHandler(scheduler, logger),
		webhook_handlers.NewAppUninstalledHandler(installationService, logger),
	)

	router := api.NewRouter(api.Dependencies{
		Connections: connectionService,
		Sync:        scheduler,
		Telemetry:   telemetryService,
		Templates:   templateService,
		Invites:     inviteService,
		Auth:        installationService,
		Verifier:    shopifyApp,
		Webhooks:    webhookDispatcher,
		Events:      jobEvents,
		Metrics:     recorder.Handler(),
		Logger:      logger,
	})

	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("port", cfg.Port).Str("store", cfg.StoreDriver).Msg("Starting API server")
		logger.Info().Msg("Swagger documentation available at http://localhost:" + cfg.Port + "/swagger/index.html")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to shut down server")
	}
	scheduler.Stop(shutdownCtx)
	if closer, ok := claimStore.(interface{ Close() error }); ok {
		closer.Close()
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn().Msg("Using in-memory stores; state is lost on restart")
		return &stores{
			installations: memory.NewInstallationRepository(),
			states:        memory.NewOAuthStateRepository(),
			connections:   memory.NewConnectionRepository(),
			jobs:          memory.NewJobRepository(),
			logs:          memory.NewLogRepository(),
			templates:     memory.NewTemplateRepository(),
			invites:       memory.NewInviteRepository(),
			close:         func(context.Context) error { return nil },
		}, nil
	}

	client, err := repository.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return nil, err
	}
	db := client.Database(cfg.MongoDatabase)
	if err := repository.EnsureIndexes(ctx, db); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	repos := repository.NewMongoRepositories(db)
	logger.Info().Str("database", cfg.MongoDatabase).Msg("Connected to MongoDB")
	return &stores{
		installations: repos.Installations,
		states:        repos.OAuthStates,
		connections:   repos.Connections,
		jobs:          repos.Jobs,
		logs:          repos.Logs,
		templates:     repos.Templates,
		invites:       repos.Invites,
		close:         client.Disconnect,
	}, nil
}

// openClaims uses Redis when configured. The in-memory store only
// guarantees single-flight within this process.
func openClaims(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ports.ClaimStore, error) {
	if cfg.RedisAddr == "" {
		logger.Warn().Msg("REDIS_ADDR not set, job claims are process-local")
		return memory.NewClaimStore(), nil
	}
	store, err := claims.NewRedisStore(ctx, &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, "sync:claim:")
	if err != nil {
		return nil, err
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")
	return store, nil
}
