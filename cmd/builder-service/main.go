package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	apihandler "github.com/rcss-tournament/team-builder/internal/api/handler"
	"github.com/rcss-tournament/team-builder/internal/api/router"
	"github.com/rcss-tournament/team-builder/internal/builder"
	"github.com/rcss-tournament/team-builder/internal/config"
	"github.com/rcss-tournament/team-builder/internal/dispatch"
	"github.com/rcss-tournament/team-builder/internal/handlers"
	"github.com/rcss-tournament/team-builder/internal/state"
	"github.com/rcss-tournament/team-builder/internal/worker"
	"github.com/rcss-tournament/team-builder/shared/dockerengine"
	"github.com/rcss-tournament/team-builder/shared/logger"
	"github.com/rcss-tournament/team-builder/shared/minio"
	"github.com/rcss-tournament/team-builder/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("BUILDER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/builder-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting builder service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	// Initialize object-store client
	storeClient, err := minio.NewClient(&minio.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Secure:    cfg.Storage.Secure,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	appLogger.Info("Storage client initialized")

	// Initialize build-engine client
	engineClient, err := dockerengine.NewClient(&dockerengine.Config{
		Host:             cfg.Docker.Host,
		RegistryAddress:  cfg.Docker.Registry.Address,
		RegistryUsername: cfg.Docker.Registry.Username,
		RegistryPassword: cfg.Docker.Registry.Password,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize docker engine: %w", err)
	}

	appLogger.Info("Docker engine client initialized")

	// Dependency probes. Docker and MinIO being down is survivable at startup;
	// builds will fail individually until they come back.
	probeCtx, probeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := storeClient.HealthCheck(probeCtx); err != nil {
		appLogger.Warn("Storage is not reachable yet",
			slog.Any("error", err),
		)
	}
	if err := engineClient.HealthCheck(probeCtx); err != nil {
		appLogger.Warn("Docker engine is not reachable yet",
			slog.Any("error", err),
		)
	}
	probeCancel()

	// Job registry
	stateManager := state.NewManager(appLogger.Logger)

	// Broadcast lifecycle transitions on the exchange for external observers
	if key := cfg.RabbitMQ.EventsRoutingKey; key != "" {
		stateManager.SetEventSink(func(snap state.Snapshot) {
			body, err := json.Marshal(map[string]any{
				"build_id":  snap.BuildID,
				"team_name": snap.TeamName,
				"status":    string(snap.Status),
			})
			if err != nil {
				return
			}
			pubCtx, pubCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer pubCancel()
			if err := rabbitClient.PublishWithRetry(pubCtx, key, body, "application/json"); err != nil {
				appLogger.Warn("Failed to publish job event",
					slog.String("build_id", snap.BuildID),
					slog.Any("error", err),
				)
			}
		})
	}

	// Pipeline dependencies: the shared clients plus factories for
	// request-scoped overrides
	deps := builder.Deps{
		Store:  storeClient,
		Engine: engineClient,
		NewStore: func(c builder.StoreConfig) (builder.ObjectStore, error) {
			return minio.NewClient(&minio.Config{
				Endpoint:  c.Endpoint,
				AccessKey: c.AccessKey,
				SecretKey: c.SecretKey,
				Secure:    c.Secure,
			}, appLogger.Logger)
		},
		NewEngine: func(c builder.EngineConfig) (builder.BuildEngine, error) {
			return dockerengine.NewClient(&dockerengine.Config{
				Host:             c.Host,
				RegistryAddress:  c.Registry,
				RegistryUsername: c.Username,
				RegistryPassword: c.Password,
			}, appLogger.Logger)
		},
		State:  stateManager,
		Logger: appLogger.Logger,
	}

	// Command handlers and dispatcher
	service := handlers.NewService(&handlers.Config{
		Logger: appLogger.Logger,
		State:  stateManager,
		Pipeline: builder.Config{
			UploadDir:         cfg.Builder.UploadDir,
			UseTempDir:        cfg.Builder.UseTempDir,
			RemoveAfterBuild:  cfg.Builder.RemoveAfterBuild,
			DefaultDockerfile: cfg.Builder.DefaultDockerfile,
			KillGracePeriod:   cfg.Builder.KillGracePeriod,
			StreamBuffer:      cfg.Builder.StreamBuffer,
		},
		Deps:              deps,
		SubscribeInterval: cfg.Builder.SubscribeInterval,
		SubscribeWindow:   cfg.Builder.SubscribeWindow,
	})

	dispatcher := dispatch.New(appLogger.Logger)
	service.Register(dispatcher)

	// Consumer worker
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Logger,
		RabbitClient:  rabbitClient,
		Dispatcher:    dispatcher,
		Concurrency:   cfg.Worker.Concurrency,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	// HTTP surface
	srv := initHTTPServer(cfg, appLogger.Logger, stateManager)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("HTTP server failed",
				slog.Any("error", err),
			)
			errChan <- err
		}
	}()

	appLogger.Info("Builder service is running",
		slog.String("queue", cfg.RabbitMQ.Queue.Name),
		slog.Int("http_port", cfg.Server.Port),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Service error",
			slog.Any("error", err),
		)
		return err
	}

	// Stop consuming new commands. In-flight pipelines are not preempted;
	// they run on contexts owned by the job registry.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	httpTimeout := cfg.Server.ShutdownTimeout
	if httpTimeout <= 0 {
		httpTimeout = 10 * time.Second
	}
	httpCtx, httpCancel := context.WithTimeout(context.Background(), httpTimeout)
	defer httpCancel()

	if err := srv.Shutdown(httpCtx); err != nil {
		appLogger.Error("HTTP server forced to shutdown",
			slog.Any("error", err),
		)
	}

	if rabbitClient != nil {
		rabbitClient.Close()
	}
	if engineClient != nil {
		engineClient.Close()
	}

	appLogger.Info("Builder service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initHTTPServer builds the gin health/status surface
func initHTTPServer(cfg *config.Config, logger *slog.Logger, stateManager *state.Manager) *http.Server {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	r := router.SetupRouter(&apihandler.Dependencies{
		Logger: logger,
		State:  stateManager,
	})

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
