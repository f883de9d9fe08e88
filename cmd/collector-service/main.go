package main

import (
	"context"
	"errors"
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

	"github.com/cuongbtq/job-collector/internal/api/handler"
	"github.com/cuongbtq/job-collector/internal/api/router"
	"github.com/cuongbtq/job-collector/internal/config"
	"github.com/cuongbtq/job-collector/internal/extraction"
	"github.com/cuongbtq/job-collector/internal/imaging"
	"github.com/cuongbtq/job-collector/internal/inference"
	"github.com/cuongbtq/job-collector/internal/pipeline"
	"github.com/cuongbtq/job-collector/internal/prompt"
	"github.com/cuongbtq/job-collector/internal/publish"
	"github.com/cuongbtq/job-collector/internal/rasterize"
	"github.com/cuongbtq/job-collector/internal/resultstore"
	"github.com/cuongbtq/job-collector/internal/worker"
	"github.com/cuongbtq/job-collector/internal/worker/storage"
	"github.com/cuongbtq/job-collector/shared/logger"
	"github.com/cuongbtq/job-collector/shared/postgresql"
	"github.com/cuongbtq/job-collector/shared/rabbitmq"
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
	configFlag := flag.String("config", "", "Path to configuration file (default $"+config.EnvConfigPath+" or "+config.DefaultConfigPath+")")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(config.ConfigPath(*configFlag))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	slog.SetDefault(appLogger.Logger)

	appLogger.Info("Starting collector service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("provider", cfg.Inference.Provider),
		slog.String("model", cfg.Inference.Model),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Job registry
	registry, dbClient, err := initRegistry(ctx, cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize job registry: %w", err)
	}
	if dbClient != nil {
		defer dbClient.Close()
	}

	// Downstream publishers
	publisher, rabbitClient, err := initPublisher(&cfg.Publish, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize publishers: %w", err)
	}
	if rabbitClient != nil {
		defer rabbitClient.Close()
	}

	// Pipeline
	store, err := resultstore.New(resultstore.Config{
		JSONDir:       cfg.Storage.JSONDir,
		ImageDir:      cfg.Storage.ImageDir,
		MaxNameLength: cfg.Storage.MaxNameLength,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize result store: %w", err)
	}

	inferenceClient := initInference(&cfg.Inference, appLogger.Logger)

	p, err := initPipeline(cfg, inferenceClient, store, appLogger.Logger)
	if err != nil {
		return err
	}

	// Worker
	w := worker.NewWorker(&worker.Config{
		Logger:      appLogger.Logger,
		Registry:    registry,
		Pipeline:    p,
		Store:       store,
		Publisher:   publisher,
		Concurrency: cfg.Worker.Concurrency,
		QueueSize:   cfg.Worker.QueueSize,
		DefaultMode: cfg.Worker.Strategy,
	})
	w.Start(ctx)

	// Initialize router
	r := initRouter(cfg.App.Environment, &handler.Dependencies{
		Logger:       appLogger.Logger,
		Submitter:    w,
		Registry:     registry,
		Health:       inferenceClient,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Starting HTTP server", slog.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		appLogger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case err := <-serverErr:
		appLogger.Error("Server failed", slog.Any("error", err))
		runErr = err
	}

	appLogger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
	}

	// Workers finish the job in hand, queued jobs are abandoned
	cancel()
	w.Stop()

	appLogger.Info("Collector service stopped")
	return runErr
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableSource,
		TimeFormat:   time.RFC3339,
	})
}

// initRegistry selects the in-memory or PostgreSQL job registry
func initRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Registry, *postgresql.Client, error) {
	if cfg.Registry.Driver != config.DriverPostgres {
		logger.Info("Using in-memory job registry")
		return storage.NewMemoryRegistry(), nil, nil
	}

	db := cfg.Registry.Database
	dbClient, err := postgresql.NewClient(&postgresql.Config{
		Host:            db.Host,
		Port:            db.Port,
		User:            db.User,
		Password:        db.Password,
		Database:        db.Database,
		SSLMode:         db.SSLMode,
		ApplicationName: cfg.App.Name,
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
		ConnMaxIdleTime: db.ConnMaxIdleTime,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	registry := storage.NewPostgresRegistry(dbClient.GetDB(), logger)
	if err := registry.Migrate(ctx); err != nil {
		dbClient.Close()
		return nil, nil, err
	}
	return registry, dbClient, nil
}

// initPublisher builds the downstream fan-out from the enabled sinks
func initPublisher(cfg *config.PublishConfig, logger *slog.Logger) (publish.Publisher, *rabbitmq.Client, error) {
	var publishers publish.Multi
	var rabbitClient *rabbitmq.Client

	if mq := cfg.RabbitMQ; mq.Enabled {
		client, err := rabbitmq.NewClient(&rabbitmq.Config{
			Host:              mq.Host,
			Port:              mq.Port,
			User:              mq.User,
			Password:          mq.Password,
			VHost:             mq.VHost,
			ExchangeName:      mq.Exchange.Name,
			ExchangeType:      mq.Exchange.Type,
			ExchangeDurable:   mq.Exchange.Durable,
			QueueName:         mq.Queue.Name,
			QueueDurable:      mq.Queue.Durable,
			RoutingKey:        mq.RoutingKey,
			RetryAttempts:     mq.Connection.RetryAttempts,
			RetryInterval:     mq.Connection.RetryInterval,
			Heartbeat:         mq.Connection.Heartbeat,
			PublishRetries:    mq.Retry.Attempts,
			PublishRetryDelay: mq.Retry.Delay,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		rabbitClient = client
		publishers = append(publishers, publish.NewRabbitMQPublisher(client))
	}

	if h := cfg.HTTP; h.Enabled {
		publishers = append(publishers, publish.NewHTTPPublisher(publish.HTTPConfig{
			URL:     h.URL,
			Path:    h.Path,
			Timeout: h.Timeout,
		}))
		logger.Info("Forwarding records over HTTP", slog.String("url", h.URL))
	}

	if len(publishers) == 0 {
		return publish.Noop{}, nil, nil
	}
	return publishers, rabbitClient, nil
}

// initInference builds the configured backend behind the retrying client
func initInference(cfg *config.InferenceConfig, logger *slog.Logger) *inference.Client {
	var backend inference.Backend
	switch cfg.Provider {
	case config.ProviderOpenAI:
		backend = inference.NewOpenAIBackend(inference.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}, logger)
	default:
		backend = inference.NewOllamaBackend(inference.OllamaConfig{
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
			NumCtx:   cfg.NumCtx,
			NumBatch: cfg.NumBatch,
		}, logger)
	}

	return inference.NewClient(backend, inference.Config{
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Timeout:    cfg.Timeout,
	}, logger)
}

func initPipeline(cfg *config.Config, extractor *inference.Client, store *resultstore.Store, logger *slog.Logger) (*pipeline.Pipeline, error) {
	prompts, err := prompt.New(cfg.Prompt.TemplatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt template: %w", err)
	}

	validator, err := extraction.NewValidator(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to compile extraction schema: %w", err)
	}

	imgOpts := imaging.Options{
		MaxWidth:    cfg.Imaging.MaxWidth,
		Quality:     cfg.Imaging.Quality,
		Concurrency: cfg.Imaging.Concurrency,
	}

	return pipeline.New(pipeline.Config{
		MaxPages:        cfg.Imaging.MaxPages,
		DefaultStrategy: pipeline.Strategy(cfg.Worker.Strategy),
	}, pipeline.Deps{
		Rasterizer: rasterize.New(rasterize.Config{
			Binary:   cfg.Imaging.PdftoppmPath,
			MaxPages: cfg.Imaging.MaxPages,
			Scale:    cfg.Imaging.RenderScale,
			TempDir:  cfg.Imaging.TempDir,
		}, nil, logger),
		Normalizer: imaging.NewNormalizer(imgOpts, logger),
		Compositor: imaging.NewCompositor(imgOpts, logger),
		Extractor:  extractor,
		Prompts:    prompts,
		Validator:  validator,
		Artifacts:  store,
		Logger:     logger,
	}), nil
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, deps *handler.Dependencies) *gin.Engine {
	// Set Gin mode based on environment
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps)
}
