package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/examforge/papergen-service/internal/cache"
	"github.com/examforge/papergen-service/internal/clients/embedding"
	"github.com/examforge/papergen-service/internal/clients/llm"
	"github.com/examforge/papergen-service/internal/clients/qdrant"
	"github.com/examforge/papergen-service/internal/config"
	"github.com/examforge/papergen-service/internal/events"
	"github.com/examforge/papergen-service/internal/handlers"
	"github.com/examforge/papergen-service/internal/repositories/postgres"
	"github.com/examforge/papergen-service/internal/services"
	"github.com/examforge/papergen-service/internal/storage"
	"github.com/examforge/papergen-service/internal/utils"
	"github.com/examforge/papergen-service/internal/validator"
	"github.com/examforge/papergen-service/internal/vector"
	"github.com/examforge/papergen-service/pkg"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	slogLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	logger := utils.NewSlogLogger(slogLogger)

	// Initialize database
	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize Redis (if configured)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = pkg.NewRedisClient(cfg)
		if err != nil {
			log.Printf("Warning: Failed to initialize Redis: %v", err)
		}
	}

	// Initialize repositories
	repoManager := postgres.NewRepositoryManager(postgres.RepositoryConfig{
		DB:          db,
		RedisClient: redisClient,
	})
	if err := repoManager.Initialize(); err != nil {
		log.Fatalf("Failed to initialize repositories: %v", err)
	}

	// Initialize generative model client
	model, err := llm.New(slogLogger, llm.Config{
		BaseURL: cfg.ModelBaseURL,
		APIKey:  cfg.ModelAPIKey,
		Model:   cfg.ModelName,
		Timeout: cfg.ModelTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to initialize model client: %v", err)
	}

	// Initialize vector index and embedding client (if enabled)
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	index := vector.NewNoopIndex()
	var embedder embedding.Client
	if cfg.IndexingEnabled {
		embedder, err = embedding.New(slogLogger, embedding.Config{
			BaseURL:    cfg.EmbeddingBaseURL,
			APIKey:     cfg.EmbeddingAPIKey,
			Model:      cfg.EmbeddingModel,
			Dimensions: cfg.EmbeddingDimensions,
			Timeout:    cfg.EmbeddingTimeout,
		})
		if err != nil {
			log.Fatalf("Failed to initialize embedding client: %v", err)
		}

		qdrantClient, err := qdrant.New(slogLogger, qdrant.Config{
			BaseURL: cfg.QdrantURL,
			APIKey:  cfg.QdrantAPIKey,
		})
		if err != nil {
			log.Fatalf("Failed to initialize Qdrant client: %v", err)
		}
		index, err = vector.NewQdrantIndex(startupCtx, slogLogger, qdrantClient, vector.IndexConfig{
			Collection: cfg.QdrantCollection,
			Dimensions: cfg.EmbeddingDimensions,
		})
		if err != nil {
			log.Fatalf("Failed to initialize vector index: %v", err)
		}
	} else {
		slogLogger.Info("Indexing disabled, retrieval-backed generation unavailable")
	}

	// Initialize file storage
	var store storage.FileStore
	if cfg.S3Bucket != "" {
		store, err = storage.NewS3Store(slogLogger, storage.Config{
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
		})
		if err != nil {
			log.Fatalf("Failed to initialize file storage: %v", err)
		}
	} else {
		slogLogger.Warn("S3_BUCKET not set, uploaded files kept in memory only")
		store = storage.NewMemoryStore()
	}

	// Initialize event publisher
	var publisher events.EventPublisher = events.NewNoopEventPublisher()
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err = events.NewKafkaEventPublisher(cfg.KafkaBrokers, slogLogger)
		if err != nil {
			log.Printf("Warning: Failed to initialize Kafka publisher: %v", err)
			publisher = events.NewNoopEventPublisher()
		}
	}

	// Initialize services
	serviceManager, err := services.NewServiceManager(services.Dependencies{
		Repository: repoManager.GetRepository(),
		Validator:  validator.New(),
		Cache:      cache.NewCacheManager(redisClient),
		Events:     publisher,
		Store:      store,
		Index:      index,
		Embedder:   embedder,
		Model:      model,
		Logger:     slogLogger,
	})
	if err != nil {
		log.Fatalf("Failed to build services: %v", err)
	}
	if err := serviceManager.Initialize(context.Background()); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	// Initialize handlers
	handlerManager := handlers.NewHandlerManager(
		serviceManager,
		handlers.HandlerConfig{MaxUploadBytes: cfg.MaxUploadBytes},
		func(c *gin.Context) {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			defer cancel()
			if err := serviceManager.HealthCheck(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		},
		logger,
	)

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	handlerManager.SetupMiddleware(router)
	handlerManager.SetupRoutes(router)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	go func() {
		slogLogger.Info("Starting server", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slogLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slogLogger.Error("Server forced to shutdown", "error", err)
	}

	if err := serviceManager.Shutdown(shutdownCtx); err != nil {
		slogLogger.Error("Service shutdown failed", "error", err)
	}

	slogLogger.Info("Server exited")
}
