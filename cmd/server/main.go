package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"adversarial-mcp/backend/internal/analytics"
	"adversarial-mcp/backend/internal/api"
	"adversarial-mcp/backend/internal/cache"
	"adversarial-mcp/backend/internal/config"
	"adversarial-mcp/backend/internal/llm"
	"adversarial-mcp/backend/internal/logging"
	"adversarial-mcp/backend/internal/mcp"
	"adversarial-mcp/backend/internal/ratelimit"
	"adversarial-mcp/backend/internal/repository"
	"adversarial-mcp/backend/internal/selector"
	"adversarial-mcp/backend/internal/services"
)

func main() {
	ctx := context.Background()

	// Parse command line flags
	configFile := flag.String("config", "", "Path to config file")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Configuration loading failed: %v", err)
	}

	// Initialize logging
	logger, err := logging.NewLogger(*verbose || cfg.Engine.Verbose)
	if err != nil {
		log.Fatalf("Logger initialization failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting Adversarial Code Refinement Service",
		"models", len(cfg.Models),
		"rotation_strategy", cfg.Engine.RotationStrategy,
		"max_iterations", cfg.Engine.MaxIterations,
	)

	// Initialize database connection
	dbPool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		log.Fatalf("Database initialization failed: %v", err)
	}
	defer dbPool.Close()

	logger.Info("Database connected")

	// Initialize repository layer
	entryStore := repository.NewPostgresEntryStore(dbPool)

	// Initialize the engine: selector, limiter, cache, client, orchestrator
	sel, err := selector.New(cfg.Engine.RotationStrategy, cfg.Pools())
	if err != nil {
		logger.Error("Failed to build model selector", "error", err)
		log.Fatalf("Model selector initialization failed: %v", err)
	}

	sink, err := analytics.NewOTelSink()
	if err != nil {
		logger.Error("Failed to build analytics sink", "error", err)
		log.Fatalf("Analytics initialization failed: %v", err)
	}

	client := llm.NewClient(
		llm.NewHTTPTransport(),
		ratelimit.NewLimiter(cfg.Limits()),
		cache.New(),
		sink,
		logger,
		time.Duration(cfg.Engine.CacheTTLSeconds)*time.Second,
	)
	refinementService := services.NewRefinementService(entryStore, client, sel, sink, logger, services.Config{
		MaxIterations:  cfg.Engine.MaxIterations,
		IterationLimit: cfg.Engine.IterationLimit,
	})

	logger.Info("Service layer initialized")

	// Create Echo server
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("adversarial-mcp"))

	// Health endpoint
	apiHandler := api.NewHandler()
	e.GET("/health", echo.WrapHandler(http.HandlerFunc(apiHandler.HandleHealth)))

	// Mount REST API handlers
	apiGroup := e.Group("/api/v1")
	api.RegisterHandlers(apiGroup, api.NewServer(refinementService, entryStore))

	logger.Info("REST API handlers mounted")

	// Mount MCP protocol handlers
	mcpServer := mcp.NewServer(refinementService, entryStore)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))

	logger.Info("MCP protocol handlers mounted")

	// Create HTTP server
	addr := ":8080"
	server := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // refinement runs are synchronous
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		// Create shutdown context with timeout
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}

		logger.Info("Server stopped gracefully")
	}
}

func initDatabase(ctx context.Context, cfg *config.Config, logger logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
