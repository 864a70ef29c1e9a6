package main

import (
	"context"
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

	"github.com/cliff-rosen/adam-bot/internal/api"
	"github.com/cliff-rosen/adam-bot/internal/config"
	"github.com/cliff-rosen/adam-bot/internal/logging"
	"github.com/cliff-rosen/adam-bot/internal/repository"
	"github.com/cliff-rosen/adam-bot/internal/services"
	"github.com/cliff-rosen/adam-bot/internal/stream"
	tlsutil "github.com/cliff-rosen/adam-bot/internal/tls"
	"github.com/cliff-rosen/adam-bot/internal/workflow"
)

func main() {
	ctx := context.Background()

	logger := logging.NewLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		log.Fatalf("Configuration loading failed: %v", err)
	}

	logger.Info("Starting workflow service")

	// Without a configured database the service runs on the in-memory
	// store, which is enough for development.
	var store repository.Store
	if cfg.DB.Host != "" {
		pool, err := initDatabase(ctx, cfg)
		if err != nil {
			logger.Error("failed to initialize database", "error", err)
			log.Fatalf("Database initialization failed: %v", err)
		}
		defer pool.Close()

		pgStore := repository.NewPostgresStore(pool)
		if err := pgStore.Migrate(ctx); err != nil {
			logger.Error("failed to migrate database", "error", err)
			log.Fatalf("Database migration failed: %v", err)
		}
		store = pgStore
		logger.Info("Database connected", "host", cfg.DB.Host, "name", cfg.DB.Name)
	} else {
		store = repository.NewMemoryStore()
		logger.Warn("No database configured, using in-memory store")
	}

	registry := workflow.NewRegistry(store)
	if err := registry.LoadAll(ctx); err != nil {
		logger.Error("failed to load workflow definitions", "error", err)
		log.Fatalf("Definition loading failed: %v", err)
	}

	broker := stream.NewBroker(logger, cfg.Stream.BufferSize)
	defer broker.Close()

	executor := services.NewHTTPTaskExecutor(cfg.TaskExecutor.URL, cfg.TaskExecutor.Timeout)
	engine := workflow.NewEngine(store, registry, executor, broker, logger, workflow.Options{
		MaxSteps:             cfg.Engine.MaxSteps,
		MaxRetries:           cfg.Engine.MaxRetries,
		RetryInitialInterval: cfg.Engine.RetryInitialInterval,
	})

	// Pick up instances a previous process left running.
	if err := engine.Recover(ctx); err != nil {
		logger.Error("failed to recover running instances", "error", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("adam-bot"))

	api.NewServer(engine, registry, broker).Register(e)
	logger.Info("REST API handlers mounted")

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			if _, err := os.Stat(cfg.TLS.CertFile); os.IsNotExist(err) && len(cfg.TLS.Hostnames) > 0 {
				if err := tlsutil.GenerateSelfSignedCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames); err != nil {
					logger.Error("failed to generate self-signed cert", "error", err)
				}
			}
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("server close error", "error", err)
			}
		}

		logger.Info("Server stopped gracefully")
	}
}

func initDatabase(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
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

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
