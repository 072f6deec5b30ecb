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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lotuscare/facility-directory/internal/auth"
	"github.com/lotuscare/facility-directory/internal/config"
	consul_client "github.com/lotuscare/facility-directory/internal/consul"
	"github.com/lotuscare/facility-directory/internal/handlers"
	"github.com/lotuscare/facility-directory/internal/middleware"
	"github.com/lotuscare/facility-directory/internal/roster"
	"github.com/lotuscare/facility-directory/internal/server"
	"github.com/lotuscare/facility-directory/internal/store"
)

func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err) // Standard log before Zap is up
	}

	// --- Logger ---
	logger, err := setupLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// --- Consul Client & Registration ---
	consulClient, err := consul_client.Connect(cfg.ConsulAddress, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Consul agent", zap.Error(err))
	}

	serviceID := config.GenerateServiceID(cfg.ServiceIDPrefix)
	if err := consul_client.RegisterService(consulClient, cfg, serviceID, logger); err != nil {
		logger.Fatal("Failed to register service with Consul", zap.Error(err))
	}
	logger.Info("Registered service with Consul",
		zap.String("service_name", cfg.ServiceName),
		zap.String("service_id", serviceID),
	)

	// --- Directory Store ---
	directoryStore, cleanup, err := buildStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build directory store", zap.Error(err))
	}
	defer cleanup()

	// --- Roster Controller ---
	// Initialize awaits the store's readiness signal and opens the
	// standing subscription; there is no startup delay.
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	controller := roster.NewController(directoryStore, logger)
	if err := controller.Initialize(initCtx); err != nil {
		initCancel()
		logger.Fatal("Failed to initialize roster controller", zap.Error(err))
	}
	initCancel()

	resolver := auth.NewResolver(directoryStore, logger)

	// --- Router and Server ---
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.CorrelationID)
	r.Use(NewStructuredLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Identity(logger, cfg.JWTSecret))

	r.Get(cfg.HealthCheckPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "Facility Directory Service is healthy")
		logger.Debug("Health check endpoint hit")
	})

	providerHandler := handlers.NewProviderHandler(logger, cfg, directoryStore, controller, resolver)
	r.Mount("/providers", providerHandler.Routes())
	logger.Info("Provider API routes mounted under /providers")

	srv := server.NewServer(cfg.Port, r, logger)

	go func() {
		logger.Info("Starting Facility Directory Service", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Could not listen on port", zap.String("port", cfg.Port), zap.Error(err))
		}
	}()

	// --- Graceful Shutdown & Consul Deregistration ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown signal received, starting graceful shutdown...")

	controller.Stop()

	logger.Info("Deregistering service from Consul", zap.String("service_id", serviceID))
	if err := consulClient.Agent().ServiceDeregister(serviceID); err != nil {
		logger.Error("Failed to deregister service from Consul", zap.String("service_id", serviceID), zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown uncleanly", zap.Error(err))
	}

	logger.Info("Server gracefully stopped")
}

// buildStore constructs the configured store backend. The postgres backend
// needs a pgx pool plus the NATS change feed; the memory backend fans
// snapshots out in-process.
func buildStore(cfg *config.Config, logger *zap.Logger) (store.DirectoryStore, func(), error) {
	switch cfg.StoreBackend {
	case "memory":
		logger.Info("Using in-memory directory store")
		memStore := store.NewInMemoryDirectoryStore()
		return memStore, func() { memStore.Close() }, nil

	case "postgres":
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("creating pgx pool: %w", err)
		}

		feed, err := store.ConnectChangeFeed(cfg.NatsAddress, cfg.ChangeFeedSubject, cfg.NatsTimeout, logger)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("connecting change feed: %w", err)
		}

		logger.Info("Using PostgreSQL directory store with NATS change feed")
		pgStore := store.NewPostgresDirectoryStore(pool, feed, logger)
		cleanup := func() {
			feed.Close()
			pool.Close()
		}
		return pgStore, cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// setupLogger configures Zap based on the log level string.
func setupLogger(levelString string) (*zap.Logger, error) {
	var logLevel zapcore.Level
	if err := logLevel.Set(levelString); err != nil {
		logLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(logLevel),
		Development: false,
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// NewStructuredLogger returns a middleware that logs request details using Zap.
func NewStructuredLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				duration := time.Since(start)
				logger.Info("Request completed",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("remote_ip", r.RemoteAddr),
					zap.String("request_id", chimiddleware.GetReqID(r.Context())),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", duration),
				)
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}
