// Affective thought kernel entry point
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/affective-thought-kernel/internal/config"
	"github.com/affective-thought-kernel/internal/events"
	"github.com/affective-thought-kernel/internal/kernel"
	"github.com/affective-thought-kernel/internal/llm"
	"github.com/affective-thought-kernel/internal/server"
	"github.com/affective-thought-kernel/internal/thought/journal"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := config.LoadDotEnv(); err != nil {
		logger.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load(getEnv("CONFIG_PATH", ""))
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	logger.Info("Starting affective thought kernel",
		zap.String("addr", cfg.Server.Addr),
		zap.String("journal", cfg.Journal.Backend))

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var deps kernel.Deps

	var redisClient *redis.Client
	if cfg.RedisEnabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(startCtx).Err(); err != nil {
			logger.Warn("Redis unavailable, writes will fail until it returns", zap.Error(err))
		}
		deps.Redis = redisClient
	}

	switch cfg.Journal.Backend {
	case config.BackendRedis:
		deps.JournalStore = journal.NewRedisStore(redisClient, cfg.Journal.Key)
	case config.BackendFile:
		deps.JournalStore = journal.NewFileStore(cfg.Journal.Path)
	default:
		deps.JournalStore = journal.NewMemoryStore()
	}

	var natsConn *nats.Conn
	if cfg.NATS.URL != "" {
		natsConn, err = events.ConnectNATS(cfg.NATS.URL, logger)
		if err != nil {
			logger.Warn("Failed to connect to NATS, events stay local", zap.Error(err))
		} else {
			deps.Sinks = append(deps.Sinks,
				events.NewNATSSink(natsConn, cfg.NATS.SubjectPrefix, cfg.NATS.IncludeChars, logger))
		}
	}

	if cfg.LLM.Enabled {
		deps.Generator = llm.NewOllamaClient(cfg.LLM.Ollama, logger)
	}

	k, err := kernel.New(cfg.Kernel, deps, logger)
	if err != nil {
		logger.Fatal("Failed to create kernel", zap.Error(err))
	}
	if err := k.Start(startCtx); err != nil {
		logger.Fatal("Failed to start kernel", zap.Error(err))
	}

	srv := server.New(k, server.Config{AllowedOrigins: cfg.Server.AllowedOrigins}, logger)
	if cfg.Server.JWTSecret != "" {
		auth, err := server.NewAuthenticator(cfg.Server.JWTSecret, logger)
		if err != nil {
			logger.Fatal("Invalid JWT secret", zap.Error(err))
		}
		srv.WithAuth(auth)
		logger.Info("API authentication enabled")
	}
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("HTTP server starting", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	feedCtx, stopFeed := context.WithCancel(context.Background())
	defer stopFeed()
	if cfg.Server.FeedAddr != "" {
		feed := server.NewFeed(server.FeedConfig{
			Addr:         cfg.Server.FeedAddr,
			Multicore:    true,
			IncludeChars: cfg.Server.FeedIncludeChars,
		}, k.Bus(), k.RecordActivity, logger)
		go func() {
			if err := feed.Run(feedCtx); err != nil {
				logger.Error("Thought feed failed", zap.Error(err))
			}
		}()
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// No request may restart the scheduler once the kernel stops. Stopping
	// the kernel closes the event bus, which ends hijacked websocket streams.
	stopFeed()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	k.Stop()

	if natsConn != nil {
		natsConn.Drain()
	}
	if redisClient != nil {
		redisClient.Close()
	}

	logger.Info("Shutdown complete")
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
