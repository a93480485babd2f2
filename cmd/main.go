/*
Package main is the entry point for the LawChat application.

It is responsible for loading configuration, initializing the global logging system,
connecting to PostgreSQL and running migrations, starting the chat Manager and the
batch persistence Flusher, setting up the HTTP server, and gracefully handling
operating system interrupt signals (SIGINT, SIGTERM) so buffered chat messages are
flushed before shutdown.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"lawchat/internal/app/cases"
	"lawchat/internal/app/chat"
	"lawchat/internal/app/db"
	"lawchat/internal/app/directory"
	"lawchat/internal/app/store"
	"lawchat/internal/configs"
	"lawchat/internal/handler"
	"lawchat/internal/pkg/logx"
)

func main() {
	// Load .env if present; real deployments set environment variables directly.
	_ = godotenv.Load()

	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(cfg.Environment == "development")
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Dur("flush_interval", cfg.FlushInterval).
		Int("flush_max_retries", cfg.FlushMaxRetries).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(cfg.DatabaseDSN)
	if err != nil {
		logx.Fatal(err, "Failed to connect to database")
	}
	defer pool.Close()

	caseRepo := cases.NewRepository(pool)
	userRepo := directory.NewRepository(pool)
	messageRepo := store.NewRepository(pool)

	identityCache := chat.NewIdentityCache(userRepo)

	flusher := chat.NewFlusher(messageRepo, cfg.FlushInterval, cfg.FlushMaxRetries)
	go flusher.Run()

	manager := chat.NewManager(caseRepo, identityCache, flusher)

	deps := &handler.AppDeps{
		Manager: manager,
		Config:  cfg,
		Cases:   caseRepo,
		Store:   messageRepo,
	}

	router := handler.Router(deps)

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("LawChat Server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	manager.Shutdown()

	// Final flush so messages delivered live are not lost on shutdown.
	if err := flusher.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Flusher did not drain before shutdown deadline")
	}

	logx.Info("Server gracefully stopped.")
}
