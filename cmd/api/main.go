package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/daily-tracker/internal/api/handlers"
	"github.com/dvloznov/daily-tracker/internal/app"
	"github.com/dvloznov/daily-tracker/internal/config"
	"github.com/dvloznov/daily-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/daily-tracker/internal/logger"
)

func main() {
	// Parse command-line flags
	fs := flag.NewFlagSet("api", flag.ExitOnError)
	port := fs.String("port", envOr("PORT", "8080"), "HTTP server port")
	origins := fs.String("cors-origins", os.Getenv("TRACKER_CORS_ORIGINS"), "comma-separated allowed CORS origins, empty allows any")
	workers := fs.Int("export-workers", 2, "background export workers")
	history := fs.Int("export-history", inmemory.DefaultRetention, "finished export jobs kept for status queries")

	cfg, err := config.Load(fs, os.Args[1:])
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Initialize logger
	log := logger.ForDebug(cfg.Debug)

	ctx := logger.WithContext(context.Background(), log)

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracker")
	}
	defer application.Close()

	if info, err := application.Service.TestConnection(ctx); err != nil {
		log.Warn().Err(err).Msg("Record store connection check failed")
	} else {
		log.Info().
			Str("backend", info.Backend).
			Str("target", info.Target).
			Int("rows", info.RowCount).
			Msg("Record store reachable")
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStoreWithRetention(*history)
	jobQueue := inmemory.NewQueue(inmemory.QueueOptions{Workers: *workers}, jobStore, log)

	// Start worker in background to process export jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Int("workers", *workers).Msg("Starting export workers")
	if err := jobQueue.Start(workerCtx, application.Service.RunExportJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start export workers")
	}

	var allowed []string
	if *origins != "" {
		allowed = strings.Split(*origins, ",")
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Service:        application.Service,
		Publisher:      jobQueue,
		JobStore:       jobStore,
		AllowedOrigins: allowed,
	}, log)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Str("backend", string(cfg.Backend)).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	// Close job queue
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
