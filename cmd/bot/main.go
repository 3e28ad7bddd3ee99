package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mentionmap/slack-mention-map/internal/analysis"
	"github.com/mentionmap/slack-mention-map/internal/config"
	"github.com/mentionmap/slack-mention-map/internal/history"
	"github.com/mentionmap/slack-mention-map/internal/identity"
	"github.com/mentionmap/slack-mention-map/internal/metrics"
	"github.com/mentionmap/slack-mention-map/internal/notifications"
	"github.com/mentionmap/slack-mention-map/internal/scheduler"
	"github.com/mentionmap/slack-mention-map/internal/server"
	"github.com/mentionmap/slack-mention-map/internal/slack"
	"github.com/mentionmap/slack-mention-map/internal/snapshot"
	"github.com/mentionmap/slack-mention-map/internal/storage"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting Slack Mention Map")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	recorder := metrics.New(cfg.MetricsEnabled)
	slackClient := slack.NewClient(cfg.SlackBotToken, cfg.SlackAPIURL)

	// Snapshot archive is optional
	var archive storage.StorageInterface = storage.Noop{}
	if cfg.StorageAccount != "" {
		azureStorage, err := storage.NewAzureStorage(ctx, cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			logrus.Fatalf("Failed to initialize storage: %v", err)
		}
		archive = azureStorage
	}

	store := snapshot.NewStore()

	analysisService := analysis.NewService(cfg, analysis.Dependencies{
		History:  history.NewFetcher(slackClient, recorder),
		Names:    identity.NewCache(slackClient, recorder),
		Channels: slackClient,
		Store:    store,
		Notifier: notifications.NewSlackNotifier(slackClient),
		Reports:  notifications.NewService(cfg),
		Archive:  archive,
		Metrics:  recorder,
	})

	// Bind the first free port before anything can hand out the browser URL
	listener, port, err := server.Listen(cfg.Port, cfg.PortAttempts)
	if err != nil {
		logrus.Fatalf("Failed to bind HTTP port: %v", err)
	}
	analysisService.SetBrowserURL(cfg.BrowserURL(port))

	httpServer := server.NewServer(ctx, cfg, store, analysisService, recorder, server.NewResponseCache(cfg.ResponseCacheMB))

	// Initialize scheduler
	schedulerService := scheduler.NewService(ctx, cfg, analysisService)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}

	// Start HTTP server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		logrus.Infof("Mention map available at %s", cfg.BrowserURL(port))
		serverErr <- httpServer.Serve(listener)
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logrus.Info("Shutting down...")
	case err := <-serverErr:
		if err != nil {
			logrus.Errorf("HTTP server stopped: %v", err)
		}
	}

	// Abort any run in flight, then stop everything that could start a new one
	analysisService.Cancel()
	stop()
	schedulerService.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}
