package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blackmichael/studio-posts/internal/config"
	"github.com/blackmichael/studio-posts/internal/domain"
	"github.com/blackmichael/studio-posts/internal/fonts"
	"github.com/blackmichael/studio-posts/internal/httpserver"
	"github.com/blackmichael/studio-posts/internal/ingest"
	"github.com/blackmichael/studio-posts/internal/logging"
	"github.com/blackmichael/studio-posts/internal/mediagroup"
	"github.com/blackmichael/studio-posts/internal/sqlite"
	"github.com/blackmichael/studio-posts/internal/stream"
	"github.com/blackmichael/studio-posts/internal/telegram"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	// Set up repository (implements both PostRepository and CursorRepository)
	repo, err := sqlite.NewRepository(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("create repository: %w", err)
	}
	defer repo.Close()
	logger.Info("opened database", "path", cfg.DatabasePath)

	// getUpdates holds the request open for PollTimeout, so the client needs headroom.
	client := telegram.NewClient(cfg.TelegramAPIURL, cfg.TelegramBotToken, cfg.PollTimeout+cfg.HTTPTimeout)

	ingestor, err := ingest.NewIngestor(client.FileBaseURL(), cfg.PhotosDir, cfg.HTTPTimeout, logger)
	if err != nil {
		return fmt.Errorf("create ingestor: %w", err)
	}

	hub := stream.NewHub(logger)
	notifier := telegram.NewChatNotifier(client, cfg.TelegramChatID)
	postService := domain.NewPostService(repo, repo, ingestor, notifier, hub, logger)

	aggregator := mediagroup.NewAggregator(postService, logger, mediagroup.WithWindow(cfg.MediaGroupWindow))
	bot := telegram.NewBot(client, postService, aggregator, logger)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start the bot in the background
	poller := telegram.NewPoller(client, bot, postService, cfg.PollTimeout, logger)
	go func() {
		if err := poller.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("telegram poller exited with error", "error", err)
		}
	}()

	fontClient := fonts.NewClient(cfg.GoogleFontsURL, cfg.GoogleFontsAPIKey, cfg.HTTPTimeout)
	streamHandler := stream.NewHandler(hub, cfg.AllowedOrigin, logger)

	server := httpserver.NewServer(cfg, postService, fontClient, streamHandler, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("server started", "port", cfg.Port, "photos_dir", cfg.PhotosDir)

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	if n := aggregator.Pending(); n > 0 {
		logger.Warn("media groups still pending at shutdown", "count", n)
	}

	return nil
}
