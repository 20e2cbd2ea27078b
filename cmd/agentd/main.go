package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/atombot/config"
	"github.com/alejandrodnm/atombot/internal/adapters/custody"
	"github.com/alejandrodnm/atombot/internal/adapters/notify"
	"github.com/alejandrodnm/atombot/internal/adapters/sentiment"
	"github.com/alejandrodnm/atombot/internal/adapters/storage"
	"github.com/alejandrodnm/atombot/internal/adapters/tokens"
	"github.com/alejandrodnm/atombot/internal/adapters/venue"
	"github.com/alejandrodnm/atombot/internal/api"
	"github.com/alejandrodnm/atombot/internal/application/agent"
	"github.com/alejandrodnm/atombot/internal/application/registry"
	"github.com/alejandrodnm/atombot/internal/application/signal"
	"github.com/alejandrodnm/atombot/internal/auth"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full cycle tables (default: compact 1-line)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)
	logger := slog.Default()

	slog.Info("atombot starting",
		"config", *configPath,
		"cycle", cfg.CyclePeriod(),
		"check_interval", cfg.CheckInterval(),
		"http_port", cfg.HTTP.Port,
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	deps := agent.Deps{
		Venue:   venue.NewClient(cfg.Chains.VenueIndexer, cfg.Chains.VenueLCD),
		Custody: custody.NewClient(cfg.Chains.CustodyLCD, cfg.Chains.IBCChannel),
		Storage: store,
		Tokens: tokens.NewDiscovery(
			cfg.Tokens.RegistryURL,
			cfg.Tokens.DexScreenerURL,
			cfg.Tokens.CoinGeckoURL,
			cfg.Tokens.CoinGeckoKey,
		),
		Notifier:      notify.NewConsole(*table),
		Logger:        logger,
		CyclePeriod:   cfg.CyclePeriod(),
		CheckInterval: cfg.CheckInterval(),
	}
	deps.Signals = signal.New(
		deps.Venue,
		sentiment.NewClient(
			cfg.Sentiment.APIBase,
			cfg.Sentiment.APIKey,
			cfg.Sentiment.Model,
			cfg.Sentiment.NewsBase,
			cfg.Sentiment.SocialBase,
		),
		cfg.Agent.CandleLimit,
		cfg.Agent.WhaleTxThreshold,
		logger,
	)

	ctx, cancel := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := registry.New(deps)
	if err := reg.LoadAll(ctx); err != nil {
		slog.Error("failed to rehydrate accounts", "err", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: api.NewServer(reg, auth.NewService(store, logger)).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("control API listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		slog.Error("control API failed", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "err", err)
	}
	reg.StopAll()

	slog.Info("atombot stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
