package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/boss-relay/internal/accounts"
	"github.com/rickgao/boss-relay/internal/api"
	"github.com/rickgao/boss-relay/internal/auth"
	"github.com/rickgao/boss-relay/internal/config"
	"github.com/rickgao/boss-relay/internal/connection"
	"github.com/rickgao/boss-relay/internal/database"
	"github.com/rickgao/boss-relay/internal/encounter"
	"github.com/rickgao/boss-relay/internal/httpapi"
	"github.com/rickgao/boss-relay/internal/metrics"
	"github.com/rickgao/boss-relay/internal/poller"
	"github.com/rickgao/boss-relay/internal/recovery"
	"github.com/rickgao/boss-relay/internal/store"
	"github.com/rickgao/boss-relay/internal/version"
	"github.com/rickgao/boss-relay/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/relay.local.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Set up structured logging
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("starting relay",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"rest_url", cfg.Upstream.RestURL,
		"store", cfg.Store.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// The store is the only dependency the relay cannot start without.
	st, err := store.Open(ctx, cfg.Store, cfg.Session.HistoryCapacity, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Create API client
	apiClient := api.NewClient(
		cfg.Upstream.RestURL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.Upstream.Timeout),
		api.WithRetries(cfg.Upstream.MaxRetries, time.Second),
	)

	creds, err := auth.LoadCredentials(cfg.Upstream.ServiceAccount.Username, cfg.Upstream.ServiceAccount.Password)
	if err != nil {
		logger.Error("failed to load service account", "error", err)
		os.Exit(1)
	}
	tokens := auth.NewTokenSource(creds, apiClient, logger)

	// Shared state
	state := encounter.NewState()
	tracker := metrics.NewTracker()
	registry := connection.NewRegistry(tracker, logger)

	// Optional battle-step archive
	var archiver connection.Archiver
	var stepWriter *writer.StepWriter
	if cfg.Archive.Enabled {
		pool, err := database.Connect(ctx, cfg.Store.Postgres)
		if err != nil {
			logger.Error("failed to connect archive database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Error("failed to migrate archive database", "error", err)
			os.Exit(1)
		}

		stepWriter = writer.NewStepWriter(writer.WriterConfig{
			BatchSize:     cfg.Archive.BatchSize,
			FlushInterval: cfg.Archive.FlushInterval,
			BufferSize:    cfg.Archive.BufferSize,
		}, pool, logger)
		stepWriter.Start(ctx)
		archiver = stepWriter
	}

	sessionCfg := connection.SessionConfig{
		Client: connection.ClientConfig{
			URL:          cfg.Upstream.WSURL,
			Origin:       cfg.Upstream.Origin,
			PingTimeout:  cfg.Session.PingTimeout,
			WriteTimeout: cfg.Session.WriteTimeout,
			BufferSize:   connection.DefaultClientConfig().BufferSize,
		},
		JoinDelay:       cfg.Session.JoinDelay,
		JoinInterval:    cfg.Session.JoinInterval,
		StoreTimeout:    cfg.Session.StoreTimeout,
		HistoryCapacity: cfg.Session.HistoryCapacity,
	}

	svc := accounts.NewService(sessionCfg, accounts.Deps{
		Auth:      apiClient,
		Store:     st,
		Registry:  registry,
		Encounter: state,
		Archiver:  archiver,
		Logger:    logger,
	})

	encounterPoller := poller.New(poller.Config{
		Interval: cfg.Encounter.PollInterval,
		Timeout:  cfg.Upstream.Timeout,
	}, apiClient, tokens, state, registry, logger)

	coordinator := recovery.NewCoordinator(recovery.Config{
		HealInterval:  cfg.Recovery.HealInterval,
		AccountDelay:  cfg.Recovery.AccountDelay,
		ConnectJitter: cfg.Recovery.ConnectJitter,
		MaxBackoff:    cfg.Recovery.MaxBackoff,
	}, st, registry, svc, logger)

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: httpapi.NewServer(httpapi.Deps{
			Accounts: svc,
			Stats:    coordinator,
			Store:    st,
			Tracker:  tracker,
			Logger:   logger,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		if err := encounterPoller.Start(gctx); err != nil {
			return fmt.Errorf("start encounter poller: %w", err)
		}
		if _, err := coordinator.Recover(gctx); err != nil && gctx.Err() == nil {
			logger.Error("startup recovery failed", "error", err)
		}
		return coordinator.Start(gctx)
	})

	logger.Info("relay running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port),
	)

	if err := g.Wait(); err != nil {
		logger.Error("relay error", "error", err)
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	encounterPoller.Stop(shutdownCtx)
	coordinator.Stop(shutdownCtx)
	svc.Close()

	// Close leaves durable status untouched so the next start recovers
	// every account that was online.
	registry.CloseAll()

	if stepWriter != nil {
		stepWriter.Stop(shutdownCtx)
	}

	logger.Info("relay stopped")
}
