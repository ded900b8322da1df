// cleanup deletes stored accounts that can never log in again and prints
// account statistics.
// Usage: go run ./cmd/cleanup --config configs/relay.local.yaml [--dry-run]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rickgao/boss-relay/internal/config"
	"github.com/rickgao/boss-relay/internal/connection"
	"github.com/rickgao/boss-relay/internal/recovery"
	"github.com/rickgao/boss-relay/internal/store"
)

func main() {
	configPath := flag.String("config", "configs/relay.local.yaml", "path to config file")
	dryRun := flag.Bool("dry-run", false, "print statistics without deleting")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	st, err := store.Open(ctx, cfg.Store, cfg.Session.HistoryCapacity, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// No resumer: this binary never reconnects accounts.
	registry := connection.NewRegistry(nil, logger)
	coordinator := recovery.NewCoordinator(recovery.Config{}, st, registry, nil, logger)

	if !*dryRun {
		n, err := coordinator.Cleanup(ctx)
		if err != nil {
			logger.Error("cleanup failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("deleted %d invalid accounts\n", n)
	}

	stats, err := coordinator.Stats(ctx)
	if err != nil {
		logger.Error("stats failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("total=%d online=%d offline=%d\n", stats.TotalUsers, stats.OnlineUsers, stats.OfflineUsers)
}
