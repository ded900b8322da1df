// streamtest logs in one account, opens its upstream socket and prints every
// routed event to the console. Nothing is persisted.
// Usage: go run ./cmd/streamtest --config configs/relay.local.yaml --username u --password p [--join]
//
// Without --username the service account from the config is used.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/boss-relay/internal/api"
	"github.com/rickgao/boss-relay/internal/config"
	"github.com/rickgao/boss-relay/internal/connection"
	"github.com/rickgao/boss-relay/internal/router"
)

func main() {
	configPath := flag.String("config", "configs/relay.example.yaml", "path to config file")
	username := flag.String("username", "", "account username")
	password := flag.String("password", "", "account password")
	join := flag.Bool("join", false, "join the current world boss after connecting")
	verbose := flag.Bool("verbose", false, "print full payload JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *username == "" {
		*username = cfg.Upstream.ServiceAccount.Username
		*password = cfg.Upstream.ServiceAccount.Password
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	apiClient := api.NewClient(cfg.Upstream.RestURL, api.WithLogger(logger), api.WithTimeout(cfg.Upstream.Timeout))

	token, err := apiClient.Login(ctx, *username, *password)
	if err != nil {
		logger.Error("login failed", "username", *username, "error", err)
		os.Exit(1)
	}
	logger.Info("logged in", "username", *username)

	client := connection.NewClient(connection.ClientConfig{
		URL:          cfg.Upstream.WSURL,
		Origin:       cfg.Upstream.Origin,
		PingTimeout:  cfg.Session.PingTimeout,
		WriteTimeout: cfg.Session.WriteTimeout,
		BufferSize:   1000,
	}, logger)

	if err := client.Connect(ctx); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	if err := client.Send(router.AuthFrame(token)); err != nil {
		logger.Error("send auth failed", "error", err)
		os.Exit(1)
	}

	if *join {
		if err := joinCurrent(ctx, apiClient, client, token); err != nil {
			logger.Warn("join failed", "error", err)
		}
	}

	counts := make(map[router.Kind]int)

	// Stats printer
	statsTicker := time.NewTicker(10 * time.Second)
	defer statsTicker.Stop()

	logger.Info("streaming started - press Ctrl+C to stop")

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown complete")
			return

		case err := <-client.Errors():
			logger.Error("connection lost", "error", err)
			return

		case <-statsTicker.C:
			logger.Info("stats",
				"hp_updates", counts[router.KindHPUpdate],
				"battle_steps", counts[router.KindBattleStep],
				"leaderboards", counts[router.KindLeaderboard],
				"unknown", counts[router.KindUnknown],
				"dropped", counts[router.KindDropped],
			)

		case raw := <-client.Messages():
			msg := router.Route(raw.Data, raw.ReceivedAt)
			counts[msg.Kind]++

			if msg.Kind == router.KindPing {
				client.Send([]byte(router.FramePong))
				continue
			}
			printMessage(msg, *verbose)
		}
	}
}

// joinCurrent looks up the running boss, requests a challenge id and sends
// the join frame.
func joinCurrent(ctx context.Context, apiClient *api.Client, client connection.Client, token string) error {
	boss, err := apiClient.CurrentWorldBoss(ctx, token)
	if err != nil {
		return err
	}
	if boss == nil {
		return fmt.Errorf("no world boss running")
	}

	challengeID, err := apiClient.Challenge(ctx, token, boss.ID)
	if err != nil {
		return err
	}

	frame, err := router.EventFrame(router.EventStartBattle, router.JoinPayload{
		WorldBossID: boss.ID,
		ChallengeID: challengeID,
	})
	if err != nil {
		return err
	}
	fmt.Printf("[JOIN] boss=%s name=%q challenge=%s\n", boss.ID, boss.Name, challengeID)
	return client.Send(frame)
}

func printMessage(msg router.Message, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(msg.Payload, "", "  ")
		fmt.Printf("[%s] %s %s\n", msg.Kind, msg.Event, data)
		return
	}

	switch msg.Kind {
	case router.KindHPUpdate:
		fmt.Printf("[HP] boss=%s hp=%.0f/%.0f\n", msg.HP.BossID, msg.HP.CurrentHP, msg.HP.MaxHP)
	case router.KindBattleStep:
		fmt.Printf("[STEP] %s\n", msg.Payload)
	case router.KindLeaderboard:
		fmt.Printf("[LEADERBOARD] %d bytes\n", len(msg.Payload))
	case router.KindUnknown:
		fmt.Printf("[EVENT] %s\n", msg.Event)
	}
}
