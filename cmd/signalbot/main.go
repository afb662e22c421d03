// Package main runs the MTG card lookup bot for Signal.
//
// It polls signal-cli-rest-api for inbound messages, answers card
// references via Scryfall with a 24 hour SQLite cache, and optionally
// serves an admin API for ban and cache management.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jimsug/mtg-signal-bot/internal/alerts"
	"github.com/jimsug/mtg-signal-bot/internal/api"
	"github.com/jimsug/mtg-signal-bot/internal/bot"
	"github.com/jimsug/mtg-signal-bot/internal/config"
	"github.com/jimsug/mtg-signal-bot/internal/resolver"
	"github.com/jimsug/mtg-signal-bot/internal/scryfall"
	sig "github.com/jimsug/mtg-signal-bot/internal/signal"
	"github.com/jimsug/mtg-signal-bot/internal/storage"
	"github.com/jimsug/mtg-signal-bot/internal/version"
)

var (
	configPath = flag.String("config", "config.toml", "Path to the TOML config file")
	dbPath     = flag.String("db-path", "", "Database path (overrides config)")
)

// receiveBackoff is how long to wait after a failed receive poll before
// trying again.
const receiveBackoff = 5 * time.Second

func main() {
	flag.Parse()

	if err := run(); err != nil {
		log.Fatalf("signalbot: %v", err)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log.Printf("Starting MTG Signal Bot %s on %s", version.GetVersion(), cfg.Signal.PhoneNumber)
	log.Printf("Database: %s", cfg.Database.Path)

	// Database
	dbConfig := storage.DefaultConfig(cfg.Database.Path)
	dbConfig.AutoMigrate = true
	db, err := storage.Open(dbConfig)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	ttl, _ := cfg.GetCacheTTL()
	cache := storage.NewCacheStore(db, ttl)
	usage := storage.NewUsageStore(db)

	// Hourly cache sweep
	purgeInterval, _ := cfg.GetPurgeInterval()
	scheduler := storage.NewPurgeScheduler(cache, &storage.PurgeSchedulerConfig{
		Interval: purgeInterval,
		OnPurgeComplete: func(removed int64, err error) {
			if err != nil {
				log.Printf("Cache purge failed: %v", err)
				return
			}
			if removed > 0 {
				log.Printf("Cache purge removed %d expired entries", removed)
			}
		},
	})
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start purge scheduler: %w", err)
	}
	defer func() {
		if err := scheduler.Stop(); err != nil {
			log.Printf("Error stopping purge scheduler: %v", err)
		}
	}()

	// Card resolution
	res := resolver.New(scryfall.NewClient(), cache)

	// Abuse alerting
	signalClient := sig.NewClient(cfg.Signal.Service, cfg.Signal.PhoneNumber)
	alertMgr := alerts.NewManager(usage)
	abuseWindow, _ := cfg.GetAbuseWindow()
	abuseCooldown, _ := cfg.GetAbuseCooldown()
	alertMgr.SetPolicy(cfg.Abuse.Threshold, abuseWindow, abuseCooldown)
	if cfg.Signal.OwnerNumber != "" {
		alertMgr.Register(sig.NewAlertSink(signalClient, cfg.Signal.OwnerNumber))
	}

	dispatcher := bot.NewDispatcher(res, usage, alertMgr, signalClient)

	// Admin API
	if cfg.Admin.Enabled {
		adminServer := api.NewServer(&api.Config{Addr: cfg.Admin.Addr}, usage, cache, scheduler)
		if err := adminServer.Start(); err != nil {
			return fmt.Errorf("start admin API: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := adminServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("Admin API shutdown error: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Println("Bot is running. Press Ctrl+C to stop.")
	receiveLoop(ctx, signalClient, dispatcher)

	log.Println("Shutting down...")
	return nil
}

// receiveLoop polls for inbound envelopes until the context is
// cancelled, handing each text message to the dispatcher.
func receiveLoop(ctx context.Context, client *sig.Client, dispatcher *bot.Dispatcher) {
	for {
		envelopes, err := client.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			log.Printf("Receive failed: %v", err)
			select {
			case <-time.After(receiveBackoff):
				continue
			case <-ctx.Done():
				return
			}
		}

		for _, env := range envelopes {
			if env.DataMessage == nil || env.DataMessage.Message == "" {
				continue
			}
			msg := bot.Message{
				UserID:    env.UserID(),
				Recipient: env.Recipient(),
				Text:      env.DataMessage.Message,
			}
			go func() {
				if err := dispatcher.HandleMessage(ctx, msg); err != nil {
					log.Printf("Handle message from %s failed: %v", msg.UserID, err)
				}
			}()
		}
	}
}
