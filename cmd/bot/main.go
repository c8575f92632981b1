package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/tick_trader/internal/config"
	"github.com/vitos/tick_trader/internal/domain"
	"github.com/vitos/tick_trader/internal/infrastructure/deriv"
	"github.com/vitos/tick_trader/internal/infrastructure/logger"
	"github.com/vitos/tick_trader/internal/infrastructure/storage"
	"github.com/vitos/tick_trader/internal/usecase"
	"github.com/vitos/tick_trader/internal/web"
	"go.uber.org/zap"
)

func main() {
	// 1. Load Config
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.LoadEnv(); err != nil {
		fmt.Printf("Failed to load environment: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Encoding)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init API session and dashboard hub
	client := deriv.NewClient(cfg.DerivConfig(), log.Named("deriv"))
	hub := web.NewHub(log.Named("hub"))
	client.On(domain.EventTick, func(ev domain.Event) { hub.PublishTick(ev.Tick) })
	client.On(domain.EventStatus, func(ev domain.Event) { hub.PublishStatus(ev.Status) })

	// 5. Init Bot
	bot := usecase.NewBotService(client, store, store, hub, cfg.BotConfig(), log.Named("bot"))
	if err := bot.LoadHistory(context.Background()); err != nil {
		log.Error("Failed to load trade history", zap.Error(err))
	}

	if cfg.Deriv.Token != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		info, err := bot.Connect(ctx, cfg.Deriv.Token)
		cancel()
		if err != nil {
			log.Error("Initial connect failed", zap.Error(err))
		} else {
			log.Info("Connected", zap.String("loginid", info.LoginID), zap.Bool("demo", info.IsVirtual))
		}
	}

	// 6. Init Web Server
	server := web.NewServer(cfg.Server.Port, bot, store, hub, cfg.Deriv.Token, log.Named("web"))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 7. Start Server
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 8. Wait for Shutdown
	<-stop

	log.Info("Shutting down...")
	if err := bot.Stop(); err != nil && !errors.Is(err, domain.ErrBotNotRunning) {
		log.Warn("Failed to stop bot", zap.Error(err))
	}
	bot.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(ctx)
}
