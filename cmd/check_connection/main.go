package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vitos/tick_trader/internal/config"
	"github.com/vitos/tick_trader/internal/domain"
	"github.com/vitos/tick_trader/internal/infrastructure/deriv"
	"github.com/vitos/tick_trader/internal/infrastructure/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	symbol := flag.String("symbol", "", "symbol to stream (defaults to bot.symbol)")
	count := flag.Int("ticks", 5, "number of ticks to print")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.LoadEnv(); err != nil {
		fmt.Printf("Failed to load environment: %v\n", err)
		os.Exit(1)
	}
	if cfg.Deriv.Token == "" {
		fmt.Println("DERIV_API_TOKEN is not set")
		os.Exit(1)
	}
	if *symbol == "" {
		*symbol = cfg.Bot.Symbol
	}

	log, err := logger.NewLogger("warn", "console")
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	client := deriv.NewClient(cfg.DerivConfig(), log)
	fmt.Printf("Testing Deriv connection...\n")
	fmt.Printf("Endpoint: %s\n", cfg.DerivConfig().URL())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	info, err := client.Connect(ctx, cfg.Deriv.Token)
	if err != nil {
		fmt.Printf("Connect failed: %v\n", err)
		os.Exit(1)
	}
	defer client.Disconnect()

	fmt.Printf("Account: %s (%s)\n", info.LoginID, info.AccountType())
	fmt.Printf("Balance: %.2f %s\n", info.Balance, info.Currency)
	for _, acc := range client.Session().MT5Accounts {
		fmt.Printf("MT5: %s %s %.2f %s\n", acc.DisplayLogin, acc.AccountType, acc.Balance, acc.Currency)
	}

	ticks := make(chan domain.Tick, *count)
	client.On(domain.EventTick, func(ev domain.Event) {
		if ev.Tick.Symbol != *symbol {
			return
		}
		select {
		case ticks <- ev.Tick:
		default:
		}
	})
	client.SubscribeTicks(*symbol)

	for i := 0; i < *count; i++ {
		select {
		case t := <-ticks:
			fmt.Printf("%s %s %v\n", time.Unix(t.Epoch, 0).Format(time.TimeOnly), t.Symbol, t.Quote)
		case <-ctx.Done():
			fmt.Printf("Timed out waiting for ticks: %v\n", ctx.Err())
			os.Exit(1)
		}
	}
}
