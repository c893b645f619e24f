package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Brownie44l1/digitscope/internal/config"
	"github.com/Brownie44l1/digitscope/internal/container"
	"github.com/Brownie44l1/digitscope/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.TelegramToken == "" {
		log.Fatal("TELEGRAM_TOKEN is required")
	}

	app, err := container.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Engine.Warmup(ctx); err != nil {
		log.Printf("Model warmup failed: %v", err)
	}

	bot, err := telegram.NewBot(cfg.TelegramToken, app)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	log.Println("Bot is running...")
	if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Bot error: %v", err)
	}
}
