package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Dhoini/mailbox-registry/internal/app"
	"github.com/Dhoini/mailbox-registry/internal/config"
	"github.com/Dhoini/mailbox-registry/pkg/logger"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.IsProduction())
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	// Контекст отменяется по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("Failed to initialize application", "error", err)
	}
	defer application.Close(context.Background())

	if err := application.Run(ctx); err != nil {
		log.Errorw("Application stopped with error", "error", err)
		return
	}
	log.Infow("Server stopped gracefully")
}
