package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vadimbarashkov/linktrack/internal/app"
	"github.com/vadimbarashkov/linktrack/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	if err := app.Run(ctx, cfg); err != nil {
		slog.Error("application error", slog.Any("err", err))
		os.Exit(1)
	}
}
