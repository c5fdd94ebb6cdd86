package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ykvlv/medreminder-bot/internal/app"
	"github.com/ykvlv/medreminder-bot/internal/config"
	"github.com/ykvlv/medreminder-bot/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet.
		_, _ = os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(2)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	log.Info("config loaded",
		zap.String("db", cfg.DBPath),
		zap.String("defaultTZ", cfg.DefaultTZ),
		zap.Duration("snoozeDelay", cfg.SnoozeDelay),
		zap.Duration("wizardTTL", cfg.WizardTTL),
		zap.Float64("sendRate", cfg.SendRate),
	)

	application, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("app init failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		log.Error("app run failed", zap.Error(err))
		stop()
		_ = log.Sync()
		os.Exit(1)
	}
}
