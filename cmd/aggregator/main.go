package main

import (
	"context"
	"os/signal"
	"syscall"

	"takerflow/config"
	"takerflow/internal/collector"
	"takerflow/logger"

	"go.uber.org/zap"
)

func main() {
	// viper config
	cfg := config.Load()

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run until interrupted
	if err := collector.Run(ctx, cfg, log); err != nil {
		log.Fatal("aggregator failed", zap.Error(err))
	}
	log.Info("aggregator stopped")
}
