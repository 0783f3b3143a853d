package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/diamonddulceria/storefront/internal/config"
	"github.com/diamonddulceria/storefront/internal/notify"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	logger.SetLevel(cfg.LogLevel)

	if len(cfg.KafkaBrokers) == 0 {
		logger.Fatal("KAFKA_BROKERS is required for the DLQ monitor")
	}

	monitor, err := notify.NewDLQMonitor(cfg.KafkaBrokers, "dlq-monitor-group", cfg.NotificationTopic, cfg.DLQReplay, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create DLQ monitor")
	}
	defer monitor.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := monitor.Start(ctx); err != nil {
			logger.WithError(err).Error("DLQ monitor stopped")
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	logger.Info("Shutting down DLQ monitor...")
	cancel()
}
