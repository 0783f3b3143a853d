package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

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
		logger.Fatal("KAFKA_BROKERS is required for the notifier")
	}

	var mailer notify.Mailer
	if cfg.SMTP.Enabled() {
		mailer = notify.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.MailFrom)
	} else {
		logger.Warn("SMTP_HOST not set; emails will only be logged")
		mailer = notify.NewLogMailer(logger)
	}

	consumer, err := notify.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroupID, cfg.NotificationTopic, notify.NewMailHandler(mailer), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create notification consumer")
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.WithError(err).Error("Notification consumer stopped")
			cancel()
		}
	}()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			m := consumer.Metrics()
			logger.WithFields(logrus.Fields{
				"processed": m.ProcessedCount,
				"succeeded": m.SuccessCount,
				"retried":   m.RetryCount,
				"dead":      m.DLQCount,
			}).Info("Notifier metrics")
		case <-sigChan:
			logger.Info("Shutting down notifier...")
			return
		case <-ctx.Done():
			return
		}
	}
}
