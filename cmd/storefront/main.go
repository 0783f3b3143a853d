package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diamonddulceria/storefront/internal/admin"
	"github.com/diamonddulceria/storefront/internal/api"
	"github.com/diamonddulceria/storefront/internal/catalog"
	"github.com/diamonddulceria/storefront/internal/checkout"
	"github.com/diamonddulceria/storefront/internal/config"
	"github.com/diamonddulceria/storefront/internal/database"
	"github.com/diamonddulceria/storefront/internal/livefeed"
	"github.com/diamonddulceria/storefront/internal/migration"
	"github.com/diamonddulceria/storefront/internal/notify"
	"github.com/diamonddulceria/storefront/internal/orders"
	"github.com/diamonddulceria/storefront/internal/payments"
	"github.com/diamonddulceria/storefront/internal/promo"
	"github.com/diamonddulceria/storefront/internal/reconcile"
	"github.com/diamonddulceria/storefront/internal/settings"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Open(ctx, cfg.DB.DSN(), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if _, err := migration.NewMigrator(db, logger).Up(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to apply migrations")
	}

	retrier := database.NewRetrier(logger)
	catalogStore := catalog.NewStore(db, retrier)
	promoStore := promo.NewStore(db, retrier)
	orderStore := orders.NewStore(db, retrier, logger)
	settingsStore := settings.NewStore(db, retrier)

	var processor payments.Processor = payments.DisabledProcessor{}
	var guard *payments.Guarded
	if cfg.PaymentsMode != config.PaymentsDisabled {
		guard = payments.NewGuarded(payments.NewStripeProcessor(cfg.StripeSecretKey, logger), cfg.PaymentTimeout, logger)
		processor = guard
	} else {
		logger.Warn("Payments disabled; only zero-amount orders can be placed")
	}

	hub := livefeed.NewHub(cfg.AllowedOrigin, logger)
	go hub.Run(ctx)

	service := checkout.NewService(catalog.NewRevalidator(catalogStore), promoStore, processor, orderStore, checkout.Config{
		Currency:      cfg.Currency,
		OperatorEmail: cfg.OperatorEmail,
	}, logger)
	service.SetEventPublisher(hub)

	auth := admin.NewAuthenticator(admin.NewPostgresUsers(db), cfg.AdminJWTSecret, cfg.AdminTokenTTL, logger)
	if err := auth.Bootstrap(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		logger.WithError(err).Fatal("Failed to bootstrap admin user")
	}
	adminHandler := admin.NewHandler(auth, orderStore, api.NewValidator(), logger)
	adminHandler.SetEventPublisher(hub)

	dispatcher, closeDispatcher := newDispatcher(cfg, logger)
	defer closeDispatcher()
	go notify.NewRelay(notify.NewPostgresOutbox(db, retrier), dispatcher, cfg.OutboxPollInterval, logger).Run(ctx)

	trusted, err := api.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		logger.WithError(err).Fatal("Invalid TRUSTED_PROXIES")
	}
	limiter := api.NewRateLimiter(cfg.CheckoutRateRPS, cfg.CheckoutRateBurst)
	limiter.TrustProxies(trusted)
	go limiter.RunSweeper(ctx, time.Minute)

	var webhook *checkout.WebhookHandler
	if cfg.PaymentsMode != config.PaymentsDisabled {
		webhook = checkout.NewWebhookHandler(payments.NewWebhookVerifier(cfg.StripeWebhookSecret), service, logger)
	}

	validate := api.NewValidator()
	router := newRouter(handlers{
		db:        db,
		auth:      auth,
		admin:     adminHandler,
		catalog:   catalog.NewHandler(catalogStore, validate, logger),
		checkout:  checkout.NewHandler(service, validate, logger),
		webhook:   webhook,
		promo:     promo.NewHandler(promoStore, validate, logger),
		settings:  settings.NewHandler(settingsStore, validate, logger),
		breaker:   payments.NewBreakerHandler(guard, logger),
		reconcile: reconcile.NewHandler(reconcile.NewAnalyzer(orderStore, processor, logger), logger),
		hub:       hub,
		limiter:   limiter,
	}, cfg.AllowedOrigin, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("Starting storefront API")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server gracefully stopped")
}

// newDispatcher publishes to Kafka when brokers are configured and mails
// directly otherwise.
func newDispatcher(cfg *config.Config, logger *logrus.Logger) (notify.Dispatcher, func()) {
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.NotificationTopic, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka producer")
		}
		return publisher, func() { publisher.Close() }
	}
	return notify.NewMailDispatcher(newMailer(cfg, logger)), func() {}
}

func newMailer(cfg *config.Config, logger *logrus.Logger) notify.Mailer {
	if cfg.SMTP.Enabled() {
		return notify.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.MailFrom)
	}
	logger.Warn("SMTP_HOST not set; emails will only be logged")
	return notify.NewLogMailer(logger)
}
