package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const PaymentsDisabled = "disabled"

type Config struct {
	Port     string
	LogLevel logrus.Level

	DB DBConfig

	AllowedOrigin  string
	TrustedProxies []string

	KafkaBrokers      []string
	NotificationTopic string
	NotifierGroupID   string
	DLQReplay         bool

	StripeSecretKey     string
	StripeWebhookSecret string
	PaymentsMode        string
	Currency            string
	PaymentTimeout      time.Duration

	OperatorEmail string
	MailFrom      string
	SMTP          SMTPConfig

	AdminJWTSecret string
	AdminTokenTTL  time.Duration
	AdminEmail     string
	AdminPassword  string

	CheckoutRateRPS   float64
	CheckoutRateBurst int

	OutboxPollInterval time.Duration
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
}

func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

func (c SMTPConfig) Addr() string {
	return c.Host + ":" + c.Port
}

func Load() (*Config, error) {
	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: level,
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "storefront"),
			Password: getEnv("DB_PASSWORD", "storefront"),
			Name:     getEnv("DB_NAME", "storefront"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		AllowedOrigin:       getEnv("ALLOWED_ORIGIN", "*"),
		NotificationTopic:   getEnv("NOTIFICATION_TOPIC", "storefront.notifications"),
		NotifierGroupID:     getEnv("NOTIFIER_GROUP_ID", "storefront-notifier"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PaymentsMode:        getEnv("PAYMENTS_MODE", "stripe"),
		Currency:            strings.ToLower(getEnv("CURRENCY", "usd")),
		OperatorEmail:       getEnv("OPERATOR_EMAIL", "orders@diamonddulceria.com"),
		MailFrom:            getEnv("MAIL_FROM", "Diamond Dulceria <no-reply@diamonddulceria.com>"),
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnv("SMTP_PORT", "587"),
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASSWORD"),
		},
		AdminJWTSecret: os.Getenv("ADMIN_JWT_SECRET"),
		AdminEmail:     os.Getenv("ADMIN_EMAIL"),
		AdminPassword:  os.Getenv("ADMIN_PASSWORD"),
	}

	if proxies := os.Getenv("TRUSTED_PROXIES"); proxies != "" {
		cfg.TrustedProxies = strings.Split(proxies, ",")
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	if cfg.DLQReplay, err = getBool("DLQ_REPLAY", false); err != nil {
		return nil, err
	}
	if cfg.PaymentTimeout, err = getDuration("PAYMENT_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.AdminTokenTTL, err = getDuration("ADMIN_TOKEN_TTL", 12*time.Hour); err != nil {
		return nil, err
	}
	if cfg.OutboxPollInterval, err = getDuration("OUTBOX_POLL_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.CheckoutRateRPS, err = getFloat("CHECKOUT_RATE_RPS", 2); err != nil {
		return nil, err
	}
	burst, err := getFloat("CHECKOUT_RATE_BURST", 10)
	if err != nil {
		return nil, err
	}
	cfg.CheckoutRateBurst = int(burst)

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.PaymentsMode != PaymentsDisabled {
		if c.StripeSecretKey == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY is required"))
		}
		if c.StripeWebhookSecret == "" {
			errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required"))
		}
	}
	if c.AdminJWTSecret == "" {
		errs = append(errs, errors.New("ADMIN_JWT_SECRET is required"))
	}
	if c.PaymentTimeout <= 0 {
		errs = append(errs, errors.New("PAYMENT_TIMEOUT must be positive"))
	}
	if c.CheckoutRateRPS <= 0 || c.CheckoutRateBurst <= 0 {
		errs = append(errs, errors.New("checkout rate limit must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
