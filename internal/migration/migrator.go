package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

type Migration struct {
	Version    int
	Name       string
	Statements []string
}

// Migrations are applied in order; never edit an applied one, append a new version.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "catalog",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS categories (
				id VARCHAR(64) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				slug VARCHAR(255) NOT NULL UNIQUE,
				sort_order INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE IF NOT EXISTS products (
				id VARCHAR(128) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				price INTEGER NOT NULL CHECK (price >= 0),
				category_id VARCHAR(64) REFERENCES categories(id),
				image_url TEXT NOT NULL DEFAULT '',
				active BOOLEAN NOT NULL DEFAULT TRUE,
				is_custom BOOLEAN NOT NULL DEFAULT FALSE,
				sort_order INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_products_lower_name ON products(LOWER(name))`,
			`CREATE INDEX IF NOT EXISTS idx_products_category_id ON products(category_id)`,
		},
	},
	{
		Version: 2,
		Name:    "orders",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS orders (
				id UUID PRIMARY KEY,
				customer_name VARCHAR(255) NOT NULL,
				customer_email VARCHAR(255) NOT NULL,
				customer_phone VARCHAR(64) NOT NULL DEFAULT '',
				delivery_address TEXT NOT NULL DEFAULT '',
				special_instructions TEXT,
				items JSONB NOT NULL,
				total INTEGER NOT NULL CHECK (total >= 0),
				status VARCHAR(32) NOT NULL,
				payment_intent_id VARCHAR(255),
				admin_notes TEXT,
				quoted_price INTEGER,
				quote_status VARCHAR(32),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_payment_intent_id ON orders(payment_intent_id) WHERE payment_intent_id IS NOT NULL`,
			`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
			`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at DESC)`,
		},
	},
	{
		Version: 3,
		Name:    "notification_outbox",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS notification_outbox (
				id UUID PRIMARY KEY,
				order_id UUID,
				kind VARCHAR(64) NOT NULL,
				recipient VARCHAR(255) NOT NULL,
				subject TEXT NOT NULL,
				body TEXT NOT NULL,
				status VARCHAR(16) NOT NULL DEFAULT 'pending',
				attempts INTEGER NOT NULL DEFAULT 0,
				next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				last_error TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_notification_outbox_due ON notification_outbox(next_attempt_at) WHERE status = 'pending'`,
		},
	},
	{
		Version: 4,
		Name:    "promo_settings_admin",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS promo_codes (
				code VARCHAR(64) PRIMARY KEY,
				discount_type VARCHAR(16) NOT NULL CHECK (discount_type IN ('percentage', 'fixed')),
				discount_value NUMERIC(10,2) NOT NULL CHECK (discount_value >= 0),
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS site_settings (
				key VARCHAR(128) PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS admin_users (
				id UUID PRIMARY KEY,
				email VARCHAR(255) NOT NULL UNIQUE,
				password_hash VARCHAR(255) NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
		},
	},
}

type Migrator struct {
	db         *sql.DB
	logger     *logrus.Logger
	migrations []Migration
}

func NewMigrator(db *sql.DB, logger *logrus.Logger) *Migrator {
	return &Migrator{
		db:         db,
		logger:     logger,
		migrations: Migrations,
	}
}

// Up applies every migration newer than the recorded schema version.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if _, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL
	)`); err != nil {
		return 0, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := m.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}

	applied := 0
	for _, mig := range m.migrations {
		if mig.Version <= current {
			continue
		}
		if err := m.apply(ctx, mig); err != nil {
			return applied, fmt.Errorf("migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		applied++

		m.logger.WithFields(logrus.Fields{
			"version": mig.Version,
			"name":    mig.Name,
		}).Info("Applied schema migration")
	}

	return applied, nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range mig.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, $3)`,
		mig.Version, mig.Name, time.Now().UTC(),
	); err != nil {
		return err
	}

	return tx.Commit()
}
