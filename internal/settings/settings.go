package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/diamonddulceria/storefront/internal/database"
	"github.com/diamonddulceria/storefront/pkg/models"
)

var ErrNotFound = errors.New("setting not found")

// Store keeps editable site copy as key/value pairs.
type Store struct {
	db      *sql.DB
	retrier *database.Retrier
}

func NewStore(db *sql.DB, retrier *database.Retrier) *Store {
	return &Store{db: db, retrier: retrier}
}

func (s *Store) All(ctx context.Context) (map[string]string, error) {
	values := map[string]string{}
	err := s.retrier.Do(ctx, "ListSettings", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM site_settings ORDER BY key`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var key, value string
			if err := rows.Scan(&key, &value); err != nil {
				return err
			}
			values[key] = value
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

func (s *Store) Put(ctx context.Context, key, value string) (*models.Setting, error) {
	setting := &models.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO site_settings (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		setting.Key, setting.Value, setting.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return setting, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM site_settings WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
