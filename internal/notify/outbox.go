package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/diamonddulceria/storefront/internal/database"
	"github.com/diamonddulceria/storefront/pkg/models"
	"github.com/google/uuid"
)

// Lease keeps a claimed row away from other relays while it is being sent.
const Lease = 5 * time.Minute

// Enqueue writes notifications for orderID using q, normally the transaction
// that also writes the order.
func Enqueue(ctx context.Context, q database.Querier, orderID string, notifications []models.Notification) error {
	now := time.Now().UTC()
	for _, n := range notifications {
		_, err := q.ExecContext(ctx, `
			INSERT INTO notification_outbox (id, order_id, kind, recipient, subject, body, status, attempts, next_attempt_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $8)`,
			uuid.NewString(), orderID, n.Kind, n.Recipient, n.Subject, n.Body, models.NotificationPending, now)
		if err != nil {
			return fmt.Errorf("failed to enqueue %s notification: %w", n.Kind, err)
		}
	}
	return nil
}

type Outbox interface {
	Claim(ctx context.Context, limit int) ([]models.Notification, error)
	MarkSent(ctx context.Context, id string) error
	MarkRetry(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error
	MarkFailed(ctx context.Context, id string, attempts int, lastErr string) error
}

type PostgresOutbox struct {
	db      *sql.DB
	retrier *database.Retrier
}

func NewPostgresOutbox(db *sql.DB, retrier *database.Retrier) *PostgresOutbox {
	return &PostgresOutbox{db: db, retrier: retrier}
}

// Claim leases up to limit due notifications.
func (o *PostgresOutbox) Claim(ctx context.Context, limit int) ([]models.Notification, error) {
	var claimed []models.Notification
	err := o.retrier.Do(ctx, "ClaimNotifications", func(ctx context.Context) error {
		rows, err := o.db.QueryContext(ctx, `
			UPDATE notification_outbox SET next_attempt_at = $2
			WHERE id IN (
				SELECT id FROM notification_outbox
				WHERE status = 'pending' AND next_attempt_at <= $1
				ORDER BY next_attempt_at
				LIMIT $3
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id, COALESCE(order_id::text, ''), kind, recipient, subject, body, status, attempts, next_attempt_at, last_error, created_at`,
			time.Now().UTC(), time.Now().UTC().Add(Lease), limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		claimed = claimed[:0]
		for rows.Next() {
			var n models.Notification
			if err := rows.Scan(&n.ID, &n.OrderID, &n.Kind, &n.Recipient, &n.Subject, &n.Body,
				&n.Status, &n.Attempts, &n.NextAttemptAt, &n.LastError, &n.CreatedAt); err != nil {
				return err
			}
			claimed = append(claimed, n)
		}
		return rows.Err()
	})
	return claimed, err
}

func (o *PostgresOutbox) MarkSent(ctx context.Context, id string) error {
	return o.retrier.Do(ctx, "MarkNotificationSent", func(ctx context.Context) error {
		_, err := o.db.ExecContext(ctx,
			`UPDATE notification_outbox SET status = $2, attempts = attempts + 1, last_error = '' WHERE id = $1`,
			id, models.NotificationSent)
		return err
	})
}

func (o *PostgresOutbox) MarkRetry(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error {
	return o.retrier.Do(ctx, "MarkNotificationRetry", func(ctx context.Context) error {
		_, err := o.db.ExecContext(ctx,
			`UPDATE notification_outbox SET attempts = $2, next_attempt_at = $3, last_error = $4 WHERE id = $1`,
			id, attempts, next, lastErr)
		return err
	})
}

func (o *PostgresOutbox) MarkFailed(ctx context.Context, id string, attempts int, lastErr string) error {
	return o.retrier.Do(ctx, "MarkNotificationFailed", func(ctx context.Context) error {
		_, err := o.db.ExecContext(ctx,
			`UPDATE notification_outbox SET status = $2, attempts = $3, last_error = $4 WHERE id = $1`,
			id, models.NotificationFailed, attempts, lastErr)
		return err
	})
}
