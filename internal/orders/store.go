package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/diamonddulceria/storefront/internal/database"
	"github.com/diamonddulceria/storefront/internal/notify"
	"github.com/diamonddulceria/storefront/pkg/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

var ErrNotFound = errors.New("order not found")

const orderColumns = `id, customer_name, customer_email, customer_phone, delivery_address, special_instructions,
	items, total, status, payment_intent_id, admin_notes, quoted_price, quote_status, created_at`

type Store struct {
	db      *sql.DB
	retrier *database.Retrier
	logger  *logrus.Logger
}

func NewStore(db *sql.DB, retrier *database.Retrier, logger *logrus.Logger) *Store {
	return &Store{db: db, retrier: retrier, logger: logger}
}

// Create inserts the order and its outbox notifications in one transaction.
// When another order already holds the same payment intent, that order is
// returned with created == false and nothing is written.
func (s *Store) Create(ctx context.Context, order *models.Order, notifications []models.Notification) (*models.Order, bool, error) {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal items: %w", err)
	}

	err = s.retrier.Do(ctx, "CreateOrder", func(ctx context.Context) error {
		return database.InTx(ctx, s.db, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO orders (id, customer_name, customer_email, customer_phone, delivery_address,
					special_instructions, items, total, status, payment_intent_id, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				order.ID, order.CustomerName, order.CustomerEmail, order.CustomerPhone, order.DeliveryAddress,
				order.SpecialInstructions, itemsJSON, order.Total, order.Status, order.PaymentIntentID, order.CreatedAt)
			if err != nil {
				return err
			}
			return notify.Enqueue(ctx, tx, order.ID, notifications)
		})
	})

	if database.IsUniqueViolation(err) && order.PaymentIntentID != nil {
		existing, getErr := s.GetByPaymentIntent(ctx, *order.PaymentIntentID)
		if getErr != nil {
			return nil, false, fmt.Errorf("failed to load existing order for payment intent: %w", getErr)
		}
		s.logger.WithFields(logrus.Fields{
			"order_id":          existing.ID,
			"payment_intent_id": *order.PaymentIntentID,
		}).Info("Order already exists for payment intent")
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to save order: %w", err)
	}

	return order, true, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*models.Order, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	return s.getOne(ctx, "GetOrder", `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (s *Store) GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	return s.getOne(ctx, "GetOrderByPaymentIntent", `SELECT `+orderColumns+` FROM orders WHERE payment_intent_id = $1`, paymentIntentID)
}

func (s *Store) getOne(ctx context.Context, op, query, arg string) (*models.Order, error) {
	var order *models.Order
	err := s.retrier.Do(ctx, op, func(ctx context.Context) error {
		o, err := scanOrder(s.db.QueryRowContext(ctx, query, arg))
		order = o
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// List returns orders newest first, optionally restricted to the given statuses.
func (s *Store) List(ctx context.Context, statuses ...string) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC`
	var args []any
	if len(statuses) > 0 {
		query = `SELECT ` + orderColumns + ` FROM orders WHERE status = ANY($1) ORDER BY created_at DESC`
		args = append(args, pq.Array(statuses))
	}

	var orders []*models.Order
	err := s.retrier.Do(ctx, "ListOrders", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		orders = orders[:0]
		for rows.Next() {
			o, err := scanOrder(rows)
			if err != nil {
				return err
			}
			orders = append(orders, o)
		}
		return rows.Err()
	})
	return orders, err
}

// MarkPaid moves a pending order to paid, recording the charge that paid it
// and enqueueing notifications in the same transaction. It reports whether the
// row changed; false means the order was no longer pending.
func (s *Store) MarkPaid(ctx context.Context, id, paymentIntentID string, total int, notifications []models.Notification) (bool, error) {
	var changed bool
	err := s.retrier.Do(ctx, "MarkOrderPaid", func(ctx context.Context) error {
		return database.InTx(ctx, s.db, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, `
				UPDATE orders SET status = $2, payment_intent_id = $3, total = $4
				WHERE id = $1 AND status = $5`,
				id, models.OrderStatusPaid, paymentIntentID, total, models.OrderStatusPending)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			changed = n == 1
			if !changed {
				return nil
			}
			return notify.Enqueue(ctx, tx, id, notifications)
		})
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark order paid: %w", err)
	}
	return changed, nil
}

// SetStatus is the admin override: any known status from any other.
func (s *Store) SetStatus(ctx context.Context, id, status string) (previous string, err error) {
	if !validID(id) {
		return "", ErrNotFound
	}
	err = database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&previous); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, id, status)
		return err
	})
	return previous, err
}

func (s *Store) UpdateNotes(ctx context.Context, id string, notes *string) error {
	if !validID(id) {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `UPDATE orders SET admin_notes = $2 WHERE id = $1`, id, notes)
	if err != nil {
		return fmt.Errorf("failed to update notes: %w", err)
	}
	return expectOneRow(res)
}

func (s *Store) UpdateQuote(ctx context.Context, id string, quotedPrice *int, quoteStatus *string, notifications []models.Notification) error {
	if !validID(id) {
		return ErrNotFound
	}
	return database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE orders SET quoted_price = $2, quote_status = $3 WHERE id = $1`, id, quotedPrice, quoteStatus)
		if err != nil {
			return fmt.Errorf("failed to update quote: %w", err)
		}
		if err := expectOneRow(res); err != nil {
			return err
		}
		return notify.Enqueue(ctx, tx, id, notifications)
	})
}

// Notify queues ad-hoc emails about an existing order.
func (s *Store) Notify(ctx context.Context, id string, notifications []models.Notification) error {
	return notify.Enqueue(ctx, s.db, id, notifications)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	return expectOneRow(res)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// validID keeps malformed ids away from the uuid column, where they would be a query error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	o := &models.Order{}
	var (
		itemsJSON           []byte
		specialInstructions sql.NullString
		paymentIntentID     sql.NullString
		adminNotes          sql.NullString
		quotedPrice         sql.NullInt64
		quoteStatus         sql.NullString
	)

	err := row.Scan(&o.ID, &o.CustomerName, &o.CustomerEmail, &o.CustomerPhone, &o.DeliveryAddress,
		&specialInstructions, &itemsJSON, &o.Total, &o.Status, &paymentIntentID, &adminNotes,
		&quotedPrice, &quoteStatus, &o.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("failed to decode items for order %s: %w", o.ID, err)
	}
	if specialInstructions.Valid {
		o.SpecialInstructions = &specialInstructions.String
	}
	if paymentIntentID.Valid {
		o.PaymentIntentID = &paymentIntentID.String
	}
	if adminNotes.Valid {
		o.AdminNotes = &adminNotes.String
	}
	if quotedPrice.Valid {
		price := int(quotedPrice.Int64)
		o.QuotedPrice = &price
	}
	if quoteStatus.Valid {
		o.QuoteStatus = &quoteStatus.String
	}
	return o, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
