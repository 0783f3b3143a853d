package promo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/diamonddulceria/storefront/internal/database"
	"github.com/diamonddulceria/storefront/pkg/models"
)

var ErrNotFound = errors.New("promo code not found")

// Discount returns the amount taken off subtotal, always within [0, subtotal].
func Discount(subtotal int, code *models.PromoCode) int {
	if code == nil || !code.Active || subtotal <= 0 {
		return 0
	}

	var raw float64
	switch code.DiscountType {
	case models.DiscountPercentage:
		raw = float64(subtotal) * code.DiscountValue / 100
	case models.DiscountFixed:
		raw = code.DiscountValue
	default:
		return 0
	}

	// Clamp before converting; float to int conversion of out-of-range values is undefined.
	switch {
	case math.IsNaN(raw) || raw <= 0:
		return 0
	case raw >= float64(subtotal):
		return subtotal
	}
	return int(math.Round(raw))
}

func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type Store struct {
	db      *sql.DB
	retrier *database.Retrier
}

func NewStore(db *sql.DB, retrier *database.Retrier) *Store {
	return &Store{db: db, retrier: retrier}
}

func (s *Store) Get(ctx context.Context, code string) (*models.PromoCode, error) {
	p := &models.PromoCode{}
	err := s.retrier.Do(ctx, "GetPromoCode", func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx,
			`SELECT code, discount_type, discount_value, active, created_at FROM promo_codes WHERE code = $1`,
			Normalize(code),
		).Scan(&p.Code, &p.DiscountType, &p.DiscountValue, &p.Active, &p.CreatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Active returns the code only when it exists and is switched on.
func (s *Store) Active(ctx context.Context, code string) (*models.PromoCode, error) {
	p, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *Store) List(ctx context.Context) ([]*models.PromoCode, error) {
	var codes []*models.PromoCode
	err := s.retrier.Do(ctx, "ListPromoCodes", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT code, discount_type, discount_value, active, created_at FROM promo_codes ORDER BY created_at DESC`)
		if err != nil {
			return err
		}
		defer rows.Close()

		codes = codes[:0]
		for rows.Next() {
			p := &models.PromoCode{}
			if err := rows.Scan(&p.Code, &p.DiscountType, &p.DiscountValue, &p.Active, &p.CreatedAt); err != nil {
				return err
			}
			codes = append(codes, p)
		}
		return rows.Err()
	})
	return codes, err
}

func (s *Store) Create(ctx context.Context, p *models.PromoCode) error {
	p.Code = Normalize(p.Code)
	p.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO promo_codes (code, discount_type, discount_value, active, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.Code, p.DiscountType, p.DiscountValue, p.Active, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert promo code: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, p *models.PromoCode) error {
	p.Code = Normalize(p.Code)

	res, err := s.db.ExecContext(ctx,
		`UPDATE promo_codes SET discount_type = $2, discount_value = $3, active = $4 WHERE code = $1`,
		p.Code, p.DiscountType, p.DiscountValue, p.Active)
	if err != nil {
		return fmt.Errorf("failed to update promo code: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, code string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM promo_codes WHERE code = $1`, Normalize(code))
	if err != nil {
		return fmt.Errorf("failed to delete promo code: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	return nil
}
