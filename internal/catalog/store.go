package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/diamonddulceria/storefront/internal/database"
	"github.com/diamonddulceria/storefront/pkg/models"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrCategoryInUse    = errors.New("category still has products")
)

const productColumns = `id, name, description, price, category_id, image_url, active, is_custom, sort_order, created_at, updated_at`

type Store struct {
	db      *sql.DB
	retrier *database.Retrier
}

func NewStore(db *sql.DB, retrier *database.Retrier) *Store {
	return &Store{db: db, retrier: retrier}
}

func (s *Store) FindByID(ctx context.Context, id string) (*models.Product, error) {
	return s.findOne(ctx, "FindByID", `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
}

// FindByName matches case-insensitively, for carts that still reference products by name.
func (s *Store) FindByName(ctx context.Context, name string) (*models.Product, error) {
	return s.findOne(ctx, "FindByName",
		`SELECT `+productColumns+` FROM products WHERE LOWER(name) = LOWER($1) ORDER BY active DESC, created_at LIMIT 1`, name)
}

func (s *Store) findOne(ctx context.Context, op, query string, arg string) (*models.Product, error) {
	var product *models.Product
	err := s.retrier.Do(ctx, op, func(ctx context.Context) error {
		p, err := scanProduct(s.db.QueryRowContext(ctx, query, arg))
		product = p
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (s *Store) ListProducts(ctx context.Context, categoryID string, includeInactive bool) ([]*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products
		WHERE ($1 = '' OR category_id = $1) AND (active OR $2)
		ORDER BY sort_order, name`

	var products []*models.Product
	err := s.retrier.Do(ctx, "ListProducts", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query, categoryID, includeInactive)
		if err != nil {
			return err
		}
		defer rows.Close()

		products = products[:0]
		for rows.Next() {
			p, err := scanProduct(rows)
			if err != nil {
				return err
			}
			products = append(products, p)
		}
		return rows.Err()
	})
	return products, err
}

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, price, category_id, image_url, active, is_custom, sort_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.Name, p.Description, p.Price, p.CategoryID, p.ImageURL, p.Active, p.IsCustom, p.SortOrder, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	p.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET name = $2, description = $3, price = $4, category_id = $5, image_url = $6,
			active = $7, is_custom = $8, sort_order = $9, updated_at = $10
		WHERE id = $1`,
		p.ID, p.Name, p.Description, p.Price, p.CategoryID, p.ImageURL, p.Active, p.IsCustom, p.SortOrder, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return expectOneRow(res, ErrProductNotFound)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return expectOneRow(res, ErrProductNotFound)
}

func (s *Store) ListCategories(ctx context.Context) ([]*models.Category, error) {
	var categories []*models.Category
	err := s.retrier.Do(ctx, "ListCategories", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `SELECT id, name, slug, sort_order FROM categories ORDER BY sort_order, name`)
		if err != nil {
			return err
		}
		defer rows.Close()

		categories = categories[:0]
		for rows.Next() {
			c := &models.Category{}
			if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.SortOrder); err != nil {
				return err
			}
			categories = append(categories, c)
		}
		return rows.Err()
	})
	return categories, err
}

func (s *Store) CreateCategory(ctx context.Context, c *models.Category) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (id, name, slug, sort_order) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.Slug, c.SortOrder)
	if err != nil {
		return fmt.Errorf("failed to insert category: %w", err)
	}
	return nil
}

func (s *Store) UpdateCategory(ctx context.Context, c *models.Category) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE categories SET name = $2, slug = $3, sort_order = $4 WHERE id = $1`,
		c.ID, c.Name, c.Slug, c.SortOrder)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	return expectOneRow(res, ErrCategoryNotFound)
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	return database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		var inUse int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE category_id = $1`, id).Scan(&inUse); err != nil {
			return err
		}
		if inUse > 0 {
			return ErrCategoryInUse
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete category: %w", err)
		}
		return expectOneRow(res, ErrCategoryNotFound)
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	p := &models.Product{}
	var categoryID sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &categoryID, &p.ImageURL,
		&p.Active, &p.IsCustom, &p.SortOrder, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if categoryID.Valid {
		p.CategoryID = &categoryID.String
	}
	return p, nil
}

func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
