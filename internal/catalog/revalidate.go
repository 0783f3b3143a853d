package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/diamonddulceria/storefront/pkg/models"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
)

// CartLine is what the client submits: a reference and a quantity. Any price
// sent alongside it is ignored.
type CartLine struct {
	ID          string
	Name        string
	Quantity    int
	CustomNotes string
}

// ProductNotFoundError names the cart reference that could not be resolved.
type ProductNotFoundError struct {
	Identifier string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: %s", e.Identifier)
}

func (e *ProductNotFoundError) Is(target error) bool {
	return target == ErrProductNotFound
}

type ProductSource interface {
	FindByID(ctx context.Context, id string) (*models.Product, error)
	FindByName(ctx context.Context, name string) (*models.Product, error)
}

type ValidatedCart struct {
	Items    []models.LineItem
	Subtotal int
}

type Revalidator struct {
	products ProductSource
}

func NewRevalidator(products ProductSource) *Revalidator {
	return &Revalidator{products: products}
}

// Revalidate resolves every line against the catalog and prices it from there.
func (r *Revalidator) Revalidate(ctx context.Context, lines []CartLine) (*ValidatedCart, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	cart := &ValidatedCart{Items: make([]models.LineItem, 0, len(lines))}
	for i, line := range lines {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("item %d: %w", i, ErrInvalidQuantity)
		}

		product, err := r.resolve(ctx, line)
		if err != nil {
			return nil, err
		}

		cart.Items = append(cart.Items, models.LineItem{
			ID:          product.ID,
			Name:        product.Name,
			Price:       product.Price,
			Quantity:    line.Quantity,
			CustomNotes: strings.TrimSpace(line.CustomNotes),
		})
		cart.Subtotal += product.Price * line.Quantity
	}

	return cart, nil
}

func (r *Revalidator) resolve(ctx context.Context, line CartLine) (*models.Product, error) {
	if line.ID != "" {
		p, err := r.products.FindByID(ctx, line.ID)
		if err == nil && p.Active {
			return p, nil
		}
		if err != nil && !errors.Is(err, ErrProductNotFound) {
			return nil, err
		}
	}

	// Older carts stored the display name in the id field.
	for _, name := range []string{line.Name, line.ID} {
		if name == "" {
			continue
		}
		p, err := r.products.FindByName(ctx, name)
		if err == nil && p.Active {
			return p, nil
		}
		if err != nil && !errors.Is(err, ErrProductNotFound) {
			return nil, err
		}
	}

	identifier := line.ID
	if identifier == "" {
		identifier = line.Name
	}
	return nil, &ProductNotFoundError{Identifier: identifier}
}

// Fingerprint is the sorted "id:quantity" pairs joined by commas.
func Fingerprint(items []models.LineItem) string {
	pairs := make([]string, len(items))
	for i, item := range items {
		pairs[i] = item.ID + ":" + strconv.Itoa(item.Quantity)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}
