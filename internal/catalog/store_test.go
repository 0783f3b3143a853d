package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/diamonddulceria/storefront/internal/database"
	"github.com/sirupsen/logrus"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewStore(db, database.NewRetrier(logger)), mock
}

var productCols = []string{"id", "name", "description", "price", "category_id", "image_url", "active", "is_custom", "sort_order", "created_at", "updated_at"}

func TestStoreFindByName(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("FROM products WHERE LOWER\\(name\\) = LOWER\\(\\$1\\)").
		WithArgs("dubai chocolate").
		WillReturnRows(sqlmock.NewRows(productCols).
			AddRow("dubai-chocolate", "Dubai Chocolate", "", 50, "bars", "", true, false, 0, now, now))

	p, err := store.FindByName(context.Background(), "dubai chocolate")
	if err != nil {
		t.Fatalf("FindByName returned error: %v", err)
	}
	if p.ID != "dubai-chocolate" || p.Price != 50 {
		t.Errorf("Unexpected product %+v", p)
	}
	if p.CategoryID == nil || *p.CategoryID != "bars" {
		t.Errorf("Expected category bars, got %v", p.CategoryID)
	}
}

func TestStoreFindByIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM products WHERE id = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(productCols))

	_, err := store.FindByID(context.Background(), "missing")
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("Expected ErrProductNotFound, got %v", err)
	}
}

func TestStoreDeleteCategoryInUse(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM products").
		WithArgs("bars").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectRollback()

	err := store.DeleteCategory(context.Background(), "bars")
	if !errors.Is(err, ErrCategoryInUse) {
		t.Fatalf("Expected ErrCategoryInUse, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}
