package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
)

type productRepository struct {
	store *Store
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{store: store}
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) error {
	_, err := r.store.q(ctx).ExecContext(ctx, `
		INSERT INTO products (
			id, sku, name, stock_quantity, manage_stock, price_minor, commission_rate,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		product.ID, product.SKU, product.Name, product.StockQuantity, product.ManageStock,
		product.PriceMinor, product.CommissionRate, product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateRecord
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	var product domain.Product
	err := r.store.q(ctx).QueryRowContext(ctx, `
		SELECT id, sku, name, stock_quantity, manage_stock, price_minor, commission_rate,
		       created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(
		&product.ID, &product.SKU, &product.Name, &product.StockQuantity, &product.ManageStock,
		&product.PriceMinor, &product.CommissionRate, &product.CreatedAt, &product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

// AdjustStock атомарно меняет сток. Guard в WHERE не даёт уйти в минус:
// при нехватке возвращается ErrInsufficientStock без изменений.
func (r *productRepository) AdjustStock(ctx context.Context, productID string, delta int32) error {
	res, err := r.store.q(ctx).ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $2,
		    updated_at = NOW()
		WHERE id = $1
		  AND stock_quantity + $2 >= 0
	`, productID, delta)
	if err != nil {
		return fmt.Errorf("adjust stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.productExists(ctx, productID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrProductNotFound
		}
		return domain.ErrInsufficientStock
	}
	return nil
}

func (r *productRepository) productExists(ctx context.Context, id string) (bool, error) {
	var found string
	err := r.store.q(ctx).QueryRowContext(ctx, `SELECT id FROM products WHERE id = $1`, id).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check product exists: %w", err)
}

var _ domain.ProductRepository = (*productRepository)(nil)
