package memory

import (
	"context"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
)

type productRepository struct {
	store *Store
}

// NewProductRepository возвращает in-memory реализацию каталога-коллаборатора.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{store: store}
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) error {
	defer r.store.lock(ctx)()

	if _, exists := r.store.products[product.ID]; exists {
		return domain.ErrDuplicateRecord
	}
	r.store.products[product.ID] = product
	return nil
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	defer r.store.lock(ctx)()

	product, ok := r.store.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// AdjustStock атомарно меняет сток; декремент ниже нуля отклоняется
// без изменений, как и guard в SQL-реализации.
func (r *productRepository) AdjustStock(ctx context.Context, productID string, delta int32) error {
	defer r.store.lock(ctx)()

	product, ok := r.store.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if product.StockQuantity+delta < 0 {
		return domain.ErrInsufficientStock
	}
	product.StockQuantity += delta
	r.store.products[productID] = product
	return nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
