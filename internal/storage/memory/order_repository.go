package memory

import (
	"context"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
)

type orderRepository struct {
	store *Store
}

// NewOrderRepository возвращает in-memory репозиторий заказов.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{store: store}
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	defer r.store.lock(ctx)()

	if _, exists := r.store.orders[order.ID]; exists {
		return domain.ErrDuplicateRecord
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.store.orders[order.ID] = order
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	defer r.store.lock(ctx)()

	order, ok := r.store.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	defer r.store.lock(ctx)()

	current, ok := r.store.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	// Инкрементируем версию перед сохранением.
	order.Version++
	r.store.orders[order.ID] = order
	return nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
