package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
)

type paymentRepository struct {
	store *Store
}

// NewPaymentRepository возвращает in-memory реализацию платёжного журнала.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return &paymentRepository{store: store}
}

func (r *paymentRepository) Create(ctx context.Context, payment domain.Payment) error {
	defer r.store.lock(ctx)()

	if _, exists := r.store.payments[payment.ID]; exists {
		return domain.ErrDuplicateRecord
	}
	// transaction_id уникален так же, как UNIQUE-констрейнт в PostgreSQL.
	for _, existing := range r.store.payments {
		if existing.TransactionID == payment.TransactionID {
			return domain.ErrDuplicateRecord
		}
	}
	r.store.payments[payment.ID] = payment
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id string) (domain.Payment, error) {
	defer r.store.lock(ctx)()

	payment, ok := r.store.payments[id]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return payment, nil
}

func (r *paymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (domain.Payment, error) {
	defer r.store.lock(ctx)()

	for _, payment := range r.store.payments {
		if payment.TransactionID == transactionID {
			return payment, nil
		}
	}
	return domain.Payment{}, domain.ErrPaymentNotFound
}

func (r *paymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	defer r.store.lock(ctx)()

	result := make([]domain.Payment, 0)
	for _, payment := range r.store.payments {
		if payment.OrderID == orderID {
			result = append(result, payment)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	return result, nil
}

func (r *paymentRepository) SumRefunded(ctx context.Context, originalPaymentID string) (int64, error) {
	defer r.store.lock(ctx)()

	var total int64
	for _, payment := range r.store.payments {
		if payment.OriginalPaymentID == originalPaymentID && payment.Status == domain.PaymentStatusCompleted {
			total += payment.AmountMinor
		}
	}
	return total, nil
}

func (r *paymentRepository) Save(ctx context.Context, payment domain.Payment) error {
	defer r.store.lock(ctx)()

	if _, ok := r.store.payments[payment.ID]; !ok {
		return domain.ErrPaymentNotFound
	}
	r.store.payments[payment.ID] = payment
	return nil
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
