package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
)

type commissionRepository struct {
	store *Store
}

// NewCommissionRepository возвращает in-memory хранилище комиссий.
func NewCommissionRepository(store *Store) domain.CommissionRepository {
	return &commissionRepository{store: store}
}

func (r *commissionRepository) Create(ctx context.Context, commission domain.PartnerCommission) error {
	defer r.store.lock(ctx)()

	if _, exists := r.store.commissions[commission.ID]; exists {
		return domain.ErrDuplicateRecord
	}
	r.store.commissions[commission.ID] = commission
	return nil
}

func (r *commissionRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.PartnerCommission, error) {
	defer r.store.lock(ctx)()

	result := make([]domain.PartnerCommission, 0)
	for _, commission := range r.store.commissions {
		if commission.OrderID == orderID {
			result = append(result, commission)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

func (r *commissionRepository) Save(ctx context.Context, commission domain.PartnerCommission) error {
	defer r.store.lock(ctx)()

	if _, ok := r.store.commissions[commission.ID]; !ok {
		return domain.ErrCommissionNotFound
	}
	r.store.commissions[commission.ID] = commission
	return nil
}

var _ domain.CommissionRepository = (*commissionRepository)(nil)
