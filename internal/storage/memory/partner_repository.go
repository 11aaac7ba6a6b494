package memory

import (
	"context"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
)

type partnerRepository struct {
	store *Store
}

// NewPartnerRepository возвращает in-memory реализацию партнёрского учёта.
func NewPartnerRepository(store *Store) domain.PartnerRepository {
	return &partnerRepository{store: store}
}

func (r *partnerRepository) Create(ctx context.Context, partner domain.Partner) error {
	defer r.store.lock(ctx)()

	if _, exists := r.store.partners[partner.ID]; exists {
		return domain.ErrDuplicateRecord
	}
	r.store.partners[partner.ID] = partner
	return nil
}

func (r *partnerRepository) Get(ctx context.Context, id string) (domain.Partner, error) {
	defer r.store.lock(ctx)()

	partner, ok := r.store.partners[id]
	if !ok {
		return domain.Partner{}, domain.ErrPartnerNotFound
	}
	return partner, nil
}

func (r *partnerRepository) GetByReferralCode(ctx context.Context, code string) (domain.Partner, error) {
	defer r.store.lock(ctx)()

	for _, partner := range r.store.partners {
		if partner.ReferralCode == code {
			return partner, nil
		}
	}
	return domain.Partner{}, domain.ErrPartnerNotFound
}

func (r *partnerRepository) Save(ctx context.Context, partner domain.Partner) error {
	defer r.store.lock(ctx)()

	if _, ok := r.store.partners[partner.ID]; !ok {
		return domain.ErrPartnerNotFound
	}
	r.store.partners[partner.ID] = partner
	return nil
}

var _ domain.PartnerRepository = (*partnerRepository)(nil)
