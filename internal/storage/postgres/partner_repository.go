package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
)

type partnerRepository struct {
	store *Store
}

// NewPartnerRepository создаёт PostgreSQL-реализацию PartnerRepository.
func NewPartnerRepository(store *Store) domain.PartnerRepository {
	return &partnerRepository{store: store}
}

const partnerColumns = `
	id, referral_code, status, total_orders, total_clicks, total_earnings_minor,
	pending_balance_minor, average_order_value_minor, conversion_rate, created_at, updated_at`

func (r *partnerRepository) Create(ctx context.Context, partner domain.Partner) error {
	_, err := r.store.q(ctx).ExecContext(ctx, `
		INSERT INTO partners (
			id, referral_code, status, total_orders, total_clicks, total_earnings_minor,
			pending_balance_minor, average_order_value_minor, conversion_rate, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		partner.ID, partner.ReferralCode, string(partner.Status), partner.TotalOrders,
		partner.TotalClicks, partner.TotalEarningsMinor, partner.PendingBalanceMinor,
		partner.AverageOrderValueMinor, partner.ConversionRate, partner.CreatedAt, partner.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateRecord
		}
		return fmt.Errorf("insert partner: %w", err)
	}
	return nil
}

func (r *partnerRepository) Get(ctx context.Context, id string) (domain.Partner, error) {
	row := r.store.q(ctx).QueryRowContext(ctx,
		`SELECT `+partnerColumns+` FROM partners WHERE id = $1`, id)
	return scanPartner(row)
}

func (r *partnerRepository) GetByReferralCode(ctx context.Context, code string) (domain.Partner, error) {
	row := r.store.q(ctx).QueryRowContext(ctx,
		`SELECT `+partnerColumns+` FROM partners WHERE referral_code = $1`, code)
	return scanPartner(row)
}

func (r *partnerRepository) Save(ctx context.Context, partner domain.Partner) error {
	res, err := r.store.q(ctx).ExecContext(ctx, `
		UPDATE partners
		SET status = $1,
		    total_orders = $2,
		    total_clicks = $3,
		    total_earnings_minor = $4,
		    pending_balance_minor = $5,
		    average_order_value_minor = $6,
		    conversion_rate = $7,
		    updated_at = $8
		WHERE id = $9
	`,
		string(partner.Status), partner.TotalOrders, partner.TotalClicks,
		partner.TotalEarningsMinor, partner.PendingBalanceMinor,
		partner.AverageOrderValueMinor, partner.ConversionRate, partner.UpdatedAt, partner.ID,
	)
	if err != nil {
		return fmt.Errorf("update partner: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrPartnerNotFound
	}
	return nil
}

func scanPartner(row rowScanner) (domain.Partner, error) {
	var (
		partner domain.Partner
		status  string
	)
	err := row.Scan(
		&partner.ID, &partner.ReferralCode, &status, &partner.TotalOrders, &partner.TotalClicks,
		&partner.TotalEarningsMinor, &partner.PendingBalanceMinor, &partner.AverageOrderValueMinor,
		&partner.ConversionRate, &partner.CreatedAt, &partner.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Partner{}, domain.ErrPartnerNotFound
		}
		return domain.Partner{}, fmt.Errorf("scan partner: %w", err)
	}
	partner.Status = domain.PartnerStatus(status)
	return partner, nil
}

var _ domain.PartnerRepository = (*partnerRepository)(nil)
