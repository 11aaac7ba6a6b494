package postgres

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
)

type commissionRepository struct {
	store *Store
}

// NewCommissionRepository создаёт PostgreSQL-реализацию CommissionRepository.
func NewCommissionRepository(store *Store) domain.CommissionRepository {
	return &commissionRepository{store: store}
}

func (r *commissionRepository) Create(ctx context.Context, commission domain.PartnerCommission) error {
	_, err := r.store.q(ctx).ExecContext(ctx, `
		INSERT INTO partner_commissions (
			id, partner_id, order_id, product_id, order_amount_minor, commission_rate,
			commission_amount_minor, status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		commission.ID, commission.PartnerID, commission.OrderID, commission.ProductID,
		commission.OrderAmountMinor, commission.CommissionRate, commission.CommissionAmountMinor,
		string(commission.Status), commission.CreatedAt, commission.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateRecord
		}
		return fmt.Errorf("insert commission: %w", err)
	}
	return nil
}

func (r *commissionRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.PartnerCommission, error) {
	rows, err := r.store.q(ctx).QueryContext(ctx, `
		SELECT id, partner_id, order_id, product_id, order_amount_minor, commission_rate,
		       commission_amount_minor, status, created_at, updated_at
		FROM partner_commissions
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list commissions: %w", err)
	}
	defer rows.Close()

	commissions := make([]domain.PartnerCommission, 0)
	for rows.Next() {
		var (
			commission domain.PartnerCommission
			status     string
		)
		if err := rows.Scan(
			&commission.ID, &commission.PartnerID, &commission.OrderID, &commission.ProductID,
			&commission.OrderAmountMinor, &commission.CommissionRate, &commission.CommissionAmountMinor,
			&status, &commission.CreatedAt, &commission.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan commission: %w", err)
		}
		commission.Status = domain.CommissionStatus(status)
		commissions = append(commissions, commission)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commission rows: %w", err)
	}

	return commissions, nil
}

func (r *commissionRepository) Save(ctx context.Context, commission domain.PartnerCommission) error {
	res, err := r.store.q(ctx).ExecContext(ctx, `
		UPDATE partner_commissions
		SET status = $1,
		    updated_at = $2
		WHERE id = $3
	`, string(commission.Status), commission.UpdatedAt, commission.ID)
	if err != nil {
		return fmt.Errorf("update commission: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrCommissionNotFound
	}
	return nil
}

var _ domain.CommissionRepository = (*commissionRepository)(nil)
