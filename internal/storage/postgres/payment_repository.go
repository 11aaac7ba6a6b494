package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
)

type paymentRepository struct {
	store *Store
}

// NewPaymentRepository создаёт PostgreSQL-реализацию PaymentRepository.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return &paymentRepository{store: store}
}

const paymentColumns = `
	id, order_id, type, status, provider, transaction_id, gateway_transaction_id,
	original_payment_id, amount_minor, currency, failure_reason, raw_payload,
	created_at, updated_at`

func (r *paymentRepository) Create(ctx context.Context, payment domain.Payment) error {
	_, err := r.store.q(ctx).ExecContext(ctx, `
		INSERT INTO payments (
			id, order_id, type, status, provider, transaction_id, gateway_transaction_id,
			original_payment_id, amount_minor, currency, failure_reason, raw_payload,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		payment.ID, payment.OrderID, string(payment.Type), string(payment.Status),
		payment.Provider, payment.TransactionID, payment.GatewayTransactionID,
		payment.OriginalPaymentID, payment.AmountMinor, payment.Currency,
		payment.FailureReason, payment.RawPayload, payment.CreatedAt, payment.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateRecord
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id string) (domain.Payment, error) {
	row := r.store.q(ctx).QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return scanPayment(row)
}

func (r *paymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (domain.Payment, error) {
	row := r.store.q(ctx).QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE transaction_id = $1`, transactionID)
	return scanPayment(row)
}

func (r *paymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	rows, err := r.store.q(ctx).QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY created_at DESC, id DESC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment rows: %w", err)
	}

	return payments, nil
}

func (r *paymentRepository) SumRefunded(ctx context.Context, originalPaymentID string) (int64, error) {
	var total sql.NullInt64
	err := r.store.q(ctx).QueryRowContext(ctx, `
		SELECT SUM(amount_minor)
		FROM payments
		WHERE original_payment_id = $1
		  AND status = $2
	`, originalPaymentID, string(domain.PaymentStatusCompleted)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum refunded: %w", err)
	}
	if !total.Valid {
		return 0, nil
	}
	return total.Int64, nil
}

func (r *paymentRepository) Save(ctx context.Context, payment domain.Payment) error {
	res, err := r.store.q(ctx).ExecContext(ctx, `
		UPDATE payments
		SET status = $1,
		    gateway_transaction_id = $2,
		    failure_reason = $3,
		    raw_payload = $4,
		    updated_at = $5
		WHERE id = $6
	`,
		string(payment.Status), payment.GatewayTransactionID, payment.FailureReason,
		payment.RawPayload, payment.UpdatedAt, payment.ID,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

// rowScanner покрывает *sql.Row и *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (domain.Payment, error) {
	var (
		payment       domain.Payment
		paymentType   string
		paymentStatus string
		rawPayload    []byte
	)
	err := row.Scan(
		&payment.ID, &payment.OrderID, &paymentType, &paymentStatus, &payment.Provider,
		&payment.TransactionID, &payment.GatewayTransactionID, &payment.OriginalPaymentID,
		&payment.AmountMinor, &payment.Currency, &payment.FailureReason, &rawPayload,
		&payment.CreatedAt, &payment.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("scan payment: %w", err)
	}
	payment.Type = domain.PaymentType(paymentType)
	payment.Status = domain.PaymentStatus(paymentStatus)
	payment.RawPayload = rawPayload

	return payment, nil
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
