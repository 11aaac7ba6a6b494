package commission

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
	"github.com/vladislavdragonenkov/settlement/internal/metrics"
)

// Engine описывает жизненный цикл партнёрских комиссий. Методы не открывают
// собственных транзакций: вызывающий код передаёт ctx из Store.WithinTx, и
// начисления ложатся в ту же транзакцию, что и породившее их изменение.
type Engine interface {
	// CreateCommissions начисляет pending-комиссии по позициям заказа.
	// Без referral-кода и при недоступном партнёре — no-op.
	CreateCommissions(ctx context.Context, order domain.Order) ([]domain.PartnerCommission, error)
	// ConfirmCommissions переводит pending-начисления заказа в confirmed.
	ConfirmCommissions(ctx context.Context, orderID string) error
	// CancelCommissions аннулирует pending/confirmed-начисления заказа.
	// Выплаченные записи неизменяемы и пропускаются.
	CancelCommissions(ctx context.Context, orderID string) error
}

type engine struct {
	partners    domain.PartnerRepository
	products    domain.ProductRepository
	commissions domain.CommissionRepository
	logger      *log.Entry
	metrics     *metrics.SettlementMetrics
}

// NewEngine создаёт движок начисления комиссий.
func NewEngine(
	partners domain.PartnerRepository,
	products domain.ProductRepository,
	commissions domain.CommissionRepository,
	m *metrics.SettlementMetrics,
	logger *log.Entry,
) Engine {
	if logger == nil {
		logger = log.New().WithField("component", "commission")
	}
	return &engine{
		partners:    partners,
		products:    products,
		commissions: commissions,
		logger:      logger,
		metrics:     m,
	}
}

// CreateCommissions атрибутирует заказ партнёру по referral-коду и пишет по
// одному начислению на позицию. Ошибка атрибуции не ломает обработку платежа:
// заказ без валидного партнёра просто не даёт комиссий.
func (e *engine) CreateCommissions(ctx context.Context, order domain.Order) ([]domain.PartnerCommission, error) {
	if order.ReferralCode == "" {
		return nil, nil
	}

	partner, err := e.partners.GetByReferralCode(ctx, order.ReferralCode)
	if err != nil {
		if errors.Is(err, domain.ErrPartnerNotFound) {
			e.logger.WithFields(log.Fields{
				"order_id":      order.ID,
				"referral_code": order.ReferralCode,
			}).Info("referral code without partner, no commissions")
			return nil, nil
		}
		return nil, err
	}
	if !partner.Status.Attributable() {
		e.logger.WithFields(log.Fields{
			"order_id":   order.ID,
			"partner_id": partner.ID,
			"status":     partner.Status,
		}).Info("partner not attributable, no commissions")
		return nil, nil
	}

	now := time.Now().UTC()
	var (
		created    []domain.PartnerCommission
		totalMinor int64
	)
	for _, item := range order.Items {
		product, err := e.products.Get(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}

		rate := product.EffectiveCommissionRate()
		base := int64(item.Qty) * item.PriceMinor
		commission := domain.PartnerCommission{
			ID:                    uuid.NewString(),
			PartnerID:             partner.ID,
			OrderID:               order.ID,
			ProductID:             item.ProductID,
			OrderAmountMinor:      base,
			CommissionRate:        rate,
			CommissionAmountMinor: domain.CommissionAmount(base, rate),
			Status:                domain.CommissionStatusPending,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		if errs := commission.Validate(item.PriceMinor, item.Qty); len(errs) > 0 {
			return nil, errs[0]
		}

		if err := e.commissions.Create(ctx, commission); err != nil {
			return nil, err
		}
		created = append(created, commission)
		totalMinor += commission.CommissionAmountMinor
		if e.metrics != nil {
			e.metrics.RecordCommissionCreated()
		}
	}

	partner.RecordOrder(order.AmountMinor, totalMinor)
	partner.UpdatedAt = now
	if err := e.partners.Save(ctx, partner); err != nil {
		return nil, err
	}

	e.logger.WithFields(log.Fields{
		"order_id":         order.ID,
		"partner_id":       partner.ID,
		"commissions":      len(created),
		"commission_minor": totalMinor,
	}).Info("commissions accrued")
	return created, nil
}

func (e *engine) ConfirmCommissions(ctx context.Context, orderID string) error {
	commissions, err := e.commissions.ListByOrder(ctx, orderID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, commission := range commissions {
		if commission.Status != domain.CommissionStatusPending {
			continue
		}
		commission.Status = domain.CommissionStatusConfirmed
		commission.UpdatedAt = now
		if err := e.commissions.Save(ctx, commission); err != nil {
			return err
		}
	}
	return nil
}

// CancelCommissions аннулирует начисления и корректирует невыплаченный баланс
// партнёра. Финансовые записи остаются в журнале со статусом cancelled.
func (e *engine) CancelCommissions(ctx context.Context, orderID string) error {
	commissions, err := e.commissions.ListByOrder(ctx, orderID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	reclaimed := make(map[string]int64)
	for _, commission := range commissions {
		switch commission.Status {
		case domain.CommissionStatusPending, domain.CommissionStatusConfirmed:
		case domain.CommissionStatusPaid:
			e.logger.WithFields(log.Fields{
				"order_id":      orderID,
				"commission_id": commission.ID,
			}).Warn("paid commission left untouched on cancel")
			continue
		default:
			continue
		}

		commission.Status = domain.CommissionStatusCancelled
		commission.UpdatedAt = now
		if err := e.commissions.Save(ctx, commission); err != nil {
			return err
		}
		reclaimed[commission.PartnerID] += commission.CommissionAmountMinor
		if e.metrics != nil {
			e.metrics.RecordCommissionCancelled()
		}
	}

	for partnerID, amountMinor := range reclaimed {
		partner, err := e.partners.Get(ctx, partnerID)
		if err != nil {
			return err
		}
		partner.PendingBalanceMinor -= amountMinor
		partner.TotalEarningsMinor -= amountMinor
		partner.UpdatedAt = now
		if err := e.partners.Save(ctx, partner); err != nil {
			return err
		}
	}
	return nil
}

var _ Engine = (*engine)(nil)
