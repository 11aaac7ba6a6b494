package refund

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
	"github.com/vladislavdragonenkov/settlement/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/settlement/internal/metrics"
	"github.com/vladislavdragonenkov/settlement/internal/service/commission"
)

// Coordinator управляет возвратами. Возврат — отдельная запись журнала со
// ссылкой на исходный платёж; сумма исходной записи никогда не меняется.
type Coordinator interface {
	// ProcessRefund выполняет возврат по платежу. amountMinor <= 0 означает
	// возврат всего остатка. Возвращает refund-запись; отклонённый gateway'ем
	// возврат — это запись в статусе failed, а не ошибка.
	ProcessRefund(ctx context.Context, paymentID string, amountMinor int64, reason string) (domain.Payment, error)
}

type coordinator struct {
	store       domain.Store
	orders      domain.OrderRepository
	payments    domain.PaymentRepository
	products    domain.ProductRepository
	outbox      domain.OutboxRepository
	commissions commission.Engine
	gateway     domain.PaymentGateway
	logger      *log.Entry
	metrics     *metrics.SettlementMetrics
}

// NewCoordinator создаёт координатор возвратов.
func NewCoordinator(
	store domain.Store,
	orders domain.OrderRepository,
	payments domain.PaymentRepository,
	products domain.ProductRepository,
	outbox domain.OutboxRepository,
	commissions commission.Engine,
	gateway domain.PaymentGateway,
	m *metrics.SettlementMetrics,
	logger *log.Entry,
) Coordinator {
	if logger == nil {
		logger = log.New().WithField("component", "refund")
	}
	return &coordinator{
		store:       store,
		orders:      orders,
		payments:    payments,
		products:    products,
		outbox:      outbox,
		commissions: commissions,
		gateway:     gateway,
		logger:      logger,
		metrics:     m,
	}
}

// ProcessRefund работает в три фазы: первая транзакция фиксирует
// processing-запись возврата, затем вне транзакции выполняется вызов gateway,
// вторая транзакция применяет итог. Падение между фазами оставляет видимую
// processing/failed-запись вместо потерянного состояния.
func (c *coordinator) ProcessRefund(ctx context.Context, paymentID string, amountMinor int64, reason string) (domain.Payment, error) {
	original, err := c.payments.Get(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if !original.Refundable() {
		return domain.Payment{}, domain.ErrPaymentNotRefundable
	}

	refunded, err := c.payments.SumRefunded(ctx, original.ID)
	if err != nil {
		return domain.Payment{}, err
	}
	remaining := original.AmountMinor - refunded
	if amountMinor <= 0 {
		amountMinor = remaining
	}
	if amountMinor > remaining {
		return domain.Payment{}, domain.ErrRefundExceedsOriginal
	}

	refundType := domain.PaymentTypePartialRefund
	if refunded == 0 && amountMinor == original.AmountMinor {
		refundType = domain.PaymentTypeRefund
	}
	fullyRefunded := refunded+amountMinor == original.AmountMinor

	now := time.Now().UTC()
	refund := domain.Payment{
		ID:                uuid.NewString(),
		OrderID:           original.OrderID,
		Type:              refundType,
		Status:            domain.PaymentStatusProcessing,
		Provider:          original.Provider,
		TransactionID:     uuid.NewString(),
		OriginalPaymentID: original.ID,
		AmountMinor:       amountMinor,
		Currency:          original.Currency,
		FailureReason:     "",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if errs := refund.Validate(); len(errs) > 0 {
		return domain.Payment{}, errs[0]
	}

	if err := c.store.WithinTx(ctx, func(ctx context.Context) error {
		return c.payments.Create(ctx, refund)
	}); err != nil {
		return domain.Payment{}, err
	}
	if c.metrics != nil {
		c.metrics.RecordRefundStarted()
	}

	result, gwErr := c.gateway.Refund(ctx, domain.RefundRequest{
		Provider:             original.Provider,
		TransactionID:        refund.TransactionID,
		GatewayTransactionID: original.GatewayTransactionID,
		AmountMinor:          amountMinor,
		Currency:             original.Currency,
		Reason:               reason,
	})
	if gwErr != nil {
		c.logger.WithError(gwErr).WithField("refund_id", refund.ID).Warn("gateway refund call failed")
		if failErr := c.markRefundFailed(ctx, &refund, gwErr.Error()); failErr != nil {
			return refund, failErr
		}
		return refund, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, gwErr)
	}
	if !result.Succeeded {
		if err := c.markRefundFailed(ctx, &refund, result.FailureReason); err != nil {
			return refund, err
		}
		return refund, nil
	}

	err = c.store.WithinTx(ctx, func(ctx context.Context) error {
		return c.applyRefund(ctx, &refund, original, result, fullyRefunded, reason)
	})
	if err != nil {
		return refund, err
	}
	if c.metrics != nil {
		c.metrics.RecordRefundCompleted()
	}

	c.logger.WithFields(log.Fields{
		"refund_id":    refund.ID,
		"payment_id":   original.ID,
		"amount_minor": amountMinor,
		"full":         fullyRefunded,
	}).Info("refund completed")
	return refund, nil
}

func (c *coordinator) applyRefund(
	ctx context.Context,
	refund *domain.Payment,
	original domain.Payment,
	result domain.RefundResult,
	fullyRefunded bool,
	reason string,
) error {
	now := time.Now().UTC()

	refund.Status = domain.PaymentStatusCompleted
	refund.GatewayTransactionID = result.GatewayRefundID
	refund.UpdatedAt = now
	if err := c.payments.Save(ctx, *refund); err != nil {
		return err
	}

	target := domain.PaymentStatusPartiallyRefunded
	if fullyRefunded {
		target = domain.PaymentStatusRefunded
	}
	if !domain.CanTransition(original.Status, target) {
		return domain.ErrPaymentTransitionInvalid
	}
	original.Status = target
	original.UpdatedAt = now
	if err := c.payments.Save(ctx, original); err != nil {
		return err
	}

	// Частичный возврат не несёт привязки к позициям: сток и комиссии не трогаются.
	if fullyRefunded {
		order, err := c.orders.Get(ctx, original.OrderID)
		if err != nil {
			return err
		}
		order.PaymentStatus = domain.OrderPaymentRefunded
		order.Status = domain.OrderStatusRefunded
		order.UpdatedAt = now
		if err := c.orders.Save(ctx, order); err != nil {
			return err
		}

		if err := c.restoreStock(ctx, order); err != nil {
			return err
		}
		if err := c.commissions.CancelCommissions(ctx, order.ID); err != nil {
			return err
		}

		if err := c.enqueue(ctx, "order", order.ID, kafka.EventTypeOrderRefunded, map[string]interface{}{
			"payment_id":   original.ID,
			"refund_id":    refund.ID,
			"amount_minor": refund.AmountMinor,
			"reason":       reason,
		}); err != nil {
			return err
		}
	}

	return c.enqueue(ctx, "payment", original.ID, kafka.EventTypeRefundCompleted, map[string]interface{}{
		"refund_id":    refund.ID,
		"order_id":     original.OrderID,
		"amount_minor": refund.AmountMinor,
		"currency":     refund.Currency,
		"full":         fullyRefunded,
	})
}

// restoreStock возвращает durable-сток по позициям заказа. Товары без учёта
// остатков пропускаются.
func (c *coordinator) restoreStock(ctx context.Context, order domain.Order) error {
	for _, item := range order.Items {
		product, err := c.products.Get(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if !product.ManageStock {
			continue
		}
		if err := c.products.AdjustStock(ctx, item.ProductID, item.Qty); err != nil {
			return err
		}
	}
	return nil
}

func (c *coordinator) markRefundFailed(ctx context.Context, refund *domain.Payment, failureReason string) error {
	refund.Status = domain.PaymentStatusFailed
	refund.FailureReason = failureReason
	refund.UpdatedAt = time.Now().UTC()

	err := c.store.WithinTx(ctx, func(ctx context.Context) error {
		if err := c.payments.Save(ctx, *refund); err != nil {
			return err
		}
		return c.enqueue(ctx, "payment", refund.OriginalPaymentID, kafka.EventTypeRefundFailed, map[string]interface{}{
			"refund_id":      refund.ID,
			"order_id":       refund.OrderID,
			"failure_reason": failureReason,
		})
	})
	if err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.RecordRefundFailed()
	}
	return nil
}

func (c *coordinator) enqueue(ctx context.Context, aggregateType, aggregateID, eventType string, payload map[string]interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = c.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
	})
	return err
}

var _ Coordinator = (*coordinator)(nil)
