package settlement

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
	"github.com/vladislavdragonenkov/settlement/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/settlement/internal/metrics"
	"github.com/vladislavdragonenkov/settlement/internal/service/commission"
	"github.com/vladislavdragonenkov/settlement/internal/service/reservation"
)

// Processor — state machine платёжного конвейера: создание платёжного
// намерения на checkout и применение канонических webhook-событий.
type Processor interface {
	// CreatePaymentIntent резервирует позиции заказа, создаёт pending-платёж
	// и начисляет партнёрские комиссии.
	CreatePaymentIntent(ctx context.Context, orderID, provider string) (domain.Payment, error)
	// ProcessWebhook применяет канонический итог платежа. Идемпотентен:
	// повторная доставка для терминального платежа — ack c Duplicate.
	ProcessWebhook(ctx context.Context, event domain.CanonicalEvent) (domain.WebhookAck, error)
}

type processor struct {
	store        domain.Store
	orders       domain.OrderRepository
	payments     domain.PaymentRepository
	outbox       domain.OutboxRepository
	reservations reservation.Manager
	commissions  commission.Engine
	logger       *log.Entry
	metrics      *metrics.SettlementMetrics
}

// NewProcessor создаёт рабочий экземпляр state machine.
func NewProcessor(
	store domain.Store,
	orders domain.OrderRepository,
	payments domain.PaymentRepository,
	outbox domain.OutboxRepository,
	reservations reservation.Manager,
	commissions commission.Engine,
	m *metrics.SettlementMetrics,
	logger *log.Entry,
) Processor {
	if logger == nil {
		logger = log.New().WithField("component", "settlement")
	}
	return &processor{
		store:        store,
		orders:       orders,
		payments:     payments,
		outbox:       outbox,
		reservations: reservations,
		commissions:  commissions,
		logger:       logger,
		metrics:      m,
	}
}

// CreatePaymentIntent ставит холды до открытия транзакции: кэш — внешняя
// система, её вызовы внутри транзакции запрещены. Ошибка транзакции
// откатывает и холд.
func (p *processor) CreatePaymentIntent(ctx context.Context, orderID, provider string) (domain.Payment, error) {
	if provider == "" {
		return domain.Payment{}, domain.ErrPaymentProviderRequired
	}

	order, err := p.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Payment{}, err
	}
	if order.Status.Terminal() || order.PaymentStatus == domain.OrderPaymentPaid {
		return domain.Payment{}, domain.ErrPaymentTransitionInvalid
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Payment{}, errs[0]
	}

	// Повторный POST от клиента не должен плодить второй холд и второй
	// набор комиссий: пока по заказу жив незавершённый платёж, новый intent
	// не создаётся.
	existing, err := p.payments.ListByOrder(ctx, orderID)
	if err != nil {
		return domain.Payment{}, err
	}
	for _, prev := range existing {
		if prev.Type == domain.PaymentTypePayment && !prev.Status.Terminal() {
			return domain.Payment{}, domain.ErrPaymentAlreadyActive
		}
	}

	transactionID := uuid.NewString()
	items := make([]domain.ReservationItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, domain.ReservationItem{ProductID: item.ProductID, Qty: item.Qty})
	}

	ok, err := p.reservations.Reserve(ctx, transactionID, items)
	if err != nil {
		return domain.Payment{}, err
	}
	if !ok {
		return domain.Payment{}, domain.ErrInsufficientStock
	}

	now := time.Now().UTC()
	payment := domain.Payment{
		ID:            uuid.NewString(),
		OrderID:       order.ID,
		Type:          domain.PaymentTypePayment,
		Status:        domain.PaymentStatusPending,
		Provider:      provider,
		TransactionID: transactionID,
		AmountMinor:   order.AmountMinor,
		Currency:      order.Currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if errs := payment.Validate(); len(errs) > 0 {
		p.releaseHold(ctx, transactionID)
		return domain.Payment{}, errs[0]
	}

	err = p.store.WithinTx(ctx, func(ctx context.Context) error {
		if err := p.payments.Create(ctx, payment); err != nil {
			return err
		}
		_, err := p.commissions.CreateCommissions(ctx, order)
		return err
	})
	if err != nil {
		p.releaseHold(ctx, transactionID)
		return domain.Payment{}, err
	}

	p.logger.WithFields(log.Fields{
		"order_id":       order.ID,
		"payment_id":     payment.ID,
		"transaction_id": transactionID,
		"provider":       provider,
	}).Info("payment intent created")
	return payment, nil
}

// ProcessWebhook выполняет ровно одну транзакцию на уведомление: платёж,
// заказ и outbox-задача коммитятся атомарно. Снятие холда на failure-пути
// выполняется после commit и ровно один раз — его выполняет только тот вызов,
// который сам перевёл платёж в failed.
func (p *processor) ProcessWebhook(ctx context.Context, event domain.CanonicalEvent) (domain.WebhookAck, error) {
	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.RecordWebhookDuration(time.Since(start))
		}
	}()

	var (
		ack         domain.WebhookAck
		releaseHold bool
		paymentSeen domain.Payment
	)
	err := p.store.WithinTx(ctx, func(ctx context.Context) error {
		payment, err := p.payments.GetByTransactionID(ctx, event.TransactionID)
		if err != nil {
			return err
		}
		paymentSeen = payment

		if payment.Status.Terminal() {
			ack = domain.WebhookAck{Duplicate: true, Outcome: outcomeOfStatus(payment.Status)}
			return nil
		}

		if event.AmountMinor > 0 && event.AmountMinor != payment.AmountMinor {
			p.logger.WithFields(log.Fields{
				"transaction_id": event.TransactionID,
				"event_amount":   event.AmountMinor,
				"payment_amount": payment.AmountMinor,
			}).Warn("webhook amount differs from ledger amount")
		}

		switch event.Outcome {
		case domain.EventOutcomeSuccess:
			ack = domain.WebhookAck{Outcome: domain.EventOutcomeSuccess}
			return p.applySuccess(ctx, payment, event)
		case domain.EventOutcomeFailed:
			ack = domain.WebhookAck{Outcome: domain.EventOutcomeFailed}
			releaseHold = true
			return p.applyFailure(ctx, payment, event)
		default:
			return domain.ErrPayloadMalformed
		}
	})
	if err != nil {
		return domain.WebhookAck{}, err
	}

	if ack.Duplicate {
		if p.metrics != nil {
			p.metrics.RecordWebhookDuplicate(event.Provider)
		}
		p.logger.WithFields(log.Fields{
			"transaction_id": event.TransactionID,
			"status":         paymentSeen.Status,
		}).Info("duplicate webhook acknowledged")
		return ack, nil
	}

	if p.metrics != nil {
		p.metrics.RecordWebhookAccepted(event.Provider)
		if ack.Outcome == domain.EventOutcomeSuccess {
			p.metrics.RecordPaymentCompleted()
		} else {
			p.metrics.RecordPaymentFailed()
		}
	}

	// Холд снимается только после commit; при падении здесь запись истечёт
	// по TTL, durable-сток при этом не затронут.
	if releaseHold {
		p.releaseHold(ctx, event.TransactionID)
	}
	return ack, nil
}

func (p *processor) applySuccess(ctx context.Context, payment domain.Payment, event domain.CanonicalEvent) error {
	if !domain.CanTransition(payment.Status, domain.PaymentStatusCompleted) {
		return domain.ErrPaymentTransitionInvalid
	}

	now := time.Now().UTC()
	payment.Status = domain.PaymentStatusCompleted
	payment.GatewayTransactionID = event.GatewayTransactionID
	payment.RawPayload = event.RawPayload
	payment.UpdatedAt = now
	if err := p.payments.Save(ctx, payment); err != nil {
		return err
	}

	order, err := p.orders.Get(ctx, payment.OrderID)
	if err != nil {
		return err
	}
	order.PaymentStatus = domain.OrderPaymentPaid
	if order.Status == domain.OrderStatusPending {
		order.Status = domain.OrderStatusConfirmed
	}
	order.UpdatedAt = now
	if err := p.orders.Save(ctx, order); err != nil {
		return err
	}

	// Подтверждение резерва уходит через outbox в той же транзакции: падение
	// между commit и обработкой задачу не теряет.
	task := map[string]interface{}{
		"reservation_id": payment.TransactionID,
		"order_id":       order.ID,
	}
	if err := p.enqueue(ctx, "payment", payment.ID, kafka.TaskReservationConfirm, task); err != nil {
		return err
	}

	return p.enqueue(ctx, "payment", payment.ID, kafka.EventTypePaymentCompleted, map[string]interface{}{
		"order_id":       order.ID,
		"transaction_id": payment.TransactionID,
		"amount_minor":   payment.AmountMinor,
		"currency":       payment.Currency,
		"provider":       payment.Provider,
	})
}

func (p *processor) applyFailure(ctx context.Context, payment domain.Payment, event domain.CanonicalEvent) error {
	if !domain.CanTransition(payment.Status, domain.PaymentStatusFailed) {
		return domain.ErrPaymentTransitionInvalid
	}

	now := time.Now().UTC()
	payment.Status = domain.PaymentStatusFailed
	payment.GatewayTransactionID = event.GatewayTransactionID
	payment.FailureReason = event.FailureReason
	payment.RawPayload = event.RawPayload
	payment.UpdatedAt = now
	if err := p.payments.Save(ctx, payment); err != nil {
		return err
	}

	order, err := p.orders.Get(ctx, payment.OrderID)
	if err != nil {
		return err
	}
	order.PaymentStatus = domain.OrderPaymentFailed
	if !order.Status.Terminal() {
		order.Status = domain.OrderStatusCancelled
	}
	order.UpdatedAt = now
	if err := p.orders.Save(ctx, order); err != nil {
		return err
	}

	if err := p.commissions.CancelCommissions(ctx, order.ID); err != nil {
		return err
	}

	return p.enqueue(ctx, "payment", payment.ID, kafka.EventTypePaymentFailed, map[string]interface{}{
		"order_id":       order.ID,
		"transaction_id": payment.TransactionID,
		"failure_reason": payment.FailureReason,
		"provider":       payment.Provider,
	})
}

func (p *processor) enqueue(ctx context.Context, aggregateType, aggregateID, eventType string, payload map[string]interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = p.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
	})
	return err
}

func (p *processor) releaseHold(ctx context.Context, transactionID string) {
	if err := p.reservations.Release(ctx, transactionID); err != nil {
		p.logger.WithError(err).WithField("transaction_id", transactionID).Warn("hold release failed, entry will expire by ttl")
	}
}

// outcomeOfStatus сводит терминальный статус платежа к итогу события.
func outcomeOfStatus(status domain.PaymentStatus) domain.EventOutcome {
	switch status {
	case domain.PaymentStatusCompleted, domain.PaymentStatusRefunded, domain.PaymentStatusPartiallyRefunded:
		return domain.EventOutcomeSuccess
	default:
		return domain.EventOutcomeFailed
	}
}

var _ Processor = (*processor)(nil)
