package domain

import (
	"context"
	"time"
)

// ReservationCache — эпемерное хранилище холдов. Reserve обязан быть атомарным
// check-and-increment по ключу товара: два конкурентных вызова за последнюю
// единицу не могут оба вернуть true. Записи исчезают по TTL без компенсаций.
type ReservationCache interface {
	// Reserve пытается добавить холд qty единиц товара. stockCeiling — текущий
	// durable-сток; холд ставится, только если ceiling - reservedSoFar >= qty.
	Reserve(ctx context.Context, productID, reservationID string, qty, stockCeiling int32, ttl time.Duration) (bool, error)
	// Items возвращает позиции холда или ErrReservationNotFound.
	Items(ctx context.Context, reservationID string) ([]ReservationItem, error)
	// Release удаляет холд, не трогая durable-сток.
	Release(ctx context.Context, reservationID string) error
	// TotalReserved возвращает суммарное живое (не истёкшее) количество по товару.
	TotalReserved(ctx context.Context, productID string) (int32, error)
}

// RefundRequest — запрос возврата во внешний gateway.
type RefundRequest struct {
	Provider             string
	TransactionID        string
	GatewayTransactionID string
	AmountMinor          int64
	Currency             string
	Reason               string
}

// RefundResult — ответ gateway на запрос возврата.
type RefundResult struct {
	Succeeded bool
	// GatewayRefundID — идентификатор возврата на стороне провайдера.
	GatewayRefundID string
	FailureReason   string
}

// PaymentGateway описывает исходящие вызовы платёжного провайдера. Сетевые
// вызовы gateway выполняются строго вне транзакций ledger.
type PaymentGateway interface {
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// TaskHandler обрабатывает task-сообщение из outbox (например, подтверждение
// резерва после commit платежа).
type TaskHandler func(ctx context.Context, msg OutboxMessage) error

// OutboxMessage хранит данные для публикуемого события либо отложенной задачи.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
