package kafka

import (
	"encoding/json"
	"time"
)

// Топики платёжных событий.
const (
	// TopicPaymentEvents — основной поток событий конвейера.
	TopicPaymentEvents = "settlement.payment-events"
	// TopicDLQ — dead letter queue для сообщений, исчерпавших попытки.
	TopicDLQ = "settlement.dlq"
)

// Типы событий, публикуемых во внешний мир через outbox.
const (
	EventTypePaymentCompleted = "payment.completed"
	EventTypePaymentFailed    = "payment.failed"
	EventTypeRefundCompleted  = "refund.completed"
	EventTypeRefundFailed     = "refund.failed"
	EventTypeOrderRefunded    = "order.refunded"
)

// TaskReservationConfirm — task-сообщение outbox: обрабатывается локальным
// handler'ом, во внешний брокер не публикуется.
const TaskReservationConfirm = "reservation.confirm"

// SettlementEvent — конверт события для внешних потребителей.
type SettlementEvent struct {
	EventType   string                 `json:"event_type"`
	AggregateID string                 `json:"aggregate_id"`
	Timestamp   time.Time              `json:"timestamp"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// NewSettlementEvent создаёт конверт события с текущим временем.
func NewSettlementEvent(eventType, aggregateID string, metadata map[string]interface{}) SettlementEvent {
	return SettlementEvent{
		EventType:   eventType,
		AggregateID: aggregateID,
		Timestamp:   time.Now().UTC(),
		Metadata:    metadata,
	}
}

// Marshal сериализует событие в JSON.
func (e SettlementEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
