package domain

import "encoding/json"

// EventOutcome — двухзначный итог платёжного уведомления. Провайдерная
// терминология схлопывается в success/failed на этапе нормализации, поэтому
// state machine никогда не видит провайдерских статусов.
type EventOutcome string

const (
	EventOutcomeSuccess EventOutcome = "success"
	EventOutcomeFailed  EventOutcome = "failed"
)

// CanonicalEvent — провайдеро-независимое представление webhook-уведомления.
type CanonicalEvent struct {
	Provider string
	// TransactionID — наш внутренний идентификатор, по нему ищется платёж.
	TransactionID string
	// GatewayTransactionID — идентификатор транзакции на стороне провайдера.
	GatewayTransactionID string
	Outcome              EventOutcome
	AmountMinor          int64
	Currency             string
	FailureReason        string
	// RawPayload — исходное тело уведомления, сохраняется в платеже для аудита.
	RawPayload json.RawMessage
}

// WebhookAck — ответ state machine обработчику webhook.
type WebhookAck struct {
	// Duplicate выставляется, когда событие уже было применено ранее.
	Duplicate bool
	// Outcome — применённый итог (success/failed).
	Outcome EventOutcome
}
