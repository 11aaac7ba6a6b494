package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
)

// Поддерживаемые провайдеры.
const (
	ProviderMidpay     = "midpay"
	ProviderStripeline = "stripeline"
)

// parseFunc разбирает провайдерное тело в каноническое событие.
type parseFunc func(body []byte) (domain.CanonicalEvent, error)

// Normalizer приводит провайдерные уведомления к CanonicalEvent. Вся
// провайдерная терминология схлопывается здесь; дальше по конвейеру
// существует только success/failed.
type Normalizer struct {
	parsers map[string]parseFunc
}

// NewNormalizer регистрирует парсеры всех поддерживаемых провайдеров.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		parsers: map[string]parseFunc{
			ProviderMidpay:     parseMidpay,
			ProviderStripeline: parseStripeline,
		},
	}
}

// Normalize разбирает тело уведомления провайдера. Неизвестный провайдер —
// ErrUnknownProvider, нечитаемое тело — ErrPayloadMalformed.
func (n *Normalizer) Normalize(provider string, body []byte) (domain.CanonicalEvent, error) {
	parse, ok := n.parsers[strings.ToLower(provider)]
	if !ok {
		return domain.CanonicalEvent{}, domain.ErrUnknownProvider
	}

	event, err := parse(body)
	if err != nil {
		return domain.CanonicalEvent{}, err
	}
	if event.TransactionID == "" {
		return domain.CanonicalEvent{}, fmt.Errorf("%w: missing transaction reference", domain.ErrPayloadMalformed)
	}

	event.Provider = strings.ToLower(provider)
	event.RawPayload = json.RawMessage(body)
	return event, nil
}

// Known сообщает, зарегистрирован ли провайдер.
func (n *Normalizer) Known(provider string) bool {
	_, ok := n.parsers[strings.ToLower(provider)]
	return ok
}

// midpayPayload — плоский формат уведомлений midpay.
type midpayPayload struct {
	TransactionID string `json:"transaction_id"`
	GatewayTxnID  string `json:"gateway_txn_id"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	FailureReason string `json:"failure_reason"`
}

func parseMidpay(body []byte) (domain.CanonicalEvent, error) {
	var payload midpayPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.CanonicalEvent{}, fmt.Errorf("%w: %v", domain.ErrPayloadMalformed, err)
	}

	var outcome domain.EventOutcome
	switch payload.Status {
	case "success", "completed":
		outcome = domain.EventOutcomeSuccess
	case "failure", "failed", "declined", "expired":
		outcome = domain.EventOutcomeFailed
	default:
		return domain.CanonicalEvent{}, fmt.Errorf("%w: unexpected midpay status %q", domain.ErrPayloadMalformed, payload.Status)
	}

	return domain.CanonicalEvent{
		TransactionID:        payload.TransactionID,
		GatewayTransactionID: payload.GatewayTxnID,
		Outcome:              outcome,
		AmountMinor:          payload.Amount,
		Currency:             strings.ToUpper(payload.Currency),
		FailureReason:        payload.FailureReason,
	}, nil
}

// stripelinePayload — событийный формат stripeline: тип события плюс
// вложенный объект charge.
type stripelinePayload struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID             string `json:"id"`
			Reference      string `json:"reference"`
			Amount         int64  `json:"amount"`
			Currency       string `json:"currency"`
			FailureMessage string `json:"failure_message"`
		} `json:"object"`
	} `json:"data"`
}

func parseStripeline(body []byte) (domain.CanonicalEvent, error) {
	var payload stripelinePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.CanonicalEvent{}, fmt.Errorf("%w: %v", domain.ErrPayloadMalformed, err)
	}

	var outcome domain.EventOutcome
	switch payload.Type {
	case "charge.succeeded":
		outcome = domain.EventOutcomeSuccess
	case "charge.failed", "charge.expired":
		outcome = domain.EventOutcomeFailed
	default:
		return domain.CanonicalEvent{}, fmt.Errorf("%w: unexpected stripeline event type %q", domain.ErrPayloadMalformed, payload.Type)
	}

	return domain.CanonicalEvent{
		TransactionID:        payload.Data.Object.Reference,
		GatewayTransactionID: payload.Data.Object.ID,
		Outcome:              outcome,
		AmountMinor:          payload.Data.Object.Amount,
		Currency:             strings.ToUpper(payload.Data.Object.Currency),
		FailureReason:        payload.Data.Object.FailureMessage,
	}, nil
}
