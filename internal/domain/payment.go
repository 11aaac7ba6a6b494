package domain

import "time"

// PaymentType различает прямые платежи и возвраты в платёжном журнале.
type PaymentType string

const (
	// PaymentTypePayment — прямое списание по заказу.
	PaymentTypePayment PaymentType = "payment"
	// PaymentTypeRefund — полный возврат, ссылается на исходный платёж.
	PaymentTypeRefund PaymentType = "refund"
	// PaymentTypePartialRefund — частичный возврат, ссылается на исходный платёж.
	PaymentTypePartialRefund PaymentType = "partial_refund"
)

// PaymentStatus описывает состояние отдельной платёжной записи.
type PaymentStatus string

const (
	// PaymentStatusPending — платёж создан, gateway ещё не ответил.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusProcessing — запрос отправлен в gateway, ждём webhook.
	PaymentStatusProcessing PaymentStatus = "processing"
	// PaymentStatusCompleted — gateway подтвердил списание.
	PaymentStatusCompleted PaymentStatus = "completed"
	// PaymentStatusFailed — gateway отклонил платёж.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusCancelled — платёж отменён до подтверждения.
	PaymentStatusCancelled PaymentStatus = "cancelled"
	// PaymentStatusExpired — платёж не был завершён в отведённое время.
	PaymentStatusExpired PaymentStatus = "expired"
	// PaymentStatusRefunded — завершённый платёж полностью возвращён (через отдельную refund-запись).
	PaymentStatusRefunded PaymentStatus = "refunded"
	// PaymentStatusPartiallyRefunded — по завершённому платежу есть частичные возвраты.
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

// validPaymentNext задаёт допустимые переходы статусов платежа.
// refunded/partially_refunded достижимы только из completed и только через
// отдельную связанную refund-запись — сумма completed-записи не меняется.
var validPaymentNext = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentStatusPending: {
		PaymentStatusProcessing: true,
		PaymentStatusCompleted:  true,
		PaymentStatusFailed:     true,
		PaymentStatusCancelled:  true,
		PaymentStatusExpired:    true,
	},
	PaymentStatusProcessing: {
		PaymentStatusCompleted: true,
		PaymentStatusFailed:    true,
		PaymentStatusCancelled: true,
		PaymentStatusExpired:   true,
	},
	PaymentStatusCompleted: {
		PaymentStatusRefunded:          true,
		PaymentStatusPartiallyRefunded: true,
	},
	PaymentStatusPartiallyRefunded: {
		PaymentStatusRefunded:          true,
		PaymentStatusPartiallyRefunded: true,
	},
}

// CanTransition проверяет допустимость перехода между статусами платежа.
func CanTransition(from, to PaymentStatus) bool {
	return validPaymentNext[from][to]
}

// Terminal сообщает, завершён ли платёж с точки зрения webhook-обработки.
// Повторная доставка события для терминального платежа — ожидаемый дубликат.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled,
		PaymentStatusExpired, PaymentStatusRefunded, PaymentStatusPartiallyRefunded:
		return true
	default:
		return false
	}
}

// Payment — запись платёжного журнала. У заказа может быть несколько записей,
// но статусом оплаты заказа управляет не более одной активной записи типа payment.
type Payment struct {
	ID      string
	OrderID string
	Type    PaymentType
	Status  PaymentStatus
	// Provider — код платёжного провайдера (например "midpay", "stripeline").
	Provider string
	// TransactionID — внутренний идентификатор транзакции; ключ идемпотентности.
	TransactionID string
	// GatewayTransactionID — внешний идентификатор от провайдера; используется
	// для детекции дублей уведомлений.
	GatewayTransactionID string
	// OriginalPaymentID связывает refund-запись с исходным платежом.
	OriginalPaymentID string
	AmountMinor       int64
	Currency          string
	FailureReason     string
	// RawPayload хранит исходное webhook-тело для аудита.
	RawPayload []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Refundable сообщает, допускает ли запись возвраты.
func (p *Payment) Refundable() bool {
	if p.Type != PaymentTypePayment {
		return false
	}
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusPartiallyRefunded
}

// Validate проверяет корректность полей платежа и возвращает ошибки, если они есть.
func (p *Payment) Validate() []error {
	var errs []error

	if p.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if p.Provider == "" {
		errs = append(errs, ErrPaymentProviderRequired)
	}
	if p.TransactionID == "" {
		errs = append(errs, ErrTransactionIDRequired)
	}
	if p.AmountMinor < 0 {
		errs = append(errs, ErrPaymentAmountNegative)
	}
	if (p.Type == PaymentTypeRefund || p.Type == PaymentTypePartialRefund) && p.OriginalPaymentID == "" {
		errs = append(errs, ErrOriginalPaymentRequired)
	}

	return errs
}
