package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")
	// Ошибка нарушения инварианта: оплаченный заказ остался в pending.
	ErrPaidOrderPending = errors.New("paid order must not stay pending")

	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка отсутствующего кода платёжного провайдера.
	ErrPaymentProviderRequired = errors.New("payment provider is required")
	// Ошибка отсутствующего внутреннего transaction_id.
	ErrTransactionIDRequired = errors.New("transaction_id is required")
	// Ошибка отрицательной суммы платежа.
	ErrPaymentAmountNegative = errors.New("payment amount must be non-negative")
	// Ошибка refund-записи без ссылки на исходный платёж.
	ErrOriginalPaymentRequired = errors.New("refund requires original_payment_id")

	// Ошибка отсутствующего идентификатора партнёра.
	ErrPartnerIDRequired = errors.New("partner_id is required")
	// Ошибка ставки комиссии вне [0, 100].
	ErrCommissionRateInvalid = errors.New("commission rate must be within [0, 100]")
	// Ошибка суммы комиссии вне [0, сумма позиции].
	ErrCommissionAmountInvalid = errors.New("commission amount must be within [0, order amount]")
	// Ошибка несоответствия суммы позиции снапшоту цены.
	ErrCommissionBaseMismatch = errors.New("commission base does not match price * qty")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrPaymentNotFound возвращается, если платёж не найден по transaction_id.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrPartnerNotFound возвращается, если партнёр не найден по referral-коду.
	ErrPartnerNotFound = errors.New("partner not found")
	// ErrCommissionNotFound возвращается, если начисление не найдено.
	ErrCommissionNotFound = errors.New("commission not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrDuplicateRecord — запись с таким идентификатором уже существует.
	ErrDuplicateRecord = errors.New("record already exists")

	// ErrPaymentTransitionInvalid — недопустимый переход статуса платежа.
	ErrPaymentTransitionInvalid = errors.New("invalid payment status transition")
	// ErrPaymentAlreadyActive — у заказа уже есть незавершённый платёж; статусом
	// оплаты заказа управляет не более одной активной записи типа payment.
	ErrPaymentAlreadyActive = errors.New("order already has an active payment")
	// ErrPaymentNotRefundable — платёж не допускает возврат.
	ErrPaymentNotRefundable = errors.New("payment is not refundable")
	// ErrRefundExceedsOriginal — сумма возврата больше остатка исходного платежа.
	ErrRefundExceedsOriginal = errors.New("refund amount exceeds original payment")

	// ErrInsufficientStock — durable-стока не хватает для списания резерва.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrReservationNotFound — холд отсутствует в кэше (истёк TTL или уже подтверждён).
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrSignatureInvalid — подпись webhook не прошла проверку.
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	// ErrSecretNotConfigured — для провайдера не настроен секрет; fail closed.
	ErrSecretNotConfigured = errors.New("webhook secret is not configured")
	// ErrUnknownProvider — провайдер не зарегистрирован в normalizer.
	ErrUnknownProvider = errors.New("unknown payment provider")
	// ErrPayloadMalformed — тело уведомления не распарсилось в событие.
	ErrPayloadMalformed = errors.New("webhook payload malformed")

	// ErrGatewayUnavailable — временная ошибка при обращении к gateway.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsNotFound группирует все not-found ошибки для маппинга на HTTP 404.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrPartnerNotFound)
}
