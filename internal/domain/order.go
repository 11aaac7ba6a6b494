package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан на checkout, оплата ещё не подтверждена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — оплата подтверждена, заказ принят в работу.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ доставлен покупателю.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён; терминальный статус.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded — заказ полностью возвращён; терминальный статус.
	OrderStatusRefunded OrderStatus = "refunded"
)

// Terminal сообщает, является ли статус конечным: из него нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefunded
}

// OrderPaymentStatus отражает состояние оплаты заказа в целом.
type OrderPaymentStatus string

const (
	// OrderPaymentPending — активный платёж ещё не подтверждён.
	OrderPaymentPending OrderPaymentStatus = "pending"
	// OrderPaymentPaid — платёж завершён успешно.
	OrderPaymentPaid OrderPaymentStatus = "paid"
	// OrderPaymentFailed — платёж отклонён или истёк.
	OrderPaymentFailed OrderPaymentStatus = "failed"
	// OrderPaymentRefunded — платёж полностью возвращён.
	OrderPaymentRefunded OrderPaymentStatus = "refunded"
)

// OrderItem представляет одну позицию заказа со снапшотом цены на момент checkout.
type OrderItem struct {
	ID         string
	ProductID  string
	Qty        int32
	PriceMinor int64
	CreatedAt  time.Time
}

// Order — агрегат заказа. Мутируется только Payment State Machine и Refund
// Coordinator; записи никогда не удаляются.
type Order struct {
	ID            string
	CustomerID    string
	Status        OrderStatus
	PaymentStatus OrderPaymentStatus
	Currency      string
	AmountMinor   int64
	ReferralCode  string
	Items         []OrderItem
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	// Оплаченный заказ не может оставаться в pending.
	if o.PaymentStatus == OrderPaymentPaid && o.Status == OrderStatusPending {
		errs = append(errs, ErrPaidOrderPending)
	}

	// Сверяем сумму заказа с суммой позиций: qty * price.
	var calc int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += int64(item.Qty) * item.PriceMinor
	}
	if calc != o.AmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
