package domain

import (
	"math"
	"time"
)

// DefaultCommissionRate — платформенная ставка в процентах, применяется, когда
// у товара не задана собственная ставка.
const DefaultCommissionRate = 5.0

// CommissionStatus описывает жизненный цикл партнёрской комиссии.
type CommissionStatus string

const (
	// CommissionStatusPending — комиссия начислена, окно возврата ещё не истекло.
	CommissionStatusPending CommissionStatus = "pending"
	// CommissionStatusConfirmed — окно возврата истекло, комиссия подтверждена к выплате.
	CommissionStatusConfirmed CommissionStatus = "confirmed"
	// CommissionStatusPaid — комиссия выплачена партнёру; запись неизменяемая.
	CommissionStatusPaid CommissionStatus = "paid"
	// CommissionStatusCancelled — комиссия аннулирована при отмене/возврате заказа.
	CommissionStatusCancelled CommissionStatus = "cancelled"
	// CommissionStatusDisputed — комиссия оспорена и ждёт ручного разбора.
	CommissionStatusDisputed CommissionStatus = "disputed"
)

// PartnerCommission — начисление по одной позиции заказа. Финансовые записи
// сохраняются для аудита даже после отмены заказа.
type PartnerCommission struct {
	ID        string
	PartnerID string
	OrderID   string
	ProductID string
	// OrderAmountMinor — сумма позиции (цена * количество).
	OrderAmountMinor int64
	// CommissionRate — ставка в процентах, [0, 100].
	CommissionRate float64
	// CommissionAmountMinor = round(OrderAmountMinor * CommissionRate / 100).
	CommissionAmountMinor int64
	Status                CommissionStatus
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// CommissionAmount считает размер комиссии в минимальных единицах с округлением
// до ближайшего целого.
func CommissionAmount(orderAmountMinor int64, rate float64) int64 {
	return int64(math.Round(float64(orderAmountMinor) * rate / 100))
}

// Validate проверяет write-инварианты комиссии: ставка в [0,100], сумма комиссии
// в [0, сумма позиции], сумма позиции согласована со снапшотом цены.
func (c *PartnerCommission) Validate(unitPriceMinor int64, qty int32) []error {
	var errs []error

	if c.PartnerID == "" {
		errs = append(errs, ErrPartnerIDRequired)
	}
	if c.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if c.CommissionRate < 0 || c.CommissionRate > 100 {
		errs = append(errs, ErrCommissionRateInvalid)
	}
	if c.CommissionAmountMinor < 0 || c.CommissionAmountMinor > c.OrderAmountMinor {
		errs = append(errs, ErrCommissionAmountInvalid)
	}
	if unitPriceMinor*int64(qty) != c.OrderAmountMinor {
		errs = append(errs, ErrCommissionBaseMismatch)
	}

	return errs
}

// PartnerStatus описывает состояние партнёрского аккаунта.
type PartnerStatus string

const (
	PartnerStatusActive    PartnerStatus = "active"
	PartnerStatusApproved  PartnerStatus = "approved"
	PartnerStatusSuspended PartnerStatus = "suspended"
)

// Attributable сообщает, допускает ли статус партнёра атрибуцию новых заказов.
func (s PartnerStatus) Attributable() bool {
	return s == PartnerStatusActive || s == PartnerStatusApproved
}

// Partner — реферальный партнёр с накопительной статистикой. Статистика
// обновляется инкрементально при каждом начислении.
type Partner struct {
	ID           string
	ReferralCode string
	Status       PartnerStatus
	TotalOrders  int64
	TotalClicks  int64
	// TotalEarningsMinor — суммарные начисления за всё время.
	TotalEarningsMinor int64
	// PendingBalanceMinor — начисления, ещё не выплаченные партнёру.
	PendingBalanceMinor int64
	// AverageOrderValueMinor — скользящее среднее суммы заказа.
	AverageOrderValueMinor float64
	// ConversionRate = TotalOrders / TotalClicks * 100.
	ConversionRate float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RecordOrder инкрементально обновляет статистику партнёра после начисления
// комиссии по заказу: avg_n = (avg_{n-1} * (n-1) + amount) / n.
func (p *Partner) RecordOrder(orderAmountMinor, commissionMinor int64) {
	p.TotalOrders++
	p.TotalEarningsMinor += commissionMinor
	p.PendingBalanceMinor += commissionMinor
	n := float64(p.TotalOrders)
	p.AverageOrderValueMinor = (p.AverageOrderValueMinor*(n-1) + float64(orderAmountMinor)) / n
	if p.TotalClicks > 0 {
		p.ConversionRate = float64(p.TotalOrders) / float64(p.TotalClicks) * 100
	}
}
