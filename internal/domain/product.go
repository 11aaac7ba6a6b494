package domain

import "time"

// Product — витринный товар. Каталог управляется внешним сервисом; здесь товар
// нужен как источник цены/стока, а stock_quantity мутируют только confirm/restore.
type Product struct {
	ID            string
	SKU           string
	Name          string
	StockQuantity int32
	// ManageStock выключает учёт остатков для товара (цифровые товары и т.п.).
	ManageStock bool
	PriceMinor  int64
	// CommissionRate — собственная ставка товара в процентах; 0 означает
	// "не задана", применяется DefaultCommissionRate.
	CommissionRate float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsInStock проверяет доступность qty единиц без учёта активных резервов.
func (p *Product) IsInStock(qty int32) bool {
	if !p.ManageStock {
		return true
	}
	return p.StockQuantity >= qty
}

// EffectiveCommissionRate возвращает ставку товара либо платформенный дефолт.
func (p *Product) EffectiveCommissionRate() float64 {
	if p.CommissionRate > 0 {
		return p.CommissionRate
	}
	return DefaultCommissionRate
}
