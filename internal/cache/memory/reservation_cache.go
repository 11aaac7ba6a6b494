package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
)

type hold struct {
	qty       int32
	expiresAt time.Time
}

// ReservationCache — in-memory реализация кэша холдов с той же семантикой,
// что и Redis-вариант: атомарный check-and-reserve под мьютексом, ленивое
// удаление истёкших записей.
type ReservationCache struct {
	mu sync.Mutex
	// reservations: reservation_id -> product_id -> hold.
	reservations map[string]map[string]hold
	now          func() time.Time
}

// NewReservationCache создаёт пустой кэш.
func NewReservationCache() *ReservationCache {
	return &ReservationCache{
		reservations: make(map[string]map[string]hold),
		now:          time.Now,
	}
}

// SetClock подменяет источник времени; нужен тестам TTL-поведения.
func (c *ReservationCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *ReservationCache) Reserve(_ context.Context, productID, reservationID string, qty, stockCeiling int32, ttl time.Duration) (bool, error) {
	if qty <= 0 {
		return false, domain.ErrItemQtyInvalid
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var reserved int32
	for id, products := range c.reservations {
		h, ok := products[productID]
		if !ok {
			continue
		}
		if !h.expiresAt.After(now) {
			delete(products, productID)
			if len(products) == 0 {
				delete(c.reservations, id)
			}
			continue
		}
		if id != reservationID {
			reserved += h.qty
		}
	}

	if stockCeiling-reserved < qty {
		return false, nil
	}

	products, ok := c.reservations[reservationID]
	if !ok {
		products = make(map[string]hold)
		c.reservations[reservationID] = products
	}
	products[productID] = hold{qty: qty, expiresAt: now.Add(ttl)}
	return true, nil
}

func (c *ReservationCache) Items(_ context.Context, reservationID string) ([]domain.ReservationItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	products, ok := c.reservations[reservationID]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}

	now := c.now()
	items := make([]domain.ReservationItem, 0, len(products))
	for productID, h := range products {
		if !h.expiresAt.After(now) {
			continue
		}
		items = append(items, domain.ReservationItem{ProductID: productID, Qty: h.qty})
	}
	if len(items) == 0 {
		delete(c.reservations, reservationID)
		return nil, domain.ErrReservationNotFound
	}
	return items, nil
}

func (c *ReservationCache) Release(_ context.Context, reservationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.reservations, reservationID)
	return nil
}

func (c *ReservationCache) TotalReserved(_ context.Context, productID string) (int32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var total int32
	for _, products := range c.reservations {
		if h, ok := products[productID]; ok && h.expiresAt.After(now) {
			total += h.qty
		}
	}
	return total, nil
}

var _ domain.ReservationCache = (*ReservationCache)(nil)
