package reservation

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
	"github.com/vladislavdragonenkov/settlement/internal/metrics"
)

// DefaultHoldTTL — время жизни холда; покрывает типичный checkout с запасом.
const DefaultHoldTTL = 15 * time.Minute

// Manager описывает операции над временными резервами стока.
type Manager interface {
	// Reserve ставит холды на все позиции или ни на одну.
	Reserve(ctx context.Context, reservationID string, items []domain.ReservationItem) (bool, error)
	// Confirm списывает durable-сток по позициям холда и снимает холд.
	Confirm(ctx context.Context, reservationID string) (domain.ConfirmResult, error)
	// Release снимает холд без изменения durable-стока.
	Release(ctx context.Context, reservationID string) error
	// Available возвращает сток за вычетом живых холдов.
	Available(ctx context.Context, productID string) (int32, error)
}

type manager struct {
	store    domain.Store
	products domain.ProductRepository
	cache    domain.ReservationCache
	holdTTL  time.Duration
	logger   *log.Entry
	metrics  *metrics.SettlementMetrics
}

// NewManager создаёт менеджер резервов с TTL по умолчанию.
func NewManager(
	store domain.Store,
	products domain.ProductRepository,
	cache domain.ReservationCache,
	m *metrics.SettlementMetrics,
	logger *log.Entry,
) Manager {
	if logger == nil {
		logger = log.New().WithField("component", "reservation")
	}
	return &manager{
		store:    store,
		products: products,
		cache:    cache,
		holdTTL:  DefaultHoldTTL,
		logger:   logger,
		metrics:  m,
	}
}

// Reserve ставит холды последовательно; первый же отказ откатывает уже
// поставленные холды этого резерва. Durable-сток здесь не трогается.
func (m *manager) Reserve(ctx context.Context, reservationID string, items []domain.ReservationItem) (bool, error) {
	if reservationID == "" {
		return false, fmt.Errorf("reservation id is empty")
	}

	placed := false
	for _, item := range items {
		product, err := m.products.Get(ctx, item.ProductID)
		if err != nil {
			m.rollbackHold(ctx, reservationID, placed)
			return false, err
		}
		if !product.ManageStock {
			continue
		}

		ok, err := m.cache.Reserve(ctx, item.ProductID, reservationID, item.Qty, product.StockQuantity, m.holdTTL)
		if err != nil {
			m.rollbackHold(ctx, reservationID, placed)
			return false, fmt.Errorf("reserve %s: %w", item.ProductID, err)
		}
		if !ok {
			if m.metrics != nil {
				m.metrics.RecordReservationRejected()
			}
			m.logger.WithFields(log.Fields{
				"reservation_id": reservationID,
				"product_id":     item.ProductID,
				"qty":            item.Qty,
			}).Info("reservation rejected, not enough stock")
			m.rollbackHold(ctx, reservationID, placed)
			return false, nil
		}
		placed = true
	}

	if placed && m.metrics != nil {
		m.metrics.RecordReservationPlaced()
	}
	return true, nil
}

// Confirm читает позиции холда и в одной транзакции списывает durable-сток.
// Холд снимается только после успешного commit; сбой снятия не страшен,
// запись исчезнет по TTL.
func (m *manager) Confirm(ctx context.Context, reservationID string) (domain.ConfirmResult, error) {
	items, err := m.cache.Items(ctx, reservationID)
	if err != nil {
		return domain.ConfirmResult{Errors: []error{err}}, err
	}

	result := domain.ConfirmResult{}
	txErr := m.store.WithinTx(ctx, func(ctx context.Context) error {
		for _, item := range items {
			if err := m.products.AdjustStock(ctx, item.ProductID, -item.Qty); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("confirm %s: %w", item.ProductID, err))
			}
		}
		if len(result.Errors) > 0 {
			return result.Errors[0]
		}
		result.Confirmed = items
		return nil
	})
	if txErr != nil {
		m.logger.WithError(txErr).WithField("reservation_id", reservationID).Warn("reservation confirm failed")
		return result, txErr
	}

	if err := m.cache.Release(ctx, reservationID); err != nil {
		m.logger.WithError(err).WithField("reservation_id", reservationID).Warn("release after confirm failed, hold will expire by ttl")
	}
	if m.metrics != nil {
		m.metrics.RecordReservationConfirmed()
	}
	return result, nil
}

func (m *manager) Release(ctx context.Context, reservationID string) error {
	if err := m.cache.Release(ctx, reservationID); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.RecordReservationReleased()
	}
	return nil
}

// Available возвращает durable-сток минус живые холды; может уйти в минус
// только при гонке с истечением TTL, поэтому отрицательное значение срезается.
func (m *manager) Available(ctx context.Context, productID string) (int32, error) {
	product, err := m.products.Get(ctx, productID)
	if err != nil {
		return 0, err
	}
	if !product.ManageStock {
		return product.StockQuantity, nil
	}

	reserved, err := m.cache.TotalReserved(ctx, productID)
	if err != nil {
		return 0, err
	}
	available := product.StockQuantity - reserved
	if available < 0 {
		available = 0
	}
	return available, nil
}

func (m *manager) rollbackHold(ctx context.Context, reservationID string, placed bool) {
	if !placed {
		return
	}
	if err := m.cache.Release(ctx, reservationID); err != nil {
		m.logger.WithError(err).WithField("reservation_id", reservationID).Warn("rollback of partial hold failed, entries will expire by ttl")
	}
}

var _ Manager = (*manager)(nil)
