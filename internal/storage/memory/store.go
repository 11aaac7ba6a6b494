package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
)

// outboxRecord хранит outbox-сообщение вместе со статусом доставки.
type outboxRecord struct {
	msg          domain.OutboxMessage
	status       string
	attemptCount int
	createdAt    time.Time
	updatedAt    time.Time
	seq          int64
}

// Store — in-memory реализация хранилища для локальной разработки и тестов.
// Все коллекции живут под одним мьютексом; WithinTx снимает снапшот и
// восстанавливает его при ошибке, имитируя rollback настоящей БД.
type Store struct {
	mu          sync.Mutex
	orders      map[string]domain.Order
	payments    map[string]domain.Payment
	products    map[string]domain.Product
	partners    map[string]domain.Partner
	commissions map[string]domain.PartnerCommission
	outbox      map[string]outboxRecord
	outboxSeq   int64
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{
		orders:      make(map[string]domain.Order),
		payments:    make(map[string]domain.Payment),
		products:    make(map[string]domain.Product),
		partners:    make(map[string]domain.Partner),
		commissions: make(map[string]domain.PartnerCommission),
		outbox:      make(map[string]outboxRecord),
	}
}

type txMarker struct{}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txMarker{}).(bool)
	return ok
}

// lock берёт мьютекс хранилища, если вызов идёт вне транзакции. Внутри
// WithinTx мьютекс уже удерживается, повторный захват привёл бы к deadlock.
func (s *Store) lock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithinTx выполняет fn атомарно: на время вызова хранилище заблокировано,
// при ошибке состояние откатывается к снапшоту. Вложенный вызов присоединяется
// к открытой транзакции.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

type storeSnapshot struct {
	orders      map[string]domain.Order
	payments    map[string]domain.Payment
	products    map[string]domain.Product
	partners    map[string]domain.Partner
	commissions map[string]domain.PartnerCommission
	outbox      map[string]outboxRecord
	outboxSeq   int64
}

func (s *Store) snapshot() storeSnapshot {
	return storeSnapshot{
		orders:      copyMap(s.orders),
		payments:    copyMap(s.payments),
		products:    copyMap(s.products),
		partners:    copyMap(s.partners),
		commissions: copyMap(s.commissions),
		outbox:      copyMap(s.outbox),
		outboxSeq:   s.outboxSeq,
	}
}

func (s *Store) restore(snap storeSnapshot) {
	s.orders = snap.orders
	s.payments = snap.payments
	s.products = snap.products
	s.partners = snap.partners
	s.commissions = snap.commissions
	s.outbox = snap.outbox
	s.outboxSeq = snap.outboxSeq
}

func copyMap[V any](src map[string]V) map[string]V {
	dst := make(map[string]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

var _ domain.Store = (*Store)(nil)
