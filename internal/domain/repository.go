package domain

import (
	"context"
	"time"
)

// Store даёт границу атомарности: fn выполняется внутри одной транзакции,
// репозитории, вызванные с полученным ctx, пишут в неё. Любая ошибка из fn
// откатывает транзакцию целиком.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrDuplicateRecord, если ID занят.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
}

// PaymentRepository описывает требования к платёжному журналу.
type PaymentRepository interface {
	Create(ctx context.Context, payment Payment) error
	Get(ctx context.Context, id string) (Payment, error)
	// GetByTransactionID ищет платёж по внутреннему transaction_id.
	GetByTransactionID(ctx context.Context, transactionID string) (Payment, error)
	// ListByOrder возвращает историю платежей заказа от новых к старым.
	ListByOrder(ctx context.Context, orderID string) ([]Payment, error)
	// SumRefunded возвращает сумму завершённых возвратов по исходному платежу.
	SumRefunded(ctx context.Context, originalPaymentID string) (int64, error)
	Save(ctx context.Context, payment Payment) error
}

// ProductRepository — коллаборатор каталога: чтение стока и атомарные
// инкременты/декременты.
type ProductRepository interface {
	Create(ctx context.Context, product Product) error
	Get(ctx context.Context, id string) (Product, error)
	// AdjustStock атомарно меняет сток на delta. Декремент ниже нуля
	// возвращает ErrInsufficientStock, ничего не меняя.
	AdjustStock(ctx context.Context, productID string, delta int32) error
}

// PartnerRepository — коллаборатор партнёрского учёта.
type PartnerRepository interface {
	Create(ctx context.Context, partner Partner) error
	Get(ctx context.Context, id string) (Partner, error)
	// GetByReferralCode ищет партнёра по referral-коду или ErrPartnerNotFound.
	GetByReferralCode(ctx context.Context, code string) (Partner, error)
	Save(ctx context.Context, partner Partner) error
}

// CommissionRepository хранит начисления комиссий.
type CommissionRepository interface {
	Create(ctx context.Context, commission PartnerCommission) error
	ListByOrder(ctx context.Context, orderID string) ([]PartnerCommission, error)
	Save(ctx context.Context, commission PartnerCommission) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
// Enqueue, вызванный внутри Store.WithinTx, пишет в ту же транзакцию, что и
// бизнес-изменения — падение между commit и обработкой задачу не теряет.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
	// DeleteSentBefore удаляет отправленные записи старше before (retention sweep).
	DeleteSentBefore(ctx context.Context, before time.Time, limit int) (int, error)
}
