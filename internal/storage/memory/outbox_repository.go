package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
)

type outboxRepositoryInMemory struct {
	store *Store
}

// NewOutboxRepository возвращает in-memory реализацию transactional outbox.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepositoryInMemory{store: store}
}

func (r *outboxRepositoryInMemory) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	defer r.store.lock(ctx)()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.store.outboxSeq++
	r.store.outbox[msg.ID] = outboxRecord{
		msg:          msg,
		status:       "pending",
		createdAt:    now,
		updatedAt:    now,
		seq:          r.store.outboxSeq,
	}
	return msg, nil
}

func (r *outboxRepositoryInMemory) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	defer r.store.lock(ctx)()

	records := r.pendingRecords()
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(records))
	for _, rec := range records {
		result = append(result, rec.msg)
	}
	return result, nil
}

func (r *outboxRepositoryInMemory) Stats(ctx context.Context) (domain.OutboxStats, error) {
	defer r.store.lock(ctx)()

	var stats domain.OutboxStats
	for _, rec := range r.store.outbox {
		if rec.status != "pending" {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || rec.createdAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = rec.createdAt
		}
	}
	return stats, nil
}

func (r *outboxRepositoryInMemory) MarkSent(ctx context.Context, id string) error {
	return r.markStatus(ctx, id, "sent")
}

func (r *outboxRepositoryInMemory) MarkFailed(ctx context.Context, id string) error {
	return r.markStatus(ctx, id, "failed")
}

func (r *outboxRepositoryInMemory) DeleteSentBefore(ctx context.Context, before time.Time, limit int) (int, error) {
	defer r.store.lock(ctx)()

	deleted := 0
	for id, rec := range r.store.outbox {
		if rec.status != "sent" || !rec.updatedAt.Before(before) {
			continue
		}
		delete(r.store.outbox, id)
		deleted++
		if limit > 0 && deleted >= limit {
			break
		}
	}
	return deleted, nil
}

// AllPending возвращает pending-сообщения в порядке постановки; используется тестами.
func (r *outboxRepositoryInMemory) AllPending() []domain.OutboxMessage {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	records := r.pendingRecords()
	result := make([]domain.OutboxMessage, 0, len(records))
	for _, rec := range records {
		result = append(result, rec.msg)
	}
	return result
}

func (r *outboxRepositoryInMemory) pendingRecords() []outboxRecord {
	records := make([]outboxRecord, 0, len(r.store.outbox))
	for _, rec := range r.store.outbox {
		if rec.status == "pending" {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })
	return records
}

func (r *outboxRepositoryInMemory) markStatus(ctx context.Context, id, status string) error {
	defer r.store.lock(ctx)()

	rec, ok := r.store.outbox[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	rec.status = status
	rec.attemptCount++
	rec.updatedAt = time.Now().UTC()
	r.store.outbox[id] = rec
	return nil
}

var _ domain.OutboxRepository = (*outboxRepositoryInMemory)(nil)
