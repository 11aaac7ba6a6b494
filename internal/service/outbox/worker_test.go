package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
)

type stubOutboxRepo struct {
	mu        sync.Mutex
	pending   []domain.OutboxMessage
	sentIDs   []string
	failedIDs []string
}

func (r *stubOutboxRepo) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, msg)
	return msg, nil
}

func (r *stubOutboxRepo) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	messages := r.pending
	r.pending = nil
	if limit > 0 && len(messages) > limit {
		r.pending = messages[limit:]
		messages = messages[:limit]
	}
	return messages, nil
}

func (r *stubOutboxRepo) Stats(_ context.Context) (domain.OutboxStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.OutboxStats{PendingCount: len(r.pending)}, nil
}

func (r *stubOutboxRepo) MarkSent(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sentIDs = append(r.sentIDs, id)
	return nil
}

func (r *stubOutboxRepo) MarkFailed(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failedIDs = append(r.failedIDs, id)
	return nil
}

func (r *stubOutboxRepo) DeleteSentBefore(_ context.Context, _ time.Time, _ int) (int, error) {
	return 0, nil
}

type stubPublisher struct {
	mu       sync.Mutex
	err      error
	failures int
	count    int
	messages []domain.OutboxMessage
}

func (p *stubPublisher) Publish(msg domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
	if p.err != nil {
		return p.err
	}
	if p.failures > 0 {
		p.failures--
		return errors.New("transient publish error")
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *stubPublisher) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

func eventMessage(id, eventType string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: "payment",
		AggregateID:   "pay-1",
		EventType:     eventType,
		Payload:       []byte(`{"order_id":"order-1"}`),
	}
}

func TestWorker_ProcessOnce_PublishesEvent(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{eventMessage("msg-1", "payment.completed")}}
	publisher := &stubPublisher{}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3))
	worker.ProcessOnce(context.Background())

	if got := len(repo.sentIDs); got != 1 {
		t.Fatalf("expected 1 sent mark, got %d", got)
	}
	if repo.sentIDs[0] != "msg-1" {
		t.Fatalf("expected sent id msg-1, got %s", repo.sentIDs[0])
	}
	if got := publisher.calls(); got != 1 {
		t.Fatalf("expected 1 publish call, got %d", got)
	}
}

func TestWorker_ProcessOnce_DispatchesTaskToHandler(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{eventMessage("msg-1", "reservation.confirm")}}
	publisher := &stubPublisher{}

	var handled []string
	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0))
	worker.RegisterHandler("reservation.confirm", func(_ context.Context, msg domain.OutboxMessage) error {
		handled = append(handled, msg.ID)
		return nil
	})

	worker.ProcessOnce(context.Background())

	if len(handled) != 1 || handled[0] != "msg-1" {
		t.Fatalf("expected handler to receive msg-1, got %v", handled)
	}
	// Task-сообщение не должно уходить в брокер.
	if got := publisher.calls(); got != 0 {
		t.Fatalf("expected no publish calls for task, got %d", got)
	}
	if got := len(repo.sentIDs); got != 1 {
		t.Fatalf("expected task marked sent, got %d marks", got)
	}
}

func TestWorker_ProcessOnce_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{eventMessage("msg-1", "payment.completed")}}
	publisher := &stubPublisher{failures: 2}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3))
	worker.ProcessOnce(context.Background())

	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if got := len(repo.sentIDs); got != 1 {
		t.Fatalf("expected sent after retry, got %d marks", got)
	}
	if got := len(repo.failedIDs); got != 0 {
		t.Fatalf("expected no failed marks, got %d", got)
	}
}

func TestWorker_ProcessOnce_DeadLettersAfterRetries(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{eventMessage("msg-2", "payment.completed")}}
	publisher := &stubPublisher{err: errors.New("broker down")}
	dlqPublisher := &stubPublisher{}

	worker := NewWorker(repo, publisher,
		WithDLQPublisher(dlqPublisher),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)
	worker.ProcessOnce(context.Background())

	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if got := len(repo.failedIDs); got != 1 {
		t.Fatalf("expected 1 failed mark, got %d", got)
	}
	if got := dlqPublisher.calls(); got != 1 {
		t.Fatalf("expected 1 DLQ publish, got %d", got)
	}
	if len(dlqPublisher.messages) != 1 || dlqPublisher.messages[0].ID != "msg-2" {
		t.Fatalf("expected DLQ message for msg-2, got %v", dlqPublisher.messages)
	}
}

func TestWorker_ProcessOnce_FailedTaskGoesToDLQ(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{eventMessage("msg-3", "reservation.confirm")}}
	dlqPublisher := &stubPublisher{}

	worker := NewWorker(repo, nil,
		WithDLQPublisher(dlqPublisher),
		WithRetryBaseDelay(0),
		WithMaxAttempts(2),
	)
	attempts := 0
	worker.RegisterHandler("reservation.confirm", func(_ context.Context, _ domain.OutboxMessage) error {
		attempts++
		return errors.New("stock conflict")
	})

	worker.ProcessOnce(context.Background())

	if attempts != 2 {
		t.Fatalf("expected 2 handler attempts, got %d", attempts)
	}
	if got := len(repo.failedIDs); got != 1 {
		t.Fatalf("expected 1 failed mark, got %d", got)
	}
	if got := dlqPublisher.calls(); got != 1 {
		t.Fatalf("expected 1 DLQ publish, got %d", got)
	}
}

func TestWorker_ProcessOnce_NilPublisherDropsEventLocally(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{eventMessage("msg-1", "payment.completed")}}

	worker := NewWorker(repo, nil, WithRetryBaseDelay(0))
	worker.ProcessOnce(context.Background())

	if got := len(repo.sentIDs); got != 1 {
		t.Fatalf("expected message marked sent in local mode, got %d", got)
	}
	if got := len(repo.failedIDs); got != 0 {
		t.Fatalf("expected no failed marks, got %d", got)
	}
}

func TestWorker_RetryBackoffGrowsExponentially(t *testing.T) {
	t.Parallel()

	worker := NewWorker(&stubOutboxRepo{}, nil, WithRetryBaseDelay(10*time.Millisecond))

	if got := worker.retryBackoff(1); got != 10*time.Millisecond {
		t.Fatalf("expected 10ms for first attempt, got %v", got)
	}
	if got := worker.retryBackoff(2); got != 20*time.Millisecond {
		t.Fatalf("expected 20ms for second attempt, got %v", got)
	}
	if got := worker.retryBackoff(3); got != 40*time.Millisecond {
		t.Fatalf("expected 40ms for third attempt, got %v", got)
	}
}
