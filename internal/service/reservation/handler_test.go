package reservation_test

import (
	"context"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
	"github.com/vladislavdragonenkov/settlement/internal/service/reservation"
)

func taskMessage(payload string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            "msg-1",
		AggregateType: "payment",
		AggregateID:   "pay-1",
		EventType:     "reservation.confirm",
		Payload:       []byte(payload),
	}
}

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return logger.WithField("component", "test")
}

func TestConfirmTaskHandler_ConfirmsHold(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "product-1", 5)
	ctx := context.Background()

	ok, err := f.cache.Reserve(ctx, "product-1", "resv-1", 2, 5, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected cache reserve to succeed, got ok=%v err=%v", ok, err)
	}

	handler := reservation.ConfirmTaskHandler(f.manager, quietLogger())
	err = handler(ctx, taskMessage(`{"reservation_id":"resv-1","order_id":"order-1"}`))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	product, err := f.products.Get(ctx, "product-1")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.StockQuantity != 3 {
		t.Fatalf("expected stock 3 after confirm, got %d", product.StockQuantity)
	}
}

func TestConfirmTaskHandler_ExpiredHoldIsHandled(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "product-1", 5)

	handler := reservation.ConfirmTaskHandler(f.manager, quietLogger())
	err := handler(context.Background(), taskMessage(`{"reservation_id":"gone","order_id":"order-1"}`))
	if err != nil {
		t.Fatalf("expired hold must not be retriable, got %v", err)
	}
}

func TestConfirmTaskHandler_BadPayload(t *testing.T) {
	f := newFixture(t)
	handler := reservation.ConfirmTaskHandler(f.manager, quietLogger())

	if err := handler(context.Background(), taskMessage(`{broken`)); err == nil {
		t.Fatal("expected decode error")
	}
	if err := handler(context.Background(), taskMessage(`{"order_id":"order-1"}`)); err == nil {
		t.Fatal("expected missing reservation_id error")
	}
}
