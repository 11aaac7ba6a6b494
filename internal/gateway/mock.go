package gateway

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
)

// MockGateway — конфигурируемая заглушка PaymentGateway для тестов и
// локального режима без внешнего провайдера.
type MockGateway struct {
	mu sync.Mutex

	Result domain.RefundResult
	Err    error

	RefundCalls int
	LastRequest domain.RefundRequest
}

// NewMockGateway возвращает mock с успешным возвратом по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Result: domain.RefundResult{
			Succeeded:       true,
			GatewayRefundID: "mock-refund-1",
		},
	}
}

// Refund возвращает заранее настроенный результат и считает вызовы.
func (m *MockGateway) Refund(_ context.Context, req domain.RefundRequest) (domain.RefundResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RefundCalls++
	m.LastRequest = req
	return m.Result, m.Err
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
