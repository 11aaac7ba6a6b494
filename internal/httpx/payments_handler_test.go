package httpx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	cachemem "github.com/vladislavdragonenkov/settlement/internal/cache/memory"
	"github.com/vladislavdragonenkov/settlement/internal/domain"
	"github.com/vladislavdragonenkov/settlement/internal/gateway"
	"github.com/vladislavdragonenkov/settlement/internal/httpx"
	"github.com/vladislavdragonenkov/settlement/internal/service/commission"
	"github.com/vladislavdragonenkov/settlement/internal/service/refund"
	"github.com/vladislavdragonenkov/settlement/internal/service/reservation"
	"github.com/vladislavdragonenkov/settlement/internal/service/settlement"
	"github.com/vladislavdragonenkov/settlement/internal/storage/memory"
)

type testEnv struct {
	router      http.Handler
	verifier    *gateway.Verifier
	payments    domain.PaymentRepository
	orders      domain.OrderRepository
	products    domain.ProductRepository
	partners    domain.PartnerRepository
	commissions domain.CommissionRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	entry := logger.WithField("component", "test")

	orders := memory.NewOrderRepository(store)
	payments := memory.NewPaymentRepository(store)
	products := memory.NewProductRepository(store)
	partners := memory.NewPartnerRepository(store)
	commissions := memory.NewCommissionRepository(store)
	outbox := memory.NewOutboxRepository(store)
	cache := cachemem.NewReservationCache()

	reservations := reservation.NewManager(store, products, cache, nil, entry)
	engine := commission.NewEngine(partners, products, commissions, nil, entry)
	processor := settlement.NewProcessor(store, orders, payments, outbox, reservations, engine, nil, entry)
	refunds := refund.NewCoordinator(store, orders, payments, products, outbox, engine, gateway.NewMockGateway(), nil, entry)

	verifier := gateway.NewVerifier(map[string]string{"midpay": "test-secret"})

	router := httpx.NewRouter(nil)
	handler := &httpx.PaymentsHandler{
		Processor:   processor,
		Refunds:     refunds,
		Payments:    payments,
		Commissions: engine,
		Store:       store,
		Verifier:    verifier,
		Normalizer:  gateway.NewNormalizer(),
		Logger:      entry,
	}
	handler.Register(router)

	return &testEnv{
		router:      router,
		verifier:    verifier,
		payments:    payments,
		orders:      orders,
		products:    products,
		partners:    partners,
		commissions: commissions,
	}
}

func (e *testEnv) seedOrder(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, e.products.Create(ctx, domain.Product{
		ID:            "product-1",
		ManageStock:   true,
		StockQuantity: 5,
		PriceMinor:    10000,
	}))
	require.NoError(t, e.partners.Create(ctx, domain.Partner{
		ID:           "partner-1",
		ReferralCode: "REF-1",
		Status:       domain.PartnerStatusActive,
	}))
	require.NoError(t, e.orders.Create(ctx, domain.Order{
		ID:            "order-1",
		CustomerID:    "customer-1",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.OrderPaymentPending,
		Currency:      "USD",
		AmountMinor:   10000,
		ReferralCode:  "REF-1",
		Items: []domain.OrderItem{
			{ID: "item-1", ProductID: "product-1", Qty: 1, PriceMinor: 10000, CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

func (e *testEnv) do(t *testing.T, method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// createPayment проводит заказ через POST /payments и возвращает transaction_id.
func (e *testEnv) createPayment(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/payments", []byte(`{"order_id":"order-1","provider":"midpay"}`), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		TransactionID string `json:"transaction_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.TransactionID)
	return resp.TransactionID
}

func (e *testEnv) signedWebhook(t *testing.T, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	signature, err := e.verifier.Sign("midpay", body)
	require.NoError(t, err)
	return e.do(t, http.MethodPost, "/payments/webhook/midpay", body, map[string]string{
		httpx.SignatureHeader: signature,
	})
}

func successBody(transactionID string) []byte {
	return []byte(`{"transaction_id":"` + transactionID + `","gateway_txn_id":"mp-1","status":"success","amount":10000,"currency":"usd"}`)
}

func TestCreatePayment(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t)

	rec := env.do(t, http.MethodPost, "/payments", []byte(`{"order_id":"order-1","provider":"midpay"}`), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "pending", resp["status"])
	require.Equal(t, "order-1", resp["order_id"])
}

func TestCreatePayment_Validation(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"broken json", `{`, http.StatusBadRequest},
		{"missing fields", `{"order_id":"order-1"}`, http.StatusBadRequest},
		{"unknown provider", `{"order_id":"order-1","provider":"paypal"}`, http.StatusBadRequest},
		{"unknown order", `{"order_id":"order-x","provider":"midpay"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/payments", []byte(tc.body), nil)
			require.Equal(t, tc.code, rec.Code, rec.Body.String())
		})
	}
}

func TestCreatePayment_RetryWhilePending(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t)
	env.createPayment(t)

	// Повторный POST по заказу с живым платежом — конфликт, а не второй intent.
	rec := env.do(t, http.MethodPost, "/payments", []byte(`{"order_id":"order-1","provider":"midpay"}`), nil)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	payments, err := env.payments.ListByOrder(context.Background(), "order-1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
}

func TestConfirmCommissions(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t)
	transactionID := env.createPayment(t)

	rec := env.signedWebhook(t, successBody(transactionID))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/commissions/confirm", []byte(`{"order_id":"order-1"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	commissions, err := env.commissions.ListByOrder(context.Background(), "order-1")
	require.NoError(t, err)
	require.Len(t, commissions, 1)
	require.Equal(t, domain.CommissionStatusConfirmed, commissions[0].Status)
}

func TestConfirmCommissions_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/commissions/confirm", []byte(`{}`), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/commissions/confirm", []byte(`{`), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_Accepted(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t)
	transactionID := env.createPayment(t)

	rec := env.signedWebhook(t, successBody(transactionID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "accepted", resp["status"])
	require.Equal(t, "success", resp["outcome"])

	order, err := env.orders.Get(context.Background(), "order-1")
	require.NoError(t, err)
	require.Equal(t, domain.OrderPaymentPaid, order.PaymentStatus)
}

func TestWebhook_DuplicateDelivery(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t)
	transactionID := env.createPayment(t)

	rec := env.signedWebhook(t, successBody(transactionID))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.signedWebhook(t, successBody(transactionID))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "duplicate", resp["status"])
}

func TestWebhook_InvalidSignature(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t)
	transactionID := env.createPayment(t)

	rec := env.do(t, http.MethodPost, "/payments/webhook/midpay", successBody(transactionID), map[string]string{
		httpx.SignatureHeader: "deadbeef",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Платёж не изменился.
	payment, err := env.payments.GetByTransactionID(context.Background(), transactionID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPending, payment.Status)
}

func TestWebhook_UnknownProviderSecret(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t)

	// Для провайдера нет секрета: fail closed.
	rec := env.do(t, http.MethodPost, "/payments/webhook/stripeline", []byte(`{}`), map[string]string{
		httpx.SignatureHeader: "deadbeef",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhook_MalformedPayload(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t)

	body := []byte(`{"transaction_id":"txn-1","status":"maybe"}`)
	rec := env.signedWebhook(t, body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_UnknownTransaction(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t)

	rec := env.signedWebhook(t, successBody("no-such-txn"))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefundEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t)
	transactionID := env.createPayment(t)

	rec := env.signedWebhook(t, successBody(transactionID))
	require.Equal(t, http.StatusOK, rec.Code)

	payment, err := env.payments.GetByTransactionID(context.Background(), transactionID)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]any{"payment_id": payment.ID, "reason": "customer request"})
	require.NoError(t, err)
	rec = env.do(t, http.MethodPost, "/payments/refund", body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "refund", resp["type"])
	require.Equal(t, "completed", resp["status"])
}

func TestRefundEndpoint_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t)
	transactionID := env.createPayment(t)

	payment, err := env.payments.GetByTransactionID(context.Background(), transactionID)
	require.NoError(t, err)

	// Платёж ещё pending: возврат невозможен.
	body, _ := json.Marshal(map[string]any{"payment_id": payment.ID})
	rec := env.do(t, http.MethodPost, "/payments/refund", body, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/payments/refund", []byte(`{"payment_id":"missing"}`), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/payments/refund", []byte(`{}`), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefundEndpoint_ExceedsOriginal(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t)
	transactionID := env.createPayment(t)

	rec := env.signedWebhook(t, successBody(transactionID))
	require.Equal(t, http.StatusOK, rec.Code)

	payment, err := env.payments.GetByTransactionID(context.Background(), transactionID)
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]any{"payment_id": payment.ID, "amount_minor": 99999})
	rec = env.do(t, http.MethodPost, "/payments/refund", body, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPaymentHistory(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t)
	env.createPayment(t)

	rec := env.do(t, http.MethodGet, "/payments/history?order_id=order-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)

	rec = env.do(t, http.MethodGet, "/payments/history", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
