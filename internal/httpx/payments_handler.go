package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
	"github.com/vladislavdragonenkov/settlement/internal/gateway"
	"github.com/vladislavdragonenkov/settlement/internal/metrics"
	"github.com/vladislavdragonenkov/settlement/internal/service/commission"
	"github.com/vladislavdragonenkov/settlement/internal/service/refund"
	"github.com/vladislavdragonenkov/settlement/internal/service/settlement"
)

// SignatureHeader — header с HMAC-подписью webhook-уведомления.
const SignatureHeader = "X-Webhook-Signature"

// maxWebhookBody ограничивает размер тела уведомления.
const maxWebhookBody = 1 << 20

// PaymentsHandler обслуживает HTTP-поверхность платёжного конвейера.
type PaymentsHandler struct {
	Processor   settlement.Processor
	Refunds     refund.Coordinator
	Payments    domain.PaymentRepository
	Commissions commission.Engine
	Store       domain.Store
	Verifier    *gateway.Verifier
	Normalizer  *gateway.Normalizer
	Metrics     *metrics.SettlementMetrics
	Logger      *log.Entry
}

// Register вешает маршруты конвейера на router.
func (h *PaymentsHandler) Register(r *chi.Mux) {
	r.Post("/payments", h.createPayment)
	r.Post("/payments/webhook/{provider}", h.handleWebhook)
	r.Post("/payments/refund", h.processRefund)
	r.Get("/payments/history", h.paymentHistory)
	r.Post("/commissions/confirm", h.confirmCommissions)
}

type createPaymentReq struct {
	OrderID  string `json:"order_id"`
	Provider string `json:"provider"`
}

type paymentResp struct {
	ID                   string `json:"id"`
	OrderID              string `json:"order_id"`
	Type                 string `json:"type"`
	Status               string `json:"status"`
	Provider             string `json:"provider"`
	TransactionID        string `json:"transaction_id"`
	GatewayTransactionID string `json:"gateway_transaction_id,omitempty"`
	OriginalPaymentID    string `json:"original_payment_id,omitempty"`
	AmountMinor          int64  `json:"amount_minor"`
	Currency             string `json:"currency"`
	FailureReason        string `json:"failure_reason,omitempty"`
	CreatedAt            string `json:"created_at"`
	UpdatedAt            string `json:"updated_at"`
}

func toPaymentResp(p domain.Payment) paymentResp {
	return paymentResp{
		ID:                   p.ID,
		OrderID:              p.OrderID,
		Type:                 string(p.Type),
		Status:               string(p.Status),
		Provider:             p.Provider,
		TransactionID:        p.TransactionID,
		GatewayTransactionID: p.GatewayTransactionID,
		OriginalPaymentID:    p.OriginalPaymentID,
		AmountMinor:          p.AmountMinor,
		Currency:             p.Currency,
		FailureReason:        p.FailureReason,
		CreatedAt:            p.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:            p.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

func (h *PaymentsHandler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.OrderID == "" || req.Provider == "" {
		writeError(w, http.StatusBadRequest, "order_id and provider are required")
		return
	}
	if !h.Normalizer.Known(req.Provider) {
		writeError(w, http.StatusBadRequest, domain.ErrUnknownProvider.Error())
		return
	}

	payment, err := h.Processor.CreatePaymentIntent(r.Context(), req.OrderID, req.Provider)
	if err != nil {
		switch {
		case domain.IsNotFound(err):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, domain.ErrInsufficientStock):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrPaymentAlreadyActive):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrPaymentTransitionInvalid):
			writeError(w, http.StatusConflict, "order is not payable")
		default:
			h.Logger.WithError(err).WithField("order_id", req.OrderID).Error("create payment failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toPaymentResp(payment))
}

// handleWebhook принимает провайдерное уведомление. Ответ 200 означает
// "доставка принята, повторять не нужно" — в том числе для дублей и
// неповторяемых бизнес-отказов; 5xx провайдер получает только на transient
// ошибках.
func (h *PaymentsHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if err := h.Verifier.Verify(provider, body, r.Header.Get(SignatureHeader)); err != nil {
		h.rejectWebhook(provider, "signature")
		h.Logger.WithError(err).WithField("provider", provider).Warn("webhook signature rejected")
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	event, err := h.Normalizer.Normalize(provider, body)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownProvider):
			h.rejectWebhook(provider, "unknown_provider")
			writeError(w, http.StatusNotFound, err.Error())
		default:
			h.rejectWebhook(provider, "malformed")
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	ack, err := h.Processor.ProcessWebhook(r.Context(), event)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPaymentNotFound):
			h.rejectWebhook(provider, "unknown_transaction")
			writeError(w, http.StatusNotFound, "unknown transaction")
		case errors.Is(err, domain.ErrPaymentTransitionInvalid):
			// Неповторяемый бизнес-отказ: повторная доставка не поможет.
			h.rejectWebhook(provider, "invalid_transition")
			writeJSON(w, http.StatusOK, map[string]string{
				"status": "rejected",
				"reason": "invalid payment state transition",
			})
		default:
			h.Logger.WithError(err).WithFields(log.Fields{
				"provider":       provider,
				"transaction_id": event.TransactionID,
			}).Error("webhook processing failed")
			writeError(w, http.StatusServiceUnavailable, "temporary failure, retry")
		}
		return
	}

	status := "accepted"
	if ack.Duplicate {
		status = "duplicate"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"outcome": string(ack.Outcome),
	})
}

type refundReq struct {
	PaymentID   string `json:"payment_id"`
	AmountMinor int64  `json:"amount_minor,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func (h *PaymentsHandler) processRefund(w http.ResponseWriter, r *http.Request) {
	var req refundReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.PaymentID == "" {
		writeError(w, http.StatusBadRequest, "payment_id is required")
		return
	}

	refundRow, err := h.Refunds.ProcessRefund(r.Context(), req.PaymentID, req.AmountMinor, req.Reason)
	if err != nil {
		switch {
		case domain.IsNotFound(err):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, domain.ErrPaymentNotRefundable):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrRefundExceedsOriginal):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, domain.ErrGatewayUnavailable):
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":  "gateway unavailable",
				"refund": toPaymentResp(refundRow),
			})
		default:
			h.Logger.WithError(err).WithField("payment_id", req.PaymentID).Error("refund failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResp(refundRow))
}

func (h *PaymentsHandler) paymentHistory(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("order_id")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	payments, err := h.Payments.ListByOrder(r.Context(), orderID)
	if err != nil {
		h.Logger.WithError(err).WithField("order_id", orderID).Error("payment history failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	result := make([]paymentResp, 0, len(payments))
	for _, p := range payments {
		result = append(result, toPaymentResp(p))
	}
	writeJSON(w, http.StatusOK, result)
}

type confirmCommissionsReq struct {
	OrderID string `json:"order_id"`
}

// confirmCommissions — админская операция: после закрытия окна возврата по
// заказу начисления партнёра переводятся из pending в confirmed. Движок
// комиссий транзакций не открывает, поэтому вызов обёрнут в WithinTx здесь.
func (h *PaymentsHandler) confirmCommissions(w http.ResponseWriter, r *http.Request) {
	var req confirmCommissionsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	err := h.Store.WithinTx(r.Context(), func(ctx context.Context) error {
		return h.Commissions.ConfirmCommissions(ctx, req.OrderID)
	})
	if err != nil {
		h.Logger.WithError(err).WithField("order_id", req.OrderID).Error("confirm commissions failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "confirmed",
		"order_id": req.OrderID,
	})
}

func (h *PaymentsHandler) rejectWebhook(provider, reason string) {
	if h.Metrics != nil {
		h.Metrics.RecordWebhookRejected(provider, reason)
	}
}
