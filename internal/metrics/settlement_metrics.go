package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics содержит метрики конвейера обработки платежей.
type SettlementMetrics struct {
	// Счётчики webhook по провайдерам
	webhooksAccepted   *prometheus.CounterVec
	webhooksDuplicate  *prometheus.CounterVec
	webhooksRejected   *prometheus.CounterVec
	webhookDuration    prometheus.Histogram

	// Итоги платежей
	paymentsCompleted prometheus.Counter
	paymentsFailed    prometheus.Counter

	// Возвраты
	refundsStarted   prometheus.Counter
	refundsCompleted prometheus.Counter
	refundsFailed    prometheus.Counter

	// Комиссии
	commissionsCreated   prometheus.Counter
	commissionsCancelled prometheus.Counter

	// Резервы
	reservationsPlaced    prometheus.Counter
	reservationsRejected  prometheus.Counter
	reservationsConfirmed prometheus.Counter
	reservationsReleased  prometheus.Counter
}

// NewSettlementMetrics создаёт новый экземпляр метрик конвейера.
func NewSettlementMetrics() *SettlementMetrics {
	return newSettlementMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newSettlementMetricsWithRegisterer(registerer prometheus.Registerer) *SettlementMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SettlementMetrics{
		webhooksAccepted: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "settlement_webhooks_accepted_total",
			Help: "Total number of webhook notifications applied to a payment",
		}, []string{"provider"}),
		webhooksDuplicate: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "settlement_webhooks_duplicate_total",
			Help: "Total number of duplicate webhook notifications acknowledged",
		}, []string{"provider"}),
		webhooksRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "settlement_webhooks_rejected_total",
			Help: "Total number of webhook notifications rejected before processing",
		}, []string{"provider", "reason"}),
		webhookDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "settlement_webhook_duration_seconds",
			Help:    "Duration of webhook processing in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		paymentsCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "settlement_payments_completed_total",
			Help: "Total number of payments settled successfully",
		}),
		paymentsFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "settlement_payments_failed_total",
			Help: "Total number of payments settled as failed",
		}),
		refundsStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "settlement_refunds_started_total",
			Help: "Total number of refund requests accepted",
		}),
		refundsCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "settlement_refunds_completed_total",
			Help: "Total number of refunds confirmed by the gateway",
		}),
		refundsFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "settlement_refunds_failed_total",
			Help: "Total number of refunds declined or failed",
		}),
		commissionsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "settlement_commissions_created_total",
			Help: "Total number of partner commissions accrued",
		}),
		commissionsCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "settlement_commissions_cancelled_total",
			Help: "Total number of partner commissions cancelled",
		}),
		reservationsPlaced: registerCounter(registerer, prometheus.CounterOpts{
			Name: "settlement_reservations_placed_total",
			Help: "Total number of inventory holds placed",
		}),
		reservationsRejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "settlement_reservations_rejected_total",
			Help: "Total number of inventory holds rejected for lack of stock",
		}),
		reservationsConfirmed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "settlement_reservations_confirmed_total",
			Help: "Total number of inventory holds converted to durable stock decrements",
		}),
		reservationsReleased: registerCounter(registerer, prometheus.CounterOpts{
			Name: "settlement_reservations_released_total",
			Help: "Total number of inventory holds released without confirmation",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordWebhookAccepted увеличивает счётчик применённых уведомлений.
func (m *SettlementMetrics) RecordWebhookAccepted(provider string) {
	m.webhooksAccepted.WithLabelValues(provider).Inc()
}

// RecordWebhookDuplicate увеличивает счётчик дублей.
func (m *SettlementMetrics) RecordWebhookDuplicate(provider string) {
	m.webhooksDuplicate.WithLabelValues(provider).Inc()
}

// RecordWebhookRejected увеличивает счётчик отклонённых уведомлений.
func (m *SettlementMetrics) RecordWebhookRejected(provider, reason string) {
	m.webhooksRejected.WithLabelValues(provider, reason).Inc()
}

// RecordWebhookDuration записывает время обработки уведомления.
func (m *SettlementMetrics) RecordWebhookDuration(duration time.Duration) {
	m.webhookDuration.Observe(duration.Seconds())
}

// RecordPaymentCompleted увеличивает счётчик успешных платежей.
func (m *SettlementMetrics) RecordPaymentCompleted() {
	m.paymentsCompleted.Inc()
}

// RecordPaymentFailed увеличивает счётчик неуспешных платежей.
func (m *SettlementMetrics) RecordPaymentFailed() {
	m.paymentsFailed.Inc()
}

// RecordRefundStarted увеличивает счётчик принятых возвратов.
func (m *SettlementMetrics) RecordRefundStarted() {
	m.refundsStarted.Inc()
}

// RecordRefundCompleted увеличивает счётчик подтверждённых возвратов.
func (m *SettlementMetrics) RecordRefundCompleted() {
	m.refundsCompleted.Inc()
}

// RecordRefundFailed увеличивает счётчик отклонённых возвратов.
func (m *SettlementMetrics) RecordRefundFailed() {
	m.refundsFailed.Inc()
}

// RecordCommissionCreated увеличивает счётчик начисленных комиссий.
func (m *SettlementMetrics) RecordCommissionCreated() {
	m.commissionsCreated.Inc()
}

// RecordCommissionCancelled увеличивает счётчик аннулированных комиссий.
func (m *SettlementMetrics) RecordCommissionCancelled() {
	m.commissionsCancelled.Inc()
}

// RecordReservationPlaced увеличивает счётчик поставленных холдов.
func (m *SettlementMetrics) RecordReservationPlaced() {
	m.reservationsPlaced.Inc()
}

// RecordReservationRejected увеличивает счётчик отказов из-за нехватки стока.
func (m *SettlementMetrics) RecordReservationRejected() {
	m.reservationsRejected.Inc()
}

// RecordReservationConfirmed увеличивает счётчик подтверждённых резервов.
func (m *SettlementMetrics) RecordReservationConfirmed() {
	m.reservationsConfirmed.Inc()
}

// RecordReservationReleased увеличивает счётчик снятых холдов.
func (m *SettlementMetrics) RecordReservationReleased() {
	m.reservationsReleased.Inc()
}
