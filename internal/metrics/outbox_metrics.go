package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics содержит метрики transactional outbox и его воркера.
type OutboxMetrics struct {
	published     prometheus.Counter
	publishFailed prometheus.Counter
	tasksHandled  *prometheus.CounterVec
	deadLettered  prometheus.Counter
	swept         prometheus.Counter

	pendingBacklog   prometheus.Gauge
	oldestPendingAge prometheus.Gauge
}

// NewOutboxMetrics создаёт новый экземпляр метрик outbox.
func NewOutboxMetrics() *OutboxMetrics {
	return newOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newOutboxMetricsWithRegisterer(registerer prometheus.Registerer) *OutboxMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OutboxMetrics{
		published: registerCounter(registerer, prometheus.CounterOpts{
			Name: "settlement_outbox_published_total",
			Help: "Total number of outbox events published to the broker",
		}),
		publishFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "settlement_outbox_publish_failed_total",
			Help: "Total number of outbox publish attempts that failed",
		}),
		tasksHandled: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "settlement_outbox_tasks_handled_total",
			Help: "Total number of outbox tasks dispatched to handlers",
		}, []string{"task", "result"}),
		deadLettered: registerCounter(registerer, prometheus.CounterOpts{
			Name: "settlement_outbox_dead_lettered_total",
			Help: "Total number of outbox messages routed to the DLQ",
		}),
		swept: registerCounter(registerer, prometheus.CounterOpts{
			Name: "settlement_outbox_swept_total",
			Help: "Total number of sent outbox rows removed by the retention janitor",
		}),
		pendingBacklog: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "settlement_outbox_pending",
			Help: "Current number of pending outbox messages",
		}),
		oldestPendingAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "settlement_outbox_oldest_pending_age_seconds",
			Help: "Age of the oldest pending outbox message in seconds",
		}),
	}
}

// RecordPublished увеличивает счётчик опубликованных событий.
func (m *OutboxMetrics) RecordPublished() {
	m.published.Inc()
}

// RecordPublishFailed увеличивает счётчик неудачных публикаций.
func (m *OutboxMetrics) RecordPublishFailed() {
	m.publishFailed.Inc()
}

// RecordTaskHandled отмечает результат выполнения task-сообщения.
func (m *OutboxMetrics) RecordTaskHandled(task, result string) {
	m.tasksHandled.WithLabelValues(task, result).Inc()
}

// RecordDeadLettered увеличивает счётчик сообщений, ушедших в DLQ.
func (m *OutboxMetrics) RecordDeadLettered() {
	m.deadLettered.Inc()
}

// RecordSwept учитывает количество удалённых retention-джанитором записей.
func (m *OutboxMetrics) RecordSwept(count int) {
	m.swept.Add(float64(count))
}

// SetBacklog выставляет текущий размер pending-бэклога и возраст старейшей записи.
func (m *OutboxMetrics) SetBacklog(pendingCount int, oldestPendingAt time.Time) {
	m.pendingBacklog.Set(float64(pendingCount))
	if oldestPendingAt.IsZero() {
		m.oldestPendingAge.Set(0)
		return
	}
	m.oldestPendingAge.Set(time.Since(oldestPendingAt).Seconds())
}
