package outbox

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
	"github.com/vladislavdragonenkov/settlement/internal/metrics"
)

const (
	defaultSweepInterval  = 10 * time.Minute
	defaultSweepBatchSize = 500
	defaultRetention      = 24 * time.Hour
)

// JanitorOptions задаёт параметры retention-джанитора outbox.
type JanitorOptions struct {
	Logger    *log.Entry
	Metrics   *metrics.OutboxMetrics
	Interval  time.Duration
	BatchSize int
	Retention time.Duration
}

// JanitorOption настраивает Janitor.
type JanitorOption func(*JanitorOptions)

// WithJanitorLogger задаёт logger для джанитора.
func WithJanitorLogger(logger *log.Entry) JanitorOption {
	return func(opts *JanitorOptions) {
		opts.Logger = logger
	}
}

// WithJanitorMetrics задаёт метрики джанитора.
func WithJanitorMetrics(m *metrics.OutboxMetrics) JanitorOption {
	return func(opts *JanitorOptions) {
		opts.Metrics = m
	}
}

// WithSweepInterval задаёт интервал между sweep-циклами.
func WithSweepInterval(interval time.Duration) JanitorOption {
	return func(opts *JanitorOptions) {
		opts.Interval = interval
	}
}

// WithSweepBatchSize задаёт размер batch одного удаления.
func WithSweepBatchSize(batchSize int) JanitorOption {
	return func(opts *JanitorOptions) {
		opts.BatchSize = batchSize
	}
}

// WithRetention задаёт срок хранения отправленных записей.
func WithRetention(retention time.Duration) JanitorOption {
	return func(opts *JanitorOptions) {
		opts.Retention = retention
	}
}

// Janitor периодически удаляет отправленные outbox-записи старше retention.
type Janitor struct {
	repo      domain.OutboxRepository
	logger    *log.Entry
	metrics   *metrics.OutboxMetrics
	interval  time.Duration
	batchSize int
	retention time.Duration
}

// NewJanitor создаёт retention-джанитор outbox.
func NewJanitor(repo domain.OutboxRepository, options ...JanitorOption) *Janitor {
	opts := JanitorOptions{
		Interval:  defaultSweepInterval,
		BatchSize: defaultSweepBatchSize,
		Retention: defaultRetention,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-janitor")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultSweepInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultSweepBatchSize
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}

	return &Janitor{
		repo:      repo,
		logger:    logger,
		metrics:   opts.Metrics,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		retention: opts.Retention,
	}
}

// Run запускает периодический sweep до отмены ctx.
func (j *Janitor) Run(ctx context.Context) {
	if j.repo == nil {
		j.logger.Warn("outbox janitor is disabled: repo is nil")
		return
	}

	j.sweep(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	deleted, err := j.SweepOnce(ctx, time.Now().UTC().Add(-j.retention))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		j.logger.WithError(err).Warn("outbox sweep failed")
		return
	}

	if deleted > 0 {
		if j.metrics != nil {
			j.metrics.RecordSwept(deleted)
		}
		j.logger.WithField("deleted", deleted).Info("outbox sweep completed")
	}
}

// SweepOnce удаляет все отправленные записи старше before порциями batchSize.
func (j *Janitor) SweepOnce(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC().Add(-j.retention)
	}

	totalDeleted := 0
	for {
		if err := ctx.Err(); err != nil {
			return totalDeleted, err
		}

		deleted, err := j.repo.DeleteSentBefore(ctx, before, j.batchSize)
		if err != nil {
			return totalDeleted, err
		}

		totalDeleted += deleted
		if deleted < j.batchSize {
			break
		}
	}

	return totalDeleted, nil
}
