package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/settlement/internal/cache/memory"
	redcache "github.com/vladislavdragonenkov/settlement/internal/cache/redis"
	"github.com/vladislavdragonenkov/settlement/internal/domain"
	"github.com/vladislavdragonenkov/settlement/internal/gateway"
	"github.com/vladislavdragonenkov/settlement/internal/health"
	"github.com/vladislavdragonenkov/settlement/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/settlement/internal/metrics"
	"github.com/vladislavdragonenkov/settlement/internal/service/commission"
	"github.com/vladislavdragonenkov/settlement/internal/service/outbox"
	"github.com/vladislavdragonenkov/settlement/internal/service/refund"
	"github.com/vladislavdragonenkov/settlement/internal/service/reservation"
	"github.com/vladislavdragonenkov/settlement/internal/service/settlement"
	memstore "github.com/vladislavdragonenkov/settlement/internal/storage/memory"
	"github.com/vladislavdragonenkov/settlement/internal/storage/postgres"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Store       domain.Store
	Orders      domain.OrderRepository
	Payments    domain.PaymentRepository
	Products    domain.ProductRepository
	Partners    domain.PartnerRepository
	Commissions domain.CommissionRepository
	OutboxRepo  domain.OutboxRepository

	Cache   domain.ReservationCache
	Gateway domain.PaymentGateway

	Verifier   *gateway.Verifier
	Normalizer *gateway.Normalizer

	Reservations     reservation.Manager
	CommissionEngine commission.Engine
	Processor        settlement.Processor
	Refunds          refund.Coordinator

	Worker  *outbox.Worker
	Janitor *outbox.Janitor

	Health  *health.Handler
	Metrics *metrics.SettlementMetrics

	Logger  *log.Entry
	closers []func() error
}

// NewDependencies собирает все зависимости по конфигурации. Пустой DSN или
// адрес переключает слой на in-memory реализацию.
// NOTE: gateway для исходящих возвратов — mock; в production он заменяется
// клиентом реального провайдера.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{Logger: logger}
	deps.Metrics = metrics.NewSettlementMetrics()
	outboxMetrics := metrics.NewOutboxMetrics()

	healthHandler := health.NewHandler(versionString())

	if cfg.PostgresDSN != "" {
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		deps.closers = append(deps.closers, store.Close)

		deps.Store = store
		deps.Orders = postgres.NewOrderRepository(store)
		deps.Payments = postgres.NewPaymentRepository(store)
		deps.Products = postgres.NewProductRepository(store)
		deps.Partners = postgres.NewPartnerRepository(store)
		deps.Commissions = postgres.NewCommissionRepository(store)
		deps.OutboxRepo = postgres.NewOutboxRepository(store)

		healthHandler.RegisterChecker("postgres", health.NewSimpleChecker("postgres", func() error {
			return store.Ping(context.Background())
		}))
		logger.Info("ledger storage: postgres")
	} else {
		store := memstore.NewStore()
		deps.Store = store
		deps.Orders = memstore.NewOrderRepository(store)
		deps.Payments = memstore.NewPaymentRepository(store)
		deps.Products = memstore.NewProductRepository(store)
		deps.Partners = memstore.NewPartnerRepository(store)
		deps.Commissions = memstore.NewCommissionRepository(store)
		deps.OutboxRepo = memstore.NewOutboxRepository(store)
		logger.Info("ledger storage: in-memory")
	}

	if cfg.RedisAddr != "" {
		cache := redcache.New(cfg.RedisAddr)
		if err := cache.Ping(ctx); err != nil {
			logger.WithError(err).Warn("redis is not reachable at startup")
		}
		deps.closers = append(deps.closers, cache.Close)
		deps.Cache = cache

		healthHandler.RegisterChecker("redis", health.NewSimpleChecker("redis", func() error {
			return cache.Ping(context.Background())
		}))
		logger.Info("reservation cache: redis")
	} else {
		deps.Cache = memory.NewReservationCache()
		logger.Info("reservation cache: in-memory")
	}

	healthHandler.RegisterChecker("outbox", health.NewOutboxChecker(deps.OutboxRepo, 0, 0))
	deps.Health = healthHandler

	deps.Verifier = gateway.NewVerifier(cfg.WebhookSecrets)
	deps.Normalizer = gateway.NewNormalizer()
	deps.Gateway = gateway.NewMockGateway()

	deps.Reservations = reservation.NewManager(
		deps.Store, deps.Products, deps.Cache, deps.Metrics,
		logger.WithField("component", "reservation"),
	)
	deps.CommissionEngine = commission.NewEngine(
		deps.Partners, deps.Products, deps.Commissions, deps.Metrics,
		logger.WithField("component", "commission"),
	)
	deps.Processor = settlement.NewProcessor(
		deps.Store, deps.Orders, deps.Payments, deps.OutboxRepo,
		deps.Reservations, deps.CommissionEngine, deps.Metrics,
		logger.WithField("component", "settlement"),
	)
	deps.Refunds = refund.NewCoordinator(
		deps.Store, deps.Orders, deps.Payments, deps.Products, deps.OutboxRepo,
		deps.CommissionEngine, deps.Gateway, deps.Metrics,
		logger.WithField("component", "refund"),
	)

	var publisher, dlqPublisher domain.OutboxPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		} else {
			deps.closers = append(deps.closers, producer.Close)
			publisher = kafka.NewOutboxPublisher(producer, kafka.TopicPaymentEvents)
			dlqPublisher = kafka.NewOutboxPublisher(producer, kafka.TopicDLQ)
			logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
		}
	}

	deps.Worker = outbox.NewWorker(deps.OutboxRepo, publisher,
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(outboxMetrics),
		outbox.WithDLQPublisher(dlqPublisher),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
	)
	deps.Worker.RegisterHandler(kafka.TaskReservationConfirm, reservation.ConfirmTaskHandler(
		deps.Reservations, logger.WithField("component", "reservation"),
	))

	deps.Janitor = outbox.NewJanitor(deps.OutboxRepo,
		outbox.WithJanitorLogger(logger.WithField("component", "outbox-janitor")),
		outbox.WithJanitorMetrics(outboxMetrics),
		outbox.WithRetention(cfg.OutboxRetention),
	)

	return deps, nil
}

// Close освобождает внешние ресурсы в обратном порядке создания.
func (d *Dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.Logger.WithError(err).Warn("failed to close dependency")
		}
	}
}
