// Package app assembles repositories, services and infrastructure from
// configuration. The server, the worker and the seeder all start here.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	corelock "orderflow/internal/core/lock"
	"orderflow/internal/core/numerator"
	"orderflow/internal/core/tx"
	"orderflow/internal/domain/audit"
	"orderflow/internal/domain/catalogs/product"
	"orderflow/internal/domain/documents/job_order"
	"orderflow/internal/domain/documents/quotation"
	"orderflow/internal/domain/documents/sales_order"
	"orderflow/internal/domain/idempotency"
	"orderflow/internal/domain/ledger"
	"orderflow/internal/domain/notification"
	"orderflow/internal/domain/pricing"
	"orderflow/internal/domain/reconciliation"
	"orderflow/internal/domain/reports"
	"orderflow/internal/infrastructure/config"
	"orderflow/internal/infrastructure/lock"
	"orderflow/internal/infrastructure/notifier"
	"orderflow/internal/infrastructure/storage/memory"
	"orderflow/internal/infrastructure/storage/postgres"
	"orderflow/internal/infrastructure/storage/postgres/catalog_repo"
	"orderflow/internal/infrastructure/storage/postgres/document_repo"
	"orderflow/internal/infrastructure/storage/postgres/register_repo"
	pgnumerator "orderflow/pkg/numerator"
)

// Storage is one persistence backend.
type Storage struct {
	TxManager   tx.Manager
	Products    product.Repository
	Ledger      ledger.Repository
	Quotations  quotation.Repository
	SalesOrders sales_order.Repository
	JobOrders   job_order.Repository
	Numerator   numerator.Generator
	Audit       audit.Store
	Idempotency idempotency.Store

	// Outbox is set for Postgres; events then commit with the data.
	Outbox notification.Notifier

	// Postgres is nil for the memory backend.
	Postgres *postgres.TxManager

	Ping  func(ctx context.Context) error
	Close func()

	// Stats reports connection pool usage; nil for the memory backend.
	Stats func() any
}

// NewMemoryStorage returns a fresh in-process backend.
func NewMemoryStorage(cfg config.IdempotencyConfig) *Storage {
	return &Storage{
		TxManager:   memory.NewTxManager(),
		Products:    memory.NewProductRepo(),
		Ledger:      memory.NewLedgerRepo(),
		Quotations:  memory.NewQuotationRepo(),
		SalesOrders: memory.NewSalesOrderRepo(),
		JobOrders:   memory.NewJobOrderRepo(),
		Numerator:   memory.NewNumerator(),
		Audit:       memory.NewAuditStore(),
		Idempotency: memory.NewIdempotencyStore(cfg.TTL),
		Ping:        func(context.Context) error { return nil },
		Close:       func() {},
	}
}

// NewPostgresStorage connects to PostgreSQL and, when configured, migrates
// the schema first.
func NewPostgresStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg.Database.AutoMigrate {
		if err := postgres.MigrateUp(ctx, cfg.Database.DSN, cfg.Database.MigrationsDir); err != nil {
			return nil, err
		}
	}

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.DSN)
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}
	if cfg.Database.MinConns > 0 {
		poolCfg.MinConns = cfg.Database.MinConns
	}
	if cfg.Database.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	}
	if cfg.Database.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.Database.MaxConnIdleTime
	}
	poolCfg.ApplicationName = cfg.App.Name

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	txm := postgres.NewTxManager(pool)
	auditStore, err := postgres.NewAuditStore(txm)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &Storage{
		TxManager:   txm,
		Products:    catalog_repo.NewProductRepo(txm),
		Ledger:      register_repo.NewLedgerRepo(txm),
		Quotations:  document_repo.NewQuotationRepo(txm),
		SalesOrders: document_repo.NewSalesOrderRepo(txm),
		JobOrders:   document_repo.NewJobOrderRepo(txm),
		Numerator:   pgnumerator.New(txm),
		Audit:       auditStore,
		Idempotency: postgres.NewIdempotencyStore(txm, cfg.Idempotency.TTL),
		Outbox:      postgres.NewOutboxNotifier(txm),
		Postgres:    txm,
		Ping:        txm.Ping,
		Close:       pool.Close,
		Stats:       func() any { return txm.Stats() },
	}, nil
}

// OpenStorage picks the backend named by cfg.Storage.Driver.
func OpenStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return NewMemoryStorage(cfg.Idempotency), nil
	case config.DriverPostgres:
		return NewPostgresStorage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// NewRedisClient returns nil when no Redis address is configured.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// Services is the assembled domain layer.
type Services struct {
	Storage *Storage

	Products    *product.Service
	Ledger      *ledger.Service
	Aggregator  *ledger.Aggregator
	Quotations  *quotation.Service
	SalesOrders *sales_order.Service
	JobOrders   *job_order.Service
	Engine      *reconciliation.Engine
	Audit       *audit.Recorder
	Reports     *reports.Service
}

// Options are the infrastructure choices that are not part of Storage.
type Options struct {
	Locker   corelock.Locker
	Notifier notification.Notifier
	Pricing  pricing.Provider
	Ledger   reconciliation.Config
}

// NewServices wires the domain services on top of st.
func NewServices(st *Storage, opts Options) (*Services, error) {
	if opts.Locker == nil {
		opts.Locker = lock.NewLocalLocker(0)
	}
	if opts.Notifier == nil {
		opts.Notifier = notifier.LogNotifier{}
	}
	dispatcher := notification.NewDispatcher(opts.Notifier)
	recorder := audit.NewRecorder(st.Audit)

	products := product.NewService(st.Products, st.TxManager)
	prices := opts.Pricing
	if prices == nil {
		prices = pricing.NewBasePriceProvider(products)
	}

	quotations := quotation.NewService(st.Quotations, st.Numerator, st.TxManager, prices, dispatcher)
	quotations.SetConverter(sales_order.NewConverter(st.SalesOrders, st.Numerator, st.TxManager))

	orders := sales_order.NewService(st.SalesOrders, st.Numerator, st.TxManager, dispatcher)
	jobs := job_order.NewService(st.JobOrders, orders, st.Numerator, st.TxManager, opts.Locker, dispatcher)
	orders.SetProductionReader(jobs)

	ledgerSvc := ledger.NewService(st.Ledger, st.TxManager)
	aggregator := ledger.NewAggregator(st.Ledger, st.TxManager)
	products.GuardStock(aggregator.TotalOnHand)

	engine, err := reconciliation.NewEngine(st.JobOrders, ledgerSvc, st.TxManager, opts.Locker, recorder, dispatcher, opts.Ledger)
	if err != nil {
		return nil, err
	}
	jobs.SetReleaser(engine)

	return &Services{
		Storage:     st,
		Products:    products,
		Ledger:      ledgerSvc,
		Aggregator:  aggregator,
		Quotations:  quotations,
		SalesOrders: orders,
		JobOrders:   jobs,
		Engine:      engine,
		Audit:       recorder,
		Reports:     reports.NewService(st.Products, aggregator),
	}, nil
}

// Build opens storage and infrastructure per cfg and wires the services.
// The returned cleanup releases connections.
func Build(ctx context.Context, cfg *config.Config) (*Services, func(), error) {
	st, err := OpenStorage(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	rdb, err := NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	cleanup := func() {
		if rdb != nil {
			_ = rdb.Close()
		}
		st.Close()
	}

	var locker corelock.Locker
	switch cfg.Lock.Backend {
	case "redis":
		locker = lock.NewRedisLocker(rdb, lock.RedisLockerConfig{
			Prefix: cfg.Lock.Prefix,
			TTL:    cfg.Lock.TTL,
			Wait:   cfg.Lock.Wait,
		})
	default:
		locker = lock.NewLocalLocker(cfg.Lock.Wait)
	}

	var events notification.Notifier
	switch cfg.Notification.Backend {
	case "outbox":
		events = st.Outbox
	case "redis":
		events = notifier.NewRedisPublisher(rdb, cfg.Notification.ChannelPrefix)
	default:
		events = notifier.LogNotifier{}
	}

	order, err := cfg.Ledger.Locations()
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	svc, err := NewServices(st, Options{
		Locker:   locker,
		Notifier: events,
		Ledger:   reconciliation.Config{AllocationOrder: order},
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}
