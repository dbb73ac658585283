package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/cache"
	"github.com/vladislavdragonenkov/pdv/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/pdv/internal/health"
	"github.com/vladislavdragonenkov/pdv/internal/service/installment"
	"github.com/vladislavdragonenkov/pdv/internal/service/sale"
	"github.com/vladislavdragonenkov/pdv/internal/service/stock"
	"github.com/vladislavdragonenkov/pdv/internal/storage/memory"
	"github.com/vladislavdragonenkov/pdv/internal/storage/postgres"
)

const redisPingTimeout = 2 * time.Second

// runtimeDependencies: порты сервиса продаж и ресурсы, которые нужно закрыть.
type runtimeDependencies struct {
	sale   sale.Dependencies
	outbox domain.OutboxRepository

	checkers map[string]healthcheck.Checker
	closers  []func() error
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.WithError(err).Warn("failed to release runtime dependency")
		}
	}
	d.closers = nil
}

// initRuntimeDependencies собирает хранилище по StorageDriver и при наличии
// redis оборачивает справочники кэшем.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	var (
		deps *runtimeDependencies
		err  error
	)

	switch cfg.StorageDriver {
	case StorageDriverMemory:
		deps, err = initMemoryDependencies(cfg, logger)
	case StorageDriverPostgres:
		deps, err = initPostgresDependencies(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RedisAddr != "" {
		attachCatalogCache(ctx, deps, cfg, logger)
	}
	return deps, nil
}

func initMemoryDependencies(cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	methods, titles, err := seedMemoryCatalogs()
	if err != nil {
		return nil, err
	}

	users := memory.NewUserDirectory()
	if cfg.SeedOperator != "" {
		users.Put(domain.User{ID: "user-" + cfg.SeedOperator, Username: cfg.SeedOperator, Name: cfg.SeedOperator})
	}

	items := memory.NewSaleItemRepository()
	outbox := memory.NewOutboxRepository()

	logger.WithField("storage", StorageDriverMemory).Info("runtime storage initialized")

	return &runtimeDependencies{
		sale: sale.Dependencies{
			Sales:          memory.NewSaleRepository(),
			Items:          items,
			PaymentMethods: methods,
			Titles:         titles,
			Registers:      memory.NewRegisterSessions(),
			Receivables:    memory.NewReceivableLedger(),
			Installments:   installment.NewGenerator(memory.NewInstallmentRepository(), logger.WithField("component", "installments")),
			Cash:           memory.NewCashLedger(),
			Card:           memory.NewCardLedger(),
			Stock:          stock.NewMover(items, memory.NewStockMovementRepository(), logger.WithField("component", "stock")),
			Users:          users,
			Tx:             memory.NewTxManager(),
			Outbox:         outbox,
		},
		outbox:   outbox,
		checkers: map[string]healthcheck.Checker{},
	}, nil
}

// seedMemoryCatalogs заполняет справочники базовыми способами оплаты и титулами.
func seedMemoryCatalogs() (*memory.PaymentMethodCatalog, *memory.TitleCatalog, error) {
	seeds := []struct{ id, name, code string }{
		{"cash", "Cash", "00"},
		{"card-debit", "Debit card", "CARD_DEBIT"},
		{"card-credit", "Credit card", "CARD_CREDIT"},
		{"term-30-60", "30/60 days", "30/60"},
	}

	methods := memory.NewPaymentMethodCatalog()
	for _, s := range seeds {
		method, err := domain.NewPaymentMethod(s.id, s.name, s.code)
		if err != nil {
			return nil, nil, fmt.Errorf("seed payment method %s: %w", s.id, err)
		}
		methods.Put(method)
	}

	titles := memory.NewTitleCatalog(
		domain.Title{ID: "din", Name: "Dinheiro", Type: domain.TitleTypeCash},
		domain.Title{ID: "cartdeb", Name: "Debit card", Type: domain.TitleTypeCardDebit},
		domain.Title{ID: "cartcred", Name: "Credit card", Type: domain.TitleTypeCardCredit},
	)
	return methods, titles, nil
}

func initPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if cfg.PostgresDSN == "" {
		return nil, errors.New("postgres dsn is required for postgres storage driver")
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}

	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply postgres migrations: %w", err)
		}
		logger.Info("postgres migrations applied")
	}

	items := postgres.NewSaleItemRepository(store)
	outbox := postgres.NewOutboxRepository(store)

	logger.WithField("storage", StorageDriverPostgres).Info("runtime storage initialized")

	return &runtimeDependencies{
		sale: sale.Dependencies{
			Sales:          postgres.NewSaleRepository(store),
			Items:          items,
			PaymentMethods: postgres.NewPaymentMethodCatalog(store),
			Titles:         postgres.NewTitleCatalog(store),
			Registers:      postgres.NewRegisterSessions(store),
			Receivables:    postgres.NewReceivableLedger(store),
			Installments:   installment.NewGenerator(postgres.NewInstallmentRepository(store), logger.WithField("component", "installments")),
			Cash:           postgres.NewCashLedger(store),
			Card:           postgres.NewCardLedger(store),
			Stock:          stock.NewMover(items, postgres.NewStockMovementRepository(store), logger.WithField("component", "stock")),
			Users:          postgres.NewUserDirectory(store),
			Tx:             postgres.NewTxManager(store),
			Outbox:         outbox,
		},
		outbox: outbox,
		checkers: map[string]healthcheck.Checker{
			"postgres": healthcheck.NewPingChecker("postgres", store.Ping),
		},
		closers: []func() error{store.Close},
	}, nil
}

// attachCatalogCache подключает redis-кэш справочников. Недоступный redis
// не мешает старту: сервис работает напрямую с хранилищем.
func attachCatalogCache(ctx context.Context, deps *runtimeDependencies, cfg Config, logger *log.Entry) {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.WithError(err).WithField("redis_addr", cfg.RedisAddr).Warn("redis unavailable, catalog cache disabled")
		_ = client.Close()
		return
	}

	cacheLogger := logger.WithField("component", "catalog-cache")
	deps.sale.PaymentMethods = cache.NewPaymentMethodCatalog(deps.sale.PaymentMethods, client, cfg.CatalogCacheTTL, cacheLogger)
	deps.sale.Titles = cache.NewTitleCatalog(deps.sale.Titles, client, cfg.CatalogCacheTTL, cacheLogger)
	deps.checkers["redis"] = healthcheck.NewOptionalPingChecker("redis", cache.Ping(client))
	deps.closers = append(deps.closers, client.Close)

	logger.WithField("redis_addr", cfg.RedisAddr).Info("catalog cache enabled")
}
