package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop-orders/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/shop-orders/internal/health"
	"github.com/vladislavdragonenkov/shop-orders/internal/storage/memory"
	"github.com/vladislavdragonenkov/shop-orders/internal/storage/postgres"
	"github.com/vladislavdragonenkov/shop-orders/internal/storage/redisstore"
)

// runtimeDependencies собирает хранилища, выбранные по конфигурации.
type runtimeDependencies struct {
	products        domain.ProductStore
	repo            domain.OrderStore
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository
	// idempotencyJanitor равен nil, когда ключи истекают сами (Redis).
	idempotencyJanitor domain.IdempotencyJanitor

	storageChecker     healthcheck.Checker
	idempotencyChecker healthcheck.Checker

	pgStore *postgres.Store
	closers []func() error
}

// closeFn закрывает подключения в обратном порядке открытия.
func (d *runtimeDependencies) closeFn() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// productSeeder записывает товар начального каталога.
type productSeeder func(ctx context.Context, product domain.Product) error

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{}
	var seed productSeeder

	switch strings.ToLower(strings.TrimSpace(cfg.StorageDriver)) {
	case "", StorageDriverMemory:
		products := memory.NewProductStore()
		deps.products = products
		deps.repo = memory.NewOrderStore()
		deps.outboxRepo = memory.NewOutboxRepository()
		deps.timelineRepo = memory.NewTimelineRepository()
		deps.storageChecker = healthcheck.NewSimpleChecker("storage", func() error { return nil })
		seed = func(_ context.Context, product domain.Product) error {
			products.Upsert(product)
			return nil
		}
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		dsn := strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			return nil, errors.New("postgres storage driver requires postgres dsn")
		}
		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		deps.pgStore = store
		deps.closers = append(deps.closers, store.Close)
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = deps.closeFn()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}
		products := postgres.NewProductRepository(store)
		deps.products = products
		deps.repo = postgres.NewOrderRepository(store)
		deps.outboxRepo = postgres.NewOutboxRepository(store)
		deps.timelineRepo = postgres.NewTimelineRepository(store)
		deps.storageChecker = healthcheck.NewPingChecker("postgres", store.Ping)
		seed = products.Upsert
		logger.Info("using postgres storage")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if err := initIdempotency(ctx, cfg, deps, logger); err != nil {
		_ = deps.closeFn()
		return nil, err
	}

	if path := strings.TrimSpace(cfg.SeedProductsFile); path != "" {
		n, err := seedProducts(ctx, path, seed)
		if err != nil {
			_ = deps.closeFn()
			return nil, err
		}
		logger.WithFields(log.Fields{"file": path, "products": n}).Info("product catalog seeded")
	}

	return deps, nil
}

func initIdempotency(ctx context.Context, cfg Config, deps *runtimeDependencies, logger *log.Entry) error {
	driver := strings.ToLower(strings.TrimSpace(cfg.IdempotencyDriver))
	if driver == "" {
		driver = IdempotencyDriverMemory
		if deps.pgStore != nil {
			driver = IdempotencyDriverPostgres
		}
	}

	switch driver {
	case IdempotencyDriverMemory:
		repo := memory.NewIdempotencyRepository()
		deps.idempotencyRepo = repo
		deps.idempotencyJanitor = repo
	case IdempotencyDriverPostgres:
		if deps.pgStore == nil {
			return errors.New("postgres idempotency driver requires postgres storage driver")
		}
		repo := postgres.NewIdempotencyRepository(deps.pgStore)
		deps.idempotencyRepo = repo
		deps.idempotencyJanitor = repo
	case IdempotencyDriverRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		repo := redisstore.NewIdempotencyRepository(client)
		if err := repo.Ping(ctx); err != nil {
			_ = client.Close()
			return fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		deps.closers = append(deps.closers, client.Close)
		deps.idempotencyRepo = repo
		deps.idempotencyChecker = healthcheck.NewPingChecker("redis", repo.Ping)
		logger.WithField("addr", cfg.RedisAddr).Info("idempotency keys stored in redis")
	default:
		return fmt.Errorf("unsupported idempotency driver %q", cfg.IdempotencyDriver)
	}
	return nil
}

// seedProduct соответствует одной записи файла начального каталога.
type seedProduct struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Image    string          `json:"image"`
	Quantity int             `json:"quantity"`
}

// LoadProductSeed читает JSON-файл начального каталога.
func LoadProductSeed(path string) ([]domain.Product, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read product seed: %w", err)
	}
	var items []seedProduct
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode product seed %s: %w", path, err)
	}

	products := make([]domain.Product, 0, len(items))
	for i, item := range items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			return nil, fmt.Errorf("product seed %s: item %d has no id", path, i)
		}
		if item.Quantity < 0 || item.Price.IsNegative() {
			return nil, fmt.Errorf("product seed %s: product %s has negative price or quantity", path, id)
		}
		products = append(products, domain.Product{
			ID:       id,
			Name:     item.Name,
			Price:    item.Price,
			Image:    item.Image,
			Quantity: item.Quantity,
		})
	}
	return products, nil
}

func seedProducts(ctx context.Context, path string, seed productSeeder) (int, error) {
	products, err := LoadProductSeed(path)
	if err != nil {
		return 0, err
	}
	for _, product := range products {
		if err := seed(ctx, product); err != nil {
			return 0, fmt.Errorf("seed product %s: %w", product.ID, err)
		}
	}
	return len(products), nil
}
