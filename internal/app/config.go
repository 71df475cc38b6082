package app

import "time"

// Драйверы хранилища заказов и каталога.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Драйверы хранилища ключей идемпотентности.
const (
	IdempotencyDriverMemory   = "memory"
	IdempotencyDriverPostgres = "postgres"
	IdempotencyDriverRedis    = "redis"
)

// Config описывает настройки запуска сервиса заказов.
type Config struct {
	HTTPAddr    string `koanf:"http_addr"`
	GRPCAddr    string `koanf:"grpc_addr"`
	MetricsAddr string `koanf:"metrics_addr"`

	StorageDriver       string `koanf:"storage_driver"`
	PostgresDSN         string `koanf:"postgres_dsn"`
	PostgresAutoMigrate bool   `koanf:"postgres_auto_migrate"`
	SeedProductsFile    string `koanf:"seed_products_file"`

	JWTSecret               string        `koanf:"jwt_secret"`
	RequestTimeout          time.Duration `koanf:"request_timeout"`
	StrictStatusTransitions bool          `koanf:"strict_status_transitions"`

	// Брокеры через запятую. Пустая строка отключает Kafka.
	KafkaBrokers      string `koanf:"kafka_brokers"`
	KafkaRestockGroup string `koanf:"kafka_restock_group"`

	OutboxPollInterval time.Duration `koanf:"outbox_poll_interval"`
	OutboxBatchSize    int           `koanf:"outbox_batch_size"`
	OutboxMaxAttempts  int           `koanf:"outbox_max_attempts"`
	OutboxRetryDelay   time.Duration `koanf:"outbox_retry_delay"`

	// Если IdempotencyDriver пустой, ключи хранятся там же, где заказы.
	IdempotencyDriver           string        `koanf:"idempotency_driver"`
	RedisAddr                   string        `koanf:"redis_addr"`
	IdempotencyTTL              time.Duration `koanf:"idempotency_ttl"`
	IdempotencyCleanupInterval  time.Duration `koanf:"idempotency_cleanup_interval"`
	IdempotencyCleanupBatchSize int           `koanf:"idempotency_cleanup_batch_size"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
	LogFile   string `koanf:"log_file"`
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		RequestTimeout: 5 * time.Second,

		KafkaRestockGroup: "shop-orders-restock",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,

		RedisAddr:                   "localhost:6379",
		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,

		LogLevel:  "info",
		LogFormat: "text",
	}
}
