package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/vladislavdragonenkov/shop-orders/internal/app"
)

const envPrefix = "OMS_"

const (
	envConfigFile = "OMS_CONFIG_FILE"

	envHTTPAddr    = "OMS_HTTP_ADDR"
	envGRPCAddr    = "OMS_GRPC_ADDR"
	envMetricsAddr = "OMS_METRICS_ADDR"

	envStorageDriver       = "OMS_STORAGE_DRIVER"
	envPostgresDSN         = "OMS_POSTGRES_DSN"
	envPostgresAutoMigrate = "OMS_POSTGRES_AUTO_MIGRATE"
	envSeedProductsFile    = "OMS_SEED_PRODUCTS_FILE"

	envJWTSecret               = "OMS_JWT_SECRET"
	envRequestTimeout          = "OMS_REQUEST_TIMEOUT"
	envStrictStatusTransitions = "OMS_STRICT_STATUS_TRANSITIONS"

	envKafkaBrokers      = "OMS_KAFKA_BROKERS"
	envKafkaRestockGroup = "OMS_KAFKA_RESTOCK_GROUP"

	envOutboxPollInterval = "OMS_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize    = "OMS_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts  = "OMS_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay   = "OMS_OUTBOX_RETRY_DELAY"

	envIdempotencyDriver           = "OMS_IDEMPOTENCY_DRIVER"
	envRedisAddr                   = "OMS_REDIS_ADDR"
	envIdempotencyTTL              = "OMS_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "OMS_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "OMS_IDEMPOTENCY_CLEANUP_BATCH_SIZE"

	envLogLevel  = "OMS_LOG_LEVEL"
	envLogFormat = "OMS_LOG_FORMAT"
	envLogFile   = "OMS_LOG_FILE"
)

type envLookup func(string) (string, bool)

// osEnvLookup читает переменные окружения с префиксом OMS_.
func osEnvLookup() (envLookup, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	return func(key string) (string, bool) {
		if !k.Exists(key) {
			return "", false
		}
		return k.String(key), true
	}, nil
}

// loadConfig собирает конфигурацию: значения по умолчанию, затем YAML-файл из OMS_CONFIG_FILE,
// затем переменные окружения.
func loadConfig(lookup envLookup) (app.Config, []string, error) {
	cfg := app.DefaultConfig()
	if path, ok := lookupTrimmed(lookup, envConfigFile); ok {
		if err := loadConfigFile(path, &cfg); err != nil {
			return app.Config{}, nil, err
		}
	}
	cfg, warnings := applyEnv(cfg, lookup)
	return cfg, warnings, nil
}

func loadConfigFile(path string, cfg *app.Config) error {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("load config file %s: %w", path, err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	return nil
}

// readConfigFromEnv накладывает переменные окружения на конфигурацию по умолчанию.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	return applyEnv(app.DefaultConfig(), lookup)
}

// applyEnv переопределяет поля cfg. Некорректное значение не применяется и попадает в warnings.
func applyEnv(cfg app.Config, lookup envLookup) (app.Config, []string) {
	var warnings []string
	warn := func(key, raw string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, raw, err))
	}

	setString := func(key string, dst *string, normalize func(string) string) {
		if v, ok := lookupTrimmed(lookup, key); ok {
			if normalize != nil {
				v = normalize(v)
			}
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := lookupTrimmed(lookup, key); ok {
			parsed, err := parseBool(v)
			if err != nil {
				warn(key, v, err)
				return
			}
			*dst = parsed
		}
	}
	setInt := func(key string, dst *int, validate func(int) bool, msg string) {
		if v, ok := lookupTrimmed(lookup, key); ok {
			parsed, err := parseInt(v, validate, msg)
			if err != nil {
				warn(key, v, err)
				return
			}
			*dst = parsed
		}
	}
	setDuration := func(key string, dst *time.Duration, validate func(time.Duration) bool, msg string) {
		if v, ok := lookupTrimmed(lookup, key); ok {
			parsed, err := parseDuration(v, validate, msg)
			if err != nil {
				warn(key, v, err)
				return
			}
			*dst = parsed
		}
	}

	positive := func(v int) bool { return v > 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	setString(envHTTPAddr, &cfg.HTTPAddr, nil)
	setString(envGRPCAddr, &cfg.GRPCAddr, nil)
	setString(envMetricsAddr, &cfg.MetricsAddr, nil)

	setString(envStorageDriver, &cfg.StorageDriver, strings.ToLower)
	setString(envPostgresDSN, &cfg.PostgresDSN, nil)
	setBool(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	setString(envSeedProductsFile, &cfg.SeedProductsFile, nil)

	setString(envJWTSecret, &cfg.JWTSecret, nil)
	setDuration(envRequestTimeout, &cfg.RequestTimeout, positiveDuration, "must be > 0")
	setBool(envStrictStatusTransitions, &cfg.StrictStatusTransitions)

	setString(envKafkaBrokers, &cfg.KafkaBrokers, nil)
	setString(envKafkaRestockGroup, &cfg.KafkaRestockGroup, nil)

	setDuration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	setInt(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	setInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	setDuration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")

	setString(envIdempotencyDriver, &cfg.IdempotencyDriver, strings.ToLower)
	setString(envRedisAddr, &cfg.RedisAddr, nil)
	setDuration(envIdempotencyTTL, &cfg.IdempotencyTTL, positiveDuration, "must be > 0")
	setDuration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	setInt(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positive, "must be > 0")

	setString(envLogLevel, &cfg.LogLevel, strings.ToLower)
	setString(envLogFormat, &cfg.LogFormat, strings.ToLower)
	setString(envLogFile, &cfg.LogFile, nil)

	return cfg, warnings
}

func lookupTrimmed(lookup envLookup, key string) (string, bool) {
	if lookup == nil {
		return "", false
	}
	v, ok := lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "0", "f", "false", "n", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, validate func(int) bool, msg string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	if validate != nil && !validate(v) {
		return 0, fmt.Errorf("%d %s", v, msg)
	}
	return v, nil
}

func parseDuration(raw string, validate func(time.Duration) bool, msg string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if validate != nil && !validate(v) {
		return 0, fmt.Errorf("%s %s", v, msg)
	}
	return v, nil
}
