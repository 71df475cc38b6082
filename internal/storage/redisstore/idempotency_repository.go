// Package redisstore хранит ключи идемпотентности в Redis. Срок жизни ключа задаётся TTL самого Redis,
// поэтому фоновая очистка не нужна.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/shop-orders/internal/domain"
)

const keyPrefix = "shop:idemp:"

// reserveFailed заменяет значение ключа, только если оно не изменилось с момента чтения.
var reserveFailed = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
end
return false
`)

// storedRecord сериализуется в значение ключа Redis.
type storedRecord struct {
	RequestHash  string                   `json:"request_hash"`
	ResponseBody []byte                   `json:"response_body,omitempty"`
	HTTPStatus   int                      `json:"http_status,omitempty"`
	Status       domain.IdempotencyStatus `json:"status"`
	TTLAt        time.Time                `json:"ttl_at"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

// IdempotencyRepository реализует domain.IdempotencyRepository на Redis.
type IdempotencyRepository struct {
	rdb redis.Cmdable
	now func() time.Time
}

// NewIdempotencyRepository создаёт хранилище поверх клиента Redis.
func NewIdempotencyRepository(rdb redis.Cmdable) *IdempotencyRepository {
	return &IdempotencyRepository{
		rdb: rdb,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// CreateProcessing атомарно резервирует ключ через SET NX.
func (r *IdempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := r.now()
	if ttlAt.IsZero() {
		ttlAt = now.Add(domain.DefaultIdempotencyTTL)
	}
	ttl := ttlAt.Sub(now)
	if ttl <= 0 {
		return domain.IdempotencyRecord{}, fmt.Errorf("%w: idempotency ttl is in the past", domain.ErrValidation)
	}

	record := storedRecord{
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("marshal idempotency record: %w", err)
	}

	created, err := r.rdb.SetNX(ctx, keyPrefix+key, data, ttl).Result()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("%w: redis setnx: %v", domain.ErrStorage, err)
	}
	if created {
		return toDomain(key, record), nil
	}

	raw, stored, err := r.loadRaw(ctx, key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	existing := toDomain(key, stored)
	if existing.RequestHash != requestHash {
		return existing, domain.ErrIdempotencyHashMismatch
	}
	if existing.Status != domain.IdempotencyStatusFailed {
		return existing, domain.ErrIdempotencyKeyAlreadyExists
	}

	// Ключ после сбоя занимает только тот повтор, который увидел ту же запись.
	err = reserveFailed.Run(ctx, r.rdb, []string{keyPrefix + key}, raw, data, ttl.Milliseconds()).Err()
	switch {
	case err == nil:
		return toDomain(key, record), nil
	case errors.Is(err, redis.Nil):
		return existing, domain.ErrIdempotencyKeyAlreadyExists
	default:
		return domain.IdempotencyRecord{}, fmt.Errorf("%w: redis reserve failed key: %v", domain.ErrStorage, err)
	}
}

// Get возвращает запись или ErrIdempotencyKeyNotFound.
func (r *IdempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	record, err := r.load(ctx, key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	return toDomain(key, record), nil
}

// MarkDone сохраняет успешный ответ, сохраняя исходный TTL.
func (r *IdempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

// MarkFailed сохраняет ответ с ошибкой, сохраняя исходный TTL.
func (r *IdempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

func (r *IdempotencyRepository) markStatus(ctx context.Context, key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	record, err := r.load(ctx, key)
	if err != nil {
		return err
	}
	record.Status = status
	record.ResponseBody = append([]byte(nil), responseBody...)
	record.HTTPStatus = httpStatus
	record.UpdatedAt = r.now()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal idempotency record: %w", err)
	}

	// XX: ключ мог истечь между чтением и записью, тогда запись не воскрешается.
	err = r.rdb.SetArgs(ctx, keyPrefix+key, data, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if errors.Is(err, redis.Nil) {
		return domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: redis set: %v", domain.ErrStorage, err)
	}
	return nil
}

func (r *IdempotencyRepository) load(ctx context.Context, key string) (storedRecord, error) {
	_, record, err := r.loadRaw(ctx, key)
	return record, err
}

func (r *IdempotencyRepository) loadRaw(ctx context.Context, key string) ([]byte, storedRecord, error) {
	raw, err := r.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storedRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return nil, storedRecord{}, fmt.Errorf("%w: redis get: %v", domain.ErrStorage, err)
	}

	var record storedRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, storedRecord{}, fmt.Errorf("%w: decode idempotency record: %v", domain.ErrStorage, err)
	}
	return raw, record, nil
}

// Ping проверяет доступность Redis; используется health-check.
func (r *IdempotencyRepository) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func toDomain(key string, record storedRecord) domain.IdempotencyRecord {
	return domain.IdempotencyRecord{
		Key:          key,
		RequestHash:  record.RequestHash,
		ResponseBody: append([]byte(nil), record.ResponseBody...),
		HTTPStatus:   record.HTTPStatus,
		Status:       record.Status,
		TTLAt:        record.TTLAt,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
