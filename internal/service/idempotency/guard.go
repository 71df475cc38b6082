package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop-orders/internal/domain"
)

const maxKeyLength = 128

// Decision возвращается из Begin.
type Decision struct {
	// Replay установлен, если запрос уже выполнялся и нужно вернуть сохранённый ответ.
	Replay bool
	Status int
	Body   []byte
}

// GuardOption настраивает Guard.
type GuardOption func(*Guard)

// WithTTL задаёт срок жизни ключа.
func WithTTL(ttl time.Duration) GuardOption {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) GuardOption {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithGuardLogger задаёт logger.
func WithGuardLogger(logger *log.Entry) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Guard связывает Idempotency-Key с ответом на создание заказа.
// Ключи изолированы по пользователю: одинаковые ключи разных пользователей не пересекаются.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	now    func() time.Time
	logger *log.Entry
}

// NewGuard создаёт Guard поверх хранилища ключей.
func NewGuard(repo domain.IdempotencyRepository, opts ...GuardOption) *Guard {
	g := &Guard{
		repo:   repo,
		ttl:    domain.DefaultIdempotencyTTL,
		now:    func() time.Time { return time.Now().UTC() },
		logger: log.WithField("component", "idempotency-guard"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RequestHash возвращает sha256 тела запроса в hex.
func RequestHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Begin резервирует ключ. Повтор того же запроса после завершения возвращает Decision.Replay.
func (g *Guard) Begin(ctx context.Context, userID, key string, body []byte) (Decision, error) {
	scoped, err := scopeKey(userID, key)
	if err != nil {
		return Decision{}, err
	}

	record, err := g.repo.CreateProcessing(ctx, scoped, RequestHash(body), g.now().Add(g.ttl))
	switch {
	case err == nil:
		return Decision{}, nil
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return Decision{}, err
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		if !record.Completed() {
			return Decision{}, domain.ErrIdempotencyInProgress
		}
		g.logger.WithFields(log.Fields{
			"user_id": userID,
			"status":  record.HTTPStatus,
		}).Info("replaying idempotent response")
		return Decision{Replay: true, Status: record.HTTPStatus, Body: record.ResponseBody}, nil
	default:
		return Decision{}, fmt.Errorf("reserve idempotency key: %w", err)
	}
}

// Complete сохраняет окончательный ответ: повтор с тем же ключом получит его без обработки.
// Сюда же попадает частичное выполнение, потому что заказ уже сохранён.
func (g *Guard) Complete(ctx context.Context, userID, key string, status int, body []byte) error {
	scoped, err := scopeKey(userID, key)
	if err != nil {
		return err
	}
	if err := g.repo.MarkDone(ctx, scoped, body, status); err != nil {
		return fmt.Errorf("store idempotent response: %w", err)
	}
	return nil
}

// Fail помечает ключ после сбоя, не оставившего заказа (5xx). Повтор того же запроса
// выполнит его заново, другой запрос с этим ключом по-прежнему получит конфликт.
func (g *Guard) Fail(ctx context.Context, userID, key string, status int, body []byte) error {
	scoped, err := scopeKey(userID, key)
	if err != nil {
		return err
	}
	if err := g.repo.MarkFailed(ctx, scoped, body, status); err != nil {
		return fmt.Errorf("store failed idempotent response: %w", err)
	}
	return nil
}

// Finish выбирает между Complete и Fail: retryable ответы освобождают ключ для повтора.
func (g *Guard) Finish(ctx context.Context, userID, key string, status int, body []byte, retryable bool) error {
	if retryable {
		return g.Fail(ctx, userID, key, status, body)
	}
	return g.Complete(ctx, userID, key, status, body)
}

func scopeKey(userID, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", domain.ErrIdempotencyKeyRequired
	}
	if len(key) > maxKeyLength {
		return "", fmt.Errorf("%w: idempotency key is longer than %d characters", domain.ErrValidation, maxKeyLength)
	}
	return userID + ":" + key, nil
}
