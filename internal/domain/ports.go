package domain

import (
	"context"
	"time"
)

// ProductStore — внешнее хранилище каталога. Ядро читает товары и атомарно меняет остатки.
type ProductStore interface {
	// FindByID возвращает товар или ошибку, удовлетворяющую errors.Is(err, ErrProductNotFound).
	FindByID(ctx context.Context, id string) (Product, error)
	// FindByIDs возвращает найденные товары; отсутствующие идентификаторы просто пропускаются.
	FindByIDs(ctx context.Context, ids []string) (map[string]Product, error)
	// IncrementQuantity атомарно прибавляет delta к остатку.
	// Результат никогда не становится отрицательным: в этом случае возвращается *InsufficientStockError.
	IncrementQuantity(ctx context.Context, id string, delta int) error
}

// OrderStore описывает требования к хранилищу заказов.
// StatusCheck проверяет переход из текущего статуса под блокировкой хранилища.
type StatusCheck func(current OrderStatus) error

type OrderStore interface {
	// Create сохраняет новый заказ и возвращает его с присвоенным идентификатором.
	Create(ctx context.Context, order Order) (Order, error)
	// FindByID возвращает заказ по идентификатору или ErrOrderNotFound.
	FindByID(ctx context.Context, id string) (Order, error)
	// FindAll возвращает заказы по фильтру, новые первыми.
	FindAll(ctx context.Context, filter OrderFilter) ([]Order, error)
	// UpdateStatus меняет статус и возвращает обновлённый заказ вместе с предыдущим статусом.
	// Чтение предыдущего статуса, проверки checks и запись выполняются атомарно:
	// ошибка любой проверки отменяет запись и возвращается как есть.
	UpdateStatus(ctx context.Context, id string, status OrderStatus, checks ...StatusCheck) (Order, OrderStatus, error)
	// DeleteByID удаляет заказ или возвращает ErrOrderNotFound.
	DeleteByID(ctx context.Context, id string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	// CreateProcessing резервирует ключ. Просроченный ключ и ключ после сбоя (failed) с тем же
	// хешем запроса резервируются заново. Иначе возвращает существующую запись и
	// ErrIdempotencyKeyAlreadyExists или ErrIdempotencyHashMismatch.
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
}

// IdempotencyJanitor — хранилища, которым нужна периодическая очистка просроченных ключей.
type IdempotencyJanitor interface {
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}
